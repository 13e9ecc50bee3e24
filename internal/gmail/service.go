package gmail

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailmcp/internal/instrumentation"
)

const userID = "me"

// Capability is the subset of the Gmail API the server uses. All calls act
// on the authenticated user's mailbox.
type Capability interface {
	ListMessages(ctx context.Context, query string, labelIDs []string, maxResults int64) ([]*gmail.Message, error)
	GetMessage(ctx context.Context, id, format string, metadataHeaders ...string) (*gmail.Message, error)
	ListDrafts(ctx context.Context, maxResults int64) ([]*gmail.Draft, error)
	GetDraft(ctx context.Context, id, format string) (*gmail.Draft, error)
	CreateDraft(ctx context.Context, raw string) (*gmail.Draft, error)
	SendMessage(ctx context.Context, raw string) (*gmail.Message, error)
}

// Service implements Capability on top of the Gmail REST API.
type Service struct {
	users   *gmail.UsersService
	limiter *rate.Limiter
	metrics *instrumentation.Metrics
}

var _ Capability = (*Service)(nil)

// do runs fn after pacing, inside a client span, and records the outcome.
func (s *Service) do(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := instrumentation.StartGmailSpan(ctx, op, attrs...)
	start := time.Now()

	var err error
	if s.limiter != nil {
		err = s.limiter.Wait(ctx)
	}
	if err == nil {
		err = fn(ctx)
	}
	if err != nil {
		err = &TransientRemoteError{Op: op, Err: err}
	}

	s.metrics.RecordGmailOperation(ctx, op, instrumentation.StatusOf(err), time.Since(start))
	instrumentation.EndSpan(span, err)
	return err
}

// ListMessages implements Capability.
func (s *Service) ListMessages(ctx context.Context, query string, labelIDs []string, maxResults int64) ([]*gmail.Message, error) {
	var msgs []*gmail.Message
	err := s.do(ctx, instrumentation.OperationListMessages, func(ctx context.Context) error {
		call := s.users.Messages.List(userID).MaxResults(maxResults).Context(ctx)
		if query != "" {
			call = call.Q(query)
		}
		if len(labelIDs) > 0 {
			call = call.LabelIds(labelIDs...)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		msgs = resp.Messages
		return nil
	})
	return msgs, err
}

// GetMessage implements Capability.
func (s *Service) GetMessage(ctx context.Context, id, format string, metadataHeaders ...string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := s.do(ctx, instrumentation.OperationGetMessage, func(ctx context.Context) error {
		call := s.users.Messages.Get(userID, id).Context(ctx)
		if format != "" {
			call = call.Format(format)
		}
		if len(metadataHeaders) > 0 {
			call = call.MetadataHeaders(metadataHeaders...)
		}
		var err error
		msg, err = call.Do()
		return err
	}, attribute.String(instrumentation.SpanAttrMessageID, id))
	return msg, err
}

// ListDrafts implements Capability.
func (s *Service) ListDrafts(ctx context.Context, maxResults int64) ([]*gmail.Draft, error) {
	var drafts []*gmail.Draft
	err := s.do(ctx, instrumentation.OperationListDrafts, func(ctx context.Context) error {
		resp, err := s.users.Drafts.List(userID).MaxResults(maxResults).Context(ctx).Do()
		if err != nil {
			return err
		}
		drafts = resp.Drafts
		return nil
	})
	return drafts, err
}

// GetDraft implements Capability.
func (s *Service) GetDraft(ctx context.Context, id, format string) (*gmail.Draft, error) {
	var draft *gmail.Draft
	err := s.do(ctx, instrumentation.OperationGetDraft, func(ctx context.Context) error {
		call := s.users.Drafts.Get(userID, id).Context(ctx)
		if format != "" {
			call = call.Format(format)
		}
		var err error
		draft, err = call.Do()
		return err
	})
	return draft, err
}

// CreateDraft implements Capability. raw is a base64url encoded RFC 5322 message.
func (s *Service) CreateDraft(ctx context.Context, raw string) (*gmail.Draft, error) {
	var draft *gmail.Draft
	err := s.do(ctx, instrumentation.OperationCreateDraft, func(ctx context.Context) error {
		var err error
		draft, err = s.users.Drafts.Create(userID, &gmail.Draft{
			Message: &gmail.Message{Raw: raw},
		}).Context(ctx).Do()
		return err
	})
	return draft, err
}

// SendMessage implements Capability. raw is a base64url encoded RFC 5322 message.
func (s *Service) SendMessage(ctx context.Context, raw string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := s.do(ctx, instrumentation.OperationSendMessage, func(ctx context.Context) error {
		var err error
		msg, err = s.users.Messages.Send(userID, &gmail.Message{Raw: raw}).Context(ctx).Do()
		return err
	})
	return msg, err
}
