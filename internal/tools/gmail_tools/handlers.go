package gmail_tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailmcp/internal/dispatch"
	"github.com/teemow/gmailmcp/internal/gmail"
	"github.com/teemow/gmailmcp/internal/logging"
	"github.com/teemow/gmailmcp/internal/tools/common"
)

// Result strings shared with clients.
const (
	AuthFailed        = "Failed to authenticate Gmail service"
	NoMessages        = "No messages found."
	NoDrafts          = "No drafts found."
	NoSentMessages    = "No sent messages found."
	NoSearchResults   = "No messages found matching the query."
	NoContent         = "No content available."
	HelloResourceText = "Hello from Minimal Resource!"
)

const (
	// DefaultMaxResults is used when max_results is absent or below 1.
	DefaultMaxResults = 10
	// MaxResultsLimit is the largest page the Gmail API serves.
	MaxResultsLimit = 500

	inboxLabel = "INBOX"
	sentLabel  = "SENT"
)

// Acquirer yields a ready Gmail capability. *gmail.Factory implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (gmail.Capability, error)
}

// Handlers implements the six Gmail operations. Every capability
// acquisition and remote call runs on the bridge.
type Handlers struct {
	acquirer Acquirer
	bridge   *dispatch.Bridge
	logger   *slog.Logger
}

// NewHandlers creates Handlers. A nil logger means slog.Default().
func NewHandlers(acquirer Acquirer, bridge *dispatch.Bridge, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		acquirer: acquirer,
		bridge:   bridge,
		logger:   logging.WithComponent(logger, "gmail_tools"),
	}
}

// ClampMaxResults maps a requested page size into [1, MaxResultsLimit].
func ClampMaxResults(n int) int64 {
	switch {
	case n < 1:
		return DefaultMaxResults
	case n > MaxResultsLimit:
		return MaxResultsLimit
	default:
		return int64(n)
	}
}

// GetEmails lists the most recent inbox messages.
func (h *Handlers) GetEmails(ctx context.Context) string {
	return h.run(ctx, "get_emails", "Error retrieving messages", func(ctx context.Context, svc gmail.Capability) (string, error) {
		return h.summaries(ctx, svc, "", []string{inboxLabel}, DefaultMaxResults, NoMessages)
	})
}

// GetSentEmails lists the most recent sent messages.
func (h *Handlers) GetSentEmails(ctx context.Context, maxResults int) string {
	return h.run(ctx, "get_sent_emails", "Error retrieving sent messages", func(ctx context.Context, svc gmail.Capability) (string, error) {
		return h.summaries(ctx, svc, "", []string{sentLabel}, ClampMaxResults(maxResults), NoSentMessages)
	})
}

// SearchEmails lists messages matching a Gmail search query.
func (h *Handlers) SearchEmails(ctx context.Context, query string, maxResults int) string {
	return h.run(ctx, "search_emails", "Error searching messages", func(ctx context.Context, svc gmail.Capability) (string, error) {
		return h.summaries(ctx, svc, query, nil, ClampMaxResults(maxResults), NoSearchResults)
	})
}

// GetDrafts lists the most recent drafts.
func (h *Handlers) GetDrafts(ctx context.Context, maxResults int) string {
	return h.run(ctx, "get_drafts", "Error retrieving drafts", func(ctx context.Context, svc gmail.Capability) (string, error) {
		drafts, err := dispatch.Offload(ctx, h.bridge, func(ctx context.Context) ([]*gmailapi.Draft, error) {
			return svc.ListDrafts(ctx, ClampMaxResults(maxResults))
		})
		if err != nil {
			return "", err
		}
		if len(drafts) == 0 {
			return NoDrafts, nil
		}

		summaries, err := dispatch.OffloadAll(ctx, h.bridge, drafts, func(ctx context.Context, d *gmailapi.Draft) (gmail.DraftSummary, error) {
			full, err := svc.GetDraft(ctx, d.Id, "metadata")
			if err != nil {
				return gmail.DraftSummary{}, err
			}
			return gmail.SummaryFromDraft(d.Id, full)
		})
		if err != nil {
			return "", err
		}
		return gmail.FormatSummaries(summaries), nil
	})
}

// GetEmailContent returns the body of one message, preferring plain text
// and falling back to the snippet.
func (h *Handlers) GetEmailContent(ctx context.Context, messageID string) string {
	prefix := fmt.Sprintf("Error retrieving message content for ID %s", messageID)
	return h.run(ctx, "get_email_content", prefix, func(ctx context.Context, svc gmail.Capability) (string, error) {
		msg, err := dispatch.Offload(ctx, h.bridge, func(ctx context.Context) (*gmailapi.Message, error) {
			return svc.GetMessage(ctx, messageID, "full")
		})
		if err != nil {
			return "", err
		}
		if msg == nil || msg.Payload == nil {
			h.logger.Warn("message has no payload", logging.MessageID(messageID))
			common.ReportFailure(ctx, &gmail.MalformedDataError{Field: "payload"})
			return fmt.Sprintf("Could not retrieve content for message ID: %s", messageID), nil
		}

		if body := gmail.ExtractBody(gmail.PayloadFromMessagePart(msg.Payload)); body != "" {
			return body, nil
		}
		h.logger.Debug("no body found, using snippet", logging.MessageID(messageID))
		if msg.Snippet != "" {
			return msg.Snippet, nil
		}
		return NoContent, nil
	})
}

// ComposeEmail saves msg as a draft or sends it.
func (h *Handlers) ComposeEmail(ctx context.Context, msg gmail.ComposedMessage) string {
	return h.run(ctx, "compose_email", "Error composing email", func(ctx context.Context, svc gmail.Capability) (string, error) {
		raw, err := msg.Raw()
		if err != nil {
			return "", err
		}

		if msg.SaveAsDraft {
			draft, err := dispatch.Offload(ctx, h.bridge, func(ctx context.Context) (*gmailapi.Draft, error) {
				return svc.CreateDraft(ctx, raw)
			})
			if err != nil {
				return "", err
			}
			h.logger.Info("draft saved", slog.String("draft_id", draft.Id), logging.Recipient(msg.To))
			return fmt.Sprintf("Draft saved successfully. Draft ID: %s", draft.Id), nil
		}

		sent, err := dispatch.Offload(ctx, h.bridge, func(ctx context.Context) (*gmailapi.Message, error) {
			return svc.SendMessage(ctx, raw)
		})
		if err != nil {
			return "", err
		}
		h.logger.Info("email sent", logging.MessageID(sent.Id), logging.Recipient(msg.To))
		return fmt.Sprintf("Email sent successfully. Message ID: %s", sent.Id), nil
	})
}

// run acquires a capability on the bridge and runs op with it. Failures
// become result strings: authentication failures the fixed AuthFailed
// text, everything else errPrefix followed by the error.
func (h *Handlers) run(ctx context.Context, tool, errPrefix string, op func(ctx context.Context, svc gmail.Capability) (string, error)) string {
	logger := h.logger.With(logging.Tool(tool))
	start := time.Now()

	svc, err := dispatch.OffloadUnbounded(ctx, h.bridge, h.acquirer.Acquire)
	if err != nil {
		common.ReportFailure(ctx, err)
		if gmail.IsAuthFailure(err) {
			logger.Warn("gmail service unavailable", logging.Err(err))
			return AuthFailed
		}
		logger.Error("acquiring gmail service failed", logging.Err(err))
		return fmt.Sprintf("%s: %v", errPrefix, err)
	}

	out, err := op(ctx, svc)
	if err != nil {
		common.ReportFailure(ctx, err)
		logger.Error("operation failed", logging.Err(err), logging.Duration(time.Since(start)))
		return fmt.Sprintf("%s: %v", errPrefix, err)
	}
	logger.Debug("operation completed", logging.Duration(time.Since(start)))
	return out
}

// summaries lists messages and fetches their metadata concurrently. The
// result keeps the listing order.
func (h *Handlers) summaries(ctx context.Context, svc gmail.Capability, query string, labels []string, maxResults int64, empty string) (string, error) {
	msgs, err := dispatch.Offload(ctx, h.bridge, func(ctx context.Context) ([]*gmailapi.Message, error) {
		return svc.ListMessages(ctx, query, labels, maxResults)
	})
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return empty, nil
	}

	summaries, err := dispatch.OffloadAll(ctx, h.bridge, msgs, func(ctx context.Context, m *gmailapi.Message) (gmail.MessageSummary, error) {
		full, err := svc.GetMessage(ctx, m.Id, "metadata", gmail.SummaryHeaders...)
		if err != nil {
			return gmail.MessageSummary{}, err
		}
		return gmail.SummaryFromMessage(m.Id, full)
	})
	if err != nil {
		return "", err
	}
	return gmail.FormatSummaries(summaries), nil
}
