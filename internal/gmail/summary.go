package gmail

import (
	"fmt"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Header placeholders used when a message lacks the header.
const (
	NoSubject     = "No Subject"
	UnknownSender = "Unknown Sender"
	NoRecipient   = "No Recipient"
	UnknownDate   = "Unknown Date"
)

// SummaryHeaders are the metadata headers requested for summaries.
var SummaryHeaders = []string{"Subject", "From", "To", "Date"}

var separator = strings.Repeat("-", 50)

// MessageSummary is the metadata shown for a listed message.
type MessageSummary struct {
	ID      string
	From    string
	To      string
	Date    string
	Subject string
}

// DraftSummary is the metadata shown for a listed draft.
type DraftSummary struct {
	ID      string
	To      string
	Subject string
}

// SummaryFromMessage builds a MessageSummary from a metadata fetch. id is
// the id from the listing, which a partial response may omit.
func SummaryFromMessage(id string, msg *gmail.Message) (MessageSummary, error) {
	if msg == nil || msg.Payload == nil {
		return MessageSummary{}, &MalformedDataError{Field: "payload"}
	}
	h := msg.Payload.Headers
	return MessageSummary{
		ID:      id,
		From:    headerValue(h, "From", UnknownSender),
		To:      headerValue(h, "To", NoRecipient),
		Date:    headerValue(h, "Date", UnknownDate),
		Subject: headerValue(h, "Subject", NoSubject),
	}, nil
}

// SummaryFromDraft builds a DraftSummary from a metadata fetch of a draft.
func SummaryFromDraft(id string, draft *gmail.Draft) (DraftSummary, error) {
	if draft == nil || draft.Message == nil {
		return DraftSummary{}, &MalformedDataError{Field: "message"}
	}
	if draft.Message.Payload == nil {
		return DraftSummary{}, &MalformedDataError{Field: "payload"}
	}
	h := draft.Message.Payload.Headers
	return DraftSummary{
		ID:      id,
		To:      headerValue(h, "To", NoRecipient),
		Subject: headerValue(h, "Subject", NoSubject),
	}, nil
}

func (s MessageSummary) String() string {
	return fmt.Sprintf("Message ID: %s\nFrom: %s\nTo: %s\nDate: %s\nSubject: %s\n%s\n",
		s.ID, s.From, s.To, s.Date, s.Subject, separator)
}

func (s DraftSummary) String() string {
	return fmt.Sprintf("Draft ID: %s\nTo: %s\nSubject: %s\n%s\n", s.ID, s.To, s.Subject, separator)
}

// FormatSummaries joins rendered summaries with a blank line between them.
func FormatSummaries[T fmt.Stringer](items []T) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = item.String()
	}
	return strings.Join(parts, "\n")
}

func headerValue(headers []*gmail.MessagePartHeader, name, placeholder string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return placeholder
}
