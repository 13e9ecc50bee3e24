package gmail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func headers(kv ...string) []*gmail.MessagePartHeader {
	var out []*gmail.MessagePartHeader
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &gmail.MessagePartHeader{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestSummaryFromMessage(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{Headers: headers(
		"From", "Alice <alice@example.com>",
		"to", "bob@example.com",
		"Date", "Mon, 19 Oct 2026 10:00:00 +0000",
		"Subject", "Status",
	)}}

	s, err := SummaryFromMessage("m1", msg)
	require.NoError(t, err)
	assert.Equal(t, MessageSummary{
		ID:      "m1",
		From:    "Alice <alice@example.com>",
		To:      "bob@example.com",
		Date:    "Mon, 19 Oct 2026 10:00:00 +0000",
		Subject: "Status",
	}, s)
}

func TestSummaryFromMessage_Placeholders(t *testing.T) {
	s, err := SummaryFromMessage("m2", &gmail.Message{Payload: &gmail.MessagePart{}})
	require.NoError(t, err)
	assert.Equal(t, UnknownSender, s.From)
	assert.Equal(t, NoRecipient, s.To)
	assert.Equal(t, UnknownDate, s.Date)
	assert.Equal(t, NoSubject, s.Subject)
}

func TestSummaryFromMessage_MissingPayload(t *testing.T) {
	_, err := SummaryFromMessage("m3", &gmail.Message{})

	var malformed *MalformedDataError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "payload", malformed.Field)
}

func TestSummaryFromDraft(t *testing.T) {
	draft := &gmail.Draft{Message: &gmail.Message{Payload: &gmail.MessagePart{Headers: headers("Subject", "Plans")}}}

	s, err := SummaryFromDraft("d1", draft)
	require.NoError(t, err)
	assert.Equal(t, DraftSummary{ID: "d1", To: NoRecipient, Subject: "Plans"}, s)

	_, err = SummaryFromDraft("d2", &gmail.Draft{})
	assert.Error(t, err)
}

func TestFormatSummaries(t *testing.T) {
	line := strings.Repeat("-", 50)
	msgs := []MessageSummary{
		{ID: "1", From: "a", To: "b", Date: "d", Subject: "s"},
		{ID: "2", From: "c", To: "e", Date: "f", Subject: "t"},
	}

	want := "Message ID: 1\nFrom: a\nTo: b\nDate: d\nSubject: s\n" + line + "\n" +
		"\n" +
		"Message ID: 2\nFrom: c\nTo: e\nDate: f\nSubject: t\n" + line + "\n"
	assert.Equal(t, want, FormatSummaries(msgs))

	drafts := []DraftSummary{{ID: "d", To: "x", Subject: "y"}}
	assert.Equal(t, "Draft ID: d\nTo: x\nSubject: y\n"+line+"\n", FormatSummaries(drafts))
}
