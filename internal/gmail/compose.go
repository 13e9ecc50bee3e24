package gmail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// ComposedMessage is a plain-text email to send or save as a draft.
type ComposedMessage struct {
	To          string
	Subject     string
	Body        string
	SaveAsDraft bool
}

// Raw renders m as an RFC 5322 message encoded for the Gmail API's raw field.
func (m ComposedMessage) Raw() (string, error) {
	return m.raw(time.Now())
}

func (m ComposedMessage) raw(now time.Time) (string, error) {
	if m.To == "" {
		return "", errors.New("recipient is required")
	}
	to, err := mail.ParseAddressList(m.To)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("To", to)
	h.SetSubject(m.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return "", fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, m.Body); err != nil {
		return "", fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish message: %w", err)
	}

	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}
