package mailbox

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Draft is a message to compose before sending
type Draft struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	HTMLBody    string
	InReplyTo   string
	Date        time.Time
	Attachments []string
}

// Recipients returns every address the draft is sent to, Bcc included
func (d Draft) Recipients() []string {
	recipients := make([]string, 0, len(d.To)+len(d.Cc)+len(d.Bcc))
	recipients = append(recipients, d.To...)
	recipients = append(recipients, d.Cc...)
	return append(recipients, d.Bcc...)
}

// Compose builds the RFC 5322 message. The Bcc field is never written to the output.
func Compose(draft Draft) ([]byte, error) {
	if draft.From == "" {
		return nil, fmt.Errorf("cannot compose a message without sender")
	}
	if len(draft.Recipients()) == 0 {
		return nil, fmt.Errorf("cannot compose a message without recipient")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", draft.From)
	if len(draft.To) > 0 {
		msg.SetHeader("To", draft.To...)
	}
	if len(draft.Cc) > 0 {
		msg.SetHeader("Cc", draft.Cc...)
	}
	msg.SetHeader("Subject", draft.Subject)
	msg.SetHeader("Message-ID", NewMessageIDHeader(draft.From))
	if draft.InReplyTo != "" {
		msg.SetHeader("In-Reply-To", draft.InReplyTo)
		msg.SetHeader("References", draft.InReplyTo)
	}
	date := draft.Date
	if date.IsZero() {
		date = time.Now()
	}
	msg.SetDateHeader("Date", date)

	switch {
	case draft.Body != "" && draft.HTMLBody != "":
		msg.SetBody("text/plain", draft.Body)
		msg.AddAlternative("text/html", draft.HTMLBody)
	case draft.HTMLBody != "":
		msg.SetBody("text/html", draft.HTMLBody)
	default:
		msg.SetBody("text/plain", draft.Body)
	}
	for _, attachment := range draft.Attachments {
		msg.Attach(attachment)
	}

	buffer := &bytes.Buffer{}
	if _, err := msg.WriteTo(buffer); err != nil {
		return nil, fmt.Errorf("cannot compose message: %w", err)
	}
	return buffer.Bytes(), nil
}

// NewMessageIDHeader generates a unique Message-ID on the domain of the sender
func NewMessageIDHeader(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		domain = strings.Trim(from[at+1:], "<> ")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
