package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// ReadView is the human friendly version of a message
type ReadView struct {
	ID          string      `json:"id"`
	Headers     ReadHeaders `json:"headers"`
	Body        string      `json:"body"`
	Attachments []string    `json:"attachments,omitempty"`
}

type ReadHeaders struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Cc        string `json:"cc,omitempty"`
	Bcc       string `json:"bcc,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Date      string `json:"date,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// Read parses the message into its read view: the main headers and the plain text body.
// A message with only an HTML body gets its markup stripped.
func (m *Message) Read() (*ReadView, error) {
	reader, err := mail.CreateReader(bytes.NewReader(m.Raw))
	if err != nil && reader == nil {
		return nil, fmt.Errorf("cannot parse message %s: %w", m.ID, err)
	}
	defer reader.Close()

	view := &ReadView{
		ID:      m.ID.String(),
		Headers: readHeaders(reader.Header),
	}

	plain := &strings.Builder{}
	htmlBody := &strings.Builder{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			return nil, fmt.Errorf("cannot read part of message %s: %w", m.ID, err)
		}
		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("cannot read body of message %s: %w", m.ID, err)
			}
			switch contentType {
			case "text/plain", "":
				plain.Write(body)
			case "text/html":
				htmlBody.Write(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			view.Attachments = append(view.Attachments, filename)
		}
	}
	view.Body = plain.String()
	if view.Body == "" && htmlBody.Len() > 0 {
		view.Body = HTMLToText(htmlBody.String())
	}
	return view, nil
}

// HTMLToText removes all the markup from an HTML document
func HTMLToText(document string) string {
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(document)))
}

func readHeaders(header mail.Header) ReadHeaders {
	headers := ReadHeaders{
		From: strings.Join(addressList(header, "From"), ", "),
		To:   strings.Join(addressList(header, "To"), ", "),
		Cc:   strings.Join(addressList(header, "Cc"), ", "),
		Bcc:  strings.Join(addressList(header, "Bcc"), ", "),
	}
	headers.Subject, _ = header.Subject()
	if date, err := header.Date(); err == nil && !date.IsZero() {
		headers.Date = date.Format(time.RFC3339)
	}
	headers.MessageID, _ = header.MessageID()
	if ids, err := header.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		headers.InReplyTo = ids[0]
	}
	return headers
}

// headerNames lists the header fields of a read view, in display order
var headerNames = []string{"From", "To", "Cc", "Bcc", "Date", "Subject"}

func (h *ReadHeaders) field(name string) *string {
	switch strings.ToLower(name) {
	case "from":
		return &h.From
	case "to":
		return &h.To
	case "cc":
		return &h.Cc
	case "bcc":
		return &h.Bcc
	case "subject":
		return &h.Subject
	case "date":
		return &h.Date
	case "message-id":
		return &h.MessageID
	case "in-reply-to":
		return &h.InReplyTo
	}
	return nil
}

// Only keeps the header fields named (case insensitive). Unknown names are ignored.
func (h ReadHeaders) Only(names []string) ReadHeaders {
	selected := ReadHeaders{}
	for _, name := range names {
		if value := h.field(name); value != nil {
			*selected.field(name) = *value
		}
	}
	return selected
}

// Lines returns the name and value of the non empty header fields, in the order of names.
// Without names, the main fields are returned.
func (h ReadHeaders) Lines(names []string) [][2]string {
	if len(names) == 0 {
		names = headerNames
	}
	lines := make([][2]string, 0, len(names))
	for _, name := range names {
		value := h.field(name)
		if value == nil || *value == "" {
			continue
		}
		lines = append(lines, [2]string{name, *value})
	}
	return lines
}
