package mailbox

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// Envelope is a summary of a message, without its body
type Envelope struct {
	ID        MessageID
	Folder    string
	MessageID string
	Subject   string
	From      []string
	To        []string
	Cc        []string
	Date      time.Time
	Flags     []string
	Size      uint32
}

// ParseHeader reads the header section of a message
func ParseHeader(r io.Reader) (mail.Header, error) {
	header, err := textproto.ReadHeader(bufio.NewReader(r))
	if err != nil {
		return mail.Header{}, fmt.Errorf("cannot read message header: %w", err)
	}
	return mail.Header{Header: message.Header{Header: header}}, nil
}

// EnvelopeFromHeader fills in the fields coming from the message header.
// Fields that cannot be decoded are left empty.
func EnvelopeFromHeader(header mail.Header) Envelope {
	envelope := Envelope{}
	envelope.Subject, _ = header.Subject()
	envelope.MessageID, _ = header.MessageID()
	envelope.Date, _ = header.Date()
	envelope.From = addressList(header, "From")
	envelope.To = addressList(header, "To")
	envelope.Cc = addressList(header, "Cc")
	return envelope
}

func addressList(header mail.Header, key string) []string {
	addresses, err := header.AddressList(key)
	if err != nil || len(addresses) == 0 {
		raw := header.Get(key)
		if raw == "" {
			return nil
		}
		return []string{raw}
	}
	output := make([]string, 0, len(addresses))
	for _, address := range addresses {
		output = append(output, FormatAddress(address))
	}
	return output
}

// FormatAddress returns "Name <address>", or the bare address when there is no name
func FormatAddress(address *mail.Address) string {
	if address.Name == "" {
		return address.Address
	}
	return fmt.Sprintf("%s <%s>", address.Name, address.Address)
}

// Recipients returns the bare addresses found in the To, Cc and Bcc fields
func Recipients(raw []byte) ([]string, error) {
	header, err := ParseHeader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	recipients := make([]string, 0)
	seen := make(map[string]bool)
	for _, key := range []string{"To", "Cc", "Bcc"} {
		addresses, err := header.AddressList(key)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", key, err)
		}
		for _, address := range addresses {
			lower := strings.ToLower(address.Address)
			if seen[lower] {
				continue
			}
			seen[lower] = true
			recipients = append(recipients, address.Address)
		}
	}
	return recipients, nil
}

// Sender returns the bare address of the first From field
func Sender(raw []byte) (string, error) {
	header, err := ParseHeader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	addresses, err := header.AddressList("From")
	if err != nil {
		return "", fmt.Errorf("invalid From field: %w", err)
	}
	if len(addresses) == 0 {
		return "", fmt.Errorf("message has no sender")
	}
	return addresses[0].Address, nil
}

// RemoveHeader returns a copy of the message without the header fields named key.
// The body is left untouched.
func RemoveHeader(raw []byte, key string) ([]byte, error) {
	reader := bufio.NewReader(bytes.NewReader(raw))
	header, err := textproto.ReadHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read message header: %w", err)
	}
	if !header.Has(key) {
		return raw, nil
	}
	header.Del(key)
	buffer := &bytes.Buffer{}
	buffer.Grow(len(raw))
	if err = textproto.WriteHeader(buffer, header); err != nil {
		return nil, err
	}
	if _, err = io.Copy(buffer, reader); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
