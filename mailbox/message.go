package mailbox

import (
	"bytes"
	"time"
)

// Message is the full content of a message fetched from a backend
type Message struct {
	// The message unique identifier.
	ID MessageID
	// The folder the message was fetched from.
	Folder string
	// The message flags.
	Flags []string
	// The date the message was received by the server.
	InternalDate time.Time
	// The raw RFC 5322 content.
	Raw []byte
}

func (m *Message) Size() uint32 {
	return uint32(len(m.Raw))
}

// Clone returns a deep copy of the message
func (m *Message) Clone() *Message {
	clone := *m
	clone.Raw = bytes.Clone(m.Raw)
	if m.Flags != nil {
		clone.Flags = append([]string{}, m.Flags...)
	}
	return &clone
}

// Envelope parses the message header into its summary
func (m *Message) Envelope() (Envelope, error) {
	header, err := ParseHeader(bytes.NewReader(m.Raw))
	if err != nil {
		return Envelope{}, err
	}
	envelope := EnvelopeFromHeader(header)
	envelope.ID = m.ID
	envelope.Folder = m.Folder
	envelope.Flags = m.Flags
	envelope.Size = m.Size()
	if envelope.Date.IsZero() {
		envelope.Date = m.InternalDate
	}
	return envelope, nil
}
