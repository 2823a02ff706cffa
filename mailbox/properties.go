package mailbox

import "time"

// MessageProperties are the attributes given to a message added to a folder
type MessageProperties struct {
	// The message flags.
	Flags []string
	// The date the message was received by the server.
	InternalDate time.Time
	// The message size.
	Size uint32
}
