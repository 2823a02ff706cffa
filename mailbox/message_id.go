package mailbox

import "strconv"

var (
	EmptyMessageID MessageID
)

// MessageID is the backend-native identifier of a message:
// an IMAP UID, a maildir key or a notmuch Message-ID.
// Identifiers are never interchangeable between backends.
type MessageID struct {
	uid uint32
	key string
}

func NewMessageIDFromUint(uid uint32) MessageID {
	return MessageID{
		uid: uid,
	}
}

func NewMessageIDFromString(key string) MessageID {
	return MessageID{
		key: key,
	}
}

// ParseMessageID reads an identifier typed by a user
func ParseMessageID(input string) MessageID {
	if uid, err := strconv.ParseUint(input, 10, 32); err == nil && uid > 0 {
		return NewMessageIDFromUint(uint32(uid))
	}
	return NewMessageIDFromString(input)
}

func ParseMessageIDs(inputs []string) []MessageID {
	ids := make([]MessageID, 0, len(inputs))
	for _, input := range inputs {
		ids = append(ids, ParseMessageID(input))
	}
	return ids
}

func (i MessageID) IsZero() bool {
	return i.uid == 0 && i.key == ""
}

func (i MessageID) IsUint() bool {
	return i.uid > 0
}

func (i MessageID) IsString() bool {
	return i.key != ""
}

func (i MessageID) AsUint() uint32 {
	return i.uid
}

func (i MessageID) AsString() string {
	return i.key
}

func (i MessageID) String() string {
	if i.IsUint() {
		return strconv.FormatUint(uint64(i.uid), 10)
	}
	return i.key
}
