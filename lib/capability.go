package lib

import "strings"

type BackendKind string

const (
	IMAP    BackendKind = "imap"
	MAILDIR BackendKind = "maildir"
	NOTMUCH BackendKind = "notmuch"
	SMTP    BackendKind = "smtp"
)

// Capability is a set of operations a backend supports
type Capability uint32

const (
	CapListFolders Capability = 1 << iota
	CapManageFolders
	CapFolderStatus
	CapListEnvelopes
	CapFetchMessage
	CapAddMessage
	CapCopyMessage
	CapMoveMessage
	CapDeleteMessage
	CapFlags
	CapSend
	CapSearch
	CapReindex
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapListFolders, "list folders"},
	{CapManageFolders, "manage folders"},
	{CapFolderStatus, "folder status"},
	{CapListEnvelopes, "list envelopes"},
	{CapFetchMessage, "fetch message"},
	{CapAddMessage, "add message"},
	{CapCopyMessage, "copy message"},
	{CapMoveMessage, "move message"},
	{CapDeleteMessage, "delete message"},
	{CapFlags, "flags"},
	{CapSend, "send message"},
	{CapSearch, "full-text search"},
	{CapReindex, "reindex"},
}

// Has returns true when all the capabilities in other are present
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	names := make([]string, 0, len(capabilityNames))
	for _, entry := range capabilityNames {
		if c.Has(entry.cap) {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "nothing"
	}
	return strings.Join(names, ", ")
}
