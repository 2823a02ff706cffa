package storage

import (
	"context"
	"io"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
)

// Backend is the set of operations shared by every backend variant.
// A variant declares what it implements with Capabilities and answers
// anything else with a *lib.UnsupportedOperationError.
//
// Mutating operations are keyed by message ID: applying the same change twice succeeds.
type Backend interface {
	Kind() lib.BackendKind
	Capabilities() lib.Capability
	// Delimiter used to construct a path of folders with its children
	Delimiter() string
	// Close releases the connection or file handles
	Close() error

	ListFolders(ctx context.Context) ([]mailbox.Info, error)
	// CreateFolder doesn't return an error if the folder already exists
	CreateFolder(ctx context.Context, info mailbox.Info) error
	DeleteFolder(ctx context.Context, info mailbox.Info) error
	FolderStatus(ctx context.Context, info mailbox.Info) (*mailbox.Status, error)

	ListEnvelopes(ctx context.Context, info mailbox.Info, filter mailbox.Filter) ([]mailbox.Envelope, error)
	// FetchMessage sets the \Seen flag unless peek is true
	FetchMessage(ctx context.Context, info mailbox.Info, id mailbox.MessageID, peek bool) (*mailbox.Message, error)
	AddMessage(ctx context.Context, info mailbox.Info, props mailbox.MessageProperties, body io.Reader) (mailbox.MessageID, error)
	CopyMessages(ctx context.Context, from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info) error
	MoveMessages(ctx context.Context, from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info) error
	DeleteMessages(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID) error
	AddFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error
	RemoveFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error

	SendMessage(ctx context.Context, from string, recipients []string, body []byte) error

	// Search runs a full-text query over every folder unless the query names one
	Search(ctx context.Context, query mailbox.Query) ([]mailbox.Envelope, error)
	Reindex(ctx context.Context) error
}

// Require returns an UnsupportedOperationError when the backend doesn't declare the capability
func Require(backend Backend, capability lib.Capability) error {
	if backend.Capabilities().Has(capability) {
		return nil
	}
	return lib.Unsupported(backend.Kind(), capability)
}

