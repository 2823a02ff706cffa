package base

import (
	"context"
	"io"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
)

// Unsupported answers every operation with an UnsupportedOperationError.
// Backend variants embed it and override what they implement.
type Unsupported struct {
	Backend lib.BackendKind
}

func (u Unsupported) unsupported(capability lib.Capability) error {
	return lib.Unsupported(u.Backend, capability)
}

func (u Unsupported) ListFolders(ctx context.Context) ([]mailbox.Info, error) {
	return nil, u.unsupported(lib.CapListFolders)
}

func (u Unsupported) CreateFolder(ctx context.Context, info mailbox.Info) error {
	return u.unsupported(lib.CapManageFolders)
}

func (u Unsupported) DeleteFolder(ctx context.Context, info mailbox.Info) error {
	return u.unsupported(lib.CapManageFolders)
}

func (u Unsupported) FolderStatus(ctx context.Context, info mailbox.Info) (*mailbox.Status, error) {
	return nil, u.unsupported(lib.CapFolderStatus)
}

func (u Unsupported) ListEnvelopes(ctx context.Context, info mailbox.Info, filter mailbox.Filter) ([]mailbox.Envelope, error) {
	return nil, u.unsupported(lib.CapListEnvelopes)
}

func (u Unsupported) FetchMessage(ctx context.Context, info mailbox.Info, id mailbox.MessageID, peek bool) (*mailbox.Message, error) {
	return nil, u.unsupported(lib.CapFetchMessage)
}

func (u Unsupported) AddMessage(ctx context.Context, info mailbox.Info, props mailbox.MessageProperties, body io.Reader) (mailbox.MessageID, error) {
	return mailbox.EmptyMessageID, u.unsupported(lib.CapAddMessage)
}

func (u Unsupported) CopyMessages(ctx context.Context, from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info) error {
	return u.unsupported(lib.CapCopyMessage)
}

func (u Unsupported) MoveMessages(ctx context.Context, from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info) error {
	return u.unsupported(lib.CapMoveMessage)
}

func (u Unsupported) DeleteMessages(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID) error {
	return u.unsupported(lib.CapDeleteMessage)
}

func (u Unsupported) AddFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error {
	return u.unsupported(lib.CapFlags)
}

func (u Unsupported) RemoveFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error {
	return u.unsupported(lib.CapFlags)
}

func (u Unsupported) SendMessage(ctx context.Context, from string, recipients []string, body []byte) error {
	return u.unsupported(lib.CapSend)
}

func (u Unsupported) Search(ctx context.Context, query mailbox.Query) ([]mailbox.Envelope, error) {
	return nil, u.unsupported(lib.CapSearch)
}

func (u Unsupported) Reindex(ctx context.Context) error {
	return u.unsupported(lib.CapReindex)
}
