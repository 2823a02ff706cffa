package account

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/pgp"
	"github.com/creativeprojects/courier/storage"
)

func (m *Manager) ListFolders(ctx context.Context, name string) ([]mailbox.Info, error) {
	_, backend, err := m.readBackend(ctx, name, lib.CapListFolders)
	if err != nil {
		return nil, err
	}
	return backend.ListFolders(ctx)
}

func (m *Manager) CreateFolder(ctx context.Context, name, folder string) error {
	_, backend, err := m.readBackend(ctx, name, lib.CapManageFolders)
	if err != nil {
		return err
	}
	return backend.CreateFolder(ctx, folderInfo(backend, folder))
}

func (m *Manager) DeleteFolder(ctx context.Context, name, folder string) error {
	_, backend, err := m.readBackend(ctx, name, lib.CapManageFolders)
	if err != nil {
		return err
	}
	return backend.DeleteFolder(ctx, folderInfo(backend, folder))
}

func (m *Manager) FolderStatus(ctx context.Context, name, folder string) (*mailbox.Status, error) {
	_, backend, err := m.readBackend(ctx, name, lib.CapFolderStatus)
	if err != nil {
		return nil, err
	}
	return backend.FolderStatus(ctx, folderInfo(backend, folder))
}

func (m *Manager) ListEnvelopes(ctx context.Context, name, folder string, filter mailbox.Filter) ([]mailbox.Envelope, error) {
	_, backend, err := m.readBackend(ctx, name, lib.CapListEnvelopes)
	if err != nil {
		return nil, err
	}
	return backend.ListEnvelopes(ctx, folderInfo(backend, folder), filter)
}

// FetchMessage returns the message as stored, without decryption
func (m *Manager) FetchMessage(ctx context.Context, name, folder string, id mailbox.MessageID, peek bool) (*mailbox.Message, error) {
	_, backend, err := m.readBackend(ctx, name, lib.CapFetchMessage)
	if err != nil {
		return nil, err
	}
	return backend.FetchMessage(ctx, folderInfo(backend, folder), id, peek)
}

// ReadMessages fetches the messages, decrypts them when the account policy says so,
// and returns their read view. Unless peek is true the messages are marked as seen.
// A message that cannot be decrypted stops the loop: the stored message is left untouched.
func (m *Manager) ReadMessages(ctx context.Context, name, folder string, ids []mailbox.MessageID, peek bool) ([]*mailbox.ReadView, error) {
	s, backend, err := m.readBackend(ctx, name, lib.CapFetchMessage)
	if err != nil {
		return nil, err
	}
	var pipeline *pgp.Pipeline
	if s.account.Encryption.DecryptIncoming() {
		pipeline, err = m.encryption(s)
		if err != nil {
			return nil, err
		}
	}
	info := folderInfo(backend, folder)
	views := make([]*mailbox.ReadView, 0, len(ids))
	for _, id := range ids {
		msg, err := backend.FetchMessage(ctx, info, id, peek)
		if err != nil {
			return views, err
		}
		if pipeline != nil {
			msg, err = pipeline.DecryptIncoming(ctx, msg)
			if err != nil {
				return views, fmt.Errorf("message %s: %w", id, err)
			}
		}
		view, err := msg.Read()
		if err != nil {
			return views, err
		}
		views = append(views, view)
	}
	return views, nil
}

// AddMessage stores a raw message in the folder
func (m *Manager) AddMessage(ctx context.Context, name, folder string, raw []byte, flags []string) (mailbox.MessageID, error) {
	_, backend, err := m.readBackend(ctx, name, lib.CapAddMessage)
	if err != nil {
		return mailbox.EmptyMessageID, err
	}
	props := mailbox.MessageProperties{
		Flags:        lib.NormalizeFlags(flags),
		InternalDate: time.Now(),
		Size:         uint32(len(raw)),
	}
	return backend.AddMessage(ctx, folderInfo(backend, folder), props, bytes.NewReader(raw))
}

func (m *Manager) CopyMessages(ctx context.Context, name, from string, ids []mailbox.MessageID, to string) error {
	_, backend, err := m.readBackend(ctx, name, lib.CapCopyMessage)
	if err != nil {
		return err
	}
	return backend.CopyMessages(ctx, folderInfo(backend, from), ids, folderInfo(backend, to))
}

func (m *Manager) MoveMessages(ctx context.Context, name, from string, ids []mailbox.MessageID, to string) error {
	_, backend, err := m.readBackend(ctx, name, lib.CapMoveMessage)
	if err != nil {
		return err
	}
	return backend.MoveMessages(ctx, folderInfo(backend, from), ids, folderInfo(backend, to))
}

func (m *Manager) DeleteMessages(ctx context.Context, name, folder string, ids []mailbox.MessageID) error {
	_, backend, err := m.readBackend(ctx, name, lib.CapDeleteMessage)
	if err != nil {
		return err
	}
	return backend.DeleteMessages(ctx, folderInfo(backend, folder), ids)
}

func (m *Manager) AddFlags(ctx context.Context, name, folder string, ids []mailbox.MessageID, flags []string) error {
	backend, info, err := m.flagBackend(ctx, name, folder)
	if err != nil {
		return err
	}
	return backend.AddFlags(ctx, info, ids, lib.NormalizeFlags(flags))
}

func (m *Manager) RemoveFlags(ctx context.Context, name, folder string, ids []mailbox.MessageID, flags []string) error {
	backend, info, err := m.flagBackend(ctx, name, folder)
	if err != nil {
		return err
	}
	return backend.RemoveFlags(ctx, info, ids, lib.NormalizeFlags(flags))
}

// flagBackend returns the index when the account has one: tags are kept there
func (m *Manager) flagBackend(ctx context.Context, name, folder string) (storage.Backend, mailbox.Info, error) {
	s, err := m.session(name)
	if err != nil {
		return nil, mailbox.Info{}, err
	}
	if s.account.Index != nil {
		backend, err := m.indexBackend(ctx, s, lib.CapFlags)
		if err != nil {
			return nil, mailbox.Info{}, err
		}
		return backend, folderInfo(backend, folder), nil
	}
	_, backend, err := m.readBackend(ctx, name, lib.CapFlags)
	if err != nil {
		return nil, mailbox.Info{}, err
	}
	return backend, folderInfo(backend, folder), nil
}

// Reindex rebuilds the index of the account
func (m *Manager) Reindex(ctx context.Context, name string) error {
	s, err := m.session(name)
	if err != nil {
		return err
	}
	if s.account.Index != nil {
		backend, err := m.indexBackend(ctx, s, lib.CapReindex)
		if err != nil {
			return err
		}
		return backend.Reindex(ctx)
	}
	_, backend, err := m.readBackend(ctx, name, lib.CapReindex)
	if err != nil {
		return err
	}
	return backend.Reindex(ctx)
}

// Search runs a full-text search on the index backend. Without index,
// the query is turned into a structural filter on the read backend:
// free text then only matches the subject, sender and recipients, never the body.
func (m *Manager) Search(ctx context.Context, name string, query mailbox.Query) ([]mailbox.Envelope, error) {
	s, err := m.session(name)
	if err != nil {
		return nil, err
	}
	if s.account.Index != nil {
		backend, err := m.indexBackend(ctx, s, lib.CapSearch)
		if err != nil {
			return nil, err
		}
		return backend.Search(ctx, query)
	}
	if Capabilities(s.account.Read.Type).Has(lib.CapSearch) {
		_, backend, err := m.readBackend(ctx, name, lib.CapSearch)
		if err != nil {
			return nil, err
		}
		return backend.Search(ctx, query)
	}

	_, backend, err := m.readBackend(ctx, name, lib.CapListEnvelopes)
	if err != nil {
		return nil, err
	}
	filter := query.Filter()
	folders := []mailbox.Info{folderInfo(backend, query.Folder())}
	if query.Folder() == "" {
		if err := storage.Require(backend, lib.CapListFolders); err != nil {
			return nil, err
		}
		folders, err = backend.ListFolders(ctx)
		if err != nil {
			return nil, err
		}
	}
	found := make([]mailbox.Envelope, 0)
	for _, folder := range folders {
		if !folder.Selectable() {
			continue
		}
		envelopes, err := backend.ListEnvelopes(ctx, folder, filter)
		if errors.Is(err, lib.ErrMailboxNotFound) && query.Folder() == "" {
			// removed since the list was taken
			continue
		}
		if err != nil {
			return found, err
		}
		found = append(found, envelopes...)
	}
	return found, nil
}
