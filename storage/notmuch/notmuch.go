package notmuch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/storage"
	"github.com/creativeprojects/courier/storage/base"
	"github.com/creativeprojects/courier/storage/mdir"
	"github.com/emersion/go-imap"
	"github.com/jmoiron/sqlx"
)

const Delimiter = mdir.Delimiter

// Capabilities supported by the backend
const Capabilities = lib.CapListFolders | lib.CapFolderStatus | lib.CapListEnvelopes |
	lib.CapFetchMessage | lib.CapFlags | lib.CapSearch | lib.CapReindex

const messageColumns = "message_id, folder, path, subject, sender, recipients, cc, date, size, is_new"

type Config struct {
	// Root of the maildir being indexed
	Root string
	// Database file, ".notmuch/courier.db" under the root by default
	Database string
	Logger   lib.Logger
}

// Notmuch is a read-mostly index over a maildir. Tags live in the index only:
// the maildir files are never modified.
type Notmuch struct {
	base.Unsupported
	root string
	db   *sqlx.DB
	log  lib.Logger
}

// verify interface
var _ storage.Backend = &Notmuch{}

func New(config Config) (*Notmuch, error) {
	if config.Root == "" {
		return nil, errors.New("missing maildir root")
	}
	if config.Logger == nil {
		config.Logger = &lib.NoLog{}
	}
	if config.Database == "" {
		config.Database = filepath.Join(config.Root, ".notmuch", "courier.db")
	}
	err := os.MkdirAll(filepath.Dir(config.Database), 0700)
	if err != nil {
		return nil, err
	}
	db, applied, err := openDatabase(config.Database)
	if err != nil {
		return nil, err
	}
	config.Logger.Printf("opened index %q (%d migrations applied)", config.Database, applied)

	return &Notmuch{
		Unsupported: base.Unsupported{Backend: lib.NOTMUCH},
		root:        config.Root,
		db:          db,
		log:         config.Logger,
	}, nil
}

func (n *Notmuch) Kind() lib.BackendKind {
	return lib.NOTMUCH
}

func (n *Notmuch) Capabilities() lib.Capability {
	return Capabilities
}

func (n *Notmuch) Delimiter() string {
	return Delimiter
}

func (n *Notmuch) Close() error {
	err := n.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	return nil
}

func (n *Notmuch) ListFolders(ctx context.Context) ([]mailbox.Info, error) {
	if err := n.checkIndex(ctx); err != nil {
		return nil, err
	}
	names := []string{}
	err := n.db.SelectContext(ctx, &names, "SELECT name FROM folders ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}
	list := make([]mailbox.Info, 0, len(names))
	for _, name := range names {
		list = append(list, mailbox.Info{Delimiter: Delimiter, Name: name})
	}
	return list, nil
}

func (n *Notmuch) FolderStatus(ctx context.Context, info mailbox.Info) (*mailbox.Status, error) {
	folder := folderName(info)
	if err := n.checkIndex(ctx, folder); err != nil {
		return nil, err
	}
	counts := struct {
		Messages uint32 `db:"messages"`
		Unseen   uint32 `db:"unseen"`
		Recent   uint32 `db:"recent"`
	}{}
	err := n.db.GetContext(ctx, &counts,
		`SELECT COUNT(*) AS messages,
			COALESCE(SUM(EXISTS (SELECT 1 FROM tags t WHERE t.message_id = m.message_id AND t.tag = ?)), 0) AS unseen,
			COALESCE(SUM(is_new), 0) AS recent
		FROM messages m WHERE folder = ?`,
		mailbox.TagUnread, folder,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}
	return &mailbox.Status{
		Name:     info.Name,
		Messages: counts.Messages,
		Unseen:   counts.Unseen,
		Recent:   counts.Recent,
	}, nil
}

func (n *Notmuch) ListEnvelopes(ctx context.Context, info mailbox.Info, filter mailbox.Filter) ([]mailbox.Envelope, error) {
	folder := folderName(info)
	if err := n.checkIndex(ctx, folder); err != nil {
		return nil, err
	}
	rows := []messageRow{}
	err := n.db.SelectContext(ctx, &rows, "SELECT "+messageColumns+" FROM messages WHERE folder = ? ORDER BY date, id", folder)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}
	envelopes, err := n.envelopes(ctx, rows)
	if err != nil {
		return nil, err
	}
	return filter.Apply(envelopes), nil
}

// FetchMessage reads the file from the maildir. Unless peek is true the unread tag is removed from the index.
func (n *Notmuch) FetchMessage(ctx context.Context, info mailbox.Info, id mailbox.MessageID, peek bool) (*mailbox.Message, error) {
	folder := folderName(info)
	if err := n.checkIndex(ctx, folder); err != nil {
		return nil, err
	}
	row, err := n.messageRow(ctx, folder, id)
	if err != nil {
		return nil, err
	}
	filename := filepath.Join(n.root, folder, filepath.FromSlash(row.Path))
	raw, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q disappeared", lib.ErrReindexRequired, filename)
	}
	if err != nil {
		return nil, err
	}
	internalDate := time.Unix(row.Date, 0)
	if stat, err := os.Stat(filename); err == nil {
		internalDate = stat.ModTime()
	}
	if !peek {
		_, err = n.db.ExecContext(ctx, "DELETE FROM tags WHERE message_id = ? AND tag = ?", row.MessageID, mailbox.TagUnread)
		if err != nil {
			return nil, fmt.Errorf("could not remove tag: %w", err)
		}
	}
	tags, err := n.tags(ctx, []string{row.MessageID})
	if err != nil {
		return nil, err
	}
	return &mailbox.Message{
		ID:           mailbox.NewMessageIDFromString(row.MessageID),
		Folder:       info.Name,
		Flags:        mailbox.TagsToFlags(tags[row.MessageID]),
		InternalDate: internalDate,
		Raw:          raw,
	}, nil
}

// AddFlags adds the tags matching the flags. Adding \Seen removes the unread tag.
func (n *Notmuch) AddFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error {
	return n.changeTags(ctx, info, ids, flags, true)
}

// RemoveFlags removes the tags matching the flags. Removing \Seen adds the unread tag.
func (n *Notmuch) RemoveFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error {
	return n.changeTags(ctx, info, ids, flags, false)
}

func (n *Notmuch) changeTags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string, add bool) error {
	folder := folderName(info)
	if err := n.checkIndex(ctx, folder); err != nil {
		return err
	}
	rows := make([]messageRow, 0, len(ids))
	for _, id := range ids {
		row, err := n.messageRow(ctx, folder, id)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	tx, err := n.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}
	for _, row := range rows {
		for _, flag := range flags {
			tag := mailbox.FlagToTag(flag)
			// unread is the opposite of \Seen
			insert := add != (lib.NormalizeFlag(flag) == imap.SeenFlag)
			if insert {
				_, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO tags (message_id, tag) VALUES (?, ?)", row.MessageID, tag)
			} else {
				_, err = tx.ExecContext(ctx, "DELETE FROM tags WHERE message_id = ? AND tag = ?", row.MessageID, tag)
			}
			if err != nil {
				return txEnd(tx, fmt.Errorf("could not change tag %q: %w", tag, err))
			}
		}
	}
	return txEnd(tx, nil)
}

// checkIndex returns ErrReindexRequired when the index was never built,
// or when the folders (all of them when none is given) changed on disk since the last Reindex
func (n *Notmuch) checkIndex(ctx context.Context, folders ...string) error {
	var indexedAt int64
	err := n.db.GetContext(ctx, &indexedAt, "SELECT indexed_at FROM index_state WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: the index was never built", lib.ErrReindexRequired)
	}
	if err != nil {
		return fmt.Errorf("could not query db: %w", err)
	}
	indexed := []struct {
		Name      string `db:"name"`
		Signature string `db:"signature"`
	}{}
	err = n.db.SelectContext(ctx, &indexed, "SELECT name, signature FROM folders")
	if err != nil {
		return fmt.Errorf("could not query db: %w", err)
	}
	signatures := make(map[string]string, len(indexed))
	for _, folder := range indexed {
		signatures[folder.Name] = folder.Signature
	}

	if len(folders) == 0 {
		onDisk, err := mdir.ListFolders(n.root)
		if err != nil {
			return err
		}
		if len(onDisk) != len(indexed) {
			return fmt.Errorf("%w: folders were added or removed", lib.ErrReindexRequired)
		}
		for _, info := range onDisk {
			folders = append(folders, info.Name)
		}
	}
	for _, folder := range folders {
		stored, found := signatures[folder]
		current, err := signature(filepath.Join(n.root, folder))
		if err != nil && !found {
			return fmt.Errorf("%w: %q", lib.ErrMailboxNotFound, folder)
		}
		if err != nil || !found || current != stored {
			return fmt.Errorf("%w: folder %q changed", lib.ErrReindexRequired, folder)
		}
	}
	return nil
}

type messageRow struct {
	MessageID  string `db:"message_id"`
	Folder     string `db:"folder"`
	Path       string `db:"path"`
	Subject    string `db:"subject"`
	Sender     string `db:"sender"`
	Recipients string `db:"recipients"`
	Cc         string `db:"cc"`
	Date       int64  `db:"date"`
	Size       int64  `db:"size"`
	IsNew      bool   `db:"is_new"`
}

func (r messageRow) envelope(tags []string) mailbox.Envelope {
	return mailbox.Envelope{
		ID:        mailbox.NewMessageIDFromString(r.MessageID),
		Folder:    r.Folder,
		MessageID: r.MessageID,
		Subject:   r.Subject,
		From:      splitList(r.Sender),
		To:        splitList(r.Recipients),
		Cc:        splitList(r.Cc),
		Date:      time.Unix(r.Date, 0),
		Flags:     mailbox.TagsToFlags(tags),
		Size:      uint32(r.Size),
	}
}

func (n *Notmuch) messageRow(ctx context.Context, folder string, id mailbox.MessageID) (messageRow, error) {
	row := messageRow{}
	err := n.db.GetContext(ctx, &row,
		"SELECT "+messageColumns+" FROM messages WHERE folder = ? AND message_id = ? ORDER BY id LIMIT 1",
		folder, normalizeID(id),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return row, fmt.Errorf("%w: %s in %q", lib.ErrMessageNotFound, id, folder)
	}
	if err != nil {
		return row, fmt.Errorf("could not query db: %w", err)
	}
	return row, nil
}

// envelopes loads the tags of the rows
func (n *Notmuch) envelopes(ctx context.Context, rows []messageRow) ([]mailbox.Envelope, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.MessageID)
	}
	tags, err := n.tags(ctx, ids)
	if err != nil {
		return nil, err
	}
	envelopes := make([]mailbox.Envelope, 0, len(rows))
	for _, row := range rows {
		envelopes = append(envelopes, row.envelope(tags[row.MessageID]))
	}
	return envelopes, nil
}

func (n *Notmuch) tags(ctx context.Context, messageIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}
	qry, args, err := sqlx.In("SELECT message_id, tag FROM tags WHERE message_id IN (?) ORDER BY tag", messageIDs)
	if err != nil {
		return nil, fmt.Errorf("could not replace IN in query: %w", err)
	}
	rows := []struct {
		MessageID string `db:"message_id"`
		Tag       string `db:"tag"`
	}{}
	err = n.db.SelectContext(ctx, &rows, n.db.Rebind(qry), args...)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}
	for _, row := range rows {
		result[row.MessageID] = append(result[row.MessageID], row.Tag)
	}
	return result, nil
}

func folderName(info mailbox.Info) string {
	return lib.VerifyDelimiter(info.Name, info.Delimiter, Delimiter)
}

// normalizeID accepts a Message-ID with or without its angle brackets
func normalizeID(id mailbox.MessageID) string {
	return strings.TrimSuffix(strings.TrimPrefix(id.String(), "<"), ">")
}
