package mdir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/storage"
	"github.com/creativeprojects/courier/storage/base"
	"github.com/emersion/go-maildir"
)

const Delimiter = "."

// Capabilities supported by the backend
const Capabilities = lib.CapListFolders | lib.CapManageFolders | lib.CapFolderStatus |
	lib.CapListEnvelopes | lib.CapFetchMessage | lib.CapAddMessage |
	lib.CapCopyMessage | lib.CapMoveMessage | lib.CapDeleteMessage | lib.CapFlags

// Maildir stores each folder in a sub-directory of the root.
// Nothing is cached: every call reads the directories again.
type Maildir struct {
	base.Unsupported
	root string
	log  lib.Logger
}

// verify interface
var _ storage.Backend = &Maildir{}

func New(root string) (*Maildir, error) {
	return NewWithLogger(root, nil)
}

func NewWithLogger(root string, logger lib.Logger) (*Maildir, error) {
	if runtime.GOOS == "windows" {
		return nil, errors.New("maildir is not supported on Windows")
	}
	if logger == nil {
		logger = &lib.NoLog{}
	}
	err := os.MkdirAll(root, 0700)
	if err != nil {
		return nil, err
	}

	return &Maildir{
		Unsupported: base.Unsupported{Backend: lib.MAILDIR},
		root:        root,
		log:         logger,
	}, nil
}

func (m *Maildir) Kind() lib.BackendKind {
	return lib.MAILDIR
}

func (m *Maildir) Capabilities() lib.Capability {
	return Capabilities
}

func (m *Maildir) Close() error {
	return nil
}

func (m *Maildir) Root() string {
	return m.root
}

func (m *Maildir) Delimiter() string {
	return Delimiter
}

func (m *Maildir) ListFolders(ctx context.Context) ([]mailbox.Info, error) {
	return ListFolders(m.root)
}

// ListFolders returns the sub-directories of root that are maildirs
func ListFolders(root string) ([]mailbox.Info, error) {
	list := make([]mailbox.Info, 0)
	files, err := os.ReadDir(root)
	if err != nil {
		return nil, &lib.BackendUnavailableError{Backend: lib.MAILDIR, Err: err}
	}
	for _, file := range files {
		if !file.IsDir() || !isMaildir(filepath.Join(root, file.Name())) {
			continue
		}
		list = append(list, mailbox.Info{
			Delimiter: Delimiter,
			Name:      file.Name(),
		})
	}
	return list, nil
}

// CreateFolder doesn't return an error if the folder already exists
func (m *Maildir) CreateFolder(ctx context.Context, info mailbox.Info) error {
	dirName, err := m.folderPath(info)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dirName); err == nil || errors.Is(err, fs.ErrExist) {
		return nil
	}
	m.log.Printf("Creating folder %q", dirName)
	return maildir.Dir(dirName).Init()
}

// DeleteFolder only removes a maildir directly under the root
func (m *Maildir) DeleteFolder(ctx context.Context, info mailbox.Info) error {
	mbox, err := m.dir(info)
	if err != nil {
		return err
	}
	dirName := string(mbox)
	m.log.Printf("Deleting folder %q", dirName)
	return os.RemoveAll(dirName)
}

func (m *Maildir) FolderStatus(ctx context.Context, info mailbox.Info) (*mailbox.Status, error) {
	mbox, err := m.dir(info)
	if err != nil {
		return nil, err
	}
	status := &mailbox.Status{
		Name:           info.Name,
		PermanentFlags: FromFlags([]maildir.Flag{maildir.FlagSeen, maildir.FlagReplied, maildir.FlagFlagged, maildir.FlagTrashed, maildir.FlagDraft}),
	}
	status.Flags = status.PermanentFlags
	entries, err := os.ReadDir(filepath.Join(string(mbox), "new"))
	if err != nil {
		return nil, err
	}
	status.Recent = uint32(len(entries))
	msgs, err := messages(mbox)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		status.Messages++
		if !hasMaildirFlag(msg.Flags(), maildir.FlagSeen) {
			status.Unseen++
		}
	}
	return status, nil
}

func (m *Maildir) ListEnvelopes(ctx context.Context, info mailbox.Info, filter mailbox.Filter) ([]mailbox.Envelope, error) {
	mbox, err := m.dir(info)
	if err != nil {
		return nil, err
	}
	msgs, err := messages(mbox)
	if err != nil {
		return nil, err
	}
	envelopes := make([]mailbox.Envelope, 0, len(msgs))
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		envelope, err := readEnvelope(msg)
		if err != nil {
			m.log.Printf("skipping message %q: %s", msg.Key(), err)
			continue
		}
		envelope.Folder = info.Name
		envelopes = append(envelopes, envelope)
	}
	sort.SliceStable(envelopes, func(i, j int) bool {
		return envelopes[i].Date.Before(envelopes[j].Date)
	})
	return filter.Apply(envelopes), nil
}

func (m *Maildir) FetchMessage(ctx context.Context, info mailbox.Info, id mailbox.MessageID, peek bool) (*mailbox.Message, error) {
	mbox, err := m.dir(info)
	if err != nil {
		return nil, err
	}
	msg, err := messageByID(mbox, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: %s in %q", lib.ErrMessageNotFound, id, info.Name)
	}
	file, err := msg.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot open key %q: %w", msg.Key(), err)
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(msg.Filename())
	if err != nil {
		return nil, fmt.Errorf("cannot stat %q: %w", msg.Filename(), err)
	}
	flags := msg.Flags()
	if !peek && !hasMaildirFlag(flags, maildir.FlagSeen) {
		flags = addFlags(flags, []maildir.Flag{maildir.FlagSeen})
		if err = msg.SetFlags(flags); err != nil {
			return nil, fmt.Errorf("cannot mark message as seen: %w", err)
		}
	}
	return &mailbox.Message{
		ID:           mailbox.NewMessageIDFromString(msg.Key()),
		Folder:       info.Name,
		Flags:        FromFlags(flags),
		InternalDate: stat.ModTime(),
		Raw:          raw,
	}, nil
}

// AddMessage writes the message in tmp then renames it: it only becomes visible once complete
func (m *Maildir) AddMessage(ctx context.Context, info mailbox.Info, props mailbox.MessageProperties, body io.Reader) (mailbox.MessageID, error) {
	mbox, err := m.dir(info)
	if err != nil {
		return mailbox.EmptyMessageID, err
	}
	msg, copied, err := m.createFromStream(mbox, props.Flags, body)
	if err != nil {
		return mailbox.EmptyMessageID, err
	}
	if props.Size > 0 && copied != int64(props.Size) {
		_ = msg.Remove()
		return mailbox.EmptyMessageID, fmt.Errorf("message body size advertised as %d bytes but read %d bytes from buffer", props.Size, copied)
	}
	m.log.Printf("Message saved: folder=%q key=%q size=%d flags=%v date=%q", info.Name, msg.Key(), copied, props.Flags, props.InternalDate)

	if !props.InternalDate.IsZero() {
		_ = os.Chtimes(msg.Filename(), time.Now(), props.InternalDate)
	}
	return mailbox.NewMessageIDFromString(msg.Key()), nil
}

func (m *Maildir) createFromStream(mbox maildir.Dir, flags []string, body io.Reader) (*maildir.Message, int64, error) {
	msg, writer, err := mbox.Create(ToFlags(flags))
	if err != nil {
		return msg, 0, err
	}
	copied, err := io.Copy(writer, body)
	if err != nil {
		writer.Close()
		return msg, copied, err
	}
	return msg, copied, writer.Close()
}

// CopyMessages fails on a missing message: nothing says it was ever copied
func (m *Maildir) CopyMessages(ctx context.Context, from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info) error {
	return m.transfer(from, ids, to, func(msg *maildir.Message, target maildir.Dir) error {
		copied, err := msg.CopyTo(target)
		if err != nil {
			return err
		}
		return keepDate(msg, copied)
	}, false)
}

// MoveMessages skips the messages already gone from the source folder
func (m *Maildir) MoveMessages(ctx context.Context, from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info) error {
	return m.transfer(from, ids, to, func(msg *maildir.Message, target maildir.Dir) error {
		return msg.MoveTo(target)
	}, true)
}

func (m *Maildir) transfer(from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info, apply func(*maildir.Message, maildir.Dir) error, skipMissing bool) error {
	source, err := m.dir(from)
	if err != nil {
		return err
	}
	target, err := m.dir(to)
	if err != nil {
		return err
	}
	for _, id := range ids {
		msg, err := messageByID(source, id)
		if err != nil {
			return err
		}
		if msg == nil {
			if skipMissing {
				continue
			}
			return fmt.Errorf("%w: %s in %q", lib.ErrMessageNotFound, id, from.Name)
		}
		if err = apply(msg, target); err != nil {
			return fmt.Errorf("cannot transfer message %q to %q: %w", msg.Key(), to.Name, err)
		}
	}
	return nil
}

// DeleteMessages removes the files. A message already gone is not an error.
func (m *Maildir) DeleteMessages(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID) error {
	mbox, err := m.dir(info)
	if err != nil {
		return err
	}
	for _, id := range ids {
		msg, err := messageByID(mbox, id)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		if err = msg.Remove(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (m *Maildir) AddFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error {
	return m.changeFlags(info, ids, func(existing []maildir.Flag) []maildir.Flag {
		return addFlags(existing, ToFlags(flags))
	})
}

func (m *Maildir) RemoveFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error {
	return m.changeFlags(info, ids, func(existing []maildir.Flag) []maildir.Flag {
		return removeFlags(existing, ToFlags(flags))
	})
}

func (m *Maildir) changeFlags(info mailbox.Info, ids []mailbox.MessageID, change func([]maildir.Flag) []maildir.Flag) error {
	mbox, err := m.dir(info)
	if err != nil {
		return err
	}
	for _, id := range ids {
		msg, err := messageByID(mbox, id)
		if err != nil {
			return err
		}
		if msg == nil {
			return fmt.Errorf("%w: %s in %q", lib.ErrMessageNotFound, id, info.Name)
		}
		if err = msg.SetFlags(change(msg.Flags())); err != nil {
			return err
		}
	}
	return nil
}

// folderPath maps a folder to a single directory entry of the root
func (m *Maildir) folderPath(info mailbox.Info) (string, error) {
	name := lib.VerifyDelimiter(info.Name, info.Delimiter, Delimiter)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: invalid folder name %q", lib.ErrMailboxNotFound, info.Name)
	}
	dirName := filepath.Join(m.root, name)
	rel, err := filepath.Rel(m.root, dirName)
	if err != nil || rel != name {
		return "", fmt.Errorf("%w: invalid folder name %q", lib.ErrMailboxNotFound, info.Name)
	}
	return dirName, nil
}

// dir returns the maildir of an existing folder
func (m *Maildir) dir(info mailbox.Info) (maildir.Dir, error) {
	dirName, err := m.folderPath(info)
	if err != nil {
		return "", err
	}
	if !isMaildir(dirName) {
		return "", fmt.Errorf("%w: %q", lib.ErrMailboxNotFound, info.Name)
	}
	return maildir.Dir(dirName), nil
}

func isMaildir(dirName string) bool {
	stat, err := os.Stat(filepath.Join(dirName, "cur"))
	return err == nil && stat.IsDir()
}

// messages moves the new messages into cur, the way a mail reader does, and lists them all
func messages(mbox maildir.Dir) ([]*maildir.Message, error) {
	if _, err := mbox.Unseen(); err != nil {
		return nil, fmt.Errorf("cannot read new messages: %w", err)
	}
	msgs, err := mbox.Messages()
	if err != nil {
		return nil, fmt.Errorf("cannot read messages: %w", err)
	}
	return msgs, nil
}

// messageByID returns nil when the message doesn't exist
func messageByID(mbox maildir.Dir, id mailbox.MessageID) (*maildir.Message, error) {
	if !id.IsString() {
		return nil, fmt.Errorf("%w: maildir expects a key, not %q", lib.ErrMessageNotFound, id.String())
	}
	msgs, err := messages(mbox)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if msg.Key() == id.AsString() {
			return msg, nil
		}
	}
	return nil, nil
}

func readEnvelope(msg *maildir.Message) (mailbox.Envelope, error) {
	stat, err := os.Stat(msg.Filename())
	if err != nil {
		return mailbox.Envelope{}, err
	}
	file, err := msg.Open()
	if err != nil {
		return mailbox.Envelope{}, err
	}
	defer file.Close()

	header, err := mailbox.ParseHeader(file)
	if err != nil {
		return mailbox.Envelope{}, err
	}
	envelope := mailbox.EnvelopeFromHeader(header)
	envelope.ID = mailbox.NewMessageIDFromString(msg.Key())
	envelope.Flags = FromFlags(msg.Flags())
	envelope.Size = uint32(stat.Size())
	if envelope.Date.IsZero() {
		envelope.Date = stat.ModTime()
	}
	return envelope, nil
}

func keepDate(source, target *maildir.Message) error {
	stat, err := os.Stat(source.Filename())
	if err != nil {
		return err
	}
	return os.Chtimes(target.Filename(), time.Now(), stat.ModTime())
}
