package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/limitio"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/storage"
	"github.com/creativeprojects/courier/storage/base"
	"github.com/emersion/go-imap"
	compress "github.com/emersion/go-imap-compress"
	move "github.com/emersion/go-imap-move"
	uidplus "github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
)

// Capabilities supported by the backend
const Capabilities = lib.CapListFolders | lib.CapManageFolders | lib.CapFolderStatus |
	lib.CapListEnvelopes | lib.CapFetchMessage | lib.CapAddMessage |
	lib.CapCopyMessage | lib.CapMoveMessage | lib.CapDeleteMessage | lib.CapFlags

type Config struct {
	// Account name, used in error messages
	Account             string
	ServerURL           string
	NoTLS               bool
	StartTLS            bool
	SkipTLSVerification bool
	Compress            bool
	// RateLimit of uploads in bytes per second
	RateLimit int
	// Timeout of each command
	Timeout time.Duration
	Logger  lib.Logger
}

// Imap keeps one connection to the server. Commands are serialized by a mutex.
// A dropped connection is reopened once and the operation replayed once.
type Imap struct {
	base.Unsupported
	config    Config
	provider  credential.Provider
	log       lib.Logger
	mu        sync.Mutex
	client    *client.Client
	uidplus   *uidplus.Client
	move      *move.Client
	delimiter atomic.Value
}

// verify interface
var _ storage.Backend = &Imap{}

// NewImap connects and logs in straight away
func NewImap(ctx context.Context, config Config, provider credential.Provider) (*Imap, error) {
	if config.ServerURL == "" {
		return nil, errors.New("missing server URL")
	}
	if provider == nil {
		return nil, errors.New("missing credential provider")
	}
	log := config.Logger
	if log == nil {
		log = &lib.NoLog{}
	}
	backend := &Imap{
		Unsupported: base.Unsupported{Backend: lib.IMAP},
		config:      config,
		provider:    provider,
		log:         log,
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()

	if err := backend.connect(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func (i *Imap) Kind() lib.BackendKind {
	return lib.IMAP
}

func (i *Imap) Capabilities() lib.Capability {
	return Capabilities
}

func (i *Imap) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.client == nil {
		return nil
	}
	i.log.Print("Closing connection")
	err := i.client.Logout()
	i.client = nil
	if errors.Is(err, client.ErrAlreadyLoggedOut) {
		return nil
	}
	return err
}

func (i *Imap) Delimiter() string {
	if delimiter, ok := i.delimiter.Load().(string); ok {
		return delimiter
	}
	_, _ = i.ListFolders(context.Background())
	delimiter, _ := i.delimiter.Load().(string)
	return delimiter
}

func (i *Imap) ListFolders(ctx context.Context) ([]mailbox.Info, error) {
	var info []mailbox.Info
	err := i.do(ctx, func(c *client.Client) error {
		mailboxes := make(chan *imap.MailboxInfo, 10)
		done := make(chan error, 1)
		go func() {
			done <- c.List("", "*", mailboxes)
		}()

		info = make([]mailbox.Info, 0, 10)
		for m := range mailboxes {
			i.log.Printf("* %q: %+v (delimiter = %q)", m.Name, m.Attributes, m.Delimiter)
			info = append(info, mailbox.Info{
				Delimiter:  m.Delimiter,
				Name:       m.Name,
				Attributes: m.Attributes,
			})
			if m.Delimiter != "" {
				i.delimiter.CompareAndSwap(nil, m.Delimiter)
			}
		}
		return <-done
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (i *Imap) CreateFolder(ctx context.Context, info mailbox.Info) error {
	existing, err := i.ListFolders(ctx)
	if err != nil {
		return err
	}
	name := i.folderName(info)
	for _, folder := range existing {
		if folder.Name == name {
			return nil
		}
	}
	i.log.Printf("Creating folder %q using delimiter %q", name, i.Delimiter())
	return i.do(ctx, func(c *client.Client) error {
		return c.Create(name)
	})
}

func (i *Imap) DeleteFolder(ctx context.Context, info mailbox.Info) error {
	name := i.folderName(info)
	i.log.Printf("Deleting folder %q using delimiter %q", name, i.Delimiter())
	return i.do(ctx, func(c *client.Client) error {
		return c.Delete(name)
	})
}

func (i *Imap) FolderStatus(ctx context.Context, info mailbox.Info) (*mailbox.Status, error) {
	name := i.folderName(info)
	var status *mailbox.Status
	err := i.do(ctx, func(c *client.Client) error {
		items := []imap.StatusItem{imap.StatusMessages, imap.StatusRecent, imap.StatusUnseen, imap.StatusUidValidity}
		response, err := c.Status(name, items)
		if err != nil {
			return fmt.Errorf("cannot get status of folder %q: %w", name, err)
		}
		status = &mailbox.Status{
			Name:           response.Name,
			Flags:          response.Flags,
			PermanentFlags: response.PermanentFlags,
			Messages:       response.Messages,
			Unseen:         response.Unseen,
			Recent:         response.Recent,
			UidValidity:    response.UidValidity,
		}
		// some servers don't count unseen messages in STATUS
		if _, err = c.Select(name, true); err != nil {
			return fmt.Errorf("cannot select folder %q: %w", name, err)
		}
		criteria := imap.NewSearchCriteria()
		criteria.WithoutFlags = []string{imap.SeenFlag}
		unseen, err := c.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("cannot search folder %q: %w", name, err)
		}
		status.Unseen = uint32(len(unseen))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ListEnvelopes lets the server filter on flags, the other criteria are matched on the client side
func (i *Imap) ListEnvelopes(ctx context.Context, info mailbox.Info, filter mailbox.Filter) ([]mailbox.Envelope, error) {
	name := i.folderName(info)
	var envelopes []mailbox.Envelope
	err := i.do(ctx, func(c *client.Client) error {
		if _, err := c.Select(name, true); err != nil {
			return fmt.Errorf("cannot select folder %q: %w", name, err)
		}
		criteria := imap.NewSearchCriteria()
		criteria.WithFlags = lib.NormalizeFlags(filter.Flags)
		criteria.WithoutFlags = lib.NormalizeFlags(filter.WithoutFlags)
		uids, err := c.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("cannot search folder %q: %w", name, err)
		}
		envelopes = make([]mailbox.Envelope, 0, len(uids))
		if len(uids) == 0 {
			return nil
		}
		seqset := new(imap.SeqSet)
		seqset.AddNum(uids...)
		section := &imap.BodySectionName{
			BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
			Peek:         true,
		}
		items := []imap.FetchItem{section.FetchItem(), imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate, imap.FetchRFC822Size}
		return i.fetch(c, seqset, items, func(msg *imap.Message) error {
			envelope := mailbox.Envelope{}
			if literal := msg.GetBody(section); literal != nil {
				header, err := mailbox.ParseHeader(literal)
				if err != nil {
					i.log.Printf("cannot parse header of message uid=%d: %s", msg.Uid, err)
				} else {
					envelope = mailbox.EnvelopeFromHeader(header)
				}
			}
			envelope.ID = mailbox.NewMessageIDFromUint(msg.Uid)
			envelope.Folder = info.Name
			envelope.Flags = lib.StripRecentFlag(msg.Flags)
			envelope.Size = msg.Size
			if envelope.Date.IsZero() {
				envelope.Date = msg.InternalDate
			}
			envelopes = append(envelopes, envelope)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(envelopes, func(a, b int) bool {
		return envelopes[a].ID.AsUint() < envelopes[b].ID.AsUint()
	})
	return filter.Apply(envelopes), nil
}

func (i *Imap) FetchMessage(ctx context.Context, info mailbox.Info, id mailbox.MessageID, peek bool) (*mailbox.Message, error) {
	seqset, err := uidSet([]mailbox.MessageID{id})
	if err != nil {
		return nil, err
	}
	name := i.folderName(info)
	var message *mailbox.Message
	err = i.do(ctx, func(c *client.Client) error {
		message = nil
		if _, err := c.Select(name, false); err != nil {
			return fmt.Errorf("cannot select folder %q: %w", name, err)
		}
		section := &imap.BodySectionName{Peek: true}
		items := []imap.FetchItem{section.FetchItem(), imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate}
		err := i.fetch(c, seqset, items, func(msg *imap.Message) error {
			literal := msg.GetBody(section)
			if literal == nil {
				return fmt.Errorf("server sent no body for message uid=%d", msg.Uid)
			}
			raw, err := io.ReadAll(literal)
			if err != nil {
				return err
			}
			message = &mailbox.Message{
				ID:           mailbox.NewMessageIDFromUint(msg.Uid),
				Folder:       info.Name,
				Flags:        lib.StripRecentFlag(msg.Flags),
				InternalDate: msg.InternalDate,
				Raw:          raw,
			}
			return nil
		})
		if err != nil {
			return err
		}
		if message == nil {
			return fmt.Errorf("%w: uid %s in %q", lib.ErrMessageNotFound, id, name)
		}
		if !peek && !lib.HasFlag(message.Flags, imap.SeenFlag) {
			if err = store(c, seqset, imap.AddFlags, []string{imap.SeenFlag}); err != nil {
				return err
			}
			message.Flags = append(message.Flags, imap.SeenFlag)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (i *Imap) AddMessage(ctx context.Context, info mailbox.Info, props mailbox.MessageProperties, body io.Reader) (mailbox.MessageID, error) {
	name := i.folderName(info)
	buffer := &bytes.Buffer{}
	read, err := buffer.ReadFrom(body)
	if err != nil {
		return mailbox.EmptyMessageID, fmt.Errorf("cannot read message body: %w", err)
	}
	if props.Size > 0 && read != int64(props.Size) {
		return mailbox.EmptyMessageID, fmt.Errorf("message body size advertised as %d bytes but read %d bytes from buffer", props.Size, read)
	}
	// IMAP server cannot accept the recent flag
	flags := lib.StripRecentFlag(lib.NormalizeFlags(props.Flags))
	content := buffer.Bytes()

	var uid uint32
	err = i.do(ctx, func(c *client.Client) error {
		literal := &literal{
			Reader: limitio.Limit(ctx, bytes.NewReader(content), i.config.RateLimit),
			size:   len(content),
		}
		var err error
		if i.uidplus != nil {
			_, uid, err = i.uidplus.Append(name, flags, props.InternalDate, literal)
		} else {
			err = c.Append(name, flags, props.InternalDate, literal)
			if err == nil {
				uid, err = lastUID(c, name)
			}
		}
		if err != nil {
			return fmt.Errorf("cannot append new message (folder=%q size=%d flags=%v): %w", name, read, flags, err)
		}
		return nil
	})
	if err != nil {
		return mailbox.EmptyMessageID, err
	}
	i.log.Printf("Message saved: folder=%q uid=%v size=%d flags=%v date=%q", name, uid, read, flags, props.InternalDate)
	return mailbox.NewMessageIDFromUint(uid), nil
}

func (i *Imap) CopyMessages(ctx context.Context, from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info) error {
	seqset, err := uidSet(ids)
	if err != nil {
		return err
	}
	source, destination := i.folderName(from), i.folderName(to)
	return i.do(ctx, func(c *client.Client) error {
		if _, err := c.Select(source, false); err != nil {
			return fmt.Errorf("cannot select folder %q: %w", source, err)
		}
		return c.UidCopy(seqset, destination)
	})
}

// MoveMessages uses MOVE when the server supports it, or falls back to copy and delete
func (i *Imap) MoveMessages(ctx context.Context, from mailbox.Info, ids []mailbox.MessageID, to mailbox.Info) error {
	seqset, err := uidSet(ids)
	if err != nil {
		return err
	}
	source, destination := i.folderName(from), i.folderName(to)
	return i.do(ctx, func(c *client.Client) error {
		if _, err := c.Select(source, false); err != nil {
			return fmt.Errorf("cannot select folder %q: %w", source, err)
		}
		if i.move != nil {
			return i.move.UidMove(seqset, destination)
		}
		if err := c.UidCopy(seqset, destination); err != nil {
			return fmt.Errorf("could not copy messages: %w", err)
		}
		if err := i.expunge(c, seqset); err != nil {
			return fmt.Errorf("could not delete copied messages: %w", err)
		}
		return nil
	})
}

func (i *Imap) DeleteMessages(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID) error {
	seqset, err := uidSet(ids)
	if err != nil {
		return err
	}
	name := i.folderName(info)
	return i.do(ctx, func(c *client.Client) error {
		if _, err := c.Select(name, false); err != nil {
			return fmt.Errorf("cannot select folder %q: %w", name, err)
		}
		return i.expunge(c, seqset)
	})
}

func (i *Imap) AddFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error {
	return i.storeFlags(ctx, info, ids, imap.AddFlags, flags)
}

func (i *Imap) RemoveFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, flags []string) error {
	return i.storeFlags(ctx, info, ids, imap.RemoveFlags, flags)
}

func (i *Imap) storeFlags(ctx context.Context, info mailbox.Info, ids []mailbox.MessageID, op imap.FlagsOp, flags []string) error {
	seqset, err := uidSet(ids)
	if err != nil {
		return err
	}
	name := i.folderName(info)
	flags = lib.StripRecentFlag(lib.NormalizeFlags(flags))
	return i.do(ctx, func(c *client.Client) error {
		if _, err := c.Select(name, false); err != nil {
			return fmt.Errorf("cannot select folder %q: %w", name, err)
		}
		return store(c, seqset, op, flags)
	})
}

// expunge deletes the messages in the selected folder
func (i *Imap) expunge(c *client.Client, seqset *imap.SeqSet) error {
	if err := store(c, seqset, imap.AddFlags, []string{imap.DeletedFlag}); err != nil {
		return fmt.Errorf("could not flag messages as deleted: %w", err)
	}
	if i.uidplus != nil {
		return i.uidplus.UidExpunge(seqset, nil)
	}
	return i.expungeOnly(c, seqset)
}

// expungeOnly emulates UID EXPUNGE: the other messages marked as deleted lose
// their \Deleted flag during the EXPUNGE and get it back afterwards
func (i *Imap) expungeOnly(c *client.Client, seqset *imap.SeqSet) error {
	criteria := imap.NewSearchCriteria()
	criteria.WithFlags = []string{imap.DeletedFlag}
	deleted, err := c.UidSearch(criteria)
	if err != nil {
		return fmt.Errorf("could not search deleted messages: %w", err)
	}
	others := new(imap.SeqSet)
	count := 0
	for _, uid := range deleted {
		if !seqset.Contains(uid) {
			others.AddNum(uid)
			count++
		}
	}
	if count == 0 {
		return c.Expunge(nil)
	}
	i.log.Printf("server without UIDPLUS: keeping %d other deleted message(s) during expunge", count)
	if err = store(c, others, imap.RemoveFlags, []string{imap.DeletedFlag}); err != nil {
		return fmt.Errorf("could not keep other deleted messages: %w", err)
	}
	expungeErr := c.Expunge(nil)
	if err = store(c, others, imap.AddFlags, []string{imap.DeletedFlag}); err != nil && expungeErr == nil {
		expungeErr = fmt.Errorf("could not restore deleted flag: %w", err)
	}
	return expungeErr
}

func (i *Imap) fetch(c *client.Client, seqset *imap.SeqSet, items []imap.FetchItem, receive func(*imap.Message) error) error {
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var receiveErr error
	for msg := range messages {
		if receiveErr != nil {
			// drain the channel so the fetch can finish
			continue
		}
		receiveErr = receive(msg)
	}
	if err := <-done; err != nil {
		return err
	}
	return receiveErr
}

func (i *Imap) folderName(info mailbox.Info) string {
	return lib.VerifyDelimiter(info.Name, info.Delimiter, i.Delimiter())
}

func store(c *client.Client, seqset *imap.SeqSet, op imap.FlagsOp, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	values := make([]interface{}, len(flags))
	for index, flag := range flags {
		values[index] = flag
	}
	return c.UidStore(seqset, imap.FormatFlagsOp(op, true), values, nil)
}

// lastUID returns the highest UID of the folder: without UIDPLUS this is the message we just appended
func lastUID(c *client.Client, name string) (uint32, error) {
	if _, err := c.Select(name, false); err != nil {
		return 0, err
	}
	uids, err := c.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return 0, err
	}
	var last uint32
	for _, uid := range uids {
		last = max(last, uid)
	}
	return last, nil
}

func uidSet(ids []mailbox.MessageID) (*imap.SeqSet, error) {
	if len(ids) == 0 {
		return nil, errors.New("no message ID")
	}
	seqset := new(imap.SeqSet)
	for _, id := range ids {
		if !id.IsUint() {
			return nil, fmt.Errorf("%w: IMAP expects a numeric UID, not %q", lib.ErrMessageNotFound, id.String())
		}
		seqset.AddNum(id.AsUint())
	}
	return seqset, nil
}

// literal sends the message through the rate limiter
type literal struct {
	io.Reader
	size int
}

func (l *literal) Len() int {
	return l.size
}

// connectionLost returns true when the error comes from the transport rather than from the server
func connectionLost(c *client.Client, err error) bool {
	if err == nil {
		return false
	}
	if c != nil {
		select {
		case <-c.LoggedOut():
			return true
		default:
		}
	}
	var netErr net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, client.ErrAlreadyLoggedOut) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.As(err, &netErr)
}

func tlsConfig(config Config) *tls.Config {
	host, _, err := net.SplitHostPort(config.ServerURL)
	if err != nil {
		host = config.ServerURL
	}
	return &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: config.SkipTLSVerification,
	}
}
