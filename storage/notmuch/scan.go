package notmuch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/storage/mdir"
)

var subDirectories = []string{"new", "cur"}

// indexedMessage is one file of the maildir as stored in the index
type indexedMessage struct {
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
	Body       string `db:"body"`
}

type scannedMessage struct {
	indexedMessage
	flags []string
}

type scannedFolder struct {
	name      string
	signature string
	messages  []scannedMessage
}

// signature summarizes the state of the new and cur directories of a folder.
// Any delivery, removal or flag change made by another program changes it.
func signature(dirName string) (string, error) {
	hash := sha1.New()
	parts := make([]string, 0, len(subDirectories))
	for _, sub := range subDirectories {
		subDir := filepath.Join(dirName, sub)
		stat, err := os.Stat(subDir)
		if err != nil {
			return "", err
		}
		names, err := fileNames(subDir)
		if err != nil {
			return "", err
		}
		hash.Write([]byte(sub + "\n"))
		for _, name := range names {
			hash.Write([]byte(name + "\n"))
		}
		parts = append(parts, fmt.Sprintf("%s=%d@%d", sub, len(names), stat.ModTime().UnixNano()))
	}
	parts = append(parts, hex.EncodeToString(hash.Sum(nil)))
	return strings.Join(parts, " "), nil
}

// fileNames returns the sorted names of the message files, skipping hidden files
func fileNames(dirName string) ([]string, error) {
	entries, err := os.ReadDir(dirName)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// scanFolder reads every message of a folder without touching the maildir
func scanFolder(ctx context.Context, root, name string) (scannedFolder, error) {
	dirName := filepath.Join(root, name)
	// the signature is taken first: a change made during the scan is detected on the next read
	sig, err := signature(dirName)
	if err != nil {
		return scannedFolder{}, err
	}
	folder := scannedFolder{
		name:      name,
		signature: sig,
		messages:  make([]scannedMessage, 0),
	}
	for _, sub := range subDirectories {
		names, err := fileNames(filepath.Join(dirName, sub))
		if err != nil {
			return folder, err
		}
		for _, filename := range names {
			if ctx.Err() != nil {
				return folder, ctx.Err()
			}
			msg, err := scanMessage(dirName, sub, filename)
			if errors.Is(err, fs.ErrNotExist) {
				// removed since the directory was read
				continue
			}
			if err != nil {
				return folder, err
			}
			msg.Folder = name
			folder.messages = append(folder.messages, msg)
		}
	}
	return folder, nil
}

func scanMessage(dirName, sub, filename string) (scannedMessage, error) {
	filePath := filepath.Join(dirName, sub, filename)
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return scannedMessage{}, err
	}
	stat, err := os.Stat(filePath)
	if err != nil {
		return scannedMessage{}, err
	}
	_, flags := mdir.ParseFilename(filename)
	msg := &mailbox.Message{
		Raw:          raw,
		InternalDate: stat.ModTime(),
	}
	scanned := scannedMessage{
		indexedMessage: indexedMessage{
			Path:  path.Join(sub, filename),
			Size:  int64(len(raw)),
			IsNew: sub == "new",
		},
		flags: mdir.FromFlags(flags),
	}
	envelope, err := msg.Envelope()
	if err != nil {
		// not a message we can parse: still searchable by its folder
		envelope = mailbox.Envelope{Date: stat.ModTime()}
	}
	scanned.MessageID = envelope.MessageID
	if scanned.MessageID == "" {
		sum := sha1.Sum(raw)
		scanned.MessageID = "notmuch-sha1-" + hex.EncodeToString(sum[:])
	}
	scanned.Subject = envelope.Subject
	scanned.Sender = joinList(envelope.From)
	scanned.Recipients = joinList(envelope.To)
	scanned.Cc = joinList(envelope.Cc)
	scanned.Date = envelope.Date.Unix()
	if view, err := msg.Read(); err == nil {
		scanned.Body = view.Body
	}
	return scanned, nil
}

func joinList(values []string) string {
	return strings.Join(values, "\n")
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, "\n")
}

// Reindex scans the whole maildir and replaces the content of the index.
// Tags of messages already known survive; new messages get their tags from the maildir flags.
func (n *Notmuch) Reindex(ctx context.Context) error {
	start := time.Now()
	folders, err := mdir.ListFolders(n.root)
	if err != nil {
		return err
	}
	scanned := make([]scannedFolder, 0, len(folders))
	count := 0
	for _, info := range folders {
		folder, err := scanFolder(ctx, n.root, info.Name)
		if err != nil {
			return fmt.Errorf("cannot scan folder %q: %w", info.Name, err)
		}
		count += len(folder.messages)
		scanned = append(scanned, folder)
	}

	tx, err := n.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}
	known := []string{}
	err = tx.SelectContext(ctx, &known, "SELECT DISTINCT message_id FROM messages")
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not query db: %w", err))
	}
	seen := make(map[string]bool, len(known))
	for _, id := range known {
		seen[id] = true
	}
	for _, statement := range []string{"DELETE FROM messages", "DELETE FROM folders"} {
		if _, err = tx.ExecContext(ctx, statement); err != nil {
			return txEnd(tx, fmt.Errorf("could not clear index: %w", err))
		}
	}
	for _, folder := range scanned {
		_, err = tx.ExecContext(ctx, "INSERT INTO folders (name, signature) VALUES (?, ?)", folder.name, folder.signature)
		if err != nil {
			return txEnd(tx, fmt.Errorf("could not save folder: %w", err))
		}
		for _, msg := range folder.messages {
			_, err = tx.NamedExecContext(ctx,
				`INSERT INTO messages (message_id, folder, path, subject, sender, recipients, cc, date, size, is_new, body)
				VALUES (:message_id, :folder, :path, :subject, :sender, :recipients, :cc, :date, :size, :is_new, :body)`,
				msg.indexedMessage,
			)
			if err != nil {
				return txEnd(tx, fmt.Errorf("could not save message %q: %w", msg.Path, err))
			}
			if seen[msg.MessageID] {
				continue
			}
			seen[msg.MessageID] = true
			for _, tag := range mailbox.FlagsToTags(msg.flags) {
				_, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO tags (message_id, tag) VALUES (?, ?)", msg.MessageID, tag)
				if err != nil {
					return txEnd(tx, fmt.Errorf("could not save tag: %w", err))
				}
			}
		}
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM tags WHERE message_id NOT IN (SELECT message_id FROM messages)")
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not remove orphan tags: %w", err))
	}
	_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO index_state (id, indexed_at) VALUES (1, ?)", time.Now().Unix())
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not save index state: %w", err))
	}
	err = txEnd(tx, nil)
	if err != nil {
		return err
	}
	n.log.Printf("indexed %d messages in %d folders in %s", count, len(scanned), time.Since(start).Truncate(time.Millisecond))
	return nil
}
