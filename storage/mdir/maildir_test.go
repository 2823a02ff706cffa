package mdir

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/storage/test"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-maildir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *Maildir {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("maildir is not supported on Windows")
	}
	backend, err := NewWithLogger(t.TempDir(), lib.NewTestLogger(t, "maildir"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = backend.Close()
	})

	err = test.PrepareBackend(backend)
	require.NoError(t, err)
	return backend
}

func TestMaildirBackend(t *testing.T) {
	backend := newBackend(t)
	assert.Equal(t, lib.MAILDIR, backend.Kind())
	test.RunTestsOnBackend(t, backend)
}

func TestAddedMessageListedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	inbox := mailbox.Info{Delimiter: Delimiter, Name: "INBOX"}

	id, err := backend.AddMessage(ctx, inbox, mailbox.MessageProperties{}, bytes.NewBufferString(test.SampleMessage))
	require.NoError(t, err)

	envelopes, err := backend.ListEnvelopes(ctx, inbox, mailbox.Filter{})
	require.NoError(t, err)
	count := 0
	for _, envelope := range envelopes {
		if envelope.ID == id {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExternalChangesAreSeen(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	inbox := mailbox.Info{Delimiter: Delimiter, Name: "INBOX"}

	envelopes, err := backend.ListEnvelopes(ctx, inbox, mailbox.Filter{})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	// another program delivers a message into new/
	filename := filepath.Join(backend.Root(), "INBOX", "new", "1234.external.localhost")
	err = os.WriteFile(filename, []byte("Subject: delivered\r\n\r\nhello"), 0600)
	require.NoError(t, err)

	envelopes, err = backend.ListEnvelopes(ctx, inbox, mailbox.Filter{})
	require.NoError(t, err)
	require.Len(t, envelopes, 2)

	envelopes, err = backend.ListEnvelopes(ctx, inbox, mailbox.Filter{Subject: []string{"delivered"}})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, "1234.external.localhost", envelopes[0].ID.AsString())
	assert.NotContains(t, envelopes[0].Flags, imap.SeenFlag)

	// and removes it
	msg, err := backend.FetchMessage(ctx, inbox, envelopes[0].ID, true)
	require.NoError(t, err)
	files, err := filepath.Glob(filepath.Join(backend.Root(), "INBOX", "cur", "1234.external.localhost*"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NoError(t, os.Remove(files[0]))
	_, err = backend.FetchMessage(ctx, inbox, msg.ID, true)
	assert.ErrorIs(t, err, lib.ErrMessageNotFound)
}

func TestUnknownFolder(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	missing := mailbox.Info{Delimiter: Delimiter, Name: "Missing"}

	_, err := backend.ListEnvelopes(ctx, missing, mailbox.Filter{})
	assert.ErrorIs(t, err, lib.ErrMailboxNotFound)
	_, err = backend.AddMessage(ctx, missing, mailbox.MessageProperties{}, bytes.NewBufferString(test.SampleMessage))
	assert.ErrorIs(t, err, lib.ErrMailboxNotFound)
}

func TestNumericIDIsRejected(t *testing.T) {
	backend := newBackend(t)
	inbox := mailbox.Info{Delimiter: Delimiter, Name: "INBOX"}

	_, err := backend.FetchMessage(context.Background(), inbox, mailbox.NewMessageIDFromUint(1), true)
	assert.ErrorIs(t, err, lib.ErrMessageNotFound)
}

func TestFlagConversion(t *testing.T) {
	flags := ToFlags([]string{"seen", imap.FlaggedFlag, imap.RecentFlag, "$Label", imap.SeenFlag})
	assert.Equal(t, []maildir.Flag{maildir.FlagFlagged, maildir.FlagSeen}, flags)
	assert.ElementsMatch(t, []string{imap.SeenFlag, imap.FlaggedFlag}, FromFlags(flags))

	key, parsed := ParseFilename("1600000000.M1P2.host:2,FRS")
	assert.Equal(t, "1600000000.M1P2.host", key)
	assert.Equal(t, []maildir.Flag{maildir.FlagFlagged, maildir.FlagReplied, maildir.FlagSeen}, parsed)

	key, parsed = ParseFilename("1600000000.M1P2.host")
	assert.Equal(t, "1600000000.M1P2.host", key)
	assert.Empty(t, parsed)
}

func TestFolderNamesStayInsideRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("maildir is not supported on Windows")
	}
	ctx := context.Background()
	parent := t.TempDir()
	precious := filepath.Join(parent, "precious.txt")
	require.NoError(t, os.WriteFile(precious, []byte("keep me"), 0600))

	backend, err := NewWithLogger(filepath.Join(parent, "mail"), lib.NewTestLogger(t, "maildir"))
	require.NoError(t, err)
	require.NoError(t, backend.CreateFolder(ctx, mailbox.Info{Delimiter: Delimiter, Name: "INBOX"}))

	for _, name := range []string{"..", ".", "", "../mail", "sub/folder"} {
		info := mailbox.Info{Delimiter: Delimiter, Name: name}
		assert.ErrorIsf(t, backend.DeleteFolder(ctx, info), lib.ErrMailboxNotFound, "deleting %q", name)
		assert.ErrorIsf(t, backend.CreateFolder(ctx, info), lib.ErrMailboxNotFound, "creating %q", name)
	}

	// a plain directory that isn't a maildir is left alone too
	require.NoError(t, os.Mkdir(filepath.Join(backend.Root(), "notes"), 0700))
	assert.ErrorIs(t, backend.DeleteFolder(ctx, mailbox.Info{Delimiter: Delimiter, Name: "notes"}), lib.ErrMailboxNotFound)

	assert.FileExists(t, precious)
	assert.DirExists(t, filepath.Join(backend.Root(), "notes"))
	assert.DirExists(t, filepath.Join(backend.Root(), "INBOX", "cur"))
}
