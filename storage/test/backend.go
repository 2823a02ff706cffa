package test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/storage"
	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// SampleMessage is also the message found in the INBOX of the in-memory IMAP server
	SampleMessage = "From: contact@example.org\r\n" +
		"To: contact@example.org\r\n" +
		"Subject: A little message, just for you\r\n" +
		"Date: Wed, 11 May 2016 14:31:59 +0000\r\n" +
		"Message-ID: <0000000@localhost/>\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Hi there :)"
	sampleMessageDate  = time.Date(2020, 10, 20, 12, 11, 0, 0, time.UTC)
	sampleMessageFlags = []string{imap.SeenFlag}
)

// RunTestsOnBackend is the unit tests runner called by the concrete implementations of storage.Backend.
// Each test needs the capability it exercises: the others are skipped.
func RunTestsOnBackend(t *testing.T, backend storage.Backend) {
	require.NotNil(t, backend)
	ctx := context.Background()
	inbox := mailbox.Info{Delimiter: backend.Delimiter(), Name: "INBOX"}
	work := mailbox.Info{Delimiter: backend.Delimiter(), Name: "Work"}
	archive := mailbox.Info{Delimiter: backend.Delimiter(), Name: "Archive"}
	var workIDs []mailbox.MessageID

	run := func(name string, capability lib.Capability, test func(t *testing.T)) {
		t.Run(name, func(t *testing.T) {
			if !backend.Capabilities().Has(capability) {
				t.Skipf("%s backend does not support %s", backend.Kind(), capability)
			}
			test(t)
		})
	}

	run("ListFolders", lib.CapListFolders, func(t *testing.T) {
		list, err := backend.ListFolders(ctx)
		require.NoError(t, err)

		// check there's at least one folder
		require.Greater(t, len(list), 0)
		// check the expected delimiter
		assert.Equal(t, backend.Delimiter(), list[0].Delimiter)
		assert.True(t, folderExists("INBOX", list))
	})

	run("CreateExistingFolder", lib.CapManageFolders, func(t *testing.T) {
		err := backend.CreateFolder(ctx, inbox)
		require.NoError(t, err)
	})

	run("CreateDeleteFolderSameDelimiter", lib.CapManageFolders, func(t *testing.T) {
		info := mailbox.Info{
			Delimiter: backend.Delimiter(),
			Name:      "Path" + backend.Delimiter() + "Folder",
		}
		createFolder(t, backend, info)
		deleteFolder(t, backend, info)
		// also deletes the "Path" one if exists (it should on IMAP)
		_ = backend.DeleteFolder(ctx, mailbox.Info{Delimiter: backend.Delimiter(), Name: "Path"})
	})

	run("CreateDeleteFolderDifferentDelimiter", lib.CapManageFolders, func(t *testing.T) {
		info := mailbox.Info{
			Delimiter: "#",
			Name:      "Path#Folder",
		}
		createFolder(t, backend, info)
		deleteFolder(t, backend, info)
		_ = backend.DeleteFolder(ctx, mailbox.Info{Delimiter: backend.Delimiter(), Name: "Path"})
	})

	run("FolderStatusDoesNotExist", lib.CapFolderStatus, func(t *testing.T) {
		status, err := backend.FolderStatus(ctx, mailbox.Info{
			Delimiter: backend.Delimiter(),
			Name:      "No folder at that name",
		})
		assert.Nil(t, status)
		// IMAP doesn't have a specific error (it's up to the server implementation)
		require.Error(t, err)
	})

	run("FolderStatus", lib.CapFolderStatus, func(t *testing.T) {
		status, err := backend.FolderStatus(ctx, inbox)
		require.NoError(t, err)
		assert.Equal(t, inbox.Name, status.Name)
		assert.GreaterOrEqual(t, status.Messages, uint32(1))
	})

	run("CreateSimpleFolders", lib.CapManageFolders, func(t *testing.T) {
		createFolder(t, backend, work)
		createFolder(t, backend, archive)
	})

	run("AddMessage", lib.CapAddMessage, func(t *testing.T) {
		id := addMessage(t, backend, work, sampleMessageFlags, len(SampleMessage))
		workIDs = append(workIDs, id)

		status, err := backend.FolderStatus(ctx, work)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), status.Messages)
		assert.Equal(t, uint32(0), status.Unseen)
	})

	run("ListOneEnvelope", lib.CapListEnvelopes|lib.CapAddMessage, func(t *testing.T) {
		envelopes, err := backend.ListEnvelopes(ctx, work, mailbox.Filter{})
		require.NoError(t, err)
		require.Len(t, envelopes, 1)

		envelope := envelopes[0]
		assert.Equal(t, workIDs[0], envelope.ID)
		assert.Equal(t, "A little message, just for you", envelope.Subject)
		assert.Equal(t, []string{"contact@example.org"}, envelope.From)
		assert.ElementsMatch(t, sampleMessageFlags, envelope.Flags)
	})

	run("PeekMessage", lib.CapFetchMessage|lib.CapAddMessage, func(t *testing.T) {
		msg, err := backend.FetchMessage(ctx, work, workIDs[0], true)
		require.NoError(t, err)
		assert.Equal(t, SampleMessage, string(msg.Raw))
		assert.Equal(t, workIDs[0], msg.ID)
		assert.True(t, sampleMessageDate.Equal(msg.InternalDate))
		assert.ElementsMatch(t, sampleMessageFlags, msg.Flags)
	})

	run("AddTwoUnreadMessages", lib.CapAddMessage, func(t *testing.T) {
		for i := 0; i < 2; i++ {
			workIDs = append(workIDs, addMessage(t, backend, work, nil, len(SampleMessage)))
		}
		status, err := backend.FolderStatus(ctx, work)
		require.NoError(t, err)
		assert.Equal(t, uint32(3), status.Messages)
		assert.Equal(t, uint32(2), status.Unseen)
	})

	run("ListUnreadEnvelopes", lib.CapListEnvelopes|lib.CapAddMessage, func(t *testing.T) {
		envelopes, err := backend.ListEnvelopes(ctx, work, mailbox.Filter{WithoutFlags: []string{imap.SeenFlag}})
		require.NoError(t, err)
		assert.Len(t, envelopes, 2)

		envelopes, err = backend.ListEnvelopes(ctx, work, mailbox.Filter{Subject: []string{"little"}, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, envelopes, 2)

		envelopes, err = backend.ListEnvelopes(ctx, work, mailbox.Filter{Text: "there"})
		require.NoError(t, err)
		assert.Empty(t, envelopes, "free text never matches the body")
	})

	run("FetchMarksAsSeen", lib.CapFetchMessage|lib.CapAddMessage, func(t *testing.T) {
		msg, err := backend.FetchMessage(ctx, work, workIDs[1], true)
		require.NoError(t, err)
		assert.NotContains(t, msg.Flags, imap.SeenFlag)

		msg, err = backend.FetchMessage(ctx, work, workIDs[1], false)
		require.NoError(t, err)
		assert.Contains(t, msg.Flags, imap.SeenFlag)
		assert.Equal(t, SampleMessage, string(msg.Raw))

		status, err := backend.FolderStatus(ctx, work)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), status.Unseen)
	})

	run("AddRemoveFlags", lib.CapFlags|lib.CapAddMessage, func(t *testing.T) {
		filter := mailbox.Filter{Flags: []string{imap.FlaggedFlag}}
		for i := 0; i < 2; i++ {
			// applying the same change twice is fine
			err := backend.AddFlags(ctx, work, workIDs[2:], []string{imap.FlaggedFlag})
			require.NoError(t, err)
		}
		envelopes, err := backend.ListEnvelopes(ctx, work, filter)
		require.NoError(t, err)
		require.Len(t, envelopes, 1)
		assert.Equal(t, workIDs[2], envelopes[0].ID)

		for i := 0; i < 2; i++ {
			err = backend.RemoveFlags(ctx, work, workIDs[2:], []string{imap.FlaggedFlag})
			require.NoError(t, err)
		}
		envelopes, err = backend.ListEnvelopes(ctx, work, filter)
		require.NoError(t, err)
		assert.Empty(t, envelopes)
	})

	run("AddMessageWithWrongSize", lib.CapAddMessage, func(t *testing.T) {
		props := mailbox.MessageProperties{
			Flags:        sampleMessageFlags,
			InternalDate: sampleMessageDate,
			Size:         uint32(len(SampleMessage)) - 1,
		}
		_, err := backend.AddMessage(ctx, work, props, bytes.NewBufferString(SampleMessage))
		assert.Error(t, err)

		status, err := backend.FolderStatus(ctx, work)
		require.NoError(t, err)
		assert.Equal(t, uint32(3), status.Messages)
	})

	run("CopyMessage", lib.CapCopyMessage|lib.CapAddMessage, func(t *testing.T) {
		err := backend.CopyMessages(ctx, work, workIDs[:1], archive)
		require.NoError(t, err)
		assertMessages(t, backend, work, 3)
		assertMessages(t, backend, archive, 1)
	})

	run("MoveMessage", lib.CapMoveMessage|lib.CapAddMessage, func(t *testing.T) {
		for i := 0; i < 2; i++ {
			// moving a message already moved is fine
			err := backend.MoveMessages(ctx, work, workIDs[1:2], archive)
			require.NoError(t, err)
		}
		assertMessages(t, backend, work, 2)
		assertMessages(t, backend, archive, 2)
	})

	run("DeleteMessage", lib.CapDeleteMessage|lib.CapAddMessage, func(t *testing.T) {
		for i := 0; i < 2; i++ {
			// deleting a message already deleted is fine
			err := backend.DeleteMessages(ctx, work, workIDs[:1])
			require.NoError(t, err)
		}
		assertMessages(t, backend, work, 1)

		_, err := backend.FetchMessage(ctx, work, workIDs[0], true)
		assert.ErrorIs(t, err, lib.ErrMessageNotFound)
	})

	run("GeneratedMessages", lib.CapManageFolders|lib.CapAddMessage|lib.CapFolderStatus|lib.CapListEnvelopes, func(t *testing.T) {
		generated := mailbox.Info{Delimiter: backend.Delimiter(), Name: "Generated"}
		createFolder(t, backend, generated)
		defer deleteFolder(t, backend, generated)

		unseen := 0
		for i := 0; i < 10; i++ {
			raw := lib.GenerateEmail("sender@example.com", "me@example.com", fmt.Sprintf("Generated message %d", i), uint32(i), 2000)
			flags := lib.GenerateFlags(5)
			if !lib.HasFlag(flags, imap.SeenFlag) {
				unseen++
			}
			props := mailbox.MessageProperties{
				Flags:        flags,
				InternalDate: lib.GenerateDateFrom(sampleMessageDate),
				Size:         uint32(len(raw)),
			}
			_, err := backend.AddMessage(ctx, generated, props, bytes.NewReader(raw))
			require.NoError(t, err)
		}
		status, err := backend.FolderStatus(ctx, generated)
		require.NoError(t, err)
		assert.Equal(t, uint32(10), status.Messages)
		assert.Equal(t, uint32(unseen), status.Unseen)

		envelopes, err := backend.ListEnvelopes(ctx, generated, mailbox.Filter{Subject: []string{"message 7"}})
		require.NoError(t, err)
		require.Len(t, envelopes, 1)
		assert.Equal(t, "Generated message 7", envelopes[0].Subject)
	})

	run("DeleteSimpleFolders", lib.CapManageFolders, func(t *testing.T) {
		deleteFolder(t, backend, work)
		deleteFolder(t, backend, archive)
	})
}

// PrepareBackend creates an INBOX holding one message
func PrepareBackend(backend storage.Backend) error {
	ctx := context.Background()
	info := mailbox.Info{
		Delimiter: backend.Delimiter(),
		Name:      "INBOX",
	}
	existing, err := backend.ListFolders(ctx)
	if err != nil {
		return err
	}
	if folderExists(info.Name, existing) {
		// no need to create the folder and add a message to it
		return nil
	}
	err = backend.CreateFolder(ctx, info)
	if err != nil {
		return err
	}
	props := mailbox.MessageProperties{
		Flags:        []string{imap.SeenFlag},
		InternalDate: time.Now(),
		Size:         uint32(len(SampleMessage)),
	}
	_, err = backend.AddMessage(ctx, info, props, bytes.NewBufferString(SampleMessage))
	return err
}

func addMessage(t *testing.T, backend storage.Backend, info mailbox.Info, flags []string, size int) mailbox.MessageID {
	t.Helper()

	props := mailbox.MessageProperties{
		Flags:        flags,
		InternalDate: sampleMessageDate,
		Size:         uint32(size),
	}
	id, err := backend.AddMessage(context.Background(), info, props, bytes.NewBufferString(SampleMessage))
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	return id
}

func assertMessages(t *testing.T, backend storage.Backend, info mailbox.Info, count int) {
	t.Helper()

	envelopes, err := backend.ListEnvelopes(context.Background(), info, mailbox.Filter{})
	require.NoError(t, err)
	assert.Len(t, envelopes, count)
}

func createFolder(t *testing.T, backend storage.Backend, info mailbox.Info) {
	t.Helper()

	err := backend.CreateFolder(context.Background(), info)
	require.NoError(t, err)

	list, err := backend.ListFolders(context.Background())
	require.NoError(t, err)

	name := lib.VerifyDelimiter(info.Name, info.Delimiter, backend.Delimiter())
	assert.True(t, folderExists(name, list))
}

func deleteFolder(t *testing.T, backend storage.Backend, info mailbox.Info) {
	t.Helper()

	err := backend.DeleteFolder(context.Background(), info)
	require.NoError(t, err)

	list, err := backend.ListFolders(context.Background())
	require.NoError(t, err)

	name := lib.VerifyDelimiter(info.Name, info.Delimiter, backend.Delimiter())
	assert.False(t, folderExists(name, list))
}

func folderExists(name string, in []mailbox.Info) bool {
	for _, folder := range in {
		if folder.Name == name {
			return true
		}
	}
	return false
}
