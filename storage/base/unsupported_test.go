package base

import (
	"context"
	"testing"

	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/stretchr/testify/assert"
)

func TestEveryOperationIsUnsupported(t *testing.T) {
	ctx := context.Background()
	backend := Unsupported{Backend: lib.SMTP}
	info := mailbox.Info{Name: "INBOX"}
	ids := []mailbox.MessageID{mailbox.NewMessageIDFromUint(1)}

	errs := map[lib.Capability]error{}
	_, errs[lib.CapListFolders] = backend.ListFolders(ctx)
	errs[lib.CapManageFolders] = backend.CreateFolder(ctx, info)
	_, errs[lib.CapFolderStatus] = backend.FolderStatus(ctx, info)
	_, errs[lib.CapListEnvelopes] = backend.ListEnvelopes(ctx, info, mailbox.Filter{})
	_, errs[lib.CapFetchMessage] = backend.FetchMessage(ctx, info, ids[0], true)
	_, errs[lib.CapAddMessage] = backend.AddMessage(ctx, info, mailbox.MessageProperties{}, nil)
	errs[lib.CapCopyMessage] = backend.CopyMessages(ctx, info, ids, info)
	errs[lib.CapMoveMessage] = backend.MoveMessages(ctx, info, ids, info)
	errs[lib.CapDeleteMessage] = backend.DeleteMessages(ctx, info, ids)
	errs[lib.CapFlags] = backend.AddFlags(ctx, info, ids, []string{"\\Seen"})
	errs[lib.CapSend] = backend.SendMessage(ctx, "from@example.com", []string{"to@example.com"}, nil)
	_, errs[lib.CapSearch] = backend.Search(ctx, mailbox.ParseQuery("hello"))
	errs[lib.CapReindex] = backend.Reindex(ctx)

	for capability, err := range errs {
		assert.ErrorIs(t, err, lib.ErrUnsupportedOperation, capability.String())
		var unsupported *lib.UnsupportedOperationError
		if assert.ErrorAs(t, err, &unsupported) {
			assert.Equal(t, capability, unsupported.Capability)
			assert.Equal(t, lib.SMTP, unsupported.Backend)
		}
	}
}
