package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeStripsBcc(t *testing.T) {
	draft := Draft{
		From:    "alice@example.com",
		To:      []string{"bob@example.com"},
		Bcc:     []string{"hidden@example.com"},
		Subject: "Hello",
		Body:    "Hi Bob",
	}
	raw, err := Compose(draft)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "hidden@example.com")
	assert.Equal(t, []string{"bob@example.com", "hidden@example.com"}, draft.Recipients())

	msg := &Message{Raw: raw}
	view, err := msg.Read()
	require.NoError(t, err)
	assert.Equal(t, "Hello", view.Headers.Subject)
	assert.Equal(t, "Hi Bob", strings.TrimSpace(view.Body))
	assert.True(t, strings.HasSuffix(view.Headers.MessageID, "@example.com"))
}

func TestComposeNeedsSenderAndRecipient(t *testing.T) {
	_, err := Compose(Draft{To: []string{"bob@example.com"}})
	assert.Error(t, err)

	_, err = Compose(Draft{From: "alice@example.com"})
	assert.Error(t, err)
}

func TestMessageIDHeader(t *testing.T) {
	assert.True(t, strings.HasSuffix(NewMessageIDHeader("Alice <alice@example.com>"), "@example.com>"))
	assert.True(t, strings.HasSuffix(NewMessageIDHeader(""), "@localhost>"))
}
