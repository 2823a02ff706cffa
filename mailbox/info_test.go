package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeDelimiter(t *testing.T) {
	info := ChangeDelimiter(Info{Delimiter: "/", Name: "Archive/2023"}, ".")
	assert.Equal(t, Info{Delimiter: ".", Name: "Archive.2023"}, info)
}

func TestParentFolder(t *testing.T) {
	assert.Equal(t, "", Info{Delimiter: ".", Name: "INBOX"}.Parent())
	assert.Equal(t, "Archive", Info{Delimiter: ".", Name: "Archive.2023"}.Parent())
	assert.Equal(t, `a\.b`, Info{Delimiter: ".", Name: `a\.b.c`}.Parent())
}

func TestSelectable(t *testing.T) {
	assert.True(t, Info{Name: "INBOX"}.Selectable())
	assert.False(t, Info{Name: "[Gmail]", Attributes: []string{`\Noselect`}}.Selectable())
}
