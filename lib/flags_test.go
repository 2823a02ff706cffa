package lib

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func TestStripRecentFlag(t *testing.T) {
	flags := StripRecentFlag([]string{imap.SeenFlag, imap.RecentFlag, imap.FlaggedFlag})
	assert.Equal(t, []string{imap.SeenFlag, imap.FlaggedFlag}, flags)
}

func TestNormalizeFlag(t *testing.T) {
	fixtures := []struct{ input, expected string }{
		{"seen", imap.SeenFlag},
		{"\\Seen", imap.SeenFlag},
		{"SEEN", imap.SeenFlag},
		{"replied", imap.AnsweredFlag},
		{"flagged", imap.FlaggedFlag},
		{"$Important", "$Important"},
	}
	for _, fixture := range fixtures {
		assert.Equal(t, fixture.expected, NormalizeFlag(fixture.input))
	}
}

func TestHasFlag(t *testing.T) {
	assert.True(t, HasFlag([]string{"\\seen"}, imap.SeenFlag))
	assert.False(t, HasFlag(nil, imap.SeenFlag))
}
