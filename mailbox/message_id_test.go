package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMessageID(t *testing.T) {
	fixtures := []struct {
		input  string
		isUint bool
	}{
		{"12", true},
		{"0", false},
		{"1658232934.M5P123.host", false},
		{"<abc@example.com>", false},
		{"99999999999", false},
	}
	for _, fixture := range fixtures {
		t.Run(fixture.input, func(t *testing.T) {
			id := ParseMessageID(fixture.input)
			assert.Equal(t, fixture.isUint, id.IsUint())
			assert.Equal(t, !fixture.isUint, id.IsString())
			assert.Equal(t, fixture.input, id.String())
		})
	}
}

func TestEmptyMessageID(t *testing.T) {
	assert.True(t, EmptyMessageID.IsZero())
	assert.False(t, NewMessageIDFromUint(1).IsZero())
	assert.False(t, NewMessageIDFromString("key").IsZero())
}
