package term

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func quiet(t *testing.T) {
	t.Helper()
	SetOutput(io.Discard)
	previous := GetLevel()
	t.Cleanup(func() {
		SetLevel(previous)
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestLevelFiltering(t *testing.T) {
	quiet(t)
	SetLevel(LevelWarn)
	assert.False(t, enabled(LevelDebug))
	assert.False(t, enabled(LevelInfo))
	assert.True(t, enabled(LevelWarn))
	assert.True(t, enabled(LevelError))
}

func TestSpinnerReturnsError(t *testing.T) {
	quiet(t)
	SetLevel(LevelError)
	failure := errors.New("failure")
	assert.ErrorIs(t, Spinner("working", func() error { return failure }), failure)
	assert.NoError(t, Spinner("working", func() error { return nil }))
}
