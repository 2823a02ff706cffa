package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelimiter(t *testing.T) {
	fixtures := []struct {
		name             string
		currentDelimiter string
		newDelimiter     string
		expected         string
	}{
		{"name", "", "", "name"},
		{"name", "n", "", "name"},
		{"name", "", "n", "name"},
		{"name", "n", "n", "name"},
		{"name", ".", "/", "name"},
		{"name", "/", ".", "name"},
		{"folder/name", "/", ".", "folder.name"},
		{"folder.name", ".", "/", "folder/name"},
		{"folder/na.me", "/", ".", "folder.na\\.me"},
		{"folder.na/me", ".", "/", "folder/na\\/me"},
		{"INBOX/Archive/2023", "/", ".", "INBOX.Archive.2023"},
	}

	for _, fixture := range fixtures {
		result := VerifyDelimiter(fixture.name, fixture.currentDelimiter, fixture.newDelimiter)
		assert.Equal(t, fixture.expected, result)
	}
}

func TestDelimiterRoundTrip(t *testing.T) {
	names := []string{
		"INBOX",
		"folder/name",
		"folder/na.me",
		"a.b.c/d",
		"deep/er/still",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			translated := VerifyDelimiter(name, "/", ".")
			assert.Equal(t, name, VerifyDelimiter(translated, ".", "/"))
		})
	}
}

func TestSplitFolder(t *testing.T) {
	assert.Equal(t, []string{"INBOX"}, SplitFolder("INBOX", "."))
	assert.Equal(t, []string{"a", "b"}, SplitFolder("a.b", "."))
	assert.Equal(t, []string{"a.b", "c"}, SplitFolder("a\\.b.c", "."))
	assert.Equal(t, []string{"a/b"}, SplitFolder("a/b", ""))
}
