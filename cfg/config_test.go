package cfg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creativeprojects/courier/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLFile(t *testing.T) {
	config, err := LoadFromFile("testdata/accounts.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"personal", "work"}, config.AccountNames())

	work, err := config.Account("work")
	require.NoError(t, err)
	assert.Equal(t, IMAP, work.Read.Type)
	assert.True(t, work.Read.Compress)
	assert.Equal(t, 30*time.Second, work.Read.Timeout)
	require.NotNil(t, work.Send)
	assert.True(t, work.Send.StartTLS)
	assert.True(t, work.Encryption.EncryptOutgoing())
	assert.False(t, work.Encryption.DecryptIncoming())
	assert.Equal(t, "me@work.example.com", work.Login())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".courier/work.secret"), work.Credential.File)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".courier/work.asc"), work.PGP.PublicKeys[0])

	personal, err := config.Account("personal")
	require.NoError(t, err)
	assert.Equal(t, VaultStrict, config.EffectiveVaultPolicy(work))
	assert.Equal(t, VaultFallthrough, config.EffectiveVaultPolicy(personal))
}

func TestLoadTOMLFile(t *testing.T) {
	config, err := LoadFromFile("testdata/accounts.toml")
	require.NoError(t, err)

	gmail, err := config.Account("gmail")
	require.NoError(t, err)
	assert.Equal(t, NOTMUCH, gmail.Index.Type)
	assert.Equal(t, "google", gmail.OAuth2.Provider)
	assert.Equal(t, VaultFile, config.Vault.Type)
	assert.Equal(t, VaultFallthrough, config.EffectiveVaultPolicy(gmail))
}

func TestAccountNotFound(t *testing.T) {
	config := &Config{}
	_, err := config.Account("nope")
	assert.ErrorIs(t, err, lib.ErrAccountNotFound)
}

func TestInvalidConfigurations(t *testing.T) {
	fixtures := []struct {
		name   string
		config string
	}{
		{"no account", "accounts: {}"},
		{"unknown field", "accounts:\n  a:\n    email: a@example.com\n    read: {type: maildir, root: /tmp}\n    unknown: 1"},
		{"bad email", "accounts:\n  a:\n    email: nope\n    read: {type: maildir, root: /tmp}"},
		{"read smtp", "accounts:\n  a:\n    email: a@example.com\n    read: {type: smtp, server_url: 'smtp.example.com:25'}"},
		{"send imap", "accounts:\n  a:\n    email: a@example.com\n    read: {type: maildir, root: /tmp}\n    send: {type: imap, server_url: 'imap.example.com:993'}"},
		{"index maildir", "accounts:\n  a:\n    email: a@example.com\n    read: {type: maildir, root: /tmp}\n    index: {type: maildir, root: /tmp}"},
		{"missing root", "accounts:\n  a:\n    email: a@example.com\n    read: {type: maildir}"},
		{"missing server", "accounts:\n  a:\n    email: a@example.com\n    read: {type: imap}"},
		{"bad policy", "accounts:\n  a:\n    email: a@example.com\n    read: {type: maildir, root: /tmp}\n    encryption: sometimes"},
		{"encryption without pgp", "accounts:\n  a:\n    email: a@example.com\n    read: {type: maildir, root: /tmp}\n    encryption: both"},
		{"oauth2 without endpoints", "accounts:\n  a:\n    email: a@example.com\n    read: {type: maildir, root: /tmp}\n    oauth2: {client_id: id}"},
	}
	for _, fixture := range fixtures {
		t.Run(fixture.name, func(t *testing.T) {
			_, err := LoadYAML(bytes.NewBufferString(fixture.config))
			assert.Error(t, err)
		})
	}
}

func TestUnsupportedExtension(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(filename, []byte("{}"), 0o600))
	_, err := LoadFromFile(filename)
	assert.Error(t, err)
}
