package credential

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func fixedPassphrase(passphrase string) PassphraseFunc {
	return func() (string, error) {
		return passphrase, nil
	}
}

func newTestBoltVault(filename, passphrase string) *BoltVault {
	vault := NewBoltVault(filename, fixedPassphrase(passphrase))
	vault.cost = 1 << 10
	vault.timeout = 100 * time.Millisecond
	return vault
}

func TestBoltVaultRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "vault", "secrets.db")
	vault := newTestBoltVault(filename, "correct horse")

	_, err := vault.Get("work")
	assert.ErrorIs(t, err, ErrVaultItemNotFound)

	require.NoError(t, vault.Set("work", "password"))
	require.NoError(t, vault.Set("personal", "other"))

	secret, err := vault.Get("work")
	require.NoError(t, err)
	assert.Equal(t, "password", secret)

	// a new instance only has the file and the passphrase
	reopened := newTestBoltVault(filename, "correct horse")
	secret, err = reopened.Get("personal")
	require.NoError(t, err)
	assert.Equal(t, "other", secret)

	_, err = reopened.Get("missing")
	assert.ErrorIs(t, err, ErrVaultItemNotFound)
}

func TestBoltVaultWrongPassphrase(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "secrets.db")
	require.NoError(t, newTestBoltVault(filename, "correct horse").Set("work", "password"))

	vault := newTestBoltVault(filename, "battery staple")
	_, err := vault.Get("work")
	assert.ErrorIs(t, err, ErrVaultDecryption)

	err = vault.Set("work", "overwrite")
	assert.ErrorIs(t, err, ErrVaultDecryption)
}

func TestBoltVaultWithoutPassphraseIsLocked(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "secrets.db")
	vault := newTestBoltVault(filename, "")

	_, err := vault.Get("work")
	assert.ErrorIs(t, err, ErrVaultLocked)
	assert.ErrorIs(t, vault.Set("work", "password"), ErrVaultLocked)
}

func TestBoltVaultInUseIsLocked(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "secrets.db")
	vault := newTestBoltVault(filename, "correct horse")
	require.NoError(t, vault.Set("work", "password"))

	db, err := bolt.Open(filename, 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = vault.Get("work")
	assert.ErrorIs(t, err, ErrVaultLocked)
}

func TestKeyringVaultFileBackend(t *testing.T) {
	vault := NewKeyringVault(KeyringOptions{
		Service:    "courier-test",
		Backends:   []string{string(keyring.FileBackend)},
		FileDir:    t.TempDir(),
		Passphrase: keyring.FixedStringPrompt("test-passphrase"),
	})

	_, err := vault.Get("work")
	assert.True(t, errors.Is(err, ErrVaultItemNotFound))

	require.NoError(t, vault.Set("work", "password"))
	secret, err := vault.Get("work")
	require.NoError(t, err)
	assert.Equal(t, "password", secret)
}

func TestKeyringVaultNoBackendIsLocked(t *testing.T) {
	vault := NewKeyringVault(KeyringOptions{
		Backends: []string{"no-such-backend"},
	})
	_, err := vault.Get("work")
	assert.ErrorIs(t, err, ErrVaultLocked)
}
