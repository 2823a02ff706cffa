package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVault struct {
	items  map[string]string
	getErr error
	setErr error
	gets   int
}

func newFakeVault() *fakeVault {
	return &fakeVault{items: make(map[string]string)}
}

func (v *fakeVault) Get(key string) (string, error) {
	v.gets++
	if v.getErr != nil {
		return "", v.getErr
	}
	secret, found := v.items[key]
	if !found {
		return "", ErrVaultItemNotFound
	}
	return secret, nil
}

func (v *fakeVault) Set(key, secret string) error {
	if v.setErr != nil {
		return v.setErr
	}
	v.items[key] = secret
	return nil
}

type fakeInteractive struct {
	secret string
	err    error
	calls  int
}

func (f *fakeInteractive) Credential(ctx context.Context, key string) (*Credential, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return New(f.secret, SourceMemory), nil
}

func writeSecret(t *testing.T, secret string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(filename, []byte(secret), 0o600))
	return filename
}

func TestInlineSecretWinsOverEverySource(t *testing.T) {
	vault := newFakeVault()
	vault.items["work"] = "from-vault"
	interactive := &fakeInteractive{secret: "typed"}

	store := NewStore(vault, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{Secret: "inline", File: writeSecret(t, "from-file")}, cfg.VaultStrict)
	store.SetInteractive("work", interactive)

	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "inline", credential.Secret())
	assert.Equal(t, SourceInline, credential.Source)
	assert.Equal(t, 0, vault.gets)
	assert.Equal(t, 0, interactive.calls)
}

func TestFileSecretIsTrimmed(t *testing.T) {
	vault := newFakeVault()
	store := NewStore(vault, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{File: writeSecret(t, "from-file\r\n\n")}, cfg.VaultStrict)

	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "from-file", credential.Secret())
	assert.Equal(t, SourceFile, credential.Source)
	assert.Equal(t, 0, vault.gets)
}

func TestMissingFileFallsThroughToVault(t *testing.T) {
	vault := newFakeVault()
	vault.items["custom-key"] = "from-vault"
	store := NewStore(vault, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{
		File:     filepath.Join(t.TempDir(), "missing"),
		VaultKey: "custom-key",
	}, cfg.VaultStrict)

	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "from-vault", credential.Secret())
	assert.Equal(t, SourceVault, credential.Source)
}

func TestMissingVaultItemFallsThroughToInteractive(t *testing.T) {
	interactive := &fakeInteractive{secret: "typed"}
	store := NewStore(newFakeVault(), lib.NewTestLogger(t, "store"))
	store.SetInteractive("work", interactive)

	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "typed", credential.Secret())
	assert.Equal(t, SourceInteractive, credential.Source)
	assert.Equal(t, 1, interactive.calls)
}

func TestLockedVaultIsHardFailureWhenStrict(t *testing.T) {
	vault := newFakeVault()
	vault.getErr = fmt.Errorf("%w: keychain locked", ErrVaultLocked)
	interactive := &fakeInteractive{secret: "typed"}
	store := NewStore(vault, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{}, cfg.VaultStrict)
	store.SetInteractive("work", interactive)

	_, err := store.Resolve(context.Background(), "work")
	require.Error(t, err)
	assert.ErrorIs(t, err, lib.ErrCredential)
	var credentialErr *lib.CredentialError
	require.True(t, errors.As(err, &credentialErr))
	assert.Equal(t, lib.CredentialVaultLocked, credentialErr.Kind)
	assert.Equal(t, 0, interactive.calls)
}

func TestLockedVaultFallsThroughWhenConfigured(t *testing.T) {
	vault := newFakeVault()
	vault.getErr = ErrVaultLocked
	interactive := &fakeInteractive{secret: "typed"}
	store := NewStore(vault, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{}, cfg.VaultFallthrough)
	store.SetInteractive("work", interactive)

	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "typed", credential.Secret())
	assert.Equal(t, 1, interactive.calls)
}

func TestUndecryptableVaultItemNeverFallsThrough(t *testing.T) {
	vault := newFakeVault()
	vault.getErr = ErrVaultDecryption
	interactive := &fakeInteractive{secret: "typed"}
	store := NewStore(vault, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{}, cfg.VaultFallthrough)
	store.SetInteractive("work", interactive)

	_, err := store.Resolve(context.Background(), "work")
	var credentialErr *lib.CredentialError
	require.True(t, errors.As(err, &credentialErr))
	assert.Equal(t, lib.CredentialDecryptionFailed, credentialErr.Kind)
	assert.Equal(t, 0, interactive.calls)
}

func TestNoSourceIsNotFound(t *testing.T) {
	store := NewStore(nil, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{NoPrompt: true}, cfg.VaultStrict)
	store.SetInteractive("work", &fakeInteractive{secret: "typed"})

	_, err := store.Resolve(context.Background(), "work")
	var credentialErr *lib.CredentialError
	require.True(t, errors.As(err, &credentialErr))
	assert.Equal(t, lib.CredentialNotFound, credentialErr.Kind)
	assert.Equal(t, "work", credentialErr.Account)
}

func TestResolveIsCachedUntilInvalidated(t *testing.T) {
	interactive := &fakeInteractive{secret: "first"}
	store := NewStore(nil, lib.NewTestLogger(t, "store"))
	store.SetInteractive("work", interactive)

	for i := 0; i < 3; i++ {
		credential, err := store.Resolve(context.Background(), "work")
		require.NoError(t, err)
		assert.Equal(t, "first", credential.Secret())
	}
	assert.Equal(t, 1, interactive.calls)

	interactive.secret = "second"
	store.Invalidate("work")
	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "second", credential.Secret())
	assert.Equal(t, 2, interactive.calls)
}

func TestPersistToVault(t *testing.T) {
	vault := newFakeVault()
	store := NewStore(vault, lib.NewTestLogger(t, "store"))

	err := store.Persist(context.Background(), "work", New("rotated", SourceMemory))
	require.NoError(t, err)
	assert.Equal(t, "rotated", vault.items["work"])

	store.Invalidate("work")
	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "rotated", credential.Secret())
}

func TestPersistToLockedVault(t *testing.T) {
	vault := newFakeVault()
	vault.setErr = ErrVaultLocked
	store := NewStore(vault, lib.NewTestLogger(t, "store"))

	err := store.Persist(context.Background(), "work", New("rotated", SourceMemory))
	assert.ErrorIs(t, err, lib.ErrCredential)
}

func TestPersistToFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "dir", "secret")
	store := NewStore(nil, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{File: filename}, cfg.VaultStrict)

	err := store.Persist(context.Background(), "work", New("rotated", SourceMemory))
	require.NoError(t, err)

	info, err := os.Stat(filename)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	store.Invalidate("work")
	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "rotated", credential.Secret())
	assert.Equal(t, SourceFile, credential.Source)
}

func TestPersistRotatedSecretSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	vault := newFakeVault()
	filename := writeSecret(t, "refresh-v1\n")
	ref := cfg.Credential{File: filename}

	store := NewStore(vault, lib.NewTestLogger(t, "store"))
	store.Register("work", ref, cfg.VaultStrict)
	credential, err := store.Resolve(ctx, "work")
	require.NoError(t, err)
	require.Equal(t, SourceFile, credential.Source)

	require.NoError(t, store.Persist(ctx, "work", New("refresh-v2", SourceMemory)))
	assert.Empty(t, vault.items)

	restarted := NewStore(vault, lib.NewTestLogger(t, "store"))
	restarted.Register("work", ref, cfg.VaultStrict)
	credential, err = restarted.Resolve(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, "refresh-v2", credential.Secret())
	assert.Equal(t, SourceFile, credential.Source)
}

func TestPersistBackToVaultWhenFileIsMissing(t *testing.T) {
	ctx := context.Background()
	vault := newFakeVault()
	vault.items["work"] = "refresh-v1"
	filename := filepath.Join(t.TempDir(), "missing")
	ref := cfg.Credential{File: filename}

	store := NewStore(vault, lib.NewTestLogger(t, "store"))
	store.Register("work", ref, cfg.VaultStrict)
	credential, err := store.Resolve(ctx, "work")
	require.NoError(t, err)
	require.Equal(t, SourceVault, credential.Source)

	require.NoError(t, store.Persist(ctx, "work", New("refresh-v2", SourceMemory)))
	require.NoError(t, store.Persist(ctx, "work", New("refresh-v3", SourceMemory)))
	assert.Equal(t, "refresh-v3", vault.items["work"])
	assert.NoFileExists(t, filename)

	restarted := NewStore(vault, lib.NewTestLogger(t, "store"))
	restarted.Register("work", ref, cfg.VaultStrict)
	credential, err = restarted.Resolve(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, "refresh-v3", credential.Secret())
}

func TestPersistInMemory(t *testing.T) {
	store := NewStore(nil, lib.NewTestLogger(t, "store"))
	err := store.Persist(context.Background(), "work", New("memory", SourceMemory))
	require.NoError(t, err)

	credential, err := store.Resolve(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "memory", credential.Secret())
}

func TestCredentialNeverPrintsSecret(t *testing.T) {
	credential := New("super-secret", SourceVault)
	outputs := []string{
		fmt.Sprintf("%v", credential),
		fmt.Sprintf("%+v", credential),
		fmt.Sprintf("%#v", credential),
		fmt.Sprintf("%s", *credential),
		fmt.Sprintf("%q", credential),
		credential.String(),
	}
	for _, output := range outputs {
		assert.NotContains(t, output, "super-secret")
		assert.Contains(t, output, "vault")
	}
}
