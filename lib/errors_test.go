package lib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchTheirSentinel(t *testing.T) {
	cause := errors.New("boom")
	fixtures := []struct {
		err      error
		sentinel error
	}{
		{&CredentialError{Kind: CredentialVaultLocked, Account: "work", Err: cause}, ErrCredential},
		{&AuthError{Account: "work", Err: cause}, ErrAuth},
		{&AuthError{Account: "work", Revoked: true}, ErrRevoked},
		{&BackendUnavailableError{Backend: IMAP, Err: cause}, ErrBackendUnavailable},
		{Unsupported(SMTP, CapListFolders), ErrUnsupportedOperation},
		{&CryptoError{Kind: CryptoNoPublicKey, Recipient: "bob@example.com"}, ErrCrypto},
	}
	for _, fixture := range fixtures {
		t.Run(fixture.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("operation: %w", fixture.err)
			assert.ErrorIs(t, wrapped, fixture.sentinel)
		})
	}
}

func TestAuthErrorNotRevoked(t *testing.T) {
	err := &AuthError{Account: "work"}
	assert.False(t, errors.Is(err, ErrRevoked))
}

func TestErrorsUnwrapCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("fetch: %w", &BackendUnavailableError{Backend: IMAP, Err: cause})
	assert.ErrorIs(t, err, cause)

	var target *BackendUnavailableError
	assert.ErrorAs(t, err, &target)
	assert.Equal(t, IMAP, target.Backend)
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "nothing", Capability(0).String())
	assert.Equal(t, "list folders, send message", (CapListFolders | CapSend).String())
	assert.True(t, (CapListFolders | CapSend).Has(CapSend))
	assert.False(t, CapListFolders.Has(CapListFolders|CapSend))
}
