package pgp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainMessage = "From: Alice <alice@example.com>\r\n" +
	"To: Bob <bob@example.com>\r\n" +
	"Subject: the plan\r\n" +
	"Date: Wed, 11 May 2016 14:31:59 +0000\r\n" +
	"Message-ID: <0000000@localhost/>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Meet at dawn.\r\n"

func newEntity(t *testing.T, name, email string) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity(name, "", email, &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)
	return entity
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice := newEntity(t, "Alice", "alice@example.com")
	bob := newEntity(t, "Bob", "bob@example.com")

	sender := New(cfg.EncryptionEncryptOutgoing, "alice@example.com", openpgp.EntityList{alice, bob}, nil, nil)
	encrypted, err := sender.EncryptOutgoing(context.Background(), []byte(plainMessage), []string{"bob@example.com"})
	require.NoError(t, err)

	assert.True(t, IsEncrypted(encrypted))
	assert.NotContains(t, string(encrypted), "the plan")
	assert.NotContains(t, string(encrypted), "Meet at dawn")
	assert.Contains(t, string(encrypted), "-----BEGIN PGP MESSAGE-----")
	assert.Contains(t, string(encrypted), "Version: 1")

	receiver := New(cfg.EncryptionDecryptIncoming, "bob@example.com", nil, openpgp.EntityList{bob}, nil)
	input := &mailbox.Message{ID: mailbox.NewMessageIDFromUint(1), Raw: encrypted}
	decrypted, err := receiver.DecryptIncoming(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, plainMessage, string(decrypted.Raw))
	assert.Equal(t, encrypted, input.Raw)

	// encrypted to self as well
	self := New(cfg.EncryptionDecryptIncoming, "alice@example.com", nil, openpgp.EntityList{alice}, nil)
	decrypted, err = self.DecryptIncoming(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, plainMessage, string(decrypted.Raw))
}

func TestBlindCopyIsNotEncrypted(t *testing.T) {
	alice := newEntity(t, "Alice", "alice@example.com")
	bob := newEntity(t, "Bob", "bob@example.com")
	carol := newEntity(t, "Carol", "carol@example.com")
	raw := "From: Alice <alice@example.com>\r\n" +
		"To: Bob <bob@example.com>\r\n" +
		"Bcc: carol@example.com\r\n" +
		"Subject: the plan\r\n" +
		"\r\n" +
		"Meet at dawn.\r\n"

	sender := New(cfg.EncryptionEncryptOutgoing, "alice@example.com", openpgp.EntityList{alice, bob, carol}, nil, nil)
	encrypted, err := sender.EncryptOutgoing(context.Background(), []byte(raw), []string{"bob@example.com", "carol@example.com"})
	require.NoError(t, err)
	assert.NotContains(t, string(encrypted), "carol@example.com")

	for _, entity := range []*openpgp.Entity{bob, carol} {
		receiver := New(cfg.EncryptionDecryptIncoming, "", nil, openpgp.EntityList{entity}, nil)
		decrypted, err := receiver.DecryptIncoming(context.Background(), &mailbox.Message{Raw: encrypted})
		require.NoError(t, err)
		assert.NotContains(t, string(decrypted.Raw), "Bcc")
		assert.NotContains(t, string(decrypted.Raw), "carol@example.com")
		assert.Contains(t, string(decrypted.Raw), "Meet at dawn.")
	}
}

func TestMissingPublicKey(t *testing.T) {
	bob := newEntity(t, "Bob", "bob@example.com")
	pipeline := New(cfg.EncryptionBoth, "alice@example.com", openpgp.EntityList{bob}, nil, nil)

	_, err := pipeline.EncryptOutgoing(context.Background(), []byte(plainMessage), []string{"bob@example.com", "carol@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, lib.ErrCrypto)

	var cryptoErr *lib.CryptoError
	require.ErrorAs(t, err, &cryptoErr)
	assert.Equal(t, lib.CryptoNoPublicKey, cryptoErr.Kind)
	assert.Equal(t, "carol@example.com", cryptoErr.Recipient)
}

func TestPolicyNoneIsPassThrough(t *testing.T) {
	pipeline := New(cfg.EncryptionNone, "alice@example.com", nil, nil, nil)

	output, err := pipeline.EncryptOutgoing(context.Background(), []byte(plainMessage), []string{"bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, plainMessage, string(output))
}

func TestPlainMessageIsNotDecrypted(t *testing.T) {
	bob := newEntity(t, "Bob", "bob@example.com")
	pipeline := New(cfg.EncryptionDecryptIncoming, "bob@example.com", nil, openpgp.EntityList{bob}, nil)

	input := &mailbox.Message{Raw: []byte(plainMessage)}
	output, err := pipeline.DecryptIncoming(context.Background(), input)
	require.NoError(t, err)
	assert.Same(t, input, output)
	assert.False(t, IsEncrypted(input.Raw))
}

func TestDecryptWithWrongKeyLeavesMessageUntouched(t *testing.T) {
	bob := newEntity(t, "Bob", "bob@example.com")
	eve := newEntity(t, "Eve", "eve@example.com")

	sender := New(cfg.EncryptionEncryptOutgoing, "", openpgp.EntityList{bob}, nil, nil)
	encrypted, err := sender.EncryptOutgoing(context.Background(), []byte(plainMessage), []string{"bob@example.com"})
	require.NoError(t, err)
	original := append([]byte(nil), encrypted...)

	receiver := New(cfg.EncryptionDecryptIncoming, "eve@example.com", nil, openpgp.EntityList{eve}, nil)
	input := &mailbox.Message{Raw: encrypted}
	_, err = receiver.DecryptIncoming(context.Background(), input)
	require.Error(t, err)

	var cryptoErr *lib.CryptoError
	require.ErrorAs(t, err, &cryptoErr)
	assert.Equal(t, lib.CryptoDecryptionFailed, cryptoErr.Kind)
	assert.Equal(t, original, input.Raw)
}

func TestDecryptWithoutSecretKey(t *testing.T) {
	pipeline := New(cfg.EncryptionDecryptIncoming, "", nil, nil, nil)
	bob := newEntity(t, "Bob", "bob@example.com")
	sender := New(cfg.EncryptionEncryptOutgoing, "", openpgp.EntityList{bob}, nil, nil)
	encrypted, err := sender.EncryptOutgoing(context.Background(), []byte(plainMessage), []string{"bob@example.com"})
	require.NoError(t, err)

	_, err = pipeline.DecryptIncoming(context.Background(), &mailbox.Message{Raw: encrypted})
	assert.ErrorIs(t, err, lib.ErrCrypto)
}

func TestReadKeyRingFiles(t *testing.T) {
	bob := newEntity(t, "Bob", "bob@example.com")
	dir := t.TempDir()

	publicFile := filepath.Join(dir, "bob.asc")
	file, err := os.Create(publicFile)
	require.NoError(t, err)
	writer, err := armor.Encode(file, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, bob.Serialize(writer))
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	secretFile := filepath.Join(dir, "bob.key")
	file, err = os.Create(secretFile)
	require.NoError(t, err)
	writer, err = armor.Encode(file, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, bob.SerializePrivate(writer, nil))
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	public, err := ReadKeyRingFiles(publicFile)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.NotNil(t, FindByEmail(public, "BOB@example.com"))
	assert.Nil(t, FindByEmail(public, "alice@example.com"))

	secret, err := ReadKeyRingFiles(secretFile)
	require.NoError(t, err)

	sender := New(cfg.EncryptionEncryptOutgoing, "", public, nil, nil)
	encrypted, err := sender.EncryptOutgoing(context.Background(), []byte(plainMessage), []string{"bob@example.com"})
	require.NoError(t, err)

	receiver := New(cfg.EncryptionDecryptIncoming, "", nil, secret, nil)
	decrypted, err := receiver.DecryptIncoming(context.Background(), &mailbox.Message{Raw: encrypted})
	require.NoError(t, err)
	assert.Equal(t, plainMessage, string(decrypted.Raw))

	_, err = ReadKeyRingFiles(filepath.Join(dir, "missing.asc"))
	assert.Error(t, err)
}

func TestWrongPassphraseIsResolvedAgain(t *testing.T) {
	bob := newEntity(t, "Bob", "bob@example.com")
	sender := New(cfg.EncryptionEncryptOutgoing, "", openpgp.EntityList{bob}, nil, nil)
	encrypted, err := sender.EncryptOutgoing(context.Background(), []byte(plainMessage), []string{"bob@example.com"})
	require.NoError(t, err)

	require.NoError(t, bob.PrivateKey.Encrypt([]byte("right")))
	for _, subkey := range bob.Subkeys {
		require.NoError(t, subkey.PrivateKey.Encrypt([]byte("right")))
	}

	filename := filepath.Join(t.TempDir(), "passphrase")
	require.NoError(t, os.WriteFile(filename, []byte("wrong\n"), 0o600))
	store := credential.NewStore(nil, lib.NewTestLogger(t, "store"))
	store.Register("bob/pgp", cfg.Credential{File: filename}, cfg.VaultStrict)

	receiver := New(cfg.EncryptionDecryptIncoming, "", nil, openpgp.EntityList{bob}, nil)
	receiver.passphraseFrom(store, "bob/pgp")

	_, err = receiver.DecryptIncoming(context.Background(), &mailbox.Message{Raw: encrypted})
	assert.ErrorIs(t, err, lib.ErrCrypto)

	require.NoError(t, os.WriteFile(filename, []byte("right\n"), 0o600))
	decrypted, err := receiver.DecryptIncoming(context.Background(), &mailbox.Message{Raw: encrypted})
	require.NoError(t, err)
	assert.Equal(t, plainMessage, string(decrypted.Raw))
}
