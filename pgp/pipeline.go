package pgp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

const (
	encryptedType = "multipart/encrypted"
	protocol      = "application/pgp-encrypted"
	messageType   = "PGP MESSAGE"
	placeholder   = "..."
)

// header fields kept in clear on an encrypted message
var clearFields = []string{"From", "To", "Cc", "Date", "Message-Id", "In-Reply-To", "References"}

// Pipeline encrypts outgoing messages and decrypts incoming ones, following the account policy
type Pipeline struct {
	policy     cfg.EncryptionPolicy
	self       string
	public     openpgp.EntityList
	secret     openpgp.EntityList
	passphrase PassphraseFunc
	forget     func()
	mu         sync.Mutex
	unlocked   bool
}

// New creates a pipeline. self is the address of the account, used for encrypt-to-self.
func New(policy cfg.EncryptionPolicy, self string, public, secret openpgp.EntityList, passphrase PassphraseFunc) *Pipeline {
	return &Pipeline{
		policy:     policy,
		self:       self,
		public:     public,
		secret:     secret,
		passphrase: passphrase,
	}
}

// Load reads the keys of the account. The passphrase of the secret key is resolved
// by the credential store under "<account>/pgp".
func Load(name string, account cfg.Account, store *credential.Store, policy cfg.VaultPolicy) (*Pipeline, error) {
	if account.PGP == nil {
		return New(account.Encryption, account.Email, nil, nil, nil), nil
	}
	public, err := ReadKeyRingFiles(account.PGP.PublicKeys...)
	if err != nil {
		return nil, err
	}
	var secret openpgp.EntityList
	if account.PGP.SecretKey != "" {
		secret, err = ReadKeyRingFiles(account.PGP.SecretKey)
		if err != nil {
			return nil, err
		}
	}
	key := name + "/pgp"
	store.Register(key, account.PGP.Passphrase, policy)
	pipeline := New(account.Encryption, account.Email, public, secret, nil)
	pipeline.passphraseFrom(store, key)
	return pipeline, nil
}

// passphraseFrom resolves the passphrase from the store. A passphrase
// that doesn't unlock the key is dropped from the store cache.
func (p *Pipeline) passphraseFrom(store *credential.Store, key string) {
	p.passphrase = func(ctx context.Context) (string, error) {
		cred, err := store.Resolve(ctx, key)
		if err != nil {
			return "", err
		}
		return cred.Secret(), nil
	}
	p.forget = func() {
		store.Invalidate(key)
	}
}

func (p *Pipeline) Policy() cfg.EncryptionPolicy {
	return p.policy
}

// EncryptOutgoing returns the PGP/MIME version of the message when the policy says so.
// Every recipient needs a public key: there is no plain text fallback.
func (p *Pipeline) EncryptOutgoing(ctx context.Context, raw []byte, recipients []string) ([]byte, error) {
	if !p.policy.EncryptOutgoing() {
		return raw, nil
	}
	to := make([]*openpgp.Entity, 0, len(recipients)+1)
	for _, recipient := range recipients {
		entity := FindByEmail(p.public, recipient)
		if entity == nil {
			return nil, &lib.CryptoError{Kind: lib.CryptoNoPublicKey, Recipient: recipient}
		}
		to = appendEntity(to, entity)
	}
	if self := p.selfKey(); self != nil {
		to = appendEntity(to, self)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// blind copies must not show up once decrypted by the other recipients
	payload, err := mailbox.RemoveHeader(raw, "Bcc")
	if err != nil {
		return nil, &lib.CryptoError{Kind: lib.CryptoEncryptionFailed, Err: err}
	}
	original, err := textproto.ReadHeader(bufioReader(payload))
	if err != nil {
		return nil, &lib.CryptoError{Kind: lib.CryptoEncryptionFailed, Err: err}
	}
	output, err := buildEncrypted(original, payload, to)
	if err != nil {
		return nil, &lib.CryptoError{Kind: lib.CryptoEncryptionFailed, Err: err}
	}
	return output, nil
}

// DecryptIncoming returns a decrypted copy of a PGP/MIME message when the policy says so.
// Anything that is not PGP/MIME is returned as is. The input message is never modified.
func (p *Pipeline) DecryptIncoming(ctx context.Context, msg *mailbox.Message) (*mailbox.Message, error) {
	if !p.policy.DecryptIncoming() || !IsEncrypted(msg.Raw) {
		return msg, nil
	}
	if len(p.secret) == 0 {
		return nil, &lib.CryptoError{Kind: lib.CryptoDecryptionFailed, Err: errors.New("no secret key")}
	}
	if err := p.unlock(ctx); err != nil {
		return nil, err
	}
	ciphertext, err := encryptedPayload(msg.Raw)
	if err != nil {
		return nil, &lib.CryptoError{Kind: lib.CryptoDecryptionFailed, Err: err}
	}
	plain, err := decrypt(ciphertext, p.secret)
	if err != nil {
		return nil, &lib.CryptoError{Kind: lib.CryptoDecryptionFailed, Err: err}
	}
	decrypted := msg.Clone()
	decrypted.Raw = plain
	return decrypted, nil
}

// IsEncrypted inspects the structure of the message: only multipart/encrypted
// with the application/pgp-encrypted protocol qualifies
func IsEncrypted(raw []byte) bool {
	header, err := textproto.ReadHeader(bufioReader(raw))
	if err != nil {
		return false
	}
	h := message.Header{Header: header}
	mediaType, params, err := h.ContentType()
	if err != nil {
		return false
	}
	return mediaType == encryptedType && strings.EqualFold(params["protocol"], protocol)
}

func (p *Pipeline) selfKey() *openpgp.Entity {
	if p.self == "" {
		return nil
	}
	if entity := FindByEmail(p.public, p.self); entity != nil {
		return entity
	}
	return FindByEmail(p.secret, p.self)
}

func (p *Pipeline) unlock(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unlocked || !hasEncryptedKey(p.secret) {
		p.unlocked = true
		return nil
	}
	if p.passphrase == nil {
		return &lib.CryptoError{Kind: lib.CryptoDecryptionFailed, Err: errors.New("secret key is locked")}
	}
	passphrase, err := p.passphrase(ctx)
	if err != nil {
		return err
	}
	if err = unlock(p.secret, []byte(passphrase)); err != nil {
		if p.forget != nil {
			p.forget()
		}
		return &lib.CryptoError{Kind: lib.CryptoDecryptionFailed, Err: fmt.Errorf("cannot unlock secret key: %w", err)}
	}
	p.unlocked = true
	return nil
}

func appendEntity(list []*openpgp.Entity, entity *openpgp.Entity) []*openpgp.Entity {
	for _, existing := range list {
		if existing.PrimaryKey.Fingerprint != nil && bytes.Equal(existing.PrimaryKey.Fingerprint, entity.PrimaryKey.Fingerprint) {
			return list
		}
	}
	return append(list, entity)
}

func decrypt(ciphertext io.Reader, keyring openpgp.EntityList) ([]byte, error) {
	block, err := armor.Decode(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("invalid armored message: %w", err)
	}
	if block.Type != messageType {
		return nil, fmt.Errorf("unexpected armored block %q", block.Type)
	}
	details, err := openpgp.ReadMessage(block.Body, keyring, nil, nil)
	if err != nil {
		return nil, err
	}
	// reading up to the end verifies the integrity of the message
	return io.ReadAll(details.UnverifiedBody)
}
