package credential

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	metadataBucket = "metadata"
	secretsBucket  = "secrets"
	saltKey        = "salt"
	checkKey       = "check"
	checkValue     = "courier-vault"
	nonceSize      = 24
	keySize        = 32
	saltSize       = 32
)

// PassphraseFunc returns the passphrase of a vault, or an empty string when none is available
type PassphraseFunc func() (string, error)

// EnvPassphrase reads the passphrase from an environment variable
func EnvPassphrase(name string) PassphraseFunc {
	return func() (string, error) {
		return os.Getenv(name), nil
	}
}

// BoltVault is a single file vault. Each secret is sealed with a key derived from a passphrase.
type BoltVault struct {
	filename   string
	passphrase PassphraseFunc
	timeout    time.Duration
	cost       int
	mu         sync.Mutex
	derived    map[string]*[keySize]byte
}

func NewBoltVault(filename string, passphrase PassphraseFunc) *BoltVault {
	return &BoltVault{
		filename:   filename,
		passphrase: passphrase,
		timeout:    time.Second,
		cost:       1 << 15,
		derived:    make(map[string]*[keySize]byte),
	}
}

func (v *BoltVault) Get(key string) (string, error) {
	var secret string
	err := v.withKey(false, func(tx *bolt.Tx, sealKey *[keySize]byte) error {
		bucket := tx.Bucket([]byte(secretsBucket))
		if bucket == nil {
			return ErrVaultItemNotFound
		}
		box := bucket.Get([]byte(key))
		if box == nil {
			return ErrVaultItemNotFound
		}
		plain, err := open(box, sealKey)
		if err != nil {
			return err
		}
		secret = string(plain)
		return nil
	})
	return secret, err
}

func (v *BoltVault) Set(key, secret string) error {
	return v.withKey(true, func(tx *bolt.Tx, sealKey *[keySize]byte) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(secretsBucket))
		if err != nil {
			return err
		}
		box, err := seal([]byte(secret), sealKey)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), box)
	})
}

// withKey opens the file, derives the key and verifies it against the check value
func (v *BoltVault) withKey(writable bool, do func(tx *bolt.Tx, sealKey *[keySize]byte) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	passphrase := ""
	if v.passphrase != nil {
		var err error
		passphrase, err = v.passphrase()
		if err != nil {
			return fmt.Errorf("%w: %s", ErrVaultLocked, err)
		}
	}
	if passphrase == "" {
		return fmt.Errorf("%w: no passphrase available", ErrVaultLocked)
	}

	if !writable {
		if _, err := os.Stat(v.filename); errors.Is(err, os.ErrNotExist) {
			return ErrVaultItemNotFound
		}
	}
	db, err := v.openDB(writable)
	if err != nil {
		return err
	}
	defer db.Close()

	if writable {
		return db.Update(func(tx *bolt.Tx) error {
			sealKey, err := v.initKey(tx, passphrase)
			if err != nil {
				return err
			}
			return do(tx, sealKey)
		})
	}
	return db.View(func(tx *bolt.Tx) error {
		sealKey, err := v.readKey(tx, passphrase)
		if err != nil {
			return err
		}
		return do(tx, sealKey)
	})
}

func (v *BoltVault) openDB(writable bool) (*bolt.DB, error) {
	options := *bolt.DefaultOptions
	options.Timeout = v.timeout
	options.ReadOnly = !writable

	if writable {
		err := os.MkdirAll(filepath.Dir(v.filename), 0o700)
		if err != nil {
			return nil, fmt.Errorf("cannot create vault directory: %w", err)
		}
	}
	db, err := bolt.Open(v.filename, 0o600, &options)
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			return nil, fmt.Errorf("%w: %q is in use by another process", ErrVaultLocked, v.filename)
		}
		return nil, fmt.Errorf("%w: %s", ErrVaultLocked, err)
	}
	return db, nil
}

// readKey derives the key from the salt stored in the file
func (v *BoltVault) readKey(tx *bolt.Tx, passphrase string) (*[keySize]byte, error) {
	metadata := tx.Bucket([]byte(metadataBucket))
	if metadata == nil {
		return nil, ErrVaultItemNotFound
	}
	return v.verifyKey(metadata.Get([]byte(saltKey)), metadata.Get([]byte(checkKey)), passphrase)
}

// initKey creates the salt and check value on first use
func (v *BoltVault) initKey(tx *bolt.Tx, passphrase string) (*[keySize]byte, error) {
	metadata, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
	if err != nil {
		return nil, err
	}
	salt := metadata.Get([]byte(saltKey))
	if salt != nil {
		return v.verifyKey(salt, metadata.Get([]byte(checkKey)), passphrase)
	}
	salt = make([]byte, saltSize)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	sealKey, err := v.deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	check, err := seal([]byte(checkValue), sealKey)
	if err != nil {
		return nil, err
	}
	if err = metadata.Put([]byte(saltKey), salt); err != nil {
		return nil, err
	}
	if err = metadata.Put([]byte(checkKey), check); err != nil {
		return nil, err
	}
	return sealKey, nil
}

func (v *BoltVault) verifyKey(salt, check []byte, passphrase string) (*[keySize]byte, error) {
	if salt == nil || check == nil {
		return nil, fmt.Errorf("%w: missing vault metadata", ErrVaultDecryption)
	}
	sealKey, err := v.deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	if _, err = open(check, sealKey); err != nil {
		return nil, err
	}
	return sealKey, nil
}

func (v *BoltVault) deriveKey(passphrase string, salt []byte) (*[keySize]byte, error) {
	cacheKey := passphrase + "\x00" + string(salt)
	if sealKey, found := v.derived[cacheKey]; found {
		return sealKey, nil
	}
	raw, err := scrypt.Key([]byte(passphrase), salt, v.cost, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("cannot derive vault key: %w", err)
	}
	sealKey := new([keySize]byte)
	copy(sealKey[:], raw)
	v.derived[cacheKey] = sealKey
	return sealKey, nil
}

func seal(plain []byte, sealKey *[keySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, sealKey), nil
}

func open(box []byte, sealKey *[keySize]byte) ([]byte, error) {
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrVaultDecryption
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, sealKey)
	if !ok {
		return nil, ErrVaultDecryption
	}
	return plain, nil
}
