package pgp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// PassphraseFunc returns the passphrase of the secret key
type PassphraseFunc func(ctx context.Context) (string, error)

// ReadKeyRingFiles reads armored keys from each file
func ReadKeyRingFiles(filenames ...string) (openpgp.EntityList, error) {
	keyring := make(openpgp.EntityList, 0, len(filenames))
	for _, filename := range filenames {
		file, err := os.Open(filename)
		if err != nil {
			return nil, fmt.Errorf("cannot open key file: %w", err)
		}
		entities, err := openpgp.ReadArmoredKeyRing(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("cannot read keys from %q: %w", filename, err)
		}
		keyring = append(keyring, entities...)
	}
	return keyring, nil
}

// FindByEmail returns the first entity with an identity on this address and a valid encryption key
func FindByEmail(keyring openpgp.EntityList, email string) *openpgp.Entity {
	email = strings.ToLower(strings.TrimSpace(email))
	now := time.Now()
	for _, entity := range keyring {
		for _, identity := range entity.Identities {
			if identity.UserId == nil || strings.ToLower(identity.UserId.Email) != email {
				continue
			}
			if _, ok := entity.EncryptionKey(now); ok {
				return entity
			}
		}
	}
	return nil
}

func hasEncryptedKey(keyring openpgp.EntityList) bool {
	for _, entity := range keyring {
		if entity.PrivateKey != nil && entity.PrivateKey.Encrypted {
			return true
		}
		for _, subkey := range entity.Subkeys {
			if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
				return true
			}
		}
	}
	return false
}

func unlock(keyring openpgp.EntityList, passphrase []byte) error {
	decrypt := func(key *packet.PrivateKey) error {
		if key == nil || !key.Encrypted {
			return nil
		}
		return key.Decrypt(passphrase)
	}
	for _, entity := range keyring {
		if err := decrypt(entity.PrivateKey); err != nil {
			return err
		}
		for _, subkey := range entity.Subkeys {
			if err := decrypt(subkey.PrivateKey); err != nil {
				return err
			}
		}
	}
	return nil
}
