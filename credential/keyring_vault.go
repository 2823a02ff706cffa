package credential

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const DefaultService = "courier"

// KeyringVault stores secrets in the system keyring (keychain, secret service, wincred, pass),
// or in the keyring encrypted file backend
type KeyringVault struct {
	config keyring.Config
	mu     sync.Mutex
	ring   keyring.Keyring
}

type KeyringOptions struct {
	Service  string
	Backends []string
	// FileDir is used by the "file" backend
	FileDir string
	// Passphrase of the "file" backend
	Passphrase keyring.PromptFunc
}

func NewKeyringVault(options KeyringOptions) *KeyringVault {
	if options.Service == "" {
		options.Service = DefaultService
	}
	if options.FileDir == "" {
		options.FileDir = "~/.config/" + options.Service + "/credentials"
	}
	config := keyring.Config{
		ServiceName:              options.Service,
		FileDir:                  options.FileDir,
		FilePasswordFunc:         options.Passphrase,
		KeychainTrustApplication: true,
	}
	if len(options.Backends) > 0 {
		config.AllowedBackends = make([]keyring.BackendType, 0, len(options.Backends))
		for _, backend := range options.Backends {
			config.AllowedBackends = append(config.AllowedBackends, keyring.BackendType(backend))
		}
	}
	if config.FilePasswordFunc == nil {
		config.FilePasswordFunc = func(string) (string, error) {
			return "", ErrVaultLocked
		}
	}
	return &KeyringVault{
		config: config,
	}
}

func (v *KeyringVault) open() (keyring.Keyring, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ring != nil {
		return v.ring, nil
	}
	ring, err := keyring.Open(v.config)
	if err != nil {
		return nil, fmt.Errorf("%w: opening keyring: %s", ErrVaultLocked, err)
	}
	v.ring = ring
	return ring, nil
}

func (v *KeyringVault) Get(key string) (string, error) {
	ring, err := v.open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrVaultItemNotFound
		}
		return "", fmt.Errorf("%w: getting %q: %s", ErrVaultLocked, key, err)
	}
	return string(item.Data), nil
}

func (v *KeyringVault) Set(key, secret string) error {
	ring, err := v.open()
	if err != nil {
		return err
	}
	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(secret),
		Label: v.config.ServiceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("%w: setting %q: %s", ErrVaultLocked, key, err)
	}
	return nil
}
