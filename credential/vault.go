package credential

import "errors"

var (
	ErrVaultItemNotFound = errors.New("item not found in vault")
	ErrVaultLocked       = errors.New("vault is locked or unavailable")
	ErrVaultDecryption   = errors.New("vault item cannot be decrypted")
)

// Vault is a secret storage: system keyring or sealed file
type Vault interface {
	Get(key string) (string, error)
	Set(key, secret string) error
}
