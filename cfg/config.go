package cfg

import (
	"sort"
	"time"

	"github.com/creativeprojects/courier/lib"
)

type BackendType string

const (
	IMAP    BackendType = BackendType(lib.IMAP)
	MAILDIR BackendType = BackendType(lib.MAILDIR)
	NOTMUCH BackendType = BackendType(lib.NOTMUCH)
	SMTP    BackendType = BackendType(lib.SMTP)
)

type EncryptionPolicy string

const (
	EncryptionNone            EncryptionPolicy = "none"
	EncryptionEncryptOutgoing EncryptionPolicy = "encrypt-outgoing"
	EncryptionDecryptIncoming EncryptionPolicy = "decrypt-incoming"
	EncryptionBoth            EncryptionPolicy = "both"
)

func (p EncryptionPolicy) EncryptOutgoing() bool {
	return p == EncryptionEncryptOutgoing || p == EncryptionBoth
}

func (p EncryptionPolicy) DecryptIncoming() bool {
	return p == EncryptionDecryptIncoming || p == EncryptionBoth
}

// VaultPolicy decides what happens when a configured vault cannot be opened
type VaultPolicy string

const (
	// VaultStrict fails the resolution (default)
	VaultStrict VaultPolicy = "strict"
	// VaultFallthrough moves on to the interactive source
	VaultFallthrough VaultPolicy = "fallthrough"
)

type VaultType string

const (
	VaultKeyring VaultType = "keyring"
	VaultFile    VaultType = "file"
)

type Config struct {
	LogLevel    string             `yaml:"log_level" toml:"log_level"`
	Vault       *Vault             `yaml:"vault" toml:"vault"`
	VaultPolicy VaultPolicy        `yaml:"vault_policy" toml:"vault_policy" validate:"omitempty,oneof=strict fallthrough"`
	Accounts    map[string]Account `yaml:"accounts" toml:"accounts" validate:"required,min=1,dive"`
}

type Vault struct {
	Type VaultType `yaml:"type" toml:"type" validate:"required,oneof=keyring file"`
	// Service name in the system keyring
	Service string `yaml:"service" toml:"service"`
	// Allowed keyring backends (keychain, secret-service, wincred, pass, file...)
	Backends []string `yaml:"backends" toml:"backends"`
	// Path of the sealed file vault, or of the keyring file backend
	Path string `yaml:"path" toml:"path"`
	// Environment variable holding the passphrase of the vault
	PassphraseEnv string `yaml:"passphrase_env" toml:"passphrase_env"`
}

type Account struct {
	Email       string           `yaml:"email" toml:"email" validate:"required,email"`
	Username    string           `yaml:"username" toml:"username"`
	Read        Backend          `yaml:"read" toml:"read"`
	Send        *Backend         `yaml:"send" toml:"send"`
	Index       *Backend         `yaml:"index" toml:"index"`
	Encryption  EncryptionPolicy `yaml:"encryption" toml:"encryption" validate:"omitempty,oneof=none encrypt-outgoing decrypt-incoming both"`
	Credential  Credential       `yaml:"credential" toml:"credential"`
	PGP         *PGP             `yaml:"pgp" toml:"pgp"`
	OAuth2      *OAuth2          `yaml:"oauth2" toml:"oauth2"`
	SentFolder  string           `yaml:"sent_folder" toml:"sent_folder"`
	VaultPolicy VaultPolicy      `yaml:"vault_policy" toml:"vault_policy" validate:"omitempty,oneof=strict fallthrough"`
}

// Login returns the username to authenticate with, the email address by default
func (a Account) Login() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Email
}

type Backend struct {
	Type                BackendType   `yaml:"type" toml:"type" validate:"required,oneof=imap maildir notmuch smtp"`
	ServerURL           string        `yaml:"server_url" toml:"server_url" validate:"omitempty,hostname_port"`
	NoTLS               bool          `yaml:"no_tls" toml:"no_tls"`
	StartTLS            bool          `yaml:"starttls" toml:"starttls"`
	SkipTLSVerification bool          `yaml:"skip_tls_verification" toml:"skip_tls_verification"`
	Compress            bool          `yaml:"compress" toml:"compress"`
	Root                string        `yaml:"root" toml:"root"`
	Database            string        `yaml:"database" toml:"database"`
	RateLimit           int           `yaml:"rate_limit" toml:"rate_limit" validate:"gte=0"`
	Timeout             time.Duration `yaml:"timeout" toml:"timeout" validate:"gte=0"`
}

// Credential references the secret of an account. The sources are tried in this order:
// inline secret, secret file, vault, then the interactive source.
type Credential struct {
	Secret string `yaml:"secret" toml:"secret"`
	File   string `yaml:"file" toml:"file"`
	// Key in the vault, the account name by default
	VaultKey string `yaml:"vault_key" toml:"vault_key"`
	// NoPrompt disables the interactive source
	NoPrompt bool `yaml:"no_prompt" toml:"no_prompt"`
}

type PGP struct {
	// Armored public keys of the recipients (and of the account)
	PublicKeys []string `yaml:"public_keys" toml:"public_keys"`
	// Armored secret key of the account
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	// Passphrase of the secret key, resolved under "<account>/pgp"
	Passphrase Credential `yaml:"passphrase" toml:"passphrase"`
}

type OAuth2 struct {
	// google, microsoft, yahoo, or empty for custom endpoints
	Provider     string   `yaml:"provider" toml:"provider" validate:"omitempty,oneof=google microsoft yahoo"`
	ClientID     string   `yaml:"client_id" toml:"client_id" validate:"required"`
	ClientSecret string   `yaml:"client_secret" toml:"client_secret"`
	AuthURL      string   `yaml:"auth_url" toml:"auth_url" validate:"omitempty,url"`
	TokenURL     string   `yaml:"token_url" toml:"token_url" validate:"omitempty,url"`
	RedirectURL  string   `yaml:"redirect_url" toml:"redirect_url" validate:"omitempty,url"`
	Scopes       []string `yaml:"scopes" toml:"scopes"`
	// SASL mechanism: xoauth2 (default) or oauthbearer
	Mechanism string `yaml:"mechanism" toml:"mechanism" validate:"omitempty,oneof=xoauth2 oauthbearer"`
}

// Account returns the account configuration by its name
func (c *Config) Account(name string) (Account, error) {
	account, found := c.Accounts[name]
	if !found {
		return Account{}, lib.ErrAccountNotFound
	}
	return account, nil
}

// AccountNames returns the names of the accounts in alphabetical order
func (c *Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EffectiveVaultPolicy returns the vault policy of the account, or the global one
func (c *Config) EffectiveVaultPolicy(account Account) VaultPolicy {
	if account.VaultPolicy != "" {
		return account.VaultPolicy
	}
	if c.VaultPolicy != "" {
		return c.VaultPolicy
	}
	return VaultStrict
}
