package cfg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the field constraints, then the rules between backends of each account
func Validate(config *Config) error {
	err := validate.Struct(config)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return err
	}
	for _, name := range config.AccountNames() {
		if err := validateAccount(config.Accounts[name]); err != nil {
			return fmt.Errorf("account %q: %w", name, err)
		}
	}
	return nil
}

func validateAccount(account Account) error {
	if account.Read.Type == SMTP {
		return errors.New("read backend cannot be smtp")
	}
	if err := validateBackend("read", account.Read); err != nil {
		return err
	}
	if account.Send != nil {
		if account.Send.Type != SMTP {
			return errors.New("send backend must be smtp")
		}
		if err := validateBackend("send", *account.Send); err != nil {
			return err
		}
	}
	if account.Index != nil {
		if account.Index.Type != NOTMUCH {
			return errors.New("index backend must be notmuch")
		}
		if err := validateBackend("index", *account.Index); err != nil {
			return err
		}
	}
	if account.Encryption.EncryptOutgoing() || account.Encryption.DecryptIncoming() {
		if account.PGP == nil {
			return fmt.Errorf("encryption policy %q needs a pgp section", account.Encryption)
		}
		if account.Encryption.DecryptIncoming() && account.PGP.SecretKey == "" {
			return errors.New("decrypting incoming messages needs a pgp secret key")
		}
	}
	if account.OAuth2 != nil && account.OAuth2.Provider == "" {
		if account.OAuth2.AuthURL == "" || account.OAuth2.TokenURL == "" {
			return errors.New("oauth2 needs a provider, or both auth_url and token_url")
		}
	}
	return nil
}

func validateBackend(role string, backend Backend) error {
	switch backend.Type {
	case IMAP, SMTP:
		if backend.ServerURL == "" {
			return fmt.Errorf("%s backend: server_url is required for %s", role, backend.Type)
		}
	case MAILDIR, NOTMUCH:
		if backend.Root == "" {
			return fmt.Errorf("%s backend: root is required for %s", role, backend.Type)
		}
	}
	return nil
}

func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	messages := make([]string, 0, len(validationErrors))
	for _, err := range validationErrors {
		field := strings.TrimPrefix(err.Namespace(), "Config.")
		switch err.Tag() {
		case "required":
			messages = append(messages, field+" is required")
		case "email":
			messages = append(messages, field+" must be a valid email")
		case "oneof":
			messages = append(messages, field+" must be one of: "+err.Param())
		case "min":
			messages = append(messages, field+" must contain at least "+err.Param()+" entry")
		default:
			messages = append(messages, field+" is invalid")
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, ", "))
}
