package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/storage"
	"github.com/creativeprojects/courier/storage/mdir"
	"github.com/creativeprojects/courier/storage/notmuch"
	"github.com/creativeprojects/courier/storage/remote"
	"github.com/creativeprojects/courier/storage/smtp"
)

// Capabilities returns what a backend type supports, without opening it
func Capabilities(backendType cfg.BackendType) lib.Capability {
	switch backendType {
	case cfg.IMAP:
		return remote.Capabilities
	case cfg.MAILDIR:
		return mdir.Capabilities
	case cfg.NOTMUCH:
		return notmuch.Capabilities
	case cfg.SMTP:
		return smtp.Capabilities
	}
	return 0
}

// NewBackend opens the backend described in the configuration.
// Any failure is returned as a BackendUnavailableError wrapping the cause.
func NewBackend(ctx context.Context, name string, settings cfg.Backend, provider credential.Provider, logger lib.Logger) (storage.Backend, error) {
	backend, err := newBackend(ctx, name, settings, provider, logger)
	if err != nil {
		var unavailable *lib.BackendUnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &lib.BackendUnavailableError{Backend: lib.BackendKind(settings.Type), Err: err}
	}
	return backend, nil
}

func newBackend(ctx context.Context, name string, settings cfg.Backend, provider credential.Provider, logger lib.Logger) (storage.Backend, error) {
	switch settings.Type {
	case cfg.IMAP:
		return remote.NewImap(ctx, remote.Config{
			Account:             name,
			ServerURL:           settings.ServerURL,
			NoTLS:               settings.NoTLS,
			StartTLS:            settings.StartTLS,
			SkipTLSVerification: settings.SkipTLSVerification,
			Compress:            settings.Compress,
			RateLimit:           settings.RateLimit,
			Timeout:             settings.Timeout,
			Logger:              logger,
		}, provider)
	case cfg.MAILDIR:
		return mdir.NewWithLogger(settings.Root, logger)
	case cfg.NOTMUCH:
		return notmuch.New(notmuch.Config{
			Root:     settings.Root,
			Database: settings.Database,
			Logger:   logger,
		})
	case cfg.SMTP:
		return smtp.New(smtp.Config{
			Account:             name,
			ServerURL:           settings.ServerURL,
			NoTLS:               settings.NoTLS,
			StartTLS:            settings.StartTLS,
			SkipTLSVerification: settings.SkipTLSVerification,
			RateLimit:           settings.RateLimit,
			Timeout:             settings.Timeout,
			Logger:              logger,
		}, provider)
	}
	return nil, fmt.Errorf("unknown backend type %q", settings.Type)
}
