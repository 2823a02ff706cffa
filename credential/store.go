package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/lib"
)

// Interactive is the last source of a credential: a terminal prompt or an OAuth2 authorization flow
type Interactive interface {
	Credential(ctx context.Context, key string) (*Credential, error)
}

type entry struct {
	ref    cfg.Credential
	policy cfg.VaultPolicy
}

// Store resolves the secret of each key (an account name, or "<account>/pgp")
// from the inline secret, the secret file, the vault, then the interactive source.
// The first source returning a secret wins.
type Store struct {
	vault       Vault
	log         lib.Logger
	mu          sync.Mutex
	entries     map[string]entry
	interactive map[string]Interactive
	cache       map[string]*Credential
}

func NewStore(vault Vault, logger lib.Logger) *Store {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	return &Store{
		vault:       vault,
		log:         logger,
		entries:     make(map[string]entry),
		interactive: make(map[string]Interactive),
		cache:       make(map[string]*Credential),
	}
}

// Register declares where to find the secret of a key
func (s *Store) Register(key string, ref cfg.Credential, policy cfg.VaultPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{ref: ref, policy: policy}
}

// SetInteractive registers the interactive source of a key
func (s *Store) SetInteractive(key string, source Interactive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactive[key] = source
}

func (s *Store) lookup(key string) (entry, Interactive, *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key], s.interactive[key], s.cache[key]
}

// Resolve returns the credential of the key, from the cache when already resolved
func (s *Store) Resolve(ctx context.Context, key string) (*Credential, error) {
	settings, interactive, cached := s.lookup(key)
	if cached != nil {
		return cached, nil
	}
	credential, err := s.resolve(ctx, key, settings, interactive)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[key] = credential
	s.mu.Unlock()
	return credential, nil
}

func (s *Store) resolve(ctx context.Context, key string, settings entry, interactive Interactive) (*Credential, error) {
	ref := settings.ref
	if ref.Secret != "" {
		return New(ref.Secret, SourceInline), nil
	}

	if ref.File != "" {
		content, err := os.ReadFile(ref.File)
		if err == nil {
			secret := strings.TrimRight(string(content), "\r\n")
			if secret != "" {
				return New(secret, SourceFile), nil
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, &lib.CredentialError{Kind: lib.CredentialNotFound, Account: key, Err: err}
		}
		s.log.Printf("secret file %q not found, trying next source", ref.File)
	}

	if s.vault != nil {
		secret, err := s.vault.Get(vaultKey(key, ref))
		switch {
		case err == nil:
			return New(secret, SourceVault), nil
		case errors.Is(err, ErrVaultItemNotFound):
			s.log.Printf("no secret in vault for %q, trying next source", key)
		case errors.Is(err, ErrVaultDecryption):
			return nil, &lib.CredentialError{Kind: lib.CredentialDecryptionFailed, Account: key, Err: err}
		case settings.policy == cfg.VaultFallthrough:
			s.log.Printf("vault unavailable (%s), trying next source", err)
		default:
			return nil, &lib.CredentialError{Kind: lib.CredentialVaultLocked, Account: key, Err: err}
		}
	}

	if interactive != nil && !ref.NoPrompt {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		credential, err := interactive.Credential(ctx, key)
		if err != nil {
			if errors.Is(err, lib.ErrAuth) || errors.Is(err, lib.ErrCredential) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, &lib.CredentialError{Kind: lib.CredentialNotFound, Account: key, Err: err}
		}
		credential.Source = SourceInteractive
		return credential, nil
	}
	return nil, &lib.CredentialError{Kind: lib.CredentialNotFound, Account: key}
}

// Persist overwrites the stored secret where the next Resolve will find it first:
// the source the current secret came from, else the secret file, else the vault.
// Without any writable source the secret is only kept in memory.
func (s *Store) Persist(ctx context.Context, key string, credential *Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	settings, _, cached := s.lookup(key)
	stored := *credential
	stored.Source = s.persistTarget(settings.ref, cached)
	switch stored.Source {
	case SourceVault:
		err := s.vault.Set(vaultKey(key, settings.ref), credential.Secret())
		if err != nil {
			kind := lib.CredentialVaultLocked
			if errors.Is(err, ErrVaultDecryption) {
				kind = lib.CredentialDecryptionFailed
			}
			return &lib.CredentialError{Kind: kind, Account: key, Err: err}
		}
	case SourceFile:
		err := os.MkdirAll(filepath.Dir(settings.ref.File), 0o700)
		if err == nil {
			err = os.WriteFile(settings.ref.File, []byte(credential.Secret()+"\n"), 0o600)
		}
		if err != nil {
			return fmt.Errorf("cannot save secret of %q: %w", key, err)
		}
	}
	s.log.Printf("secret of %q saved to %s", key, stored.Source)
	s.mu.Lock()
	s.cache[key] = &stored
	s.mu.Unlock()
	return nil
}

func (s *Store) persistTarget(ref cfg.Credential, cached *Credential) Source {
	if cached != nil {
		switch {
		case cached.Source == SourceVault && s.vault != nil:
			return SourceVault
		case cached.Source == SourceFile && ref.File != "":
			return SourceFile
		}
	}
	if ref.File != "" {
		return SourceFile
	}
	if s.vault != nil {
		return SourceVault
	}
	return SourceMemory
}

// Invalidate forgets the cached credential, so the next Resolve goes through the sources again
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
}

func vaultKey(key string, ref cfg.Credential) string {
	if ref.VaultKey != "" {
		return ref.VaultKey
	}
	return key
}
