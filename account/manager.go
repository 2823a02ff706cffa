package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/oauth"
	"github.com/creativeprojects/courier/pgp"
	"github.com/creativeprojects/courier/storage"
)

type Options struct {
	// Store resolves the secrets. A store without vault is created when nil.
	Store *credential.Store
	// OAuth serves the accounts configured with oauth2. A manager without authorizer is created when nil.
	OAuth *oauth.Manager
	// Prompt is the interactive source of passwords, if any
	Prompt credential.Interactive
	// Logger of the façade
	Logger lib.Logger
	// BackendLogger returns the logger given to each backend
	BackendLogger func(kind lib.BackendKind) lib.Logger
}

// Manager is the entry point of every operation on an account.
// Backends are opened on first use and kept until Close.
type Manager struct {
	config   *cfg.Config
	options  Options
	log      lib.Logger
	mu       sync.Mutex
	sessions map[string]*session
}

// session holds the resources of one account. They are never shared with another account.
type session struct {
	name     string
	account  cfg.Account
	provider credential.Provider
	oauth    *oauth.Session
	mu       sync.Mutex
	read     storage.Backend
	send     storage.Backend
	index    storage.Backend
	pipeline *pgp.Pipeline
}

func NewManager(config *cfg.Config, options Options) *Manager {
	if options.Logger == nil {
		options.Logger = &lib.NoLog{}
	}
	if options.BackendLogger == nil {
		options.BackendLogger = func(lib.BackendKind) lib.Logger { return &lib.NoLog{} }
	}
	if options.Store == nil {
		options.Store = credential.NewStore(nil, options.Logger)
	}
	if options.OAuth == nil {
		options.OAuth = oauth.NewManager(options.Store, oauth.Options{Logger: options.Logger})
	}
	return &Manager{
		config:   config,
		options:  options,
		log:      options.Logger,
		sessions: make(map[string]*session),
	}
}

// AccountNames returns the configured accounts in alphabetical order
func (m *Manager) AccountNames() []string {
	return m.config.AccountNames()
}

// session returns the session of the account, preparing its credential on first use
func (m *Manager) session(name string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, found := m.sessions[name]; found {
		return s, nil
	}
	account, err := m.config.Account(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, name)
	}
	s := &session{
		name:    name,
		account: account,
	}
	if account.OAuth2 != nil {
		s.oauth, err = m.options.OAuth.Session(name, account)
		if err != nil {
			return nil, err
		}
		m.options.Store.Register(name, account.Credential, m.config.EffectiveVaultPolicy(account))
		s.provider = s.oauth
	} else {
		m.options.Store.Register(name, account.Credential, m.config.EffectiveVaultPolicy(account))
		if m.options.Prompt != nil && !account.Credential.NoPrompt {
			m.options.Store.SetInteractive(name, m.options.Prompt)
		}
		s.provider = credential.NewPasswordProvider(m.options.Store, name, account.Login())
	}
	m.sessions[name] = s
	return s, nil
}

// readBackend returns the read backend once it's known to support the capability
func (m *Manager) readBackend(ctx context.Context, name string, capability lib.Capability) (*session, storage.Backend, error) {
	s, err := m.session(name)
	if err != nil {
		return nil, nil, err
	}
	backend, err := m.open(ctx, s, &s.read, s.account.Read, capability)
	return s, backend, err
}

func (m *Manager) sendBackend(ctx context.Context, s *session) (storage.Backend, error) {
	if s.account.Send == nil {
		return nil, fmt.Errorf("account %q has no send backend: %w", s.name, lib.Unsupported(lib.BackendKind(s.account.Read.Type), lib.CapSend))
	}
	return m.open(ctx, s, &s.send, *s.account.Send, lib.CapSend)
}

func (m *Manager) indexBackend(ctx context.Context, s *session, capability lib.Capability) (storage.Backend, error) {
	return m.open(ctx, s, &s.index, *s.account.Index, capability)
}

// open checks the capability against the backend type first: an unsupported operation never opens a connection
func (m *Manager) open(ctx context.Context, s *session, slot *storage.Backend, settings cfg.Backend, capability lib.Capability) (storage.Backend, error) {
	if !Capabilities(settings.Type).Has(capability) {
		return nil, lib.Unsupported(lib.BackendKind(settings.Type), capability)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if *slot != nil {
		return *slot, nil
	}
	m.log.Printf("account %q: opening %s backend", s.name, settings.Type)
	backend, err := NewBackend(ctx, s.name, settings, s.provider, m.options.BackendLogger(lib.BackendKind(settings.Type)))
	if err != nil {
		return nil, err
	}
	*slot = backend
	return backend, nil
}

// encryption returns the pipeline of the account, loading the keys on first use
func (m *Manager) encryption(s *session) (*pgp.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipeline != nil {
		return s.pipeline, nil
	}
	pipeline, err := pgp.Load(s.name, s.account, m.options.Store, m.config.EffectiveVaultPolicy(s.account))
	if err != nil {
		return nil, fmt.Errorf("account %q: cannot load pgp keys: %w", s.name, err)
	}
	s.pipeline = pipeline
	return pipeline, nil
}

// Authorize runs the interactive OAuth2 flow of the account again, replacing the stored token
func (m *Manager) Authorize(ctx context.Context, name string) error {
	s, err := m.session(name)
	if err != nil {
		return err
	}
	if s.oauth == nil {
		return fmt.Errorf("account %q is not configured for oauth2", name)
	}
	return s.oauth.Reauthorize(ctx)
}

// Close releases the backends of every account
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, s := range m.sessions {
		s.mu.Lock()
		for _, backend := range []*storage.Backend{&s.read, &s.send, &s.index} {
			if *backend == nil {
				continue
			}
			if err := (*backend).Close(); err != nil {
				errs = append(errs, fmt.Errorf("account %q: %w", s.name, err))
			}
			*backend = nil
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

func folderInfo(backend storage.Backend, folder string) mailbox.Info {
	return mailbox.Info{
		Delimiter: backend.Delimiter(),
		Name:      folder,
	}
}
