package oauth

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
)

type Options struct {
	// Margin before expiry when the access token is refreshed (one minute by default)
	Margin time.Duration
	// Clock returns the current time (time.Now by default)
	Clock func() time.Time
	// HTTPClient talks to the provider (http.DefaultClient by default)
	HTTPClient *http.Client
	// Authorizer runs the interactive part of the authorization flow
	Authorizer Authorizer
	Logger     lib.Logger
}

// Manager owns one session per account. Sessions are never shared between accounts.
type Manager struct {
	store    *credential.Store
	options  Options
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store *credential.Store, options Options) *Manager {
	if options.Margin <= 0 {
		options.Margin = DefaultMargin
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	if options.Logger == nil {
		options.Logger = &lib.NoLog{}
	}
	return &Manager{
		store:    store,
		options:  options,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session of the account, creating it on first use
func (m *Manager) Session(name string, account cfg.Account) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, found := m.sessions[name]; found {
		return session, nil
	}
	if account.OAuth2 == nil {
		return nil, fmt.Errorf("account %q is not configured for oauth2", name)
	}
	config, err := NewConfig(*account.OAuth2)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", name, err)
	}
	mechanism := credential.MechanismXOAuth2
	if account.OAuth2.Mechanism == "oauthbearer" {
		mechanism = credential.MechanismOAuthBearer
	}
	session := &Session{
		account:    name,
		username:   account.Login(),
		mechanism:  mechanism,
		config:     config,
		store:      m.store,
		httpClient: m.options.HTTPClient,
		margin:     m.options.Margin,
		now:        m.options.Clock,
		log:        m.options.Logger,
		state:      StateUnauthenticated,
	}
	if m.options.Authorizer != nil {
		session.flow = NewFlow(config, m.options.Authorizer, m.options.HTTPClient)
		m.store.SetInteractive(name, session.flow)
	}
	m.sessions[name] = session
	return session, nil
}
