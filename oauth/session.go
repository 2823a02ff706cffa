package oauth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const DefaultMargin = time.Minute

// Session owns the token pair of one account.
// It implements credential.Provider, so a backend never sees an expired access token.
type Session struct {
	account    string
	username   string
	mechanism  credential.Mechanism
	config     *oauth2.Config
	store      *credential.Store
	flow       *Flow
	httpClient *http.Client
	margin     time.Duration
	now        func() time.Time
	log        lib.Logger
	group      singleflight.Group
	mu         sync.Mutex
	state      State
	token      *oauth2.Token
}

var _ credential.Provider = &Session{}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Auth returns the access token, refreshing it first when it expires within the safety margin
func (s *Session) Auth(ctx context.Context) (credential.Auth, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return credential.Auth{}, err
	}
	return credential.Auth{
		Mechanism: s.mechanism,
		Username:  s.username,
		Secret:    token.AccessToken,
	}, nil
}

// Token returns a valid token pair
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	if s.state == StateValid && s.expiring(s.token) {
		s.log.Printf("access token of %q expires at %s", s.account, s.token.Expiry.Format(time.RFC3339))
		s.state = StateExpiring
	}
	state := s.state
	token := s.token
	s.mu.Unlock()

	switch state {
	case StateValid:
		return token, nil
	case StateRevoked:
		return nil, &lib.AuthError{Account: s.account, Revoked: true}
	default:
		return s.obtain(ctx)
	}
}

// Invalidate is called when a server rejects the access token: the next use refreshes it once
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateValid {
		s.state = StateExpiring
	}
}

// Reauthorize runs the interactive flow, even when a token pair is stored.
// This is the only way out of the revoked state.
func (s *Session) Reauthorize(ctx context.Context) error {
	if s.flow == nil {
		return &lib.AuthError{Account: s.account, Err: errors.New("no interactive authorization available")}
	}
	s.setState(StateAuthenticating, nil)
	token, err := s.flow.Run(ctx)
	if err != nil {
		s.setState(StateUnauthenticated, nil)
		return &lib.AuthError{Account: s.account, Err: err}
	}
	s.persist(ctx, token)
	s.setState(StateValid, token)
	return nil
}

// obtain authenticates or refreshes. Concurrent callers share the same request.
func (s *Session) obtain(ctx context.Context) (*oauth2.Token, error) {
	result, err, _ := s.group.Do(s.account, func() (any, error) {
		return s.obtainOnce(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*oauth2.Token), nil
}

func (s *Session) obtainOnce(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	state := s.state
	token := s.token
	s.mu.Unlock()

	switch state {
	case StateValid:
		if !s.expiring(token) {
			return token, nil
		}
	case StateRevoked:
		return nil, &lib.AuthError{Account: s.account, Revoked: true}
	case StateUnauthenticated, StateAuthenticating:
		var err error
		token, err = s.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		if token.AccessToken != "" && !s.expiring(token) {
			s.setState(StateValid, token)
			return token, nil
		}
		state = StateUnauthenticated
	}
	return s.refresh(ctx, state, token)
}

// authenticate loads the stored token pair, or runs the interactive flow registered in the store
func (s *Session) authenticate(ctx context.Context) (*oauth2.Token, error) {
	s.setState(StateAuthenticating, nil)
	stored, err := s.store.Resolve(ctx, s.account)
	if err != nil {
		s.setState(StateUnauthenticated, nil)
		return nil, err
	}
	token, err := decodeToken(stored.Secret())
	if err != nil {
		s.setState(StateUnauthenticated, nil)
		return nil, &lib.AuthError{Account: s.account, Err: err}
	}
	if stored.Source == credential.SourceInteractive {
		s.persist(ctx, token)
	}
	return token, nil
}

// refresh exchanges the refresh token. A rejected refresh token revokes the session;
// any other failure leaves the state as it was.
func (s *Session) refresh(ctx context.Context, previous State, token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || token.RefreshToken == "" {
		s.store.Invalidate(s.account)
		s.setState(StateUnauthenticated, nil)
		return nil, &lib.AuthError{Account: s.account, Err: errors.New("no refresh token available")}
	}
	s.mu.Lock()
	s.state = StateRefreshing
	s.mu.Unlock()

	s.log.Printf("refreshing access token of %q", s.account)
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	refreshed, err := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	if err != nil {
		if isRevoked(err) {
			s.log.Printf("refresh token of %q was rejected", s.account)
			s.store.Invalidate(s.account)
			s.setState(StateRevoked, nil)
			return nil, &lib.AuthError{Account: s.account, Revoked: true, Err: err}
		}
		s.mu.Lock()
		s.state = previous
		s.mu.Unlock()
		return nil, &lib.AuthError{Account: s.account, Err: err}
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	s.persist(ctx, refreshed)
	s.setState(StateValid, refreshed)
	return refreshed, nil
}

// persist saves the token pair; the session stays valid in memory when saving fails
func (s *Session) persist(ctx context.Context, token *oauth2.Token) {
	secret, err := encodeToken(token)
	if err == nil {
		err = s.store.Persist(ctx, s.account, credential.New(secret, credential.SourceMemory))
	}
	if err != nil {
		s.log.Printf("cannot save token of %q: %s", s.account, err)
	}
}

func (s *Session) setState(state State, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.token = token
}

func (s *Session) expiring(token *oauth2.Token) bool {
	if token == nil {
		return true
	}
	if token.Expiry.IsZero() {
		return false
	}
	return token.Expiry.Sub(s.now()) < s.margin
}

func isRevoked(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	switch retrieveErr.ErrorCode {
	case "invalid_grant", "unauthorized_client", "invalid_client":
		return true
	}
	if retrieveErr.Response != nil {
		switch retrieveErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return true
		}
	}
	return false
}
