package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/creativeprojects/courier/credential"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Authorizer shows the authorization URL to the user and collects the authorization code
type Authorizer interface {
	// Prepare starts receiving the callback of one authorization
	Prepare(ctx context.Context) (Callback, error)
}

// Callback is a single pending authorization
type Callback interface {
	// RedirectURL receives the code, an empty string keeps the configured one
	RedirectURL() string
	// Authorize waits for the code and state sent back by the provider
	Authorize(ctx context.Context, authURL string) (code, state string, err error)
}

// Flow is the authorization code flow with PKCE
type Flow struct {
	config     *oauth2.Config
	authorizer Authorizer
	httpClient *http.Client
}

func NewFlow(config *oauth2.Config, authorizer Authorizer, httpClient *http.Client) *Flow {
	return &Flow{
		config:     config,
		authorizer: authorizer,
		httpClient: httpClient,
	}
}

// Run returns the initial token pair
func (f *Flow) Run(ctx context.Context) (*oauth2.Token, error) {
	pending, err := f.authorizer.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	config := *f.config
	if redirectURL := pending.RedirectURL(); redirectURL != "" {
		config.RedirectURL = redirectURL
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	code, returnedState, err := pending.Authorize(ctx, authURL)
	if err != nil {
		return nil, err
	}
	if returnedState != state {
		return nil, errors.New("authorization state mismatch")
	}
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	token, err := config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("cannot exchange authorization code: %w", err)
	}
	return token, nil
}

// Credential makes the flow the interactive source of the credential store
func (f *Flow) Credential(ctx context.Context, key string) (*credential.Credential, error) {
	token, err := f.Run(ctx)
	if err != nil {
		return nil, err
	}
	secret, err := encodeToken(token)
	if err != nil {
		return nil, err
	}
	cred := credential.New(secret, credential.SourceInteractive)
	cred.Expiry = token.Expiry
	return cred, nil
}

type callback struct {
	code  string
	state string
	err   error
}

// LocalServerAuthorizer receives the code on a local HTTP server.
// Each authorization gets its own listener.
type LocalServerAuthorizer struct {
	address string
	open    func(url string) error
}

// NewLocalServerAuthorizer listens on address ("127.0.0.1:0" by default).
// open is called with the authorization URL: print it, or launch a browser.
func NewLocalServerAuthorizer(address string, open func(url string) error) *LocalServerAuthorizer {
	if address == "" {
		address = "127.0.0.1:0"
	}
	return &LocalServerAuthorizer{
		address: address,
		open:    open,
	}
}

func (a *LocalServerAuthorizer) Prepare(ctx context.Context) (Callback, error) {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", a.address)
	if err != nil {
		return nil, fmt.Errorf("cannot listen for the authorization callback: %w", err)
	}
	pending := &localCallback{
		open:        a.open,
		redirectURL: "http://" + listener.Addr().String() + "/callback",
		result:      make(chan callback, 1),
	}
	pending.server = &http.Server{
		Handler:           http.HandlerFunc(pending.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		_ = pending.server.Serve(listener)
	}()
	return pending, nil
}

type localCallback struct {
	open        func(url string) error
	redirectURL string
	server      *http.Server
	result      chan callback
}

func (c *localCallback) RedirectURL() string {
	return c.redirectURL
}

func (c *localCallback) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result := callback{
		code:  query.Get("code"),
		state: query.Get("state"),
	}
	if errorCode := query.Get("error"); errorCode != "" {
		result.err = fmt.Errorf("authorization denied: %s %s", errorCode, query.Get("error_description"))
	} else if result.code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	select {
	case c.result <- result:
	default:
	}
	if result.err != nil {
		http.Error(w, result.err.Error(), http.StatusForbidden)
		return
	}
	_, _ = w.Write([]byte("Authorization complete, you can close this window.\n"))
}

// Authorize stops the server when done: a callback is only used once
func (c *localCallback) Authorize(ctx context.Context, authURL string) (string, string, error) {
	defer func() {
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.server.Shutdown(shutdown)
	}()

	if err := c.open(authURL); err != nil {
		return "", "", err
	}
	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case result := <-c.result:
		return result.code, result.state, result.err
	}
}
