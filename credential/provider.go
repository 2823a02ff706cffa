package credential

import (
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
)

type Mechanism string

const (
	MechanismPassword    Mechanism = "PLAIN"
	MechanismXOAuth2     Mechanism = "XOAUTH2"
	MechanismOAuthBearer Mechanism = "OAUTHBEARER"
)

// Auth is what a backend needs to log in
type Auth struct {
	Mechanism Mechanism
	Username  string
	Secret    string
}

func (a Auth) String() string {
	return fmt.Sprintf("auth(%s, %s)", a.Mechanism, a.Username)
}

func (a Auth) GoString() string {
	return a.String()
}

// SASL returns the client for AUTHENTICATE (IMAP) or AUTH (SMTP)
func (a Auth) SASL() sasl.Client {
	switch a.Mechanism {
	case MechanismXOAuth2:
		return NewXOAuth2Client(a.Username, a.Secret)
	case MechanismOAuthBearer:
		return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: a.Username,
			Token:    a.Secret,
		})
	default:
		return sasl.NewPlainClient("", a.Username, a.Secret)
	}
}

// Provider gives the authentication of an account to its backends.
// Invalidate is called when a server rejects the credential.
type Provider interface {
	Auth(ctx context.Context) (Auth, error)
	Invalidate()
}

// PasswordProvider serves the secret resolved by the store as a password
type PasswordProvider struct {
	store    *Store
	key      string
	username string
}

func NewPasswordProvider(store *Store, key, username string) *PasswordProvider {
	return &PasswordProvider{
		store:    store,
		key:      key,
		username: username,
	}
}

func (p *PasswordProvider) Auth(ctx context.Context) (Auth, error) {
	credential, err := p.store.Resolve(ctx, p.key)
	if err != nil {
		return Auth{}, err
	}
	return Auth{
		Mechanism: MechanismPassword,
		Username:  p.username,
		Secret:    credential.Secret(),
	}, nil
}

func (p *PasswordProvider) Invalidate() {
	p.store.Invalidate(p.key)
}

// StaticProvider always returns the same authentication
type StaticProvider Auth

func (p StaticProvider) Auth(ctx context.Context) (Auth, error) {
	return Auth(p), nil
}

func (p StaticProvider) Invalidate() {}
