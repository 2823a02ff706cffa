package credential

import (
	"fmt"
	"time"
)

type Source int

const (
	SourceMemory Source = iota
	SourceInline
	SourceFile
	SourceVault
	SourceInteractive
)

func (s Source) String() string {
	switch s {
	case SourceInline:
		return "inline"
	case SourceFile:
		return "file"
	case SourceVault:
		return "vault"
	case SourceInteractive:
		return "interactive"
	default:
		return "memory"
	}
}

// Credential is a resolved secret with its provenance.
// The secret never appears in any formatted output.
type Credential struct {
	secret string
	Source Source
	// Expiry is zero when the secret does not expire
	Expiry time.Time
}

func New(secret string, source Source) *Credential {
	return &Credential{
		secret: secret,
		Source: source,
	}
}

func (c *Credential) Secret() string {
	return c.secret
}

func (c Credential) String() string {
	return fmt.Sprintf("credential(source=%s, secret=<redacted>)", c.Source)
}

func (c Credential) GoString() string {
	return c.String()
}

// Format makes sure no verb (%v, %+v, %#v, %s, %q...) prints the secret
func (c Credential) Format(f fmt.State, verb rune) {
	_, _ = f.Write([]byte(c.String()))
}
