package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptSource asks for the secret on the terminal
type PromptSource struct {
	input  *os.File
	output io.Writer
}

func NewPromptSource() *PromptSource {
	return &PromptSource{
		input:  os.Stdin,
		output: os.Stderr,
	}
}

func (p *PromptSource) Credential(ctx context.Context, key string) (*Credential, error) {
	fd := int(p.input.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("not a terminal, cannot ask for a secret")
	}
	fmt.Fprintf(p.output, "Secret for %s: ", key)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.output)
	if err != nil {
		return nil, fmt.Errorf("cannot read secret: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	value := strings.TrimSpace(string(secret))
	if value == "" {
		return nil, errors.New("empty secret")
	}
	return New(value, SourceInteractive), nil
}
