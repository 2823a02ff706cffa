package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/limitio"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/creativeprojects/courier/storage"
	"github.com/creativeprojects/courier/storage/base"
	gosmtp "github.com/emersion/go-smtp"
)

// Capabilities supported by the backend
const Capabilities = lib.CapSend

type Config struct {
	// Account name, used in error messages
	Account             string
	ServerURL           string
	NoTLS               bool
	StartTLS            bool
	SkipTLSVerification bool
	// RateLimit of the DATA transfer in bytes per second
	RateLimit int
	// Timeout of each command
	Timeout time.Duration
	// LocalName sent with EHLO, "localhost" by default
	LocalName string
	Logger    lib.Logger
}

// Smtp submits messages. The connection is kept between two sends
// as long as the server answers NOOP, otherwise a new one is opened.
type Smtp struct {
	base.Unsupported
	config   Config
	provider credential.Provider
	log      lib.Logger
	mu       sync.Mutex
	client   *gosmtp.Client

	// afterData runs once the server accepted a message
	afterData func()
}

// verify interface
var _ storage.Backend = &Smtp{}

// New doesn't connect: the connection is opened on the first send
func New(config Config, provider credential.Provider) (*Smtp, error) {
	if config.ServerURL == "" {
		return nil, errors.New("missing server URL")
	}
	if config.Logger == nil {
		config.Logger = &lib.NoLog{}
	}
	return &Smtp{
		Unsupported: base.Unsupported{Backend: lib.SMTP},
		config:      config,
		provider:    provider,
		log:         config.Logger,
	}, nil
}

func (s *Smtp) Kind() lib.BackendKind {
	return lib.SMTP
}

func (s *Smtp) Capabilities() lib.Capability {
	return Capabilities
}

// Delimiter is meaningless for a transport
func (s *Smtp) Delimiter() string {
	return ""
}

func (s *Smtp) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Quit()
	if err != nil {
		_ = s.client.Close()
	}
	s.client = nil
	return nil
}

// SendMessage submits the message to every recipient. The Bcc field is removed from the content.
// A failed send is never retried.
func (s *Smtp) SendMessage(ctx context.Context, from string, recipients []string, body []byte) error {
	if err := validateAddresses(from, recipients); err != nil {
		return err
	}
	body, err := mailbox.RemoveHeader(body, "Bcc")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = ctx.Err(); err != nil {
		return err
	}
	c, err := s.ready(ctx)
	if err != nil {
		return err
	}
	// a cancelled context closes the connection: the next send dials again
	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	err = s.send(ctx, c, from, recipients, body)
	if err == nil && s.afterData != nil {
		s.afterData()
	}
	if !stop() {
		// the connection is closed
		s.client = nil
		if err != nil {
			return ctx.Err()
		}
		s.log.Printf("message accepted by the server before the cancellation, from %s to %d recipient(s)", from, len(recipients))
		return nil
	}
	if err != nil {
		// the state of the session is unknown: start afresh next time
		_ = c.Close()
		s.client = nil
		if isNetworkError(err) {
			return &lib.BackendUnavailableError{Backend: lib.SMTP, Err: err}
		}
		return err
	}
	s.log.Printf("message sent from %s to %d recipient(s), %d bytes", from, len(recipients), len(body))
	return nil
}

func (s *Smtp) send(ctx context.Context, c *gosmtp.Client, from string, recipients []string, body []byte) error {
	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("sender %s refused: %w", from, err)
	}
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			return fmt.Errorf("recipient %s refused: %w", recipient, err)
		}
	}
	writer, err := c.Data()
	if err != nil {
		return err
	}
	_, err = io.Copy(limitio.LimitWriter(ctx, writer, s.config.RateLimit), bytes.NewReader(body))
	if err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// ready returns the current connection if it's still alive, or a new one. The lock must be held.
func (s *Smtp) ready(ctx context.Context) (*gosmtp.Client, error) {
	if s.client != nil {
		if err := s.client.Noop(); err == nil {
			return s.client, nil
		}
		s.log.Print("connection is gone, reconnecting")
		_ = s.client.Close()
		s.client = nil
	}
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.client = c
	return c, nil
}

func (s *Smtp) connect(ctx context.Context) (*gosmtp.Client, error) {
	s.log.Printf("Connecting to server %s...", s.config.ServerURL)
	dialer := &net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.config.ServerURL)
	if err != nil {
		return nil, &lib.BackendUnavailableError{Backend: lib.SMTP, Err: err}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if !s.config.NoTLS && !s.config.StartTLS {
		tlsConn := tls.Client(conn, s.tlsConfig())
		if err = tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &lib.BackendUnavailableError{Backend: lib.SMTP, Err: fmt.Errorf("TLS handshake failed: %w", err)}
		}
		conn = tlsConn
	}

	c := gosmtp.NewClient(conn)
	if s.config.Timeout > 0 {
		c.CommandTimeout = s.config.Timeout
	}
	localName := s.config.LocalName
	if localName == "" {
		localName = "localhost"
	}
	if err = c.Hello(localName); err != nil {
		c.Close()
		return nil, &lib.BackendUnavailableError{Backend: lib.SMTP, Err: err}
	}
	if s.config.StartTLS {
		if err = c.StartTLS(s.tlsConfig()); err != nil {
			c.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	if err = s.login(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// login authenticates when the server offers AUTH. A refused credential is invalidated:
// the next send resolves a fresh one.
func (s *Smtp) login(ctx context.Context, c *gosmtp.Client) error {
	if s.provider == nil {
		return nil
	}
	if supported, _ := c.Extension("AUTH"); !supported {
		s.log.Print("server doesn't offer authentication, sending anonymously")
		return nil
	}
	auth, err := s.provider.Auth(ctx)
	if err != nil {
		return err
	}
	if err = c.Auth(auth.SASL()); err != nil {
		if isNetworkError(err) {
			return &lib.BackendUnavailableError{Backend: lib.SMTP, Err: err}
		}
		s.provider.Invalidate()
		return &lib.AuthError{Account: s.config.Account, Err: err}
	}
	s.log.Printf("Logged in as %s", auth.Username)
	return nil
}

func (s *Smtp) tlsConfig() *tls.Config {
	host, _, err := net.SplitHostPort(s.config.ServerURL)
	if err != nil {
		host = s.config.ServerURL
	}
	return &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: s.config.SkipTLSVerification,
	}
}

func validateAddresses(from string, recipients []string) error {
	if err := checkmail.ValidateFormat(from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if len(recipients) == 0 {
		return errors.New("no recipient")
	}
	for _, recipient := range recipients {
		if err := checkmail.ValidateFormat(recipient); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", recipient, err)
		}
	}
	return nil
}

// isNetworkError is true for anything but a reply from the server
func isNetworkError(err error) bool {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
