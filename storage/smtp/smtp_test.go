package smtp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/mailbox"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

const sampleMessage = "From: me@example.com\r\n" +
	"To: you@example.com\r\n" +
	"Bcc: hidden@example.com\r\n" +
	"Subject: Hello\r\n" +
	"\r\n" +
	"Hello there\r\n"

var validLogin = credential.StaticProvider{
	Mechanism: credential.MechanismPassword,
	Username:  "username",
	Secret:    "password",
}

type received struct {
	from string
	to   []string
	data string
}

type testBackend struct {
	mu       sync.Mutex
	sessions int
	messages []received
}

func (b *testBackend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions++
	return &testSession{backend: b}, nil
}

func (b *testBackend) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions, len(b.messages)
}

type testSession struct {
	backend       *testBackend
	authenticated bool
	from          string
	to            []string
}

func (s *testSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *testSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != "username" || password != "password" {
			return errors.New("invalid username or password")
		}
		s.authenticated = true
		return nil
	}), nil
}

func (s *testSession) Mail(from string, opts *gosmtp.MailOptions) error {
	if !s.authenticated {
		return &gosmtp.SMTPError{Code: 530, EnhancedCode: gosmtp.EnhancedCode{5, 7, 0}, Message: "Authentication required"}
	}
	s.from = from
	return nil
}

func (s *testSession) Rcpt(to string, opts *gosmtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, received{from: s.from, to: s.to, data: string(data)})
	return nil
}

func (s *testSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *testSession) Logout() error {
	return nil
}

type trackingListener struct {
	net.Listener
	mu    sync.Mutex
	conns []net.Conn
}

func (l *trackingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, conn)
		l.mu.Unlock()
	}
	return conn, err
}

func (l *trackingListener) dropConnections() {
	l.mu.Lock()
	for _, conn := range l.conns {
		_ = conn.Close()
	}
	l.conns = nil
	l.mu.Unlock()
	time.Sleep(100 * time.Millisecond)
}

func startServer(t *testing.T) (*testBackend, *trackingListener) {
	t.Helper()
	backend := &testBackend{}
	server := gosmtp.NewServer(backend)
	server.Domain = "localhost"
	server.AllowInsecureAuth = true

	listener, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	tracking := &trackingListener{Listener: listener}
	go func() {
		_ = server.Serve(tracking)
	}()
	t.Cleanup(func() {
		_ = server.Close()
	})
	return backend, tracking
}

type countingProvider struct {
	credential.StaticProvider
	invalidated int
}

func (p *countingProvider) Invalidate() {
	p.invalidated++
}

func newSender(t *testing.T, addr string, provider credential.Provider) *Smtp {
	t.Helper()
	sender, err := New(Config{
		Account:   "test",
		ServerURL: addr,
		NoTLS:     true,
		Timeout:   5 * time.Second,
		Logger:    lib.NewTestLogger(t, "smtp"),
	}, provider)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sender.Close()
	})
	return sender
}

func TestSendMessage(t *testing.T) {
	backend, listener := startServer(t)
	sender := newSender(t, listener.Addr().String(), validLogin)
	assert.Equal(t, lib.SMTP, sender.Kind())
	assert.Equal(t, lib.CapSend, sender.Capabilities())

	recipients, err := mailbox.Recipients([]byte(sampleMessage))
	require.NoError(t, err)
	err = sender.SendMessage(context.Background(), "me@example.com", recipients, []byte(sampleMessage))
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.messages, 1)
	msg := backend.messages[0]
	assert.Equal(t, "me@example.com", msg.from)
	assert.Equal(t, []string{"you@example.com", "hidden@example.com"}, msg.to)
	assert.Contains(t, msg.data, "Subject: Hello")
	assert.Contains(t, msg.data, "Hello there")
	assert.NotContains(t, msg.data, "hidden@example.com")
}

func TestConnectionIsReused(t *testing.T) {
	backend, listener := startServer(t)
	sender := newSender(t, listener.Addr().String(), validLogin)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := sender.SendMessage(ctx, "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
		require.NoError(t, err)
	}
	sessions, messages := backend.counts()
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 3, messages)
}

func TestReconnectWhenConnectionIsGone(t *testing.T) {
	backend, listener := startServer(t)
	sender := newSender(t, listener.Addr().String(), validLogin)
	ctx := context.Background()

	err := sender.SendMessage(ctx, "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
	require.NoError(t, err)

	listener.dropConnections()

	err = sender.SendMessage(ctx, "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
	require.NoError(t, err)
	sessions, messages := backend.counts()
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 2, messages)
}

func TestInvalidAddressesAreRejectedBeforeConnecting(t *testing.T) {
	backend, listener := startServer(t)
	sender := newSender(t, listener.Addr().String(), validLogin)
	ctx := context.Background()

	err := sender.SendMessage(ctx, "me@example.com", []string{"not an address"}, []byte(sampleMessage))
	assert.Error(t, err)
	err = sender.SendMessage(ctx, "me", []string{"you@example.com"}, []byte(sampleMessage))
	assert.Error(t, err)
	err = sender.SendMessage(ctx, "me@example.com", nil, []byte(sampleMessage))
	assert.Error(t, err)

	sessions, _ := backend.counts()
	assert.Equal(t, 0, sessions)
}

func TestAuthenticationRefused(t *testing.T) {
	_, listener := startServer(t)
	provider := &countingProvider{StaticProvider: credential.StaticProvider{
		Mechanism: credential.MechanismPassword,
		Username:  "username",
		Secret:    "wrong",
	}}
	sender := newSender(t, listener.Addr().String(), provider)

	err := sender.SendMessage(context.Background(), "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
	assert.ErrorIs(t, err, lib.ErrAuth)
	assert.Equal(t, 1, provider.invalidated)
}

func TestCancelledSend(t *testing.T) {
	backend, listener := startServer(t)
	sender := newSender(t, listener.Addr().String(), validLogin)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sender.SendMessage(ctx, "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
	assert.ErrorIs(t, err, context.Canceled)

	err = sender.SendMessage(context.Background(), "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
	require.NoError(t, err)
	_, messages := backend.counts()
	assert.Equal(t, 1, messages)
}

func TestCancelledAfterDataIsSent(t *testing.T) {
	backend, listener := startServer(t)
	sender := newSender(t, listener.Addr().String(), validLogin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender.afterData = cancel
	err := sender.SendMessage(ctx, "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
	require.NoError(t, err)
	_, messages := backend.counts()
	assert.Equal(t, 1, messages)

	// the connection was dropped with the context: the next send dials again
	sender.afterData = nil
	err = sender.SendMessage(context.Background(), "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
	require.NoError(t, err)
	sessions, messages := backend.counts()
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 2, messages)
}

func TestServerUnreachable(t *testing.T) {
	listener, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	sender := newSender(t, addr, validLogin)
	err = sender.SendMessage(context.Background(), "me@example.com", []string{"you@example.com"}, []byte(sampleMessage))
	assert.ErrorIs(t, err, lib.ErrBackendUnavailable)
}

func TestReadOperationsAreUnsupported(t *testing.T) {
	sender, err := New(Config{ServerURL: "localhost:25"}, validLogin)
	require.NoError(t, err)

	_, err = sender.ListFolders(context.Background())
	assert.ErrorIs(t, err, lib.ErrUnsupportedOperation)
	_, err = sender.Search(context.Background(), mailbox.ParseQuery("hello"))
	assert.ErrorIs(t, err, lib.ErrUnsupportedOperation)
}
