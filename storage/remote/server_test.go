package remote

import (
	"net"
	"sync"
	"testing"
	"time"

	compress "github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

// trackingListener keeps the accepted connections so a test can drop them
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

type testServer struct {
	addr     string
	listener *trackingListener
	server   *server.Server
	wg       sync.WaitGroup
	once     sync.Once
}

// startServer runs an in-memory IMAP server with the user "username" and password "password"
func startServer(t *testing.T) *testServer {
	t.Helper()

	// Create a memory backend
	be := memory.New()

	// Create a new server
	srv := server.New(be)
	// Since we will use this server for testing only, we can allow plain text
	// authentication over non-encrypted connections
	srv.AllowInsecureAuth = true
	srv.Enable(compress.NewExtension())

	listener, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	s := &testServer{
		addr:     listener.Addr().String(),
		listener: &trackingListener{Listener: listener},
		server:   srv,
	}
	t.Logf("Starting IMAP server at %s", s.addr)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = srv.Serve(s.listener)
	}()
	t.Cleanup(s.stop)

	time.Sleep(100 * time.Millisecond)
	return s
}

// dropConnections closes the server side of every open connection
func (s *testServer) dropConnections() {
	s.listener.mu.Lock()
	for _, conn := range s.listener.conns {
		_ = conn.Close()
	}
	s.listener.conns = nil
	s.listener.mu.Unlock()
	time.Sleep(100 * time.Millisecond)
}

func (s *testServer) stop() {
	s.once.Do(func() {
		_ = s.server.Close()
		s.wg.Wait()
	})
}
