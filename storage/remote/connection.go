package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	compress "github.com/emersion/go-imap-compress"
	move "github.com/emersion/go-imap-move"
	uidplus "github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
)

// do runs the operation on the connection, opening it first if needed.
// A lost connection is reopened once and the operation replayed once:
// a second failure in a row is returned as a BackendUnavailableError.
// The caller must not hold the lock.
func (i *Imap) do(ctx context.Context, operation func(c *client.Client) error) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	lost, err := i.attempt(ctx, operation)
	if !lost {
		return err
	}
	i.log.Printf("connection lost (%s), reconnecting", err)
	lost, err = i.attempt(ctx, operation)
	if lost {
		return &lib.BackendUnavailableError{Backend: lib.IMAP, Err: err}
	}
	return err
}

// attempt returns whether the connection was lost on the way, and the error from the operation
func (i *Imap) attempt(ctx context.Context, operation func(c *client.Client) error) (bool, error) {
	if i.client == nil {
		if err := i.connect(ctx); err != nil {
			return connectionLost(nil, err) && ctx.Err() == nil, err
		}
	}
	c := i.client
	// a cancelled context tears the connection down: the next operation reconnects
	stop := context.AfterFunc(ctx, func() {
		_ = c.Terminate()
	})
	err := operation(c)
	if !stop() {
		i.client = nil
		return false, ctx.Err()
	}
	if connectionLost(c, err) {
		_ = c.Terminate()
		i.client = nil
		return true, err
	}
	return false, err
}

// connect dials, logs in and enables the extensions. The lock must be held.
func (i *Imap) connect(ctx context.Context) error {
	i.log.Printf("Connecting to server %s...", i.config.ServerURL)
	dialer := &net.Dialer{Timeout: i.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", i.config.ServerURL)
	if err != nil {
		return fmt.Errorf("cannot connect to server %s: %w", i.config.ServerURL, err)
	}
	// the greeting and the login are not cancellable on their own
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if !i.config.NoTLS && !i.config.StartTLS {
		tlsConn := tls.Client(conn, tlsConfig(i.config))
		if err = tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("TLS handshake with %s failed: %w", i.config.ServerURL, err)
		}
		conn = tlsConn
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("cannot connect to server %s: %w", i.config.ServerURL, err)
	}
	c.Timeout = i.config.Timeout
	i.log.Print("Connected")

	if i.config.StartTLS {
		if err = c.StartTLS(tlsConfig(i.config)); err != nil {
			_ = c.Terminate()
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if err = i.login(ctx, c); err != nil {
		_ = c.Terminate()
		return err
	}

	if caps, err := c.Capability(); err == nil {
		i.log.Printf("capabilities: %+v", caps)
	}

	if i.config.Compress {
		compressClient := compress.NewClient(c)
		if supported, _ := compressClient.SupportCompress(compress.Deflate); supported {
			if err = compressClient.Compress(compress.Deflate); err != nil {
				i.log.Printf("cannot enable compression: %s", err)
			}
		}
	}

	i.uidplus = uidplus.NewClient(c)
	if supported, err := i.uidplus.SupportUidPlus(); err != nil || !supported {
		i.log.Print("IMAP server does NOT support UIDPLUS extension")
		i.uidplus = nil
	}
	i.move = move.NewClient(c)
	if supported, err := i.move.SupportMove(); err != nil || !supported {
		i.log.Print("MOVE not supported on server, falling back to copy & delete")
		i.move = nil
	}

	i.client = c
	return nil
}

// login authenticates with the credential from the provider. When the server
// refuses it, the credential is invalidated and the login tried once more.
func (i *Imap) login(ctx context.Context, c *client.Client) error {
	var err error
	for try := 0; try < 2; try++ {
		if try > 0 {
			i.log.Printf("authentication failed (%s), trying with a fresh credential", err)
			i.provider.Invalidate()
		}
		var auth credential.Auth
		auth, err = i.provider.Auth(ctx)
		if err != nil {
			return err
		}
		err = authenticate(c, auth)
		if err == nil {
			i.log.Printf("Logged in as %s", auth.Username)
			return nil
		}
		if connectionLost(c, err) {
			return err
		}
	}
	return &lib.AuthError{Account: i.config.Account, Err: err}
}

func authenticate(c *client.Client, auth credential.Auth) error {
	if auth.Mechanism == credential.MechanismPassword {
		return c.Login(auth.Username, auth.Secret)
	}
	supported, err := c.SupportAuth(string(auth.Mechanism))
	if err != nil {
		return err
	}
	if !supported {
		return fmt.Errorf("server does not support %s authentication", auth.Mechanism)
	}
	return c.Authenticate(auth.SASL())
}
