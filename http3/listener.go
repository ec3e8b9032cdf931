package http3

import (
	"context"
	"net"
	"sync"

	"github.com/hnakamur/h3quic/transport"
)

// Listener accepts inbound QUIC connections, applies a Configuration to
// each, and drives it to a Connection, surfacing the NEW_CONNECTION
// event. It is a thin wrapper over transport.Listener: one HTTP/3
// connection driver is started per accepted QUIC connection.
type Listener struct {
	tl     transport.Listener
	cfg    *Configuration
	events ConnectionEvents

	// OnNewConnection is called once the QUIC+TLS handshake on an
	// accepted connection has completed; the server name comes from the
	// TLS ClientHello via transport.ConnectionState.ServerName.
	OnNewConnection func(serverName string, c *Connection)

	// OnShutdownComplete is called once Close has stopped accepting new
	// connections and every connection driver started by this Listener
	// has torn down.
	OnShutdownComplete func(l *Listener)

	wg sync.WaitGroup
}

// Listen binds addr and returns a Listener ready to Serve.
func (a *API) Listen(addr string, cfg *Configuration) (*Listener, error) {
	tlsConf, err := cfg.Credential.tlsConfig(transport.PerspectiveServer)
	if err != nil {
		return nil, err
	}
	tlsConf.NextProtos = []string{versionALPN}

	tl, err := transport.Listen(addr, tlsConf, &transport.Config{})
	if err != nil {
		return nil, err
	}
	return &Listener{tl: tl, cfg: cfg}, nil
}

// Addr is the bound local address.
func (l *Listener) Addr() net.Addr { return l.tl.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.tl.Close() }

// Serve loops Accept, starting one HTTP/3 connection driver per
// inbound QUIC connection, until ctx is done or Accept errors. Once
// Serve returns it waits for every connection it started to finish
// tearing down before firing OnShutdownComplete.
func (l *Listener) Serve(ctx context.Context, events ConnectionEvents) error {
	for {
		tc, err := l.tl.Accept(ctx)
		if err != nil {
			l.wg.Wait()
			if l.OnShutdownComplete != nil {
				l.OnShutdownComplete(l)
			}
			return err
		}
		l.wg.Add(1)
		go l.handleAccepted(tc, events)
	}
}

func (l *Listener) handleAccepted(tc transport.Conn, events ConnectionEvents) {
	defer l.wg.Done()

	c, err := newConn(tc, l.cfg.settingsOrDefault(), events, l.cfg.loggerOrDefault())
	if err != nil {
		tc.CloseWithError(uint64(errorInternalError), err.Error())
		return
	}

	select {
	case <-tc.HandshakeComplete().Done():
	case <-tc.Context().Done():
		return
	}

	conn := &Connection{c: c}
	if events.OnConnected != nil {
		events.OnConnected(conn)
	}
	if l.OnNewConnection != nil {
		l.OnNewConnection(tc.ConnectionState().ServerName, conn)
	}

	<-tc.Context().Done()
}
