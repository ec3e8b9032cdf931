// Package transport narrows the QUIC transport down to the capability
// the HTTP/3 core actually needs: an explicit transport handle passed
// into every API that needs it, rather than a global QUIC library
// dependency. The http3 package never imports quic-go directly; it only
// ever sees these interfaces, realized in production by the adapter in
// quicconn.go and in tests by transport/faketransport.
package transport

import (
	"context"
	"crypto/tls"
	"net"
)

// Perspective distinguishes which side of a connection a driver is
// operating as; HTTP/3 behaviors such as peer-bidi-stream handling
// differ by perspective.
type Perspective int

const (
	PerspectiveClient Perspective = iota
	PerspectiveServer
)

func (p Perspective) String() string {
	if p == PerspectiveServer {
		return "server"
	}
	return "client"
}

// ConnectionState is the subset of the QUIC/TLS handshake outcome the
// H3 layer needs: the negotiated ALPN, the client's requested server
// name (for the Listener's NEW_CONNECTION event), and whether 0-RTT/
// datagrams are usable.
type ConnectionState struct {
	TLS               tls.ConnectionState
	ServerName        string
	SupportsDatagrams bool
	Used0RTT          bool
}

// SendStream is a QUIC unidirectional or bidirectional stream's write
// half.
type SendStream interface {
	StreamID() int64
	Write(p []byte) (int, error)
	Close() error
	CancelWrite(errorCode uint64)
}

// ReceiveStream is a QUIC unidirectional or bidirectional stream's read
// half.
type ReceiveStream interface {
	StreamID() int64
	Read(p []byte) (int, error)
	CancelRead(errorCode uint64)
}

// Stream is a bidirectional QUIC stream.
type Stream interface {
	SendStream
	ReceiveStream
}

// Conn is the capability surface http3.connection drives: opening and
// accepting streams, and observing handshake/shutdown lifecycle events.
// It deliberately has no notion of HTTP/3 framing or QPACK.
type Conn interface {
	Perspective() Perspective

	OpenUniStream() (SendStream, error)
	OpenUniStreamSync(ctx context.Context) (SendStream, error)
	OpenStream() (Stream, error)
	OpenStreamSync(ctx context.Context) (Stream, error)
	AcceptStream(ctx context.Context) (Stream, error)
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)

	// HandshakeComplete is done once the QUIC handshake (including
	// 0-RTT acceptance/rejection) has resolved.
	HandshakeComplete() context.Context
	ConnectionState() ConnectionState

	CloseWithError(errorCode uint64, reason string) error
	// Context is done once the connection has reached shutdown-complete.
	Context() context.Context
}

// Listener accepts inbound QUIC connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Dialer opens an outbound QUIC connection, with 0-RTT allowed when the
// peer's cached transport parameters permit it.
type Dialer func(ctx context.Context, network, addr string, tlsConf *tls.Config, config *Config) (Conn, error)

// Config mirrors the handful of QUIC-level knobs the H3 layer cares
// about; everything else (congestion control, loss recovery, packet
// scheduling) is out of scope for this layer and lives entirely inside
// the concrete quic-go adapter.
type Config struct {
	EnableDatagrams bool
	KeepAlivePeriod int // seconds; 0 disables
}
