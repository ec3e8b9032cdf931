package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// quicConn adapts a quic.Connection (quic-go's connection interface) to
// the transport.Conn interface.
type quicConn struct {
	c           quic.Connection
	perspective Perspective
}

// WrapConn exposes an already-established quic-go connection as a
// transport.Conn. perspective must match how the connection was
// obtained (Dial vs Accept) since quic-go's Connection type doesn't
// expose it directly.
func WrapConn(c quic.Connection, perspective Perspective) Conn {
	return &quicConn{c: c, perspective: perspective}
}

func (q *quicConn) Perspective() Perspective { return q.perspective }

func (q *quicConn) OpenUniStream() (SendStream, error) {
	s, err := q.c.OpenUniStream()
	if err != nil {
		return nil, err
	}
	return sendStream{s}, nil
}

func (q *quicConn) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	s, err := q.c.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return sendStream{s}, nil
}

func (q *quicConn) OpenStream() (Stream, error) {
	s, err := q.c.OpenStream()
	if err != nil {
		return nil, err
	}
	return stream{s}, nil
}

func (q *quicConn) OpenStreamSync(ctx context.Context) (Stream, error) {
	s, err := q.c.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return stream{s}, nil
}

func (q *quicConn) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := q.c.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return stream{s}, nil
}

func (q *quicConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	s, err := q.c.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return receiveStream{s}, nil
}

func (q *quicConn) HandshakeComplete() context.Context {
	return q.c.HandshakeComplete()
}

func (q *quicConn) ConnectionState() ConnectionState {
	st := q.c.ConnectionState()
	return ConnectionState{
		TLS:               st.TLS,
		ServerName:        st.TLS.ServerName,
		SupportsDatagrams: st.SupportsDatagrams,
		Used0RTT:          st.Used0RTT,
	}
}

func (q *quicConn) CloseWithError(errorCode uint64, reason string) error {
	return q.c.CloseWithError(quic.ApplicationErrorCode(errorCode), reason)
}

func (q *quicConn) Context() context.Context {
	return q.c.Context()
}

type sendStream struct{ quic.SendStream }

func (s sendStream) StreamID() int64          { return int64(s.SendStream.StreamID()) }
func (s sendStream) CancelWrite(code uint64)  { s.SendStream.CancelWrite(quic.StreamErrorCode(code)) }

type receiveStream struct{ quic.ReceiveStream }

func (s receiveStream) StreamID() int64         { return int64(s.ReceiveStream.StreamID()) }
func (s receiveStream) CancelRead(code uint64)  { s.ReceiveStream.CancelRead(quic.StreamErrorCode(code)) }

type stream struct{ quic.Stream }

func (s stream) StreamID() int64         { return int64(s.Stream.StreamID()) }
func (s stream) CancelWrite(code uint64) { s.Stream.CancelWrite(quic.StreamErrorCode(code)) }
func (s stream) CancelRead(code uint64)  { s.Stream.CancelRead(quic.StreamErrorCode(code)) }

// quicListener adapts *quic.EarlyListener to transport.Listener.
type quicListener struct {
	l *quic.EarlyListener
}

// Listen starts a QUIC listener on addr using tlsConf (which must carry
// the negotiated ALPN token, e.g. "h3", set by the caller) and cfg.
func Listen(addr string, tlsConf *tls.Config, cfg *Config) (Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	qCfg := toQuicConfig(cfg)
	ln, err := quic.ListenEarly(conn, tlsConf, qCfg)
	if err != nil {
		return nil, err
	}
	return &quicListener{l: ln}, nil
}

func (q *quicListener) Accept(ctx context.Context) (Conn, error) {
	c, err := q.l.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return WrapConn(c, PerspectiveServer), nil
}

func (q *quicListener) Addr() net.Addr { return q.l.Addr() }
func (q *quicListener) Close() error   { return q.l.Close() }

// Dial opens a client connection, allowing 0-RTT resumption when the
// peer has cached transport parameters for it.
func Dial(ctx context.Context, network, addr string, tlsConf *tls.Config, cfg *Config) (Conn, error) {
	qCfg := toQuicConfig(cfg)
	c, err := quic.DialAddrEarly(ctx, addr, tlsConf, qCfg)
	if err != nil {
		return nil, err
	}
	return WrapConn(c, PerspectiveClient), nil
}

// StreamErrorCode unwraps err as a *quic.StreamError, reporting the
// application error code the peer reset or stopped the stream with.
// It reports ok=false for any other error (including io.EOF and a
// locally-initiated cancellation).
func StreamErrorCode(err error) (code uint64, ok bool) {
	var se *quic.StreamError
	if !errors.As(err, &se) {
		return 0, false
	}
	return uint64(se.ErrorCode), true
}

func toQuicConfig(cfg *Config) *quic.Config {
	if cfg == nil {
		return &quic.Config{EnableDatagrams: false}
	}
	return &quic.Config{
		EnableDatagrams: cfg.EnableDatagrams,
		KeepAlivePeriod: time.Duration(cfg.KeepAlivePeriod) * time.Second,
	}
}
