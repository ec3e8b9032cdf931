package http3

import (
	"context"
	"sync"

	"github.com/hnakamur/h3quic/internal/httplog"
	"github.com/hnakamur/h3quic/qpack"
	"github.com/hnakamur/h3quic/transport"
	"github.com/hnakamur/h3quic/varint"
)

// Connection is the application-facing handle for one HTTP/3 connection,
// wrapping the internal *conn state machine. Applications never see the
// internal type directly, matching the msh3 MsH3Connection/MsH3Request
// split this public surface is modeled on.
type Connection struct {
	c *conn
}

// Perspective reports whether this connection was dialed or accepted.
func (c *Connection) Perspective() transport.Perspective { return c.c.transportConn.Perspective() }

// OpenRequest allocates a new outgoing request (client-only; the peer
// must accept bidirectional streams initiated by this side).
func (c *Connection) OpenRequest(ctx context.Context, events RequestEvents) (*Request, error) {
	return c.c.openRequest(ctx, events)
}

// CloseWithError tears the connection down with an application error
// code and human-readable reason (RFC 9114 §5.2 application-level
// connection shutdown).
func (c *Connection) CloseWithError(code uint64, reason string) error {
	return c.c.transportConn.CloseWithError(code, reason)
}

// ShutdownComplete resolves once the connection has fully torn down.
func (c *Connection) ShutdownComplete() context.Context { return c.c.transportConn.Context() }

// conn is one connection's internal HTTP/3 state: QPACK engines, peer
// settings, and the live request map, all guarded by connMu — a single
// connection-scoped critical section rather than several narrow
// per-field mutexes.
type conn struct {
	transportConn transport.Conn
	log           *httplog.Logger

	events ConnectionEvents

	settings Settings

	connMu sync.Mutex

	peerSettings    Settings
	peerSettingsSet bool
	peerStreamsSeen [4]bool // indexed by StreamType < 4

	qencoder *qpack.Encoder
	qdecoder *qpack.Decoder

	encoderStream transport.SendStream
	decoderStream transport.SendStream

	requests map[uint64]*Request

	closed    bool
	closeErr  error
	closeOnce sync.Once

	shutdownCompleteOnce sync.Once
}

// newConn drives the handshake-independent startup sequence common to
// both client and server connections: opening the three local
// unidirectional streams, sending local SETTINGS, and spawning the
// accept loops. The accept loops start first, so the peer's streams are
// already being read while this side's preamble writes are in flight.
// A zero-valued settings defaults to DefaultSettings.
func newConn(tc transport.Conn, settings Settings, events ConnectionEvents, log *httplog.Logger) (*conn, error) {
	if settings.QPACKMaxTableCapacity == 0 && settings.MaxFieldSectionSize == 0 {
		settings = DefaultSettings()
	}
	c := &conn{
		transportConn: tc,
		log:           log,
		events:        events,
		settings:      settings,
		qencoder:      qpack.NewEncoder(int(settings.QPACKMaxTableCapacity), int(settings.QPACKBlockedStreams)),
		qdecoder:      qpack.NewDecoder(int(settings.QPACKBlockedStreams)),
		requests:      make(map[uint64]*Request),
	}

	go c.acceptUniStreams()
	go c.acceptRequestStreams()
	go c.watchShutdownComplete()

	control, err := tc.OpenUniStream()
	if err != nil {
		return nil, err
	}
	preamble := varint.Append(nil, uint64(StreamTypeControl))
	preamble = settings.appendFrame(preamble)
	if _, err := control.Write(preamble); err != nil {
		return nil, err
	}

	enc, err := tc.OpenUniStream()
	if err != nil {
		return nil, err
	}
	c.encoderStream = enc
	if _, err := enc.Write(varint.Append(nil, uint64(StreamTypeQPACKEncoder))); err != nil {
		return nil, err
	}

	dec, err := tc.OpenUniStream()
	if err != nil {
		return nil, err
	}
	c.decoderStream = dec
	if _, err := dec.Write(varint.Append(nil, uint64(StreamTypeQPACKDecoder))); err != nil {
		return nil, err
	}

	return c, nil
}

// watchShutdownComplete fires ConnectionEvents.OnShutdownComplete once
// the underlying transport connection reaches shutdown-complete,
// however that came about: conn.fail's error path, or the application's
// own Connection.CloseWithError.
func (c *conn) watchShutdownComplete() {
	<-c.transportConn.Context().Done()
	c.shutdownCompleteOnce.Do(func() {
		c.connMu.Lock()
		events := c.events
		c.connMu.Unlock()
		if events.OnShutdownComplete != nil {
			events.OnShutdownComplete(&Connection{c: c})
		}
	})
}

func (c *conn) acceptUniStreams() {
	for {
		s, err := c.transportConn.AcceptUniStream(context.Background())
		if err != nil {
			return
		}
		go c.handleIncomingUniStream(s)
	}
}

func (c *conn) acceptRequestStreams() {
	for {
		s, err := c.transportConn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		if c.transportConn.Perspective() == transport.PerspectiveClient {
			// RFC 9114 §6.1: request streams are client-initiated only;
			// a server that opens one is a connection error.
			c.fail(protoErr(errorStreamCreationError, "server opened a bidirectional stream"))
			s.CancelRead(uint64(errorStreamCreationError))
			s.CancelWrite(uint64(errorStreamCreationError))
			return
		}
		r := c.newPeerRequest(s)
		c.connMu.Lock()
		events := c.events
		c.connMu.Unlock()
		if events.OnPeerStreamStarted != nil {
			events.OnPeerStreamStarted(&Connection{c: c}, r)
		}
		go r.receiveLoop()
	}
}

// claimPeerStream enforces the "at most one of each unidirectional
// stream type" invariant (RFC 9114 §6.2.1).
func (c *conn) claimPeerStream(t StreamType) bool {
	if t >= 4 {
		return true
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.peerStreamsSeen[t] {
		return false
	}
	c.peerStreamsSeen[t] = true
	return true
}

func (c *conn) setPeerSettings(s Settings) {
	c.connMu.Lock()
	c.peerSettings = s
	c.peerSettingsSet = true
	c.qencoder.SetCapacity(minInt(int(c.settings.QPACKMaxTableCapacity), int(s.QPACKMaxTableCapacity)))
	c.qencoder.SetMaxBlockedStreams(int(s.QPACKBlockedStreams))
	c.connMu.Unlock()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (c *conn) handleGoaway(id uint64) {
	c.log.Infof("received GOAWAY id=%d", id)
}

// deliverUnblocked dispatches decoded header fields for blocks that a
// QPACK encoder-stream instruction just unparked, in the FIFO order
// qpack.Decoder.release already establishes.
func (c *conn) deliverUnblocked(results []qpack.UnblockedResult) {
	for _, res := range results {
		c.connMu.Lock()
		r := c.requests[res.StreamID]
		c.connMu.Unlock()
		if r == nil {
			continue
		}
		r.deliverHeaderBlock(res.Fields, res.Err)
	}
}

func (c *conn) flushDecoderInstructions() {
	c.connMu.Lock()
	b := c.qdecoder.DrainInstructions()
	c.connMu.Unlock()
	if len(b) == 0 {
		return
	}
	c.decoderStream.Write(b)
}

func (c *conn) flushEncoderInstructions() {
	c.connMu.Lock()
	b := c.qencoder.DrainInstructions()
	c.connMu.Unlock()
	if len(b) == 0 {
		return
	}
	c.encoderStream.Write(b)
}

// fail is the connection-error path: log the cause, surface it to the
// application, and close the underlying transport connection.
func (c *conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		c.closed = true
		c.closeErr = err
		events := c.events
		c.connMu.Unlock()

		code := errorInternalError
		if pe, ok := err.(*ProtocolError); ok {
			code = pe.Code
		}
		c.log.Errorf("connection error: %v", err)
		c.transportConn.CloseWithError(uint64(code), err.Error())
		if events.OnShutdownInitiatedByTransport != nil {
			events.OnShutdownInitiatedByTransport(&Connection{c: c}, err)
		}
	})
}

func (c *conn) openRequest(ctx context.Context, events RequestEvents) (*Request, error) {
	s, err := c.transportConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	r := newRequest(c, s, events)
	c.connMu.Lock()
	c.requests[uint64(s.StreamID())] = r
	c.connMu.Unlock()
	go r.receiveLoop()
	return r, nil
}

func (c *conn) newPeerRequest(s transport.Stream) *Request {
	r := newRequest(c, s, RequestEvents{})
	c.connMu.Lock()
	c.requests[uint64(s.StreamID())] = r
	c.connMu.Unlock()
	return r
}

func (c *conn) forgetRequest(id uint64) {
	c.connMu.Lock()
	delete(c.requests, id)
	c.connMu.Unlock()
}
