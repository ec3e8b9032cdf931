// Package faketransport provides an in-memory realization of
// transport.Conn/Stream for integration-style tests that need two
// communicating endpoints without a real QUIC handshake.
package faketransport

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/hnakamur/h3quic/transport"
)

// Pair returns two connected transport.Conn values: streams opened on
// one side are delivered to AcceptStream/AcceptUniStream on the other.
func Pair(clientState, serverState transport.ConnectionState) (client, server transport.Conn) {
	c := &conn{perspective: transport.PerspectiveClient, state: clientState}
	s := &conn{perspective: transport.PerspectiveServer, state: serverState}
	c.peer, s.peer = s, c

	c.acceptStreams = make(chan *stream, 16)
	c.acceptUni = make(chan *recvEnd, 16)
	s.acceptStreams = make(chan *stream, 16)
	s.acceptUni = make(chan *recvEnd, 16)

	hsDone, cancel := context.WithCancel(context.Background())
	cancel()
	c.handshakeDone = hsDone
	s.handshakeDone = hsDone

	cctx, cclose := context.WithCancel(context.Background())
	c.ctx, c.close = cctx, cclose
	sctx, sclose := context.WithCancel(context.Background())
	s.ctx, s.close = sctx, sclose

	return c, s
}

type conn struct {
	perspective transport.Perspective
	state       transport.ConnectionState
	peer        *conn

	mu            sync.Mutex
	nextStreamID  int64
	acceptStreams chan *stream
	acceptUni     chan *recvEnd

	handshakeDone context.Context
	ctx           context.Context
	close         context.CancelFunc
}

func (c *conn) Perspective() transport.Perspective { return c.perspective }

func (c *conn) newStreamID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextStreamID
	c.nextStreamID++
	return id
}

// OpenUniStream creates one pipe; the write end is returned to the
// caller, and the read end is queued for the peer's AcceptUniStream.
func (c *conn) OpenUniStream() (transport.SendStream, error) {
	id := c.newStreamID()
	pr, pw := io.Pipe()
	select {
	case c.peer.acceptUni <- &recvEnd{id: id, r: pr}:
	default:
		return nil, errors.New("faketransport: peer uni-stream accept queue full")
	}
	return &sendEnd{id: id, w: pw}, nil
}

func (c *conn) OpenUniStreamSync(ctx context.Context) (transport.SendStream, error) {
	return c.OpenUniStream()
}

// OpenStream creates two independent pipes (one per direction) so each
// side's Write feeds the other side's Read.
func (c *conn) OpenStream() (transport.Stream, error) {
	id := c.newStreamID()
	localToRemote := newDuplex()
	remoteToLocal := newDuplex()
	local := &stream{id: id, out: localToRemote.send(), in: remoteToLocal.recv()}
	remote := &stream{id: id, out: remoteToLocal.send(), in: localToRemote.recv()}
	select {
	case c.peer.acceptStreams <- remote:
	default:
		return nil, errors.New("faketransport: peer stream accept queue full")
	}
	return local, nil
}

func (c *conn) OpenStreamSync(ctx context.Context) (transport.Stream, error) {
	return c.OpenStream()
}

func (c *conn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	select {
	case s := <-c.acceptStreams:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *conn) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	select {
	case s := <-c.acceptUni:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *conn) HandshakeComplete() context.Context         { return c.handshakeDone }
func (c *conn) ConnectionState() transport.ConnectionState { return c.state }

func (c *conn) CloseWithError(errorCode uint64, reason string) error {
	c.close()
	return nil
}

func (c *conn) Context() context.Context { return c.ctx }

// duplex is a single io.Pipe, exposed as a send end and a recv end that
// share no stream ID of their own (the owning stream carries that).
type duplex struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newDuplex() *duplex {
	r, w := io.Pipe()
	return &duplex{r: r, w: w}
}
func (d *duplex) send() *sendEnd { return &sendEnd{w: d.w} }
func (d *duplex) recv() *recvEnd { return &recvEnd{r: d.r} }

type sendEnd struct {
	id int64
	w  *io.PipeWriter
}

func (s *sendEnd) StreamID() int64             { return s.id }
func (s *sendEnd) Write(b []byte) (int, error) { return s.w.Write(b) }
func (s *sendEnd) Close() error                { return s.w.Close() }
func (s *sendEnd) CancelWrite(code uint64)     { s.w.CloseWithError(streamError{code}) }

type recvEnd struct {
	id int64
	r  *io.PipeReader
}

func (s *recvEnd) StreamID() int64            { return s.id }
func (s *recvEnd) Read(b []byte) (int, error) { return s.r.Read(b) }
func (s *recvEnd) CancelRead(code uint64)     { s.r.CloseWithError(streamError{code}) }

type streamError struct{ code uint64 }

func (e streamError) Error() string { return "faketransport: stream reset" }

// stream is a bidirectional pair built from two independent duplexes.
type stream struct {
	id  int64
	in  *recvEnd
	out *sendEnd
}

func (s *stream) StreamID() int64             { return s.id }
func (s *stream) Read(b []byte) (int, error)  { return s.in.Read(b) }
func (s *stream) Write(b []byte) (int, error) { return s.out.Write(b) }
func (s *stream) Close() error                { return s.out.Close() }
func (s *stream) CancelRead(code uint64)      { s.in.CancelRead(code) }
func (s *stream) CancelWrite(code uint64)     { s.out.CancelWrite(code) }
