package http3

import (
	"errors"
	"io"
	"sync"

	"github.com/hnakamur/h3quic/qpack"
	"github.com/hnakamur/h3quic/transport"
	"github.com/hnakamur/h3quic/varint"
)

// recvState is a BiStream's receive-side state: Idle → HeadersIncoming
// → BodyIncoming → TrailersIncoming → Done, with Aborted reachable from
// any state.
type recvState int

const (
	recvIdle recvState = iota
	recvHeadersIncoming
	recvBodyIncoming
	recvTrailersIncoming
	recvDone
	recvAborted
)

// sendState is the orthogonal send-side state: SendIdle → SendOpen →
// SendFinished.
type sendState int

const (
	sendIdle sendState = iota
	sendOpen
	sendFinished
)

// maxStraddle bounds the partially-received frame-header buffer at 16
// bytes: two maximally-sized (8-byte) varints, the largest a frame
// header can ever be.
const maxStraddle = 16

// Request is one BiStream: the per-request frame state machine,
// header/body delivery, and send pipeline.
type Request struct {
	c    *conn
	str  transport.Stream
	id   uint64

	mu        sync.Mutex
	recv      recvState
	send      sendState
	events    RequestEvents
	straddle  []byte
	curFrame  frameHeader
	curFrameLeft uint64

	recvEnabled bool
	pauseCh     chan struct{}

	headerBlock []byte // accumulating HEADERS/trailers payload

	// pendingHeaderBlocks counts HEADERS/trailers sections parked as
	// QPACK-blocked and not yet delivered; while it is nonzero, DATA
	// payload is queued in pendingData instead of dispatched, so
	// OnHeaderReceived for a section always precedes OnDataReceived for
	// bytes that followed it on the wire.
	pendingHeaderBlocks int
	pendingData         [][]byte

	dataReader *dataReader
	dataWriter *dataWriter

	pendingHeaders     chan qpack.HeaderField
	pendingHeadersDone bool
	headersDone        chan error
}

func newRequest(c *conn, str transport.Stream, events RequestEvents) *Request {
	r := &Request{
		c:              c,
		str:            str,
		id:             uint64(str.StreamID()),
		events:         events,
		recvEnabled:    true,
		pendingHeaders: make(chan qpack.HeaderField, 64),
		headersDone:    make(chan error, 1),
	}
	r.dataReader = newDataReader(r)
	r.dataWriter = &dataWriter{r: r}
	return r
}

// StreamID is the underlying QUIC stream's identifier.
func (r *Request) StreamID() uint64 { return r.id }

// SetEvents attaches the application's callbacks for a peer-initiated
// request. The connection's OnPeerStreamStarted fires before the
// request's receive loop starts reading, so a handler set from inside
// that callback never races a frame delivery.
func (r *Request) SetEvents(events RequestEvents) {
	r.mu.Lock()
	r.events = events
	r.mu.Unlock()
}

// WriteHeaders encodes fields through this connection's QPACK encoder
// and submits the encoder-stream updates (if any) followed by the
// HEADERS frame as a gathered write.
func (r *Request) WriteHeaders(fields []HeaderField) error {
	r.c.connMu.Lock()
	payload, err := r.c.qencoder.WriteHeaderBlock(r.id, fields)
	r.c.connMu.Unlock()
	if err != nil {
		return err
	}
	r.c.flushEncoderInstructions()

	frame := appendFrameHeader(nil, FrameTypeHeaders, uint64(len(payload)))
	frame = append(frame, payload...)

	r.mu.Lock()
	r.send = sendOpen
	events := r.events
	r.mu.Unlock()

	if _, err = r.str.Write(frame); err != nil {
		if code, ok := transport.StreamErrorCode(err); ok && events.OnPeerReceiveAborted != nil {
			events.OnPeerReceiveAborted(r, code)
		}
		return err
	}
	if events.OnSendComplete != nil {
		events.OnSendComplete(r, nil)
	}
	if events.OnIdealSendSize != nil {
		events.OnIdealSendSize(r, uint64(len(payload)))
	}
	return nil
}

// DataWriter returns the writer for this request's DATA frames.
func (r *Request) DataWriter() io.Writer { return r.dataWriter }

// DataReader returns the reader for this request's DATA frame payload.
func (r *Request) DataReader() io.Reader { return r.dataReader }

// ReadHeaders blocks until the trailer section (if any) has been fully
// decoded and delivered, returning the accumulated fields.
func (r *Request) ReadHeaders() ([]HeaderField, error) {
	var fields []HeaderField
	for {
		select {
		case f, ok := <-r.pendingHeaders:
			if !ok {
				return fields, nil
			}
			fields = append(fields, f)
		case err := <-r.headersDone:
			return fields, err
		}
	}
}

// SetReceiveEnabled toggles application-level flow control: when
// disabled, the frame-parsing loop stops consuming DATA payload bytes
// until re-enabled.
func (r *Request) SetReceiveEnabled(enabled bool) {
	r.mu.Lock()
	wasDisabled := !r.recvEnabled
	r.recvEnabled = enabled
	ch := r.pauseCh
	r.mu.Unlock()
	if enabled && wasDisabled && ch != nil {
		close(ch)
	}
}

// CompleteReceive is the application's acknowledgement that it has
// consumed n bytes of a DATA_RECEIVED delivery; present for symmetry
// with the MsQuic-shaped event API this type's callbacks mirror. Since
// this driver delivers DATA payload synchronously to OnDataReceived
// rather than handing out a borrowed buffer, there is nothing left to
// release here beyond bookkeeping the application may want for its own
// pacing.
func (r *Request) CompleteReceive(n int) {}

func (r *Request) CancelRead(errorCode uint64) {
	r.str.CancelRead(errorCode)
	r.c.connMu.Lock()
	r.c.qdecoder.CancelStream(r.id)
	r.c.connMu.Unlock()
	r.c.flushDecoderInstructions()
}

func (r *Request) CancelWrite(errorCode uint64) {
	r.str.CancelWrite(errorCode)
	r.mu.Lock()
	r.send = sendFinished
	events := r.events
	r.mu.Unlock()
	if events.OnSendShutdownComplete != nil {
		events.OnSendShutdownComplete(r)
	}
}

// Close sends a FIN with no further data (graceful send-side shutdown).
func (r *Request) Close() error {
	r.mu.Lock()
	r.send = sendFinished
	events := r.events
	r.mu.Unlock()
	err := r.str.Close()
	if events.OnSendShutdownComplete != nil {
		events.OnSendShutdownComplete(r)
	}
	return err
}

var errStreamAborted = errors.New("http3: request aborted")

// receiveLoop owns reading from the QUIC stream and driving recvState
// forward; it runs on its own goroutine for the life of the request.
func (r *Request) receiveLoop() {
	defer r.c.forgetRequest(r.id)
	buf := make([]byte, 4096)
	for {
		n, err := r.readPaused(buf)
		if n > 0 {
			if perr := r.process(buf[:n]); perr != nil {
				r.abort(perr)
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				r.onPeerFin()
			} else {
				r.onPeerReset(err)
			}
			return
		}
	}
}

// readPaused blocks until either bytes are available or the
// application re-enables receiving.
func (r *Request) readPaused(buf []byte) (int, error) {
	r.mu.Lock()
	if !r.recvEnabled {
		if r.pauseCh == nil {
			r.pauseCh = make(chan struct{})
		}
		ch := r.pauseCh
		r.mu.Unlock()
		<-ch
		r.mu.Lock()
		r.pauseCh = nil
	}
	r.mu.Unlock()
	return r.str.Read(buf)
}

// process runs the frame-parsing loop over a newly-received chunk,
// prefixed with any buffered straddle bytes.
func (r *Request) process(chunk []byte) error {
	r.mu.Lock()
	data := append(r.straddle, chunk...)
	r.straddle = nil
	r.mu.Unlock()

	for {
		r.mu.Lock()
		inFrame := r.curFrameLeft > 0
		r.mu.Unlock()

		if inFrame {
			n := len(data)
			r.mu.Lock()
			if uint64(n) > r.curFrameLeft {
				n = int(r.curFrameLeft)
			}
			r.mu.Unlock()
			if err := r.deliverFramePayload(data[:n]); err != nil {
				return err
			}
			data = data[n:]
			r.mu.Lock()
			r.curFrameLeft -= uint64(n)
			done := r.curFrameLeft == 0
			r.mu.Unlock()
			if done {
				if err := r.finishFrame(); err != nil {
					return err
				}
			}
			if len(data) == 0 {
				return nil
			}
			continue
		}

		h, rest, ok := tryParseFrameHeader(data)
		if !ok {
			if len(data) > maxStraddle {
				return protoErr(errorFrameError, "frame header straddle exceeds %d bytes", maxStraddle)
			}
			r.mu.Lock()
			r.straddle = append([]byte(nil), data...)
			r.mu.Unlock()
			return nil
		}
		data = rest

		if err := r.startFrame(h); err != nil {
			return err
		}
		if h.Length == 0 {
			if err := r.finishFrame(); err != nil {
				return err
			}
		} else {
			r.mu.Lock()
			r.curFrame = h
			r.curFrameLeft = h.Length
			r.mu.Unlock()
		}
	}
}

// tryParseFrameHeader attempts to parse a frame header (type + length
// varints) from the front of b, also skipping any grease frame types
// whose payload is already fully present; if not enough bytes are
// available it reports ok=false without consuming anything.
func tryParseFrameHeader(b []byte) (h frameHeader, rest []byte, ok bool) {
	for {
		t, n1, err := parseVarint(b)
		if err != nil {
			return frameHeader{}, b, false
		}
		l, n2, err := parseVarint(b[n1:])
		if err != nil {
			return frameHeader{}, b, false
		}
		ft := FrameType(t)
		if isReservedGrease(ft) {
			total := n1 + n2
			if uint64(len(b)-total) < l {
				return frameHeader{}, b, false
			}
			b = b[total+int(l):]
			continue
		}
		return frameHeader{Type: ft, Length: l}, b[n1+n2:], true
	}
}

func (r *Request) startFrame(h frameHeader) error {
	r.mu.Lock()
	state := r.recv
	r.mu.Unlock()

	switch h.Type {
	case FrameTypeHeaders:
		if state != recvIdle && state != recvBodyIncoming {
			return protoErr(errorFrameUnexpected, "HEADERS not valid in state %d", state)
		}
		r.mu.Lock()
		if state == recvIdle {
			r.recv = recvHeadersIncoming
		} else {
			r.recv = recvTrailersIncoming
		}
		r.headerBlock = r.headerBlock[:0]
		r.mu.Unlock()
		return nil
	case FrameTypeData:
		if state != recvBodyIncoming && state != recvHeadersIncoming {
			return protoErr(errorFrameUnexpected, "DATA not valid in state %d", state)
		}
		r.mu.Lock()
		r.recv = recvBodyIncoming
		r.mu.Unlock()
		return nil
	default:
		return nil // unknown/grease: skip length bytes via deliverFramePayload no-op
	}
}

func (r *Request) deliverFramePayload(p []byte) error {
	r.mu.Lock()
	t := r.curFrame.Type
	r.mu.Unlock()

	switch t {
	case FrameTypeHeaders:
		r.mu.Lock()
		r.headerBlock = append(r.headerBlock, p...)
		r.mu.Unlock()
	case FrameTypeData:
		r.mu.Lock()
		if r.pendingHeaderBlocks > 0 {
			r.pendingData = append(r.pendingData, append([]byte(nil), p...))
			r.mu.Unlock()
			return nil
		}
		events := r.events
		r.mu.Unlock()
		if events.OnDataReceived != nil {
			events.OnDataReceived(r, p)
		}
		r.dataReader.deliver(p)
	default:
		// unknown/grease frame payload: discard
	}
	return nil
}

func (r *Request) finishFrame() error {
	r.mu.Lock()
	t := r.curFrame.Type
	block := r.headerBlock
	r.curFrame = frameHeader{}
	r.mu.Unlock()

	if t != FrameTypeHeaders {
		return nil
	}

	r.c.connMu.Lock()
	fields, blocked, err := r.c.qdecoder.Submit(r.id, block)
	r.c.connMu.Unlock()
	r.c.flushDecoderInstructions()
	if err != nil {
		return protoErr(errorQPACKDecompressionFailed, "%v", err)
	}
	if blocked {
		// Parked: no fields to deliver yet, but any DATA that arrives
		// on this stream before the encoder stream unparks it must wait
		// behind this section's eventual OnHeaderReceived calls.
		r.mu.Lock()
		r.pendingHeaderBlocks++
		r.mu.Unlock()
		return nil // delivery happens later via deliverHeaderBlock
	}
	r.deliverHeaderBlock(fields, nil)
	return nil
}

// deliverHeaderBlock surfaces a decoded field section (immediately, or
// later once a parked block unblocks, from conn.deliverUnblocked on a
// different goroutine) to the application and advances recvState past
// Headers/TrailersIncoming. Once the last outstanding blocked section
// for this stream has been delivered, any DATA payload queued behind it
// is flushed in arrival order, so OnDataReceived is never dispatched
// ahead of the OnHeaderReceived calls for the section it followed.
func (r *Request) deliverHeaderBlock(fields []qpack.HeaderField, err error) {
	if err != nil {
		close(r.headersDone)
		return
	}
	for _, f := range fields {
		if r.events.OnHeaderReceived != nil {
			r.events.OnHeaderReceived(r, f)
		}
		select {
		case r.pendingHeaders <- f:
		default:
		}
	}

	r.mu.Lock()
	wasTrailers := r.recv == recvTrailersIncoming
	if r.recv == recvHeadersIncoming {
		r.recv = recvBodyIncoming
	}
	if r.pendingHeaderBlocks > 0 {
		r.pendingHeaderBlocks--
	}
	var flush [][]byte
	events := r.events
	if r.pendingHeaderBlocks == 0 {
		flush = r.pendingData
		r.pendingData = nil
	}
	r.mu.Unlock()

	for _, p := range flush {
		if events.OnDataReceived != nil {
			events.OnDataReceived(r, p)
		}
		r.dataReader.deliver(p)
	}

	if wasTrailers {
		r.closePendingHeaders()
	}
}

// closePendingHeaders closes the pendingHeaders channel exactly once,
// so ReadHeaders callers waiting on a trailer section that never
// arrives (request closed with no trailers) don't hang forever.
func (r *Request) closePendingHeaders() {
	r.mu.Lock()
	already := r.pendingHeadersDone
	r.pendingHeadersDone = true
	r.mu.Unlock()
	if !already {
		close(r.pendingHeaders)
	}
}

func (r *Request) onPeerFin() {
	r.mu.Lock()
	r.recv = recvDone
	r.mu.Unlock()
	r.dataReader.closeWithErr(io.EOF)
	r.closePendingHeaders()
	if r.events.OnPeerSendShutdown != nil {
		r.events.OnPeerSendShutdown(r)
	}
}

func (r *Request) onPeerReset(err error) {
	r.mu.Lock()
	r.recv = recvAborted
	r.mu.Unlock()
	r.dataReader.closeWithErr(err)
	r.closePendingHeaders()
	if r.events.OnPeerSendAborted != nil {
		code := uint64(errorRequestCanceled)
		if c, ok := transport.StreamErrorCode(err); ok {
			code = c
		}
		r.events.OnPeerSendAborted(r, code)
	}
}

func (r *Request) abort(err error) {
	r.mu.Lock()
	r.recv = recvAborted
	r.mu.Unlock()
	r.dataReader.closeWithErr(err)
	r.closePendingHeaders()
	if pe, ok := err.(*ProtocolError); ok {
		r.str.CancelRead(uint64(pe.Code))
		r.str.CancelWrite(uint64(pe.Code))
	}
}

func parseVarint(b []byte) (uint64, int, error) {
	return varint.Parse(b)
}
