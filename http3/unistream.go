package http3

import (
	"fmt"
	"io"

	"github.com/hnakamur/h3quic/transport"
	"github.com/hnakamur/h3quic/varint"
)

// StreamType identifies the role of a unidirectional stream (RFC 9114
// §6.2), carried as the first varint any peer writes to it.
type StreamType uint64

const (
	StreamTypeControl      StreamType = 0x0
	StreamTypePush         StreamType = 0x1
	StreamTypeQPACKEncoder StreamType = 0x2
	StreamTypeQPACKDecoder StreamType = 0x3
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeControl:
		return "control stream"
	case StreamTypePush:
		return "push stream"
	case StreamTypeQPACKEncoder:
		return "QPACK encoder stream"
	case StreamTypeQPACKDecoder:
		return "QPACK decoder stream"
	default:
		return fmt.Sprintf("stream type %#x", uint64(t))
	}
}

func isReservedGreaseStream(t StreamType) bool {
	return uint64(t) >= 0x21 && (uint64(t)-0x21)%0x1f == 0
}

// identifyUniStream reads the leading type varint off a freshly accepted
// unidirectional stream. RFC 9114 §6.2 permits the identifying varint to
// be split across QUIC packets, so a peer that opens a stream and sends
// nothing must not be mistaken for a protocol error; readers block on
// the underlying transport's Read, same as any other framing decision.
func identifyUniStream(r transport.ReceiveStream) (StreamType, error) {
	br := asByteReader(r)
	for {
		t, err := varint.Read(br)
		if err != nil {
			return 0, err
		}
		st := StreamType(t)
		if isReservedGreaseStream(st) {
			continue
		}
		return st, nil
	}
}

// handleControlStream drives the peer's control stream for the lifetime
// of the connection: the first frame must be SETTINGS, after which any
// further frame types defined for the control stream (GOAWAY) update
// connection state; anything else not recognized here is skipped.
func (c *conn) handleControlStream(r transport.ReceiveStream) {
	h, err := readFrameHeader(r)
	if err != nil {
		c.fail(protoErr(errorClosedCriticalStream, "control stream: %v", err))
		return
	}
	if h.Type != FrameTypeSettings {
		c.fail(protoErr(errorMissingSettings, "first frame on control stream was %s, not SETTINGS", h.Type))
		return
	}
	body, err := readFramePayload(r, h, maxSettingsFrameSize)
	if err != nil {
		c.fail(protoErr(errorFrameError, "SETTINGS: %v", err))
		return
	}
	settings, err := readSettings(h, body)
	if err != nil {
		c.fail(err)
		return
	}
	c.setPeerSettings(settings)

	for {
		h, err := readFrameHeader(r)
		if err != nil {
			if err == io.EOF {
				c.fail(protoErr(errorClosedCriticalStream, "control stream closed"))
			}
			return
		}
		switch h.Type {
		case FrameTypeGoaway:
			body, err := readFramePayload(r, h, 16)
			if err != nil {
				c.fail(protoErr(errorFrameError, "GOAWAY: %v", err))
				return
			}
			id, _, err := varint.Parse(body)
			if err != nil {
				c.fail(protoErr(errorFrameError, "GOAWAY: malformed stream/push id"))
				return
			}
			c.handleGoaway(id)
		case FrameTypeData, FrameTypeHeaders, FrameTypePushPromise:
			c.fail(protoErr(errorFrameUnexpected, "%s not permitted on control stream", h.Type))
			return
		default:
			if _, err := io.CopyN(io.Discard, r, int64(h.Length)); err != nil {
				return
			}
		}
	}
}

// handleQPACKEncoderStream applies each instruction arriving on the
// peer's QPACK encoder stream to this connection's decoder. connMu is
// held across the blocking read of each instruction; in practice an
// encoder only writes this stream right before or alongside the HEADERS
// frame it describes, so the lock is rarely held waiting on the network.
func (c *conn) handleQPACKEncoderStream(r transport.ReceiveStream) {
	br := asByteReader(r)
	for {
		c.connMu.Lock()
		results, err := c.qdecoder.ApplyEncoderInstruction(br)
		c.connMu.Unlock()
		if err != nil {
			c.fail(protoErr(errorQPACKEncoderStreamError, "%v", err))
			return
		}
		c.deliverUnblocked(results)
		c.flushDecoderInstructions()
	}
}

// handleQPACKDecoderStream applies each instruction arriving on the
// peer's QPACK decoder stream to this connection's encoder.
func (c *conn) handleQPACKDecoderStream(r transport.ReceiveStream) {
	br := asByteReader(r)
	for {
		c.connMu.Lock()
		err := c.qencoder.ApplyDecoderInstruction(br)
		c.connMu.Unlock()
		if err != nil {
			c.fail(protoErr(errorQPACKDecoderStreamError, "%v", err))
			return
		}
	}
}

// handleIncomingUniStream dispatches a freshly accepted unidirectional
// stream by its type, enforcing the "at most one of each critical
// stream type" rule (RFC 9114 §6.2.1).
func (c *conn) handleIncomingUniStream(r transport.ReceiveStream) {
	t, err := identifyUniStream(r)
	if err != nil {
		r.CancelRead(uint64(errorGeneralProtocolError))
		return
	}

	switch t {
	case StreamTypeControl:
		if !c.claimPeerStream(t) {
			c.fail(protoErr(errorStreamCreationError, "more than one %s", t))
			return
		}
		c.handleControlStream(r)
	case StreamTypeQPACKEncoder:
		if !c.claimPeerStream(t) {
			c.fail(protoErr(errorStreamCreationError, "more than one %s", t))
			return
		}
		c.handleQPACKEncoderStream(r)
	case StreamTypeQPACKDecoder:
		if !c.claimPeerStream(t) {
			c.fail(protoErr(errorStreamCreationError, "more than one %s", t))
			return
		}
		c.handleQPACKDecoderStream(r)
	case StreamTypePush:
		// Push is not implemented: a push stream is aborted with
		// H3_STREAM_CREATION_ERROR.
		r.CancelRead(uint64(errorStreamCreationError))
	default:
		r.CancelRead(uint64(errorStreamCreationError))
	}
}
