package http3

import (
	"bytes"

	"github.com/hnakamur/h3quic/varint"
)

// SettingID identifies a SETTINGS parameter (RFC 9114 §7.2.4.1, RFC 9204 §5).
type SettingID uint64

const (
	SettingQPACKMaxTableCapacity SettingID = 0x1
	SettingMaxFieldSectionSize   SettingID = 0x6
	SettingQPACKBlockedStreams   SettingID = 0x7

	// SettingEnableConnectProtocol is RFC 8441's Extended CONNECT
	// negotiation, reused unmodified over HTTP/3 (RFC 9220).
	SettingEnableConnectProtocol SettingID = 0x8

	// SettingH3Datagram is RFC 9297's HTTP Datagram capability bit.
	// This implementation only records the peer's value; it never
	// opens a QUIC DATAGRAM frame itself.
	SettingH3Datagram SettingID = 0x33
)

// isReservedGreaseSetting mirrors isReservedGrease but for the SETTINGS
// identifier space, which uses the same N*0x1f+0x21 pattern.
func isReservedGreaseSetting(id SettingID) bool {
	return uint64(id) >= 0x21 && (uint64(id)-0x21)%0x1f == 0
}

// defaultMaxFieldSectionSize matches net/http2's MAX_HEADER_LIST_SIZE
// default: large enough to never reject ordinary requests, small enough
// to bound memory for a hostile peer.
const defaultMaxFieldSectionSize = 16 << 20

// defaultQPACKMaxTableCapacity and defaultQPACKBlockedStreams are this
// implementation's advertised QPACK dynamic-table capacity and blocked-
// stream bound, sent in the initial SETTINGS frame.
const (
	defaultQPACKMaxTableCapacity = 4096
	defaultQPACKBlockedStreams   = 16
)

// Settings is the set of SETTINGS parameters exchanged on a connection's
// control stream, one instance per direction (local and peer).
type Settings struct {
	QPACKMaxTableCapacity uint64
	QPACKBlockedStreams   uint64
	MaxFieldSectionSize   uint64
	EnableConnectProtocol bool
	H3Datagram            bool

	// Unknown carries any SETTINGS identifiers this implementation
	// doesn't recognize, preserved so a proxying use could forward them.
	Unknown map[uint64]uint64
}

// DefaultSettings returns this implementation's locally-advertised
// SETTINGS, sent on every connection's control stream immediately after
// it opens (RFC 9114 §7.2.4.2).
func DefaultSettings() Settings {
	return Settings{
		QPACKMaxTableCapacity: defaultQPACKMaxTableCapacity,
		QPACKBlockedStreams:   defaultQPACKBlockedStreams,
		MaxFieldSectionSize:   defaultMaxFieldSectionSize,
	}
}

// maxFieldSectionSizeOrDefault reports the effective MAX_FIELD_SECTION_SIZE,
// substituting the implementation default when unset.
func (s Settings) maxFieldSectionSizeOrDefault() uint64 {
	if s.MaxFieldSectionSize > 0 {
		return s.MaxFieldSectionSize
	}
	return defaultMaxFieldSectionSize
}

// appendFrame serializes s as a SETTINGS frame (type + length prefix +
// identifier/value pairs).
func (s Settings) appendFrame(dst []byte) []byte {
	var payload []byte
	put := func(id SettingID, v uint64) {
		payload = varint.Append(payload, uint64(id))
		payload = varint.Append(payload, v)
	}
	if s.QPACKMaxTableCapacity > 0 {
		put(SettingQPACKMaxTableCapacity, s.QPACKMaxTableCapacity)
	}
	if s.QPACKBlockedStreams > 0 {
		put(SettingQPACKBlockedStreams, s.QPACKBlockedStreams)
	}
	if s.MaxFieldSectionSize > 0 {
		put(SettingMaxFieldSectionSize, s.MaxFieldSectionSize)
	}
	if s.EnableConnectProtocol {
		put(SettingEnableConnectProtocol, 1)
	}
	if s.H3Datagram {
		put(SettingH3Datagram, 1)
	}
	for id, v := range s.Unknown {
		payload = varint.Append(payload, id)
		payload = varint.Append(payload, v)
	}

	dst = appendFrameHeader(dst, FrameTypeSettings, uint64(len(payload)))
	return append(dst, payload...)
}

// maxSettingsFrameSize bounds how large a SETTINGS frame this
// implementation will read before giving up, preventing a hostile peer
// from forcing an unbounded allocation.
const maxSettingsFrameSize = 64 << 10

// readSettings reads one SETTINGS frame's payload and decodes it. h must
// already have been read via readFrameHeader and have Type ==
// FrameTypeSettings.
func readSettings(h frameHeader, body []byte) (Settings, error) {
	if h.Type != FrameTypeSettings {
		return Settings{}, &FrameTypeError{Want: FrameTypeSettings, Type: h.Type}
	}
	var s Settings
	seen := make(map[uint64]bool)
	br := bytes.NewReader(body)
	for br.Len() > 0 {
		id, err := varint.Read(br)
		if err != nil {
			return Settings{}, protoErr(errorFrameError, "truncated SETTINGS identifier")
		}
		v, err := varint.Read(br)
		if err != nil {
			return Settings{}, protoErr(errorFrameError, "truncated SETTINGS value")
		}
		if seen[id] {
			return Settings{}, protoErr(errorSettingsError, "duplicate SETTINGS id %#x", id)
		}
		seen[id] = true

		switch SettingID(id) {
		case SettingQPACKMaxTableCapacity:
			s.QPACKMaxTableCapacity = v
		case SettingQPACKBlockedStreams:
			s.QPACKBlockedStreams = v
		case SettingMaxFieldSectionSize:
			s.MaxFieldSectionSize = v
		case SettingEnableConnectProtocol:
			s.EnableConnectProtocol = v == 1
		case SettingH3Datagram:
			s.H3Datagram = v == 1
		default:
			if isReservedGreaseSetting(SettingID(id)) {
				continue
			}
			if s.Unknown == nil {
				s.Unknown = make(map[uint64]uint64)
			}
			s.Unknown[id] = v
		}
	}
	return s, nil
}
