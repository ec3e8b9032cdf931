package http3

import "fmt"

// errorCode is an HTTP/3 application-protocol error code (RFC 9114 §8.1),
// carried on transport.Conn.CloseWithError and Stream.Cancel{Read,Write}.
type errorCode uint64

const (
	errorNoError              errorCode = 0x100
	errorGeneralProtocolError errorCode = 0x101
	errorInternalError        errorCode = 0x102
	errorStreamCreationError  errorCode = 0x103
	errorClosedCriticalStream errorCode = 0x104
	errorFrameUnexpected      errorCode = 0x105
	errorFrameError           errorCode = 0x106
	errorExcessiveLoad        errorCode = 0x107
	errorIDError              errorCode = 0x108
	errorSettingsError        errorCode = 0x109
	errorMissingSettings      errorCode = 0x10a
	errorRequestRejected      errorCode = 0x10b
	errorRequestCanceled      errorCode = 0x10c
	errorRequestIncomplete    errorCode = 0x10d
	errorMessageError         errorCode = 0x10e
	errorConnectError         errorCode = 0x10f
	errorVersionFallback      errorCode = 0x110

	// QPACK-specific error codes, RFC 9204 §6.
	errorQPACKDecompressionFailed errorCode = 0x200
	errorQPACKEncoderStreamError  errorCode = 0x201
	errorQPACKDecoderStreamError  errorCode = 0x202
)

func (e errorCode) String() string {
	switch e {
	case errorNoError:
		return "H3_NO_ERROR"
	case errorGeneralProtocolError:
		return "H3_GENERAL_PROTOCOL_ERROR"
	case errorInternalError:
		return "H3_INTERNAL_ERROR"
	case errorStreamCreationError:
		return "H3_STREAM_CREATION_ERROR"
	case errorClosedCriticalStream:
		return "H3_CLOSED_CRITICAL_STREAM"
	case errorFrameUnexpected:
		return "H3_FRAME_UNEXPECTED"
	case errorFrameError:
		return "H3_FRAME_ERROR"
	case errorExcessiveLoad:
		return "H3_EXCESSIVE_LOAD"
	case errorIDError:
		return "H3_ID_ERROR"
	case errorSettingsError:
		return "H3_SETTINGS_ERROR"
	case errorMissingSettings:
		return "H3_MISSING_SETTINGS"
	case errorRequestRejected:
		return "H3_REQUEST_REJECTED"
	case errorRequestCanceled:
		return "H3_REQUEST_CANCELLED"
	case errorRequestIncomplete:
		return "H3_INCOMPLETE_REQUEST"
	case errorMessageError:
		return "H3_MESSAGE_ERROR"
	case errorConnectError:
		return "H3_CONNECT_ERROR"
	case errorVersionFallback:
		return "H3_VERSION_FALLBACK"
	case errorQPACKDecompressionFailed:
		return "QPACK_DECOMPRESSION_FAILED"
	case errorQPACKEncoderStreamError:
		return "QPACK_ENCODER_STREAM_ERROR"
	case errorQPACKDecoderStreamError:
		return "QPACK_DECODER_STREAM_ERROR"
	default:
		return fmt.Sprintf("unknown error code: %#x", uint64(e))
	}
}

// ProtocolError is a connection-level HTTP/3 protocol violation: the
// kind of error that terminates the whole connection rather than a
// single request/response stream. conn.fail delivers it to
// ConnectionEvents.OnShutdownInitiatedByTransport and uses its Code for
// the CloseWithError call on the underlying transport.Conn.
type ProtocolError struct {
	Code   errorCode
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("http3: %s: %s", e.Code, e.Reason)
}

func protoErr(code errorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// FrameTypeError is returned when a frame of an unexpected type appears
// where a specific one is required (readSettings given a frame header
// whose type is not SETTINGS).
type FrameTypeError struct {
	Want FrameType
	Type FrameType
}

func (err *FrameTypeError) Error() string {
	return fmt.Sprintf("unexpected frame type %s, expected %s", err.Type, err.Want)
}

var _ error = &FrameTypeError{}

// FrameLengthError is returned by readFramePayload when a frame payload
// length exceeds the maximum it was given (e.g. maxSettingsFrameSize).
type FrameLengthError struct {
	Type FrameType
	Len  uint64
	Max  uint64
}

var _ error = &FrameLengthError{}

func (err *FrameLengthError) Error() string {
	return fmt.Sprintf("%s frame too large: %d bytes (max: %d)", err.Type, err.Len, err.Max)
}
