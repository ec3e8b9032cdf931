package http3

import "github.com/hnakamur/h3quic/qpack"

// HeaderField is a single decoded header or pseudo-header, delivered in
// wire order as the QPACK decoder resolves each representation.
type HeaderField = qpack.HeaderField

// ConnectionEvents are the application's callbacks for connection-level
// lifecycle, invoked from whichever goroutine observed the underlying
// transport event. They are called outside connMu and are not
// serialized against each other. Every field is optional; a nil callback is simply
// not invoked. Naming mirrors msh3's MsH3Connection::ConnectionCallback
// switch (QUIC_CONNECTION_EVENT_CONNECTED and friends), the vocabulary
// this API surface is modeled on.
type ConnectionEvents struct {
	OnConnected                    func(c *Connection)
	OnShutdownInitiatedByTransport func(c *Connection, err error)
	OnShutdownInitiatedByPeer      func(c *Connection, errorCode uint64)
	OnShutdownComplete             func(c *Connection)
	OnPeerStreamStarted            func(c *Connection, r *Request)
}

// RequestEvents are the application's callbacks for one request's
// send/receive state machines.
type RequestEvents struct {
	OnHeaderReceived func(r *Request, f HeaderField)
	OnDataReceived   func(r *Request, p []byte)

	// OnPeerSendShutdown fires when the peer has finished sending
	// (stream FIN observed after the last DATA/trailer payload).
	OnPeerSendShutdown func(r *Request)

	// OnPeerSendAborted fires when the peer reset its send side before
	// finishing (RESET_STREAM observed on read). errorCode is the peer's
	// code when the transport reports one, H3_REQUEST_CANCELLED otherwise.
	OnPeerSendAborted func(r *Request, errorCode uint64)

	// OnSendComplete fires once a WriteHeaders or DATA Write call has
	// been handed off to the transport, echoing back the caller-supplied
	// appContext the way MsQuic's QUIC_STREAM_EVENT_SEND_COMPLETE does.
	OnSendComplete func(r *Request, appContext any)

	// OnIdealSendSize fires after every successful WriteHeaders or DATA
	// Write and reports the number of payload bytes that call just handed
	// to the transport; it is not a query of the transport's send window.
	OnIdealSendSize func(r *Request, bytes uint64)

	// OnSendShutdownComplete fires once this side has finished closing
	// its own send direction, via Close's FIN or CancelWrite's reset.
	OnSendShutdownComplete func(r *Request)

	// OnPeerReceiveAborted fires when the peer stopped reading this
	// request's send side (STOP_SENDING observed on write).
	OnPeerReceiveAborted func(r *Request, errorCode uint64)
}
