package http3

import (
	"io"

	"github.com/hnakamur/h3quic/transport"
)

// dataReader is the application-facing read side of a Request's DATA
// payload: deliverFramePayload feeds it from the receive loop, and the
// application consumes it concurrently through Request.DataReader(). An
// io.Pipe gives blocking, backpressured delivery for free.
type dataReader struct {
	r  *Request
	pr *io.PipeReader
	pw *io.PipeWriter
}

func newDataReader(r *Request) *dataReader {
	pr, pw := io.Pipe()
	return &dataReader{r: r, pr: pr, pw: pw}
}

func (d *dataReader) Read(p []byte) (int, error) { return d.pr.Read(p) }

func (d *dataReader) deliver(p []byte) {
	// Best-effort: a reader that never reads will simply block the
	// receive loop, which is the natural backpressure signal for
	// SetReceiveEnabled(false) callers who prefer pausing at the frame
	// level instead.
	d.pw.Write(p)
}

func (d *dataReader) closeWithErr(err error) {
	if err == io.EOF {
		d.pw.Close()
		return
	}
	d.pw.CloseWithError(err)
}

// dataWriter builds a DATA frame from each Write call and submits it to
// the request's QUIC stream.
type dataWriter struct {
	r *Request
}

func (w *dataWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	frame := appendFrameHeader(nil, FrameTypeData, uint64(len(p)))
	frame = append(frame, p...)

	w.r.mu.Lock()
	w.r.send = sendOpen
	events := w.r.events
	w.r.mu.Unlock()

	if _, err := w.r.str.Write(frame); err != nil {
		if code, ok := transport.StreamErrorCode(err); ok && events.OnPeerReceiveAborted != nil {
			events.OnPeerReceiveAborted(w.r, code)
		}
		return 0, err
	}
	if events.OnSendComplete != nil {
		events.OnSendComplete(w.r, nil)
	}
	if events.OnIdealSendSize != nil {
		events.OnIdealSendSize(w.r, uint64(len(p)))
	}
	return len(p), nil
}
