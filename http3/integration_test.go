package http3

import (
	"context"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hnakamur/h3quic/internal/httplog"
	"github.com/hnakamur/h3quic/transport"
	"github.com/hnakamur/h3quic/transport/faketransport"
)

// newConnPair wires two *conn values directly over faketransport,
// bypassing API.Dial/Listener.Serve (which hardcode the real quic-go
// transport.Dial/Listen) so the HTTP/3 connection driver can be
// exercised end to end without a real QUIC handshake. Both sides are
// started concurrently: newConn's initial SETTINGS/stream-type writes
// block, over faketransport's unbuffered pipes, until the peer's
// accept loop is running to read them.
func newConnPair(clientEvents, serverEvents ConnectionEvents) (client, server *conn) {
	clientTC, serverTC := faketransport.Pair(transport.ConnectionState{}, transport.ConnectionState{})

	type result struct {
		c   *conn
		err error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)
	go func() {
		c, err := newConn(clientTC, DefaultSettings(), clientEvents, httplog.Nop())
		clientCh <- result{c, err}
	}()
	go func() {
		c, err := newConn(serverTC, DefaultSettings(), serverEvents, httplog.Nop())
		serverCh <- result{c, err}
	}()
	cr, sr := <-clientCh, <-serverCh
	Expect(cr.err).NotTo(HaveOccurred())
	Expect(sr.err).NotTo(HaveOccurred())
	return cr.c, sr.c
}

var _ = Describe("Connection startup", func() {
	It("exchanges local SETTINGS so each side learns the other's peer settings", func() {
		client, server := newConnPair(ConnectionEvents{}, ConnectionEvents{})

		Eventually(func() bool {
			client.connMu.Lock()
			defer client.connMu.Unlock()
			return client.peerSettingsSet
		}).Should(BeTrue())
		Eventually(func() bool {
			server.connMu.Lock()
			defer server.connMu.Unlock()
			return server.peerSettingsSet
		}).Should(BeTrue())

		client.connMu.Lock()
		got := client.peerSettings
		client.connMu.Unlock()
		Expect(got.QPACKMaxTableCapacity).To(Equal(uint64(defaultQPACKMaxTableCapacity)))
		Expect(got.MaxFieldSectionSize).To(Equal(uint64(defaultMaxFieldSectionSize)))
	})

	It("rejects a second stream of a critical unidirectional type", func() {
		client, _ := newConnPair(ConnectionEvents{}, ConnectionEvents{})
		Expect(client.claimPeerStream(StreamTypeControl)).To(BeTrue())
		Expect(client.claimPeerStream(StreamTypeControl)).To(BeFalse())
		Expect(client.claimPeerStream(StreamTypeQPACKEncoder)).To(BeTrue())
		Expect(client.claimPeerStream(StreamTypeQPACKDecoder)).To(BeTrue())
	})
})

var _ = Describe("Request/response delivery", func() {
	It("carries headers, body and trailers from one side's Request to the other's", func() {
		peerReqCh := make(chan *Request, 1)
		clientConn, _ := newConnPair(ConnectionEvents{}, ConnectionEvents{
			OnPeerStreamStarted: func(c *Connection, r *Request) {
				peerReqCh <- r
			},
		})

		req, err := (&Connection{c: clientConn}).OpenRequest(context.Background(), RequestEvents{})
		Expect(err).NotTo(HaveOccurred())

		// The peer's receive loop delivers DATA payload through a
		// synchronous pipe (body.go's dataReader), so a reader must
		// already be draining it before the client writes more than
		// fits in one unconsumed frame; start both readers before
		// sending anything.
		var peerReq *Request
		Eventually(peerReqCh).Should(Receive(&peerReq))

		bodyCh := make(chan string, 1)
		go func() {
			b, _ := io.ReadAll(peerReq.DataReader())
			bodyCh <- string(b)
		}()

		headersCh := make(chan []HeaderField, 1)
		go func() {
			fields, _ := peerReq.ReadHeaders()
			headersCh <- fields
		}()

		Expect(req.WriteHeaders([]HeaderField{
			{Name: ":method", Value: "GET"},
			{Name: ":path", Value: "/"},
		})).To(Succeed())

		_, err = req.DataWriter().Write([]byte("hello world"))
		Expect(err).NotTo(HaveOccurred())

		Expect(req.WriteHeaders([]HeaderField{
			{Name: "x-trailer", Value: "done"},
		})).To(Succeed())

		Expect(req.Close()).To(Succeed())

		Eventually(bodyCh).Should(Receive(Equal("hello world")))

		var fields []HeaderField
		Eventually(headersCh).Should(Receive(&fields))
		Expect(fields).To(ContainElement(HeaderField{Name: ":method", Value: "GET"}))
		Expect(fields).To(ContainElement(HeaderField{Name: ":path", Value: "/"}))
		Expect(fields).To(ContainElement(HeaderField{Name: "x-trailer", Value: "done"}))
	})

	It("surfaces a peer reset through OnPeerSendAborted and DataReader", func() {
		peerReqCh := make(chan *Request, 1)
		clientConn, _ := newConnPair(ConnectionEvents{}, ConnectionEvents{
			OnPeerStreamStarted: func(c *Connection, r *Request) {
				peerReqCh <- r
			},
		})

		req, err := (&Connection{c: clientConn}).OpenRequest(context.Background(), RequestEvents{})
		Expect(err).NotTo(HaveOccurred())
		Expect(req.WriteHeaders([]HeaderField{{Name: ":method", Value: "GET"}})).To(Succeed())

		var peerReq *Request
		Eventually(peerReqCh).Should(Receive(&peerReq))

		abortedCh := make(chan uint64, 1)
		peerReq.SetEvents(RequestEvents{
			OnPeerSendAborted: func(r *Request, code uint64) {
				abortedCh <- code
			},
		})

		req.CancelWrite(uint64(errorRequestCanceled))

		Eventually(abortedCh).Should(Receive())

		readCh := make(chan error, 1)
		go func() {
			_, err := peerReq.DataReader().Read(make([]byte, 1))
			readCh <- err
		}()
		Eventually(readCh).Should(Receive(Not(BeNil())))
	})
})
