package endpoint

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/visavis/visavis/pkg/media"
)

// mediaCall implements Call over one peer connection. Inbound calls
// hold the remote offer until Answer materializes the connection;
// candidates trickling in before that are stashed.
type mediaCall struct {
	client *Client
	connID string
	remote Identity

	mu           sync.Mutex
	conn         *connection
	offerSDP     string
	inbound      bool
	answered     bool
	done         bool
	stashed      []webrtc.ICECandidateInit
	remoteStream *media.RemoteStream
	streamFired  bool

	onStream func(*media.RemoteStream)
	onClose  func()
	onError  func(error)
}

func newOutboundCall(client *Client, remote Identity, connID string) *mediaCall {
	return &mediaCall{
		client:   client,
		connID:   connID,
		remote:   remote,
		answered: true,
	}
}

func newInboundCall(client *Client, remote Identity, connID, offerSDP string) *mediaCall {
	return &mediaCall{
		client:   client,
		connID:   connID,
		remote:   remote,
		offerSDP: offerSDP,
		inbound:  true,
	}
}

// Remote implements Call.
func (c *mediaCall) Remote() Identity {
	return c.remote
}

// Answer implements Call.
func (c *mediaCall) Answer(local *media.Stream) error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return ErrCallClosed
	}
	if !c.inbound || c.answered {
		c.mu.Unlock()
		return ErrCallAnswered
	}
	c.answered = true
	offerSDP := c.offerSDP
	c.mu.Unlock()

	conn, err := c.client.buildConnection(c.connID, c.remote, ConnKindMedia, local, c.callbacks())
	if err != nil {
		return fmt.Errorf("answering call from %s: %w", c.remote, err)
	}
	c.setConn(conn)

	answerSDP, err := conn.acceptOffer(offerSDP)
	if err != nil {
		c.client.releaseConnection(c.connID)
		conn.close()
		return fmt.Errorf("answering call from %s: %w", c.remote, err)
	}

	if err := c.client.sendAnswer(c.remote, c.connID, answerSDP); err != nil {
		return err
	}
	conn.markSignaled()
	return nil
}

// HandleStream implements Call.
func (c *mediaCall) HandleStream(h func(*media.RemoteStream)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStream = h
}

// HandleClose implements Call.
func (c *mediaCall) HandleClose(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = h
}

// HandleError implements Call.
func (c *mediaCall) HandleError(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = h
}

// Close implements Call.
func (c *mediaCall) Close() error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return nil
	}
	c.done = true
	conn := c.conn
	c.mu.Unlock()

	c.client.releaseCall(c, true)
	if conn != nil {
		conn.close()
	}
	return nil
}

func (c *mediaCall) callbacks() connCallbacks {
	return connCallbacks{
		onTrack:  c.deliverTrack,
		onClosed: c.fireClose,
		onFailed: c.fireError,
	}
}

func (c *mediaCall) setConn(conn *connection) {
	c.mu.Lock()
	c.conn = conn
	stashed := c.stashed
	c.stashed = nil
	c.mu.Unlock()

	for _, init := range stashed {
		conn.addRemoteCandidate(init)
	}
}

// stashCandidate routes a trickled candidate, holding it locally while
// the call is still unanswered.
func (c *mediaCall) stashCandidate(init webrtc.ICECandidateInit) {
	c.mu.Lock()
	if c.conn == nil {
		c.stashed = append(c.stashed, init)
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	conn.addRemoteCandidate(init)
}

// deliverTrack collects remote tracks. The stream handler fires once,
// on the first track; later tracks join the same remote stream.
func (c *mediaCall) deliverTrack(track *webrtc.TrackRemote) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	if c.remoteStream == nil {
		c.remoteStream = media.NewRemoteStream()
	}
	c.remoteStream.Add(track)
	first := !c.streamFired
	c.streamFired = true
	stream := c.remoteStream
	h := c.onStream
	c.mu.Unlock()

	if first && h != nil {
		h(stream)
	}
}

func (c *mediaCall) fireClose() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	conn := c.conn
	h := c.onClose
	c.mu.Unlock()

	c.client.releaseCall(c, false)
	if conn != nil {
		conn.close()
	}
	if h != nil {
		h()
	}
}

func (c *mediaCall) fireError(err error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	conn := c.conn
	h := c.onError
	c.mu.Unlock()

	c.client.releaseCall(c, false)
	if conn != nil {
		conn.close()
	}
	if h != nil {
		h(err)
	}
}

func (c *mediaCall) remoteID() Identity {
	return c.remote
}

// answer applies the remote ANSWER frame on the offering side.
func (c *mediaCall) answer(sdp string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrCallClosed
	}
	return conn.acceptAnswer(sdp)
}

func (c *mediaCall) candidate(init webrtc.ICECandidateInit) {
	c.stashCandidate(init)
}

// shutdown tears the transport down without firing handlers. Used when
// the whole endpoint goes away.
func (c *mediaCall) shutdown() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.close()
	}
}

var (
	_ Call       = (*mediaCall)(nil)
	_ connHandle = (*mediaCall)(nil)
)
