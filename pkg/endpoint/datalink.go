package endpoint

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// dataLink implements DataLink over one peer connection carrying a
// single reliable, ordered data channel labelled "data".
type dataLink struct {
	client *Client
	connID string
	remote Identity

	mu   sync.Mutex
	conn *connection
	dc   *webrtc.DataChannel
	open bool
	done bool

	onMessage func([]byte)
	onClose   func()
	onError   func(error)
}

func newDataLink(client *Client, remote Identity, connID string) *dataLink {
	return &dataLink{
		client: client,
		connID: connID,
		remote: remote,
	}
}

// Remote implements DataLink.
func (l *dataLink) Remote() Identity {
	return l.remote
}

// Send implements DataLink.
func (l *dataLink) Send(data []byte) error {
	l.mu.Lock()
	if l.done || !l.open || l.dc == nil {
		l.mu.Unlock()
		return ErrLinkNotOpen
	}
	dc := l.dc
	l.mu.Unlock()

	return dc.Send(data)
}

// HandleMessage implements DataLink.
func (l *dataLink) HandleMessage(h func([]byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMessage = h
}

// HandleClose implements DataLink.
func (l *dataLink) HandleClose(h func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onClose = h
}

// HandleError implements DataLink.
func (l *dataLink) HandleError(h func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onError = h
}

// Close implements DataLink.
func (l *dataLink) Close() error {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return nil
	}
	l.done = true
	conn := l.conn
	l.mu.Unlock()

	l.client.releaseLink(l, true)
	if conn != nil {
		conn.close()
	}
	return nil
}

func (l *dataLink) callbacks() connCallbacks {
	return connCallbacks{
		onDataChannel: l.bindChannel,
		onClosed:      l.fireClose,
		onFailed:      l.fireError,
	}
}

func (l *dataLink) setConn(conn *connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = conn
}

// bindChannel attaches the data channel. Outbound links bind their
// locally created channel; inbound links bind the one announced by the
// remote offer.
func (l *dataLink) bindChannel(dc *webrtc.DataChannel) {
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()

	dc.OnOpen(func() {
		l.mu.Lock()
		l.open = true
		l.mu.Unlock()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		l.mu.Lock()
		done := l.done
		h := l.onMessage
		l.mu.Unlock()
		if done || h == nil {
			return
		}
		h(msg.Data)
	})
	dc.OnClose(l.fireClose)
	dc.OnError(l.fireError)
}

func (l *dataLink) fireClose() {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.done = true
	conn := l.conn
	h := l.onClose
	l.mu.Unlock()

	l.client.releaseLink(l, false)
	if conn != nil {
		conn.close()
	}
	if h != nil {
		h()
	}
}

func (l *dataLink) fireError(err error) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.done = true
	conn := l.conn
	h := l.onError
	l.mu.Unlock()

	l.client.releaseLink(l, false)
	if conn != nil {
		conn.close()
	}
	if h != nil {
		h(err)
	}
}

func (l *dataLink) remoteID() Identity {
	return l.remote
}

// answer applies the remote ANSWER frame on the offering side.
func (l *dataLink) answer(sdp string) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrLinkNotOpen
	}
	return conn.acceptAnswer(sdp)
}

func (l *dataLink) candidate(init webrtc.ICECandidateInit) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return
	}
	conn.addRemoteCandidate(init)
}

// shutdown tears the transport down without firing handlers. Used when
// the whole endpoint goes away.
func (l *dataLink) shutdown() {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.done = true
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		conn.close()
	}
}

var (
	_ DataLink   = (*dataLink)(nil)
	_ connHandle = (*dataLink)(nil)
)
