package visavis

import (
	"context"
	"sync"
	"time"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/media"
	"github.com/visavis/visavis/pkg/signaling"
)

// MemoryHub cross-wires in-process endpoints so two nodes can call each
// other without a broker. Use this for in-memory testing without real
// network I/O.
//
// Example:
//
//	hub := visavis.NewMemoryHub()
//	a, _ := visavis.New(visavis.Config{EndpointFactory: hub.FactoryFor("aaa"), ...})
//	b, _ := visavis.New(visavis.Config{EndpointFactory: hub.FactoryFor("bbb"), ...})
//
// Calls and data links placed through the hub are delivered directly to
// the peer's handlers.
type MemoryHub struct {
	mu  sync.Mutex
	eps map[endpoint.Identity]*memEndpoint
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{eps: make(map[endpoint.Identity]*memEndpoint)}
}

// FactoryFor returns an endpoint factory that registers under the given
// identity when opened.
func (h *MemoryHub) FactoryFor(id endpoint.Identity) EndpointFactory {
	return func(hs EndpointHandlers) (endpoint.Endpoint, error) {
		return &memEndpoint{hub: h, id: id, handlers: hs}, nil
	}
}

func (h *MemoryHub) register(e *memEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eps[e.id] = e
}

func (h *MemoryHub) remove(e *memEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.eps[e.id] == e {
		delete(h.eps, e.id)
	}
}

func (h *MemoryHub) lookup(id endpoint.Identity) *memEndpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.eps[id]
}

type memEndpoint struct {
	hub      *MemoryHub
	id       endpoint.Identity
	handlers EndpointHandlers

	mu     sync.Mutex
	closed bool
}

func (e *memEndpoint) Open(ctx context.Context) (endpoint.Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", endpoint.ErrClosed
	}
	e.hub.register(e)
	return e.id, nil
}

func (e *memEndpoint) PlaceCall(remote endpoint.Identity, local *media.Stream) (endpoint.Call, error) {
	peer := e.hub.lookup(remote)
	if peer == nil {
		return nil, endpoint.ErrDisconnected
	}
	out, in := newMemCallPair(e.id, remote)
	go peer.handlers.OnIncomingCall(in)
	return out, nil
}

func (e *memEndpoint) PlaceDataLink(remote endpoint.Identity) (endpoint.DataLink, error) {
	peer := e.hub.lookup(remote)
	if peer == nil {
		return nil, endpoint.ErrDisconnected
	}
	out, in := newMemLinkPair(e.id, remote)
	go peer.handlers.OnIncomingDataLink(in)
	return out, nil
}

func (e *memEndpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.hub.remove(e)
	return nil
}

// memCall is one half of an in-process call pair. Events fired before
// a handler is bound are buffered, because the far side answers faster
// than the near side binds.
type memCall struct {
	remote endpoint.Identity
	peer   *memCall

	mu            sync.Mutex
	onStream      func(*media.RemoteStream)
	onClose       func()
	answered      bool
	closed        bool
	pendingStream *media.RemoteStream
	pendingClose  bool
}

func newMemCallPair(caller, callee endpoint.Identity) (out, in *memCall) {
	out = &memCall{remote: callee, answered: true}
	in = &memCall{remote: caller}
	out.peer, in.peer = in, out
	return out, in
}

func (c *memCall) Remote() endpoint.Identity { return c.remote }

func (c *memCall) Answer(local *media.Stream) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return endpoint.ErrCallClosed
	}
	if c.answered {
		c.mu.Unlock()
		return endpoint.ErrCallAnswered
	}
	c.answered = true
	c.mu.Unlock()

	// Media flows both ways once the call is answered.
	c.deliverStream(media.NewRemoteStream())
	c.peer.deliverStream(media.NewRemoteStream())
	return nil
}

func (c *memCall) deliverStream(rs *media.RemoteStream) {
	c.mu.Lock()
	h := c.onStream
	if h == nil {
		c.pendingStream = rs
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	h(rs)
}

func (c *memCall) HandleStream(h func(*media.RemoteStream)) {
	c.mu.Lock()
	c.onStream = h
	rs := c.pendingStream
	c.pendingStream = nil
	c.mu.Unlock()
	if rs != nil && h != nil {
		h(rs)
	}
}

func (c *memCall) HandleClose(h func()) {
	c.mu.Lock()
	c.onClose = h
	fire := c.pendingClose
	c.pendingClose = false
	c.mu.Unlock()
	if fire && h != nil {
		h()
	}
}

func (c *memCall) HandleError(h func(error)) {}

func (c *memCall) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.peer.remoteClosed()
	return nil
}

func (c *memCall) remoteClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	h := c.onClose
	if h == nil {
		c.pendingClose = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	h()
}

// memLink is one half of an in-process data link pair, open from
// creation.
type memLink struct {
	remote endpoint.Identity
	peer   *memLink

	mu           sync.Mutex
	onMessage    func([]byte)
	onClose      func()
	closed       bool
	pendingMsgs  [][]byte
	pendingClose bool
}

func newMemLinkPair(caller, callee endpoint.Identity) (out, in *memLink) {
	out = &memLink{remote: callee}
	in = &memLink{remote: caller}
	out.peer, in.peer = in, out
	return out, in
}

func (l *memLink) Remote() endpoint.Identity { return l.remote }

func (l *memLink) Send(data []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return endpoint.ErrLinkNotOpen
	}
	l.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	l.peer.deliver(cp)
	return nil
}

func (l *memLink) deliver(data []byte) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	h := l.onMessage
	if h == nil {
		l.pendingMsgs = append(l.pendingMsgs, data)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	h(data)
}

func (l *memLink) HandleMessage(h func([]byte)) {
	l.mu.Lock()
	l.onMessage = h
	queued := l.pendingMsgs
	l.pendingMsgs = nil
	l.mu.Unlock()
	if h != nil {
		for _, data := range queued {
			h(data)
		}
	}
}

func (l *memLink) HandleClose(h func()) {
	l.mu.Lock()
	l.onClose = h
	fire := l.pendingClose
	l.pendingClose = false
	l.mu.Unlock()
	if fire && h != nil {
		h()
	}
}

func (l *memLink) HandleError(h func(error)) {}

func (l *memLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	l.peer.remoteClosed()
	return nil
}

func (l *memLink) remoteClosed() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	h := l.onClose
	if h == nil {
		l.pendingClose = true
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	h()
}

var (
	_ endpoint.Endpoint = (*memEndpoint)(nil)
	_ endpoint.Call     = (*memCall)(nil)
	_ endpoint.DataLink = (*memLink)(nil)
)

// PumpPresence shuttles presence frames between two relay sockets,
// standing in for the broadcast relay. The returned stop function
// blocks until the pump exits.
func PumpPresence(a, b *signaling.MockSocket) (stop func()) {
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		var na, nb int
		tick := time.NewTicker(time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-quit:
				return
			case <-tick.C:
				wa := a.Written()
				for _, m := range wa[na:] {
					b.Deliver(m)
				}
				na = len(wa)

				wb := b.Written()
				for _, m := range wb[nb:] {
					a.Deliver(m)
				}
				nb = len(wb)
			}
		}
	}()
	return func() { close(quit); <-done }
}
