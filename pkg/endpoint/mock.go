package endpoint

import (
	"context"
	"sync"

	"github.com/visavis/visavis/pkg/media"
)

// MockEndpoint provides a mock transport endpoint for testing without
// real network I/O. Placed calls and links are recorded and returned
// as mocks the test can drive.
type MockEndpoint struct {
	// ID is the identity returned by Open.
	ID Identity

	// OpenErr, PlaceCallErr and PlaceDataLinkErr script failures.
	OpenErr          error
	PlaceCallErr     error
	PlaceDataLinkErr error

	mu     sync.Mutex
	opened bool
	closed bool
	calls  []*MockCall
	links  []*MockDataLink
}

// NewMockEndpoint creates a mock endpoint that opens as id.
func NewMockEndpoint(id Identity) *MockEndpoint {
	return &MockEndpoint{ID: id}
}

// Open implements Endpoint.
func (e *MockEndpoint) Open(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.OpenErr != nil {
		return "", e.OpenErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	if e.opened {
		return "", ErrAlreadyOpen
	}
	e.opened = true
	return e.ID, nil
}

// PlaceCall implements Endpoint.
func (e *MockEndpoint) PlaceCall(remote Identity, local *media.Stream) (Call, error) {
	if e.PlaceCallErr != nil {
		return nil, e.PlaceCallErr
	}

	call := NewMockCall(remote)
	call.placedWith = local

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	e.calls = append(e.calls, call)
	return call, nil
}

// PlaceDataLink implements Endpoint.
func (e *MockEndpoint) PlaceDataLink(remote Identity) (DataLink, error) {
	if e.PlaceDataLinkErr != nil {
		return nil, e.PlaceDataLinkErr
	}

	link := NewMockDataLink(remote)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	e.links = append(e.links, link)
	return link, nil
}

// Close implements Endpoint.
func (e *MockEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Calls returns every call placed so far.
func (e *MockEndpoint) Calls() []*MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*MockCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// Links returns every data link placed so far.
func (e *MockEndpoint) Links() []*MockDataLink {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*MockDataLink, len(e.links))
	copy(out, e.links)
	return out
}

// LastCall returns the most recently placed call, or nil.
func (e *MockEndpoint) LastCall() *MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return nil
	}
	return e.calls[len(e.calls)-1]
}

// LastLink returns the most recently placed data link, or nil.
func (e *MockEndpoint) LastLink() *MockDataLink {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.links) == 0 {
		return nil
	}
	return e.links[len(e.links)-1]
}

// MockCall is a scriptable Call. Tests drive the far side through the
// Fire helpers.
type MockCall struct {
	// RemoteID is the identity reported by Remote.
	RemoteID Identity

	// AnswerErr scripts an Answer failure.
	AnswerErr error

	mu         sync.Mutex
	placedWith *media.Stream
	answered   *media.Stream
	isAnswered bool
	closes     int

	onStream func(*media.RemoteStream)
	onClose  func()
	onError  func(error)
}

// NewMockCall creates a mock call from/to remote.
func NewMockCall(remote Identity) *MockCall {
	return &MockCall{RemoteID: remote}
}

// Remote implements Call.
func (c *MockCall) Remote() Identity {
	return c.RemoteID
}

// Answer implements Call.
func (c *MockCall) Answer(local *media.Stream) error {
	if c.AnswerErr != nil {
		return c.AnswerErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isAnswered {
		return ErrCallAnswered
	}
	c.isAnswered = true
	c.answered = local
	return nil
}

// HandleStream implements Call.
func (c *MockCall) HandleStream(h func(*media.RemoteStream)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStream = h
}

// HandleClose implements Call.
func (c *MockCall) HandleClose(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = h
}

// HandleError implements Call.
func (c *MockCall) HandleError(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = h
}

// Close implements Call.
func (c *MockCall) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// FireStream simulates the far side's media arriving.
func (c *MockCall) FireStream(stream *media.RemoteStream) {
	c.mu.Lock()
	h := c.onStream
	c.mu.Unlock()
	if h != nil {
		h(stream)
	}
}

// FireClose simulates the far side hanging up.
func (c *MockCall) FireClose() {
	c.mu.Lock()
	h := c.onClose
	c.mu.Unlock()
	if h != nil {
		h()
	}
}

// FireError simulates a transport failure.
func (c *MockCall) FireError(err error) {
	c.mu.Lock()
	h := c.onError
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Answered reports whether Answer was called.
func (c *MockCall) Answered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAnswered
}

// AnsweredWith returns the stream passed to Answer.
func (c *MockCall) AnsweredWith() *media.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answered
}

// PlacedWith returns the stream the call was placed with.
func (c *MockCall) PlacedWith() *media.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.placedWith
}

// CloseCount returns how many times Close was called.
func (c *MockCall) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// MockDataLink is a scriptable DataLink. It starts closed for sends;
// SetOpen(true) simulates the channel opening.
type MockDataLink struct {
	// RemoteID is the identity reported by Remote.
	RemoteID Identity

	// SendErr scripts a Send failure once the link is open.
	SendErr error

	mu     sync.Mutex
	open   bool
	sent   [][]byte
	closes int

	onMessage func([]byte)
	onClose   func()
	onError   func(error)
}

// NewMockDataLink creates a mock data link from/to remote.
func NewMockDataLink(remote Identity) *MockDataLink {
	return &MockDataLink{RemoteID: remote}
}

// Remote implements DataLink.
func (l *MockDataLink) Remote() Identity {
	return l.RemoteID
}

// Send implements DataLink.
func (l *MockDataLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return ErrLinkNotOpen
	}
	if l.SendErr != nil {
		return l.SendErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	l.sent = append(l.sent, cp)
	return nil
}

// HandleMessage implements DataLink.
func (l *MockDataLink) HandleMessage(h func([]byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMessage = h
}

// HandleClose implements DataLink.
func (l *MockDataLink) HandleClose(h func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onClose = h
}

// HandleError implements DataLink.
func (l *MockDataLink) HandleError(h func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onError = h
}

// Close implements DataLink.
func (l *MockDataLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	l.open = false
	return nil
}

// SetOpen flips the channel's open state.
func (l *MockDataLink) SetOpen(open bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = open
}

// FireMessage simulates an inbound message.
func (l *MockDataLink) FireMessage(data []byte) {
	l.mu.Lock()
	h := l.onMessage
	l.mu.Unlock()
	if h != nil {
		h(data)
	}
}

// FireClose simulates the far side tearing the link down.
func (l *MockDataLink) FireClose() {
	l.mu.Lock()
	h := l.onClose
	l.mu.Unlock()
	if h != nil {
		h()
	}
}

// FireError simulates a transport failure.
func (l *MockDataLink) FireError(err error) {
	l.mu.Lock()
	h := l.onError
	l.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Sent returns every payload sent over the link.
func (l *MockDataLink) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.sent))
	copy(out, l.sent)
	return out
}

// CloseCount returns how many times Close was called.
func (l *MockDataLink) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

var (
	_ Endpoint = (*MockEndpoint)(nil)
	_ Call     = (*MockCall)(nil)
	_ DataLink = (*MockDataLink)(nil)
)
