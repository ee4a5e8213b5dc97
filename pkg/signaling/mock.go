package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var errMockSocketClosed = errors.New("signaling: mock socket closed")

// MockSocket provides a scripted relay socket for testing without
// network I/O. Reads block until a payload is delivered or the socket
// closes; writes are captured for inspection.
type MockSocket struct {
	inbound chan []byte

	mu      sync.Mutex
	written [][]byte

	closed    chan struct{}
	closeOnce sync.Once
}

// NewMockSocket creates an open mock socket.
func NewMockSocket() *MockSocket {
	return &MockSocket{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

// Deliver queues a presence message for ReadMessage.
func (s *MockSocket) Deliver(m Message) {
	data, err := m.Encode()
	if err != nil {
		panic(err)
	}
	s.DeliverRaw(data)
}

// DeliverRaw queues an arbitrary payload for ReadMessage.
func (s *MockSocket) DeliverRaw(data []byte) {
	select {
	case s.inbound <- data:
	case <-s.closed:
	}
}

// ReadMessage implements Socket.
func (s *MockSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-s.inbound:
		return websocket.TextMessage, data, nil
	case <-s.closed:
		return 0, nil, errMockSocketClosed
	}
}

// WriteMessage implements Socket.
func (s *MockSocket) WriteMessage(messageType int, data []byte) error {
	select {
	case <-s.closed:
		return errMockSocketClosed
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.written = append(s.written, cp)
	return nil
}

// Close implements Socket. Idempotent.
func (s *MockSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Written returns decoded presence messages written so far.
func (s *MockSocket) Written() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.written))
	for _, data := range s.written {
		m, err := DecodeMessage(data)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// WriteCount returns how many payloads were written.
func (s *MockSocket) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

// MockDialer hands out mock sockets and records dial attempts. Each
// created socket is also pushed to Dialed so tests can drive it.
type MockDialer struct {
	// Dialed receives every socket handed to the client.
	Dialed chan *MockSocket

	mu       sync.Mutex
	dials    int
	failures int
}

// NewMockDialer creates a dialer whose dials always succeed.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		Dialed: make(chan *MockSocket, 8),
	}
}

// FailNext makes the next n dial attempts return an error.
func (d *MockDialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

// DialCount returns how many dial attempts were made.
func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// DialContext implements Dialer.
func (d *MockDialer) DialContext(ctx context.Context, url string) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, errors.New("signaling: mock dial refused")
	}
	d.mu.Unlock()

	sock := NewMockSocket()
	select {
	case d.Dialed <- sock:
	default:
	}
	return sock, nil
}

var (
	_ Socket = (*MockSocket)(nil)
	_ Dialer = (*MockDialer)(nil)
)
