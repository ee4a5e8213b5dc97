package media

import (
	"context"
	"sync"
)

// MockController provides a media controller for testing without real
// capture hardware. It hands out empty streams (no tracks, no codec
// selector) and records lifecycle calls.
type MockController struct {
	// AcquireErr, when set, is returned by Acquire instead of a stream.
	AcquireErr error

	mu       sync.Mutex
	acquired int
	released int
	last     *Stream
}

// NewMockController creates a mock controller that always succeeds.
func NewMockController() *MockController {
	return &MockController{}
}

// Acquire implements Controller.
func (m *MockController) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	m.acquired++
	m.last = NewStream(nil, nil)
	return m.last, nil
}

// Release implements Controller.
func (m *MockController) Release(s *Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
	if s == nil {
		return nil
	}
	return s.Close()
}

// AcquireCount returns how many times Acquire succeeded.
func (m *MockController) AcquireCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

// ReleaseCount returns how many times Release was called.
func (m *MockController) ReleaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// LastStream returns the most recently acquired stream, or nil.
func (m *MockController) LastStream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

var _ Controller = (*MockController)(nil)
