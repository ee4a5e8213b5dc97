package state

import "sync/atomic"

// Manager holds the live session status.
//
// The matching engine's loop is the only writer; heartbeats, facade
// getters and the diagnostics service read concurrently, so the value
// is stored atomically instead of behind a lock.
type Manager struct {
	v atomic.Int32
}

// NewManager returns a Manager starting at StatusIdle.
func NewManager() *Manager {
	return &Manager{}
}

// Get returns the current status.
func (m *Manager) Get() Status {
	return Status(m.v.Load())
}

// Set replaces the current status.
func (m *Manager) Set(s Status) {
	m.v.Store(int32(s))
}

// Is reports whether the current status equals s.
func (m *Manager) Is(s Status) bool {
	return m.Get() == s
}
