// Package state holds the session status shared by every component.
//
// The status is the single source of truth for the externally observable
// session phase: protocol decisions (arbitration, skip targets, announce
// gating) consult it before acting, and applications display it. All
// transitions are performed by the matching engine's event loop; other
// goroutines only read, which is why Manager stores the value atomically.
package state

// Status is the externally observable session phase.
//
// The String form of each value is also its wire literal: presence
// messages carry it verbatim in their status field, so the names must
// never change.
type Status int32

const (
	// StatusIdle is the initial phase before the session starts.
	StatusIdle Status = iota

	// StatusGeneratingIdentity means local media is acquired and the
	// transport endpoint is registering.
	StatusGeneratingIdentity

	// StatusMatching means the participant is in the discovery pool,
	// announcing presence and arbitrating inbound announces.
	StatusMatching

	// StatusConnecting means a partner has been elected and the
	// call/data-link handshake is in flight.
	StatusConnecting

	// StatusConnected means remote media has arrived and the session
	// is live.
	StatusConnected

	// StatusDisconnected is the resting phase after a local teardown.
	StatusDisconnected

	// StatusSignalingOffline means the relay socket is down and the
	// participant is invisible to the discovery pool.
	StatusSignalingOffline

	// StatusReconnecting means a relay redial cycle is in flight.
	StatusReconnecting

	// StatusError is terminal: an unrecoverable local failure occurred
	// (media permission denial). No automatic recovery follows.
	StatusError
)

// String returns the wire literal for the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusGeneratingIdentity:
		return "generating_identity"
	case StatusMatching:
		return "matching"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusSignalingOffline:
		return "signaling_offline"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	return s >= StatusIdle && s <= StatusError
}

// IsTerminal reports whether no automatic transition ever leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusError
}

// ParseStatus maps a wire literal back to its Status.
func ParseStatus(literal string) (Status, bool) {
	for s := StatusIdle; s <= StatusError; s++ {
		if s.String() == literal {
			return s, true
		}
	}
	return StatusIdle, false
}
