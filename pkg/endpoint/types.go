package endpoint

import (
	"context"

	"github.com/visavis/visavis/pkg/media"
)

// Identity is the opaque, globally unique address of one endpoint.
// It is assigned once per process when the endpoint opens and never
// changes afterwards. Identities order lexicographically; the ordering
// is what call arbitration between two matched peers is built on.
type Identity string

// String implements fmt.Stringer.
func (i Identity) String() string {
	return string(i)
}

// Less reports whether i orders strictly before o.
func (i Identity) Less(o Identity) bool {
	return i < o
}

// Endpoint is the transport surface consumed by the matching engine.
// Inbound calls, data links and fatal errors are delivered through the
// callbacks configured on the concrete implementation.
type Endpoint interface {
	// Open registers the endpoint and returns its assigned identity.
	// It blocks until the endpoint is reachable or ctx expires. The
	// identity is stable for the lifetime of the process.
	Open(ctx context.Context) (Identity, error)

	// PlaceCall starts an outbound media call carrying the local
	// stream's tracks.
	PlaceCall(remote Identity, local *media.Stream) (Call, error)

	// PlaceDataLink starts an outbound reliable, ordered data link.
	PlaceDataLink(remote Identity) (DataLink, error)

	// Close tears down every live connection and releases the
	// endpoint. Idempotent.
	Close() error
}

// Call is one media call, inbound or outbound. Handlers must be
// registered before the call can fire them; registering nil clears a
// handler.
type Call interface {
	// Remote returns the identity of the far side.
	Remote() Identity

	// Answer accepts an inbound call, attaching the local stream's
	// tracks. Calling it on an outbound or already answered call is an
	// error.
	Answer(local *media.Stream) error

	// HandleStream registers the callback fired when the far side's
	// media arrives.
	HandleStream(func(*media.RemoteStream))

	// HandleClose registers the callback fired when the call ends for
	// any reason other than a local Close.
	HandleClose(func())

	// HandleError registers the callback fired when the underlying
	// transport fails.
	HandleError(func(error))

	// Close hangs up. Local closes do not fire HandleClose. Idempotent.
	Close() error
}

// DataLink is one reliable, ordered byte channel, inbound or outbound.
// Inbound links are already answered when delivered; Send fails with
// ErrLinkNotOpen until the channel finishes opening.
type DataLink interface {
	// Remote returns the identity of the far side.
	Remote() Identity

	// Send transmits one message.
	Send(data []byte) error

	// HandleMessage registers the callback fired per inbound message.
	HandleMessage(func([]byte))

	// HandleClose registers the callback fired when the link ends for
	// any reason other than a local Close.
	HandleClose(func())

	// HandleError registers the callback fired when the underlying
	// transport fails.
	HandleError(func(error))

	// Close tears the link down. Local closes do not fire HandleClose.
	// Idempotent.
	Close() error
}

// ErrorKind classifies fatal endpoint errors.
type ErrorKind int

const (
	// KindUnknown is an unclassified failure.
	KindUnknown ErrorKind = iota

	// KindUnavailablePeer means the remote endpoint could not be
	// reached through the broker.
	KindUnavailablePeer

	// KindDisconnected means the broker socket was lost.
	KindDisconnected

	// KindNetwork means a network-level failure aborted a connection
	// attempt.
	KindNetwork

	// KindProtocol means the broker or a peer violated the signaling
	// protocol.
	KindProtocol
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindUnavailablePeer:
		return "unavailable-peer"
	case KindDisconnected:
		return "disconnected"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// Recoverable reports whether the kind should trigger session recovery
// rather than being logged and ignored.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindUnavailablePeer, KindDisconnected, KindNetwork:
		return true
	default:
		return false
	}
}
