package signaling

import "errors"

// Package-level sentinel errors for the relay client.
var (
	// ErrClosed is returned when an operation is attempted on a closed client.
	ErrClosed = errors.New("signaling: closed")

	// ErrAlreadyStarted is returned when starting an already-started client.
	ErrAlreadyStarted = errors.New("signaling: already started")

	// ErrNotConnected is returned when sending while the relay socket is down.
	// Presence is fire-and-forget, so callers normally drop this silently.
	ErrNotConnected = errors.New("signaling: not connected")

	// ErrIdentityRequired is returned when the config has no local identity.
	ErrIdentityRequired = errors.New("signaling: identity required")

	// ErrStatusProviderRequired is returned when the config has no status provider.
	ErrStatusProviderRequired = errors.New("signaling: status provider required")

	// ErrInvalidRelayURL is returned when the relay URL cannot be parsed.
	ErrInvalidRelayURL = errors.New("signaling: invalid relay URL")

	// ErrMalformedMessage is returned for presence payloads that fail to decode.
	ErrMalformedMessage = errors.New("signaling: malformed message")

	// ErrInvalidMessageType is returned for presence types other than announce/ack.
	ErrInvalidMessageType = errors.New("signaling: invalid message type")

	// ErrMissingIdentity is returned for presence messages without a sender id.
	ErrMissingIdentity = errors.New("signaling: missing sender identity")

	// ErrMissingStatus is returned for presence messages without a declared status.
	ErrMissingStatus = errors.New("signaling: missing declared status")
)
