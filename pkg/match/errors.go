package match

import "errors"

// ErrIdentityRequired is returned when the engine is built without a
// local identity.
var ErrIdentityRequired = errors.New("match: identity required")

// ErrEndpointRequired is returned when the engine is built without a
// transport endpoint.
var ErrEndpointRequired = errors.New("match: endpoint required")

// ErrSignalerRequired is returned when the engine is built without a
// signaler.
var ErrSignalerRequired = errors.New("match: signaler required")

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("match: already started")

// ErrStopped is returned when starting an engine that was stopped.
var ErrStopped = errors.New("match: stopped")

// ErrInvalidReaction is returned when encoding an unknown reaction
// kind.
var ErrInvalidReaction = errors.New("match: invalid reaction")

// ErrMalformedPayload is returned when a data-link payload cannot be
// decoded.
var ErrMalformedPayload = errors.New("match: malformed payload")
