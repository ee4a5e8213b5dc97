package endpoint

import "errors"

// ErrClosed is returned when operating on a closed endpoint.
var ErrClosed = errors.New("endpoint: closed")

// ErrAlreadyOpen is returned when Open is called twice.
var ErrAlreadyOpen = errors.New("endpoint: already open")

// ErrNotOpen is returned when placing connections before Open.
var ErrNotOpen = errors.New("endpoint: not open")

// ErrDisconnected is returned when placing connections after the
// broker socket was lost.
var ErrDisconnected = errors.New("endpoint: broker connection lost")

// ErrBrokerRejected is returned when the broker refuses registration.
var ErrBrokerRejected = errors.New("endpoint: broker rejected registration")

// ErrInvalidBrokerURL is returned for an unparseable broker URL.
var ErrInvalidBrokerURL = errors.New("endpoint: invalid broker URL")

// ErrLinkNotOpen is returned by Send before the data channel opened.
var ErrLinkNotOpen = errors.New("endpoint: data link not open")

// ErrCallAnswered is returned when answering a call twice, or one that
// was placed locally.
var ErrCallAnswered = errors.New("endpoint: call already answered")

// ErrCallClosed is returned when answering a closed call.
var ErrCallClosed = errors.New("endpoint: call closed")

// ErrTransportFailed signals that a peer connection reached the failed
// state.
var ErrTransportFailed = errors.New("endpoint: peer connection failed")

// ErrMalformedEnvelope is returned when a broker frame cannot be
// decoded.
var ErrMalformedEnvelope = errors.New("endpoint: malformed broker envelope")

// ErrUnknownConnectionKind is returned for an offer that is neither a
// media call nor a data link.
var ErrUnknownConnectionKind = errors.New("endpoint: unknown connection kind")
