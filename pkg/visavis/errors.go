package visavis

import "errors"

// ErrAlreadyStarted is returned when Start is called on a running node.
var ErrAlreadyStarted = errors.New("visavis: already started")

// ErrNotStarted is returned by operations that need a running node.
var ErrNotStarted = errors.New("visavis: not started")

// ErrStopped is returned when starting a node that was stopped.
var ErrStopped = errors.New("visavis: stopped")
