package media

import "errors"

var (
	// ErrPermissionDenied indicates the capture devices could not be
	// opened. Acquisition is never retried.
	ErrPermissionDenied = errors.New("media: device permission denied")

	// ErrNoMediaKinds indicates audio and video are both disabled.
	ErrNoMediaKinds = errors.New("media: audio and video both disabled")

	// ErrStreamClosed indicates an operation on a released stream.
	ErrStreamClosed = errors.New("media: stream closed")
)
