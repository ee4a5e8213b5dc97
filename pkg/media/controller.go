// Package media acquires and owns the local capture devices.
//
// Acquisition happens exactly once per session: the facade asks the
// Controller for a Stream before anything else starts, and a failure is
// terminal for the whole session (a human must grant device permission
// and restart). The Stream is shared with the transport endpoint for
// every call placed or answered afterwards, and released exactly once
// on teardown.
package media

import (
	"context"

	"github.com/pion/logging"
)

// Default capture parameters.
const (
	DefaultWidth        = 640
	DefaultHeight       = 480
	DefaultFrameRate    = 30
	DefaultVideoBitRate = 500_000
	DefaultAudioBitRate = 32_000
)

// Controller acquires and releases the local capture devices.
type Controller interface {
	// Acquire opens the capture devices and returns the local stream.
	// It is called once per session; any failure is terminal.
	Acquire(ctx context.Context) (*Stream, error)

	// Release stops the stream's hardware tracks. Safe to call with a
	// stream that was already closed, or with nil.
	Release(s *Stream) error
}

// Config configures a DeviceController.
type Config struct {
	// DisableVideo skips camera acquisition; the session is audio-only.
	DisableVideo bool

	// DisableAudio skips microphone acquisition.
	DisableAudio bool

	// Video capture parameters. Zero values use the defaults above.
	Width     int
	Height    int
	FrameRate float32

	// Encoder target bitrates in bits per second.
	VideoBitRate int
	AudioBitRate int

	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DisableAudio && c.DisableVideo {
		return ErrNoMediaKinds
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.FrameRate == 0 {
		c.FrameRate = DefaultFrameRate
	}
	if c.VideoBitRate == 0 {
		c.VideoBitRate = DefaultVideoBitRate
	}
	if c.AudioBitRate == 0 {
		c.AudioBitRate = DefaultAudioBitRate
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}
