package media

import (
	"context"
	"fmt"

	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"

	// Register the capture device adapters.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)

// DeviceController acquires the real camera and microphone through
// pion/mediadevices, encoding video as VP8 and audio as Opus.
type DeviceController struct {
	cfg Config
	log logging.LeveledLogger
}

// NewDeviceController creates a DeviceController.
func NewDeviceController(cfg Config) (*DeviceController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &DeviceController{
		cfg: cfg,
		log: cfg.LoggerFactory.NewLogger("media"),
	}, nil
}

// Acquire opens the configured capture devices once and returns the
// local stream. Failures wrap ErrPermissionDenied and are terminal for
// the session.
func (d *DeviceController) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	selector, err := d.buildSelector()
	if err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: selector}
	if !d.cfg.DisableVideo {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(d.cfg.Width)
			c.Height = prop.Int(d.cfg.Height)
			c.FrameRate = prop.Float(d.cfg.FrameRate)
		}
	}
	if !d.cfg.DisableAudio {
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
		}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, err)
	}

	tracks := ms.GetTracks()
	d.log.Infof("acquired %d local track(s)", len(tracks))
	return NewStream(tracks, selector), nil
}

// Release stops all hardware tracks of s. Idempotent.
func (d *DeviceController) Release(s *Stream) error {
	if s == nil {
		return nil
	}
	if err := s.Close(); err != nil {
		return err
	}
	d.log.Info("released local stream")
	return nil
}

func (d *DeviceController) buildSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("media: create VP8 params: %w", err)
	}
	vpxParams.BitRate = d.cfg.VideoBitRate
	vpxParams.KeyFrameInterval = 15

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("media: create Opus params: %w", err)
	}
	opusParams.BitRate = d.cfg.AudioBitRate
	opusParams.Latency = opus.Latency20ms

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

var _ Controller = (*DeviceController)(nil)
