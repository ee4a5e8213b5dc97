package media

import (
	"context"
	"errors"
	"testing"
)

func TestStream_Toggles(t *testing.T) {
	s := NewStream(nil, nil)

	if !s.AudioEnabled() || !s.VideoEnabled() {
		t.Fatal("new stream should have audio and video enabled")
	}

	if err := s.SetAudioEnabled(false); err != nil {
		t.Fatalf("SetAudioEnabled(false): %v", err)
	}
	if s.AudioEnabled() {
		t.Error("AudioEnabled() = true after disabling")
	}
	if !s.VideoEnabled() {
		t.Error("VideoEnabled() flipped by audio toggle")
	}

	if err := s.SetVideoEnabled(false); err != nil {
		t.Fatalf("SetVideoEnabled(false): %v", err)
	}
	if s.VideoEnabled() {
		t.Error("VideoEnabled() = true after disabling")
	}

	if err := s.SetAudioEnabled(true); err != nil {
		t.Fatalf("SetAudioEnabled(true): %v", err)
	}
	if !s.AudioEnabled() {
		t.Error("AudioEnabled() = false after re-enabling")
	}
}

func TestStream_CloseIdempotent(t *testing.T) {
	s := NewStream(nil, nil)

	if s.Closed() {
		t.Fatal("new stream reports closed")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if !s.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStream_TogglesAfterClose(t *testing.T) {
	s := NewStream(nil, nil)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Toggles on a closed stream have no senders to touch; they must
	// not panic and the flags still track the last request.
	if err := s.SetAudioEnabled(false); err != nil {
		t.Errorf("SetAudioEnabled on closed stream: %v", err)
	}
	if s.AudioEnabled() {
		t.Error("AudioEnabled() = true, want false")
	}
}

func TestRemoteStream(t *testing.T) {
	r := NewRemoteStream()
	if !r.Empty() {
		t.Fatal("new RemoteStream not empty")
	}
	if got := len(r.Tracks()); got != 0 {
		t.Fatalf("Tracks() len = %d, want 0", got)
	}

	r.Add(nil)
	if r.Empty() {
		t.Error("Empty() = true after Add")
	}
	if got := len(r.Tracks()); got != 1 {
		t.Errorf("Tracks() len = %d, want 1", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{DisableAudio: true, DisableVideo: true}
	if err := cfg.Validate(); !errors.Is(err, ErrNoMediaKinds) {
		t.Errorf("Validate() = %v, want ErrNoMediaKinds", err)
	}

	cfg = Config{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.Width != DefaultWidth || cfg.Height != DefaultHeight {
		t.Errorf("defaults = %dx%d, want %dx%d", cfg.Width, cfg.Height, DefaultWidth, DefaultHeight)
	}
	if cfg.FrameRate != DefaultFrameRate {
		t.Errorf("FrameRate = %v, want %v", cfg.FrameRate, DefaultFrameRate)
	}
	if cfg.VideoBitRate != DefaultVideoBitRate || cfg.AudioBitRate != DefaultAudioBitRate {
		t.Errorf("bitrates = %d/%d, want %d/%d",
			cfg.VideoBitRate, cfg.AudioBitRate, DefaultVideoBitRate, DefaultAudioBitRate)
	}
	if cfg.LoggerFactory == nil {
		t.Error("LoggerFactory not defaulted")
	}
}

func TestMockController(t *testing.T) {
	t.Run("acquire and release", func(t *testing.T) {
		mc := NewMockController()

		s, err := mc.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if s == nil {
			t.Fatal("Acquire returned nil stream")
		}
		if mc.AcquireCount() != 1 {
			t.Errorf("AcquireCount = %d, want 1", mc.AcquireCount())
		}

		if err := mc.Release(s); err != nil {
			t.Fatalf("Release: %v", err)
		}
		if !s.Closed() {
			t.Error("stream not closed by Release")
		}
		if err := mc.Release(s); err != nil {
			t.Errorf("second Release: %v", err)
		}
	})

	t.Run("scripted failure", func(t *testing.T) {
		wantErr := errors.New("denied")
		mc := &MockController{AcquireErr: wantErr}

		if _, err := mc.Acquire(context.Background()); !errors.Is(err, wantErr) {
			t.Errorf("Acquire err = %v, want %v", err, wantErr)
		}
		if mc.AcquireCount() != 0 {
			t.Errorf("AcquireCount = %d, want 0", mc.AcquireCount())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		mc := NewMockController()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := mc.Acquire(ctx); err == nil {
			t.Error("Acquire with cancelled ctx returned nil error")
		}
	})
}
