package media

import (
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// Stream is the acquired local media, shared by every call the session
// places or answers. Mute and video-off act on the RTP senders the
// stream is currently bound to, so toggles apply immediately to a live
// call and carry over to the next one.
type Stream struct {
	mu       sync.Mutex
	tracks   []mediadevices.Track
	selector *mediadevices.CodecSelector
	bound    []boundSender
	audioOn  bool
	videoOn  bool
	closed   bool
}

type boundSender struct {
	sender *webrtc.RTPSender
	track  mediadevices.Track
}

// NewStream wraps acquired tracks. The selector may be nil for streams
// that never negotiate codecs (tests).
func NewStream(tracks []mediadevices.Track, selector *mediadevices.CodecSelector) *Stream {
	return &Stream{
		tracks:   tracks,
		selector: selector,
		audioOn:  true,
		videoOn:  true,
	}
}

// Tracks returns a snapshot of the local tracks.
func (s *Stream) Tracks() []mediadevices.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mediadevices.Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// RegisterCodecs populates a MediaEngine with the codecs the stream's
// tracks encode with. A peer connection carrying this stream must be
// built from an API that registered them.
func (s *Stream) RegisterCodecs(engine *webrtc.MediaEngine) {
	if s.selector != nil {
		s.selector.Populate(engine)
	}
}

// AddTo adds every track to pc and binds the resulting senders, so
// later mute toggles reach the live connection. Current toggle state is
// applied right away. Binding replaces any previous binding; the
// session controller closes the previous connection before placing or
// answering a new call, so at most one connection is bound at a time.
func (s *Stream) AddTo(pc *webrtc.PeerConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	bound := make([]boundSender, 0, len(s.tracks))
	for _, track := range s.tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			return err
		}
		bound = append(bound, boundSender{sender: sender, track: track})
	}
	s.bound = bound

	return s.applyLocked()
}

// SetAudioEnabled toggles the microphone feed on bound senders.
func (s *Stream) SetAudioEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioOn = on
	return s.applyLocked()
}

// SetVideoEnabled toggles the camera feed on bound senders.
func (s *Stream) SetVideoEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoOn = on
	return s.applyLocked()
}

// AudioEnabled reports whether the microphone feed is on.
func (s *Stream) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOn
}

// VideoEnabled reports whether the camera feed is on.
func (s *Stream) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOn
}

// applyLocked pushes the toggle state to every bound sender by swapping
// the real track in or out.
func (s *Stream) applyLocked() error {
	var firstErr error
	for _, bs := range s.bound {
		on := s.audioOn
		if bs.track.Kind() == webrtc.RTPCodecTypeVideo {
			on = s.videoOn
		}

		var err error
		if on {
			err = bs.sender.ReplaceTrack(bs.track)
		} else {
			err = bs.sender.ReplaceTrack(nil)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops every hardware track. Idempotent; called exactly once per
// teardown path by the controller.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.bound = nil

	var firstErr error
	for _, track := range s.tracks {
		if err := track.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Closed reports whether the stream has been released.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
