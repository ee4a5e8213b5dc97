package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream collects the far side's tracks as they arrive on a call.
// The transport endpoint appends tracks; the application reads them for
// playback. One RemoteStream exists per call.
type RemoteStream struct {
	mu     sync.RWMutex
	tracks []*webrtc.TrackRemote
}

// NewRemoteStream returns an empty RemoteStream.
func NewRemoteStream() *RemoteStream {
	return &RemoteStream{}
}

// Add appends a remote track.
func (r *RemoteStream) Add(track *webrtc.TrackRemote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = append(r.tracks, track)
}

// Tracks returns a snapshot of the remote tracks received so far.
func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*webrtc.TrackRemote, len(r.tracks))
	copy(out, r.tracks)
	return out
}

// Empty reports whether no remote track has arrived yet.
func (r *RemoteStream) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracks) == 0
}
