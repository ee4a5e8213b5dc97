package endpoint

import (
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/visavis/visavis/pkg/media"
)

// connCallbacks deliver peer connection events to the owning call or
// data link. Unset callbacks are skipped.
type connCallbacks struct {
	onTrack       func(*webrtc.TrackRemote)
	onDataChannel func(*webrtc.DataChannel)
	onClosed      func()
	onFailed      func(error)
}

// connection wraps one peer connection and its trickle ICE plumbing.
// Candidates arriving before the remote description are queued and
// flushed once it is set.
type connection struct {
	id     string
	remote Identity
	kind   string

	pc   *webrtc.PeerConnection
	send func(Envelope) error
	log  logging.LeveledLogger

	mu            sync.Mutex
	pending       []webrtc.ICECandidateInit
	remoteDescSet bool
	outQueue      []Envelope
	signaled      bool
	closed        bool
}

// newConnection builds the peer connection. A non-nil local stream
// registers its codecs with the media engine and attaches its tracks;
// data links pass nil and use the default engine.
func newConnection(id string, remote Identity, kind string, local *media.Stream,
	rtc webrtc.Configuration, send func(Envelope) error, cb connCallbacks,
	log logging.LeveledLogger) (*connection, error) {

	var pc *webrtc.PeerConnection
	var err error
	if local != nil {
		engine := &webrtc.MediaEngine{}
		local.RegisterCodecs(engine)
		api := webrtc.NewAPI(webrtc.WithMediaEngine(engine))
		pc, err = api.NewPeerConnection(rtc)
	} else {
		pc, err = webrtc.NewPeerConnection(rtc)
	}
	if err != nil {
		return nil, err
	}

	c := &connection{
		id:     id,
		remote: remote,
		kind:   kind,
		pc:     pc,
		send:   send,
		log:    log,
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		env, err := EncodeEnvelope(EnvelopeCandidate, string(remote), CandidatePayload{
			ConnectionID: id,
			Candidate:    cand.ToJSON(),
		})
		if err != nil {
			c.log.Debugf("encoding candidate for %s: %v", id, err)
			return
		}
		// Candidates gathered before the offer/answer frame went out
		// wait their turn; the socket is FIFO, the handle on the far
		// side is not there yet.
		c.mu.Lock()
		if !c.signaled {
			c.outQueue = append(c.outQueue, env)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		if err := c.send(env); err != nil {
			c.log.Debugf("sending candidate for %s: %v", id, err)
		}
	})

	if cb.onTrack != nil {
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			cb.onTrack(track)
		})
	}
	if cb.onDataChannel != nil {
		pc.OnDataChannel(cb.onDataChannel)
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed:
			if cb.onFailed != nil {
				cb.onFailed(ErrTransportFailed)
			}
		case webrtc.PeerConnectionStateClosed:
			if cb.onClosed != nil {
				cb.onClosed()
			}
		}
	})

	if local != nil {
		if err := local.AddTo(pc); err != nil {
			pc.Close() //nolint:errcheck
			return nil, err
		}
	}

	return c, nil
}

// createOffer produces the local offer and starts ICE gathering.
// Candidates trickle out through the broker as they are found.
func (c *connection) createOffer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

// acceptOffer applies the remote offer and produces the local answer.
func (c *connection) acceptOffer(sdp string) (string, error) {
	err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
	if err != nil {
		return "", err
	}
	c.flushPending()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// acceptAnswer applies the remote answer on the offering side.
func (c *connection) acceptAnswer(sdp string) error {
	err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		return err
	}
	c.flushPending()
	return nil
}

// addRemoteCandidate applies a trickled candidate, queueing it while
// the remote description is still missing.
func (c *connection) addRemoteCandidate(init webrtc.ICECandidateInit) {
	c.mu.Lock()
	if !c.remoteDescSet {
		c.pending = append(c.pending, init)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.pc.AddICECandidate(init); err != nil {
		c.log.Debugf("adding candidate to %s: %v", c.id, err)
	}
}

// markSignaled releases outbound candidates held back until the
// offer or answer frame reached the broker.
func (c *connection) markSignaled() {
	c.mu.Lock()
	c.signaled = true
	queued := c.outQueue
	c.outQueue = nil
	c.mu.Unlock()

	for _, env := range queued {
		if err := c.send(env); err != nil {
			c.log.Debugf("sending queued candidate for %s: %v", c.id, err)
		}
	}
}

func (c *connection) flushPending() {
	c.mu.Lock()
	c.remoteDescSet = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, init := range pending {
		if err := c.pc.AddICECandidate(init); err != nil {
			c.log.Debugf("adding queued candidate to %s: %v", c.id, err)
		}
	}
}

// close shuts the peer connection down. Idempotent.
func (c *connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.pc.Close(); err != nil {
		c.log.Debugf("closing connection %s: %v", c.id, err)
	}
}
