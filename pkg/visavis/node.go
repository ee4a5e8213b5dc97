package visavis

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/match"
	"github.com/visavis/visavis/pkg/media"
	"github.com/visavis/visavis/pkg/signaling"
	"github.com/visavis/visavis/pkg/state"
)

// Node is a running participant. It owns the capture devices, the
// relay client, the transport endpoint and the matching engine, and
// coordinates their lifecycle.
type Node struct {
	cfg Config
	log logging.LeveledLogger

	states *state.Manager
	media  media.Controller

	mu       sync.RWMutex
	started  bool
	stopped  bool
	identity endpoint.Identity
	stream   *media.Stream
	ep       endpoint.Endpoint
	relay    *signaling.Client
	engine   *match.Engine
}

// New creates a node from the configuration. The node is created but
// not started; call Start to join the discovery pool.
func New(cfg Config) (*Node, error) {
	cfg.applyDefaults()

	ctrl := cfg.Controller
	if ctrl == nil {
		c, err := media.NewDeviceController(cfg.Media)
		if err != nil {
			return nil, err
		}
		ctrl = c
	}

	return &Node{
		cfg:    cfg,
		log:    cfg.LoggerFactory.NewLogger("visavis"),
		states: state.NewManager(),
		media:  ctrl,
	}, nil
}

// Start brings the participant up: capture devices first, then the
// transport endpoint for an identity, then the matching engine, and
// finally the discovery relay. Any failure leaves the node in the
// error status and is returned to the caller.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return ErrStopped
	}
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}

	err := n.startStages(ctx)
	if err == nil {
		n.started = true
		id := n.identity
		n.mu.Unlock()
		n.log.Infof("node started as %s", id)
		return nil
	}

	// Unwind outside the lock. The endpoint reader delivers inbound
	// traffic through forwarders that take the lock, and closing the
	// endpoint joins that reader.
	engine, ep, relay, stream := n.detach()
	n.mu.Unlock()
	n.teardown(engine, ep, relay, stream)
	n.fail(err)
	return err
}

// startStages runs the startup sequence with the node lock held.
func (n *Node) startStages(ctx context.Context) error {
	if err := n.startMedia(ctx); err != nil {
		return err
	}
	n.setStatus(state.StatusGeneratingIdentity)

	if err := n.startEndpoint(ctx); err != nil {
		return err
	}
	if err := n.startEngine(); err != nil {
		return err
	}
	n.setStatus(state.StatusMatching)

	return n.startRelay(ctx)
}

// Stop tears the participant down in a fixed order: the engine is
// drained first so no event resurrects a session, then the endpoint,
// the relay and the capture devices. The node always lands in the
// disconnected status. Idempotent.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	if !n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = false
	engine, ep, relay, stream := n.detach()
	n.mu.Unlock()

	err := n.teardown(engine, ep, relay, stream)
	n.setStatus(state.StatusDisconnected)
	n.log.Info("node stopped")
	return err
}

// detach clears the component fields and returns them for teardown.
// Forwarders see nil from here on and drop inbound traffic.
func (n *Node) detach() (*match.Engine, endpoint.Endpoint, *signaling.Client, *media.Stream) {
	engine, ep, relay, stream := n.engine, n.ep, n.relay, n.stream
	n.engine, n.ep, n.relay, n.stream = nil, nil, nil, nil
	return engine, ep, relay, stream
}

// teardown releases components in teardown order, keeping the first
// error. Must not hold the node lock.
func (n *Node) teardown(engine *match.Engine, ep endpoint.Endpoint, relay *signaling.Client, stream *media.Stream) error {
	var firstErr error
	if engine != nil {
		engine.Stop()
	}
	if ep != nil {
		if err := ep.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if relay != nil {
		if err := relay.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if stream != nil {
		if err := n.media.Release(stream); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *Node) startMedia(ctx context.Context) error {
	stream, err := n.media.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring media: %w", err)
	}
	n.stream = stream
	return nil
}

func (n *Node) startEndpoint(ctx context.Context) error {
	factory := n.cfg.EndpointFactory
	if factory == nil {
		factory = n.brokerEndpointFactory
	}

	ep, err := factory(EndpointHandlers{
		OnIncomingCall:     n.onIncomingCall,
		OnIncomingDataLink: n.onIncomingDataLink,
		OnFatalError:       n.onEndpointError,
	})
	if err != nil {
		return fmt.Errorf("building endpoint: %w", err)
	}

	id, err := ep.Open(ctx)
	if err != nil {
		ep.Close()
		return fmt.Errorf("opening endpoint: %w", err)
	}
	n.ep = ep
	n.identity = id
	return nil
}

func (n *Node) brokerEndpointFactory(h EndpointHandlers) (endpoint.Endpoint, error) {
	return endpoint.New(endpoint.Config{
		BrokerURL:          n.cfg.BrokerURL,
		ICEServers:         n.cfg.ICEServers,
		OnIncomingCall:     h.OnIncomingCall,
		OnIncomingDataLink: h.OnIncomingDataLink,
		OnFatalError:       h.OnFatalError,
		LoggerFactory:      n.cfg.LoggerFactory,
	})
}

// startEngine builds the relay client and the matching engine. The
// relay is constructed here because the engine announces through it,
// but it does not dial until startRelay.
func (n *Node) startEngine() error {
	relay, err := signaling.New(signaling.Config{
		RelayURL:          n.cfg.RelayURL,
		Region:            n.cfg.Region,
		Identity:          string(n.identity),
		Status:            func() string { return n.states.Get().String() },
		OnPresence:        n.onPresence,
		OnUp:              n.onRelayUp,
		OnDown:            n.onRelayDown,
		OnReconnecting:    n.onRelayReconnecting,
		HeartbeatInterval: n.cfg.HeartbeatInterval,
		ReconnectDelay:    n.cfg.ReconnectDelay,
		Dialer:            n.cfg.RelayDialer,
		LoggerFactory:     n.cfg.LoggerFactory,
	})
	if err != nil {
		return fmt.Errorf("building relay client: %w", err)
	}

	engine, err := match.New(match.Config{
		Identity:        n.identity,
		Endpoint:        n.ep,
		Signaler:        relay,
		States:          n.states,
		LocalStream:     n.stream,
		WatchdogTimeout: n.cfg.WatchdogTimeout,
		ReannounceDelay: n.cfg.ReannounceDelay,
		OnMessage:       n.cfg.OnMessageReceived,
		OnReaction:      n.cfg.OnReactionReceived,
		OnStatusChange:  n.cfg.OnStatusChanged,
		LoggerFactory:   n.cfg.LoggerFactory,
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	if err := engine.Start(); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	n.relay = relay
	n.engine = engine
	return nil
}

func (n *Node) startRelay(ctx context.Context) error {
	if err := n.relay.Start(ctx); err != nil {
		return fmt.Errorf("starting relay client: %w", err)
	}
	return nil
}

// fail parks the node in the terminal error status.
func (n *Node) fail(err error) {
	n.log.Errorf("start failed: %v", err)
	n.setStatus(state.StatusError)
}

func (n *Node) setStatus(s state.Status) {
	if n.states.Get() == s {
		return
	}
	n.states.Set(s)
	if n.cfg.OnStatusChanged != nil {
		n.cfg.OnStatusChanged(s)
	}
}

// Identity returns the broker-assigned identity, or the empty identity
// before Start.
func (n *Node) Identity() endpoint.Identity {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.identity
}

// Status returns the current session status.
func (n *Node) Status() state.Status {
	return n.states.Get()
}

// Partner returns the current partner identity, or the empty identity
// outside a session.
func (n *Node) Partner() endpoint.Identity {
	if e := n.currentEngine(); e != nil {
		return e.Partner()
	}
	return ""
}

// LocalStream returns the acquired local media stream, or nil before
// Start and after Stop.
func (n *Node) LocalStream() *media.Stream {
	return n.currentStream()
}

// RemoteStream returns the partner's media stream, or nil outside a
// connected session.
func (n *Node) RemoteStream() *media.RemoteStream {
	if e := n.currentEngine(); e != nil {
		return e.RemoteStream()
	}
	return nil
}

// Skip abandons the current pairing and rejoins the discovery pool.
// A no-op before Start.
func (n *Node) Skip() {
	if e := n.currentEngine(); e != nil {
		e.Skip()
	}
}

// SendChat sends a chat message to the partner. A no-op when no
// session is live.
func (n *Node) SendChat(text string) {
	if e := n.currentEngine(); e != nil {
		e.SendChat(text)
	}
}

// SendReaction sends a reaction to the partner. A no-op when no
// session is live.
func (n *Node) SendReaction(r match.Reaction) {
	if e := n.currentEngine(); e != nil {
		e.SendReaction(r)
	}
}

// SetAudioEnabled toggles the microphone track.
func (n *Node) SetAudioEnabled(on bool) error {
	stream := n.currentStream()
	if stream == nil {
		return ErrNotStarted
	}
	return stream.SetAudioEnabled(on)
}

// SetVideoEnabled toggles the camera track.
func (n *Node) SetVideoEnabled(on bool) error {
	stream := n.currentStream()
	if stream == nil {
		return ErrNotStarted
	}
	return stream.SetVideoEnabled(on)
}

// IsMuted reports whether the microphone track is disabled. False
// before Start.
func (n *Node) IsMuted() bool {
	if stream := n.currentStream(); stream != nil {
		return !stream.AudioEnabled()
	}
	return false
}

// IsVideoOff reports whether the camera track is disabled. False
// before Start.
func (n *Node) IsVideoOff() bool {
	if stream := n.currentStream(); stream != nil {
		return !stream.VideoEnabled()
	}
	return false
}

func (n *Node) currentEngine() *match.Engine {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine
}

func (n *Node) currentStream() *media.Stream {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stream
}

// Inbound traffic forwarders. The endpoint and relay hold these for
// the node's lifetime; the engine guard covers the window between
// endpoint registration and engine construction.

func (n *Node) onIncomingCall(call endpoint.Call) {
	if e := n.currentEngine(); e != nil {
		e.OnIncomingCall(call)
		return
	}
	call.Close()
}

func (n *Node) onIncomingDataLink(link endpoint.DataLink) {
	if e := n.currentEngine(); e != nil {
		e.OnIncomingDataLink(link)
		return
	}
	link.Close()
}

func (n *Node) onEndpointError(kind endpoint.ErrorKind, err error) {
	if e := n.currentEngine(); e != nil {
		e.OnFatalError(kind, err)
	}
}

func (n *Node) onPresence(m signaling.Message) {
	if e := n.currentEngine(); e != nil {
		e.OnPresence(m)
	}
}

func (n *Node) onRelayUp() {
	if e := n.currentEngine(); e != nil {
		e.OnRelayUp()
	}
}

func (n *Node) onRelayDown() {
	if e := n.currentEngine(); e != nil {
		e.OnRelayDown()
	}
}

func (n *Node) onRelayReconnecting() {
	if e := n.currentEngine(); e != nil {
		e.OnRelayReconnecting()
	}
}
