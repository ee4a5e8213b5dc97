package match

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/media"
	"github.com/visavis/visavis/pkg/signaling"
	"github.com/visavis/visavis/pkg/state"
)

// Default timing knobs.
const (
	// DefaultWatchdogTimeout bounds how long a call/link handshake may
	// stay in flight before the attempt is abandoned.
	DefaultWatchdogTimeout = 15 * time.Second

	// DefaultReannounceDelay is the grace period between returning to
	// matching and broadcasting presence again. It gives the abandoned
	// partner a moment to tear down before both sides re-arbitrate.
	DefaultReannounceDelay = 1 * time.Second

	// DefaultQueueSize is the engine event queue capacity.
	DefaultQueueSize = 64
)

// Signaler is the slice of the relay client the engine drives:
// broadcasting its own presence and acknowledging announces it intends
// to act on.
type Signaler interface {
	// Announce broadcasts a client-announce on the presence channel.
	Announce() error

	// Ack answers an announce with a directed-intent client-ack.
	Ack() error
}

// Config collects the collaborators and knobs for an Engine.
type Config struct {
	// Identity is the local endpoint identity. Arbitration compares it
	// lexicographically against announcing peers. Required.
	Identity endpoint.Identity

	// Endpoint places and receives calls and data links. Required.
	Endpoint endpoint.Endpoint

	// Signaler broadcasts presence on the relay. Required.
	Signaler Signaler

	// States is the shared status cell. A private one is created when
	// nil.
	States *state.Manager

	// LocalStream is attached to every placed and answered call. May be
	// nil, in which case calls carry no local media.
	LocalStream *media.Stream

	// WatchdogTimeout bounds the connecting phase per attempt.
	WatchdogTimeout time.Duration

	// ReannounceDelay is the pause before announcing after a skip.
	ReannounceDelay time.Duration

	// QueueSize is the event queue capacity.
	QueueSize int

	// OnMessage is invoked for every chat frame received from the
	// partner. Optional.
	OnMessage func(text string)

	// OnReaction is invoked for every valid reaction frame received
	// from the partner. Optional.
	OnReaction func(r Reaction)

	// OnStatusChange is invoked after every status transition the
	// engine performs. Optional.
	OnStatusChange func(s state.Status)

	// LoggerFactory overrides the default logger.
	LoggerFactory logging.LoggerFactory
}

// Validate checks that the required collaborators are present.
func (c *Config) Validate() error {
	if c.Identity == "" {
		return ErrIdentityRequired
	}
	if c.Endpoint == nil {
		return ErrEndpointRequired
	}
	if c.Signaler == nil {
		return ErrSignalerRequired
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.States == nil {
		c.States = state.NewManager()
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.ReannounceDelay <= 0 {
		c.ReannounceDelay = DefaultReannounceDelay
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// Engine is the matching state machine. It owns every status
// transition from matching onward: arbitration of presence announces,
// session establishment, the handshake watchdog, skip recovery and
// relay visibility changes.
//
// All decisions run on one loop goroutine. Collaborators feed it
// through the On* methods, which are safe from any goroutine; the loop
// is the only writer of session state, so no lock guards it.
type Engine struct {
	cfg    Config
	log    logging.LeveledLogger
	states *state.Manager

	events chan event
	done   chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool

	// Loop-owned. Touched only by the run goroutine.
	sess          *activeSession
	pending       endpoint.DataLink
	pendingRemote endpoint.Identity
	attempt       uint64
	relayUp       bool
	watchdog      *time.Timer
	reannounce    *time.Timer

	// Read by other goroutines through getters.
	viewMu       sync.RWMutex
	remoteStream *media.RemoteStream
	partner      endpoint.Identity
}

// New builds an Engine from the config.
func New(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &Engine{
		cfg:    config,
		log:    config.LoggerFactory.NewLogger("match"),
		states: config.States,
		events: make(chan event, config.QueueSize),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the engine loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	go e.run()
	return nil
}

// Stop drains the loop, closes the active call and data link and
// returns once the loop has exited. It does not touch the status; the
// owner decides what the terminal status is.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped || !e.started {
		e.stopped = true
		started := e.started
		e.mu.Unlock()
		if started {
			<-e.done
		}
		return
	}
	e.stopped = true
	e.mu.Unlock()

	select {
	case e.events <- stopEvent{}:
	case <-e.done:
	}
	<-e.done
}

// RemoteStream returns the partner's media stream, or nil outside a
// connected session.
func (e *Engine) RemoteStream() *media.RemoteStream {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.remoteStream
}

// Partner returns the current partner identity, or the empty identity
// when no session is active.
func (e *Engine) Partner() endpoint.Identity {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.partner
}

// OnPresence feeds a relay broadcast into the loop.
func (e *Engine) OnPresence(m signaling.Message) {
	e.post(presenceEvent{msg: m})
}

// OnRelayUp signals that the relay socket is open.
func (e *Engine) OnRelayUp() {
	e.post(relayUpEvent{})
}

// OnRelayDown signals that the relay socket dropped.
func (e *Engine) OnRelayDown() {
	e.post(relayDownEvent{})
}

// OnRelayReconnecting signals that a relay redial is starting.
func (e *Engine) OnRelayReconnecting() {
	e.post(relayRetryEvent{})
}

// OnIncomingCall feeds a call offered by a remote endpoint into the
// loop.
func (e *Engine) OnIncomingCall(call endpoint.Call) {
	e.post(incomingCallEvent{call: call})
}

// OnIncomingDataLink feeds a data link offered by a remote endpoint
// into the loop.
func (e *Engine) OnIncomingDataLink(link endpoint.DataLink) {
	e.post(incomingLinkEvent{link: link})
}

// OnFatalError feeds an endpoint failure into the loop.
func (e *Engine) OnFatalError(kind endpoint.ErrorKind, err error) {
	e.post(fatalErrorEvent{kind: kind, err: err})
}

// Skip abandons the current pairing and rejoins the discovery pool.
func (e *Engine) Skip() {
	e.post(skipEvent{})
}

// SendChat sends a chat message to the partner. A no-op when no data
// link is open.
func (e *Engine) SendChat(text string) {
	e.post(sendChatEvent{text: text})
}

// SendReaction sends a reaction to the partner. A no-op when no data
// link is open.
func (e *Engine) SendReaction(r Reaction) {
	e.post(sendReactionEvent{value: r})
}

// post hands an event to the loop. Events are discarded once the loop
// has exited.
func (e *Engine) post(ev event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) run() {
	defer close(e.done)

	for ev := range e.events {
		switch ev := ev.(type) {
		case presenceEvent:
			e.handlePresence(ev.msg)
		case relayUpEvent:
			e.handleRelayUp()
		case relayDownEvent:
			e.handleRelayDown()
		case relayRetryEvent:
			e.handleRelayRetry()
		case incomingCallEvent:
			e.handleIncomingCall(ev.call)
		case incomingLinkEvent:
			e.handleIncomingLink(ev.link)
		case fatalErrorEvent:
			e.handleFatalError(ev.kind, ev.err)
		case callStreamEvent:
			e.handleCallStream(ev)
		case callClosedEvent:
			e.handleSessionGone(ev.attempt, nil)
		case callErrorEvent:
			e.handleSessionGone(ev.attempt, ev.err)
		case linkClosedEvent:
			e.handleSessionGone(ev.attempt, nil)
		case linkErrorEvent:
			e.handleSessionGone(ev.attempt, ev.err)
		case linkMessageEvent:
			e.handleLinkMessage(ev)
		case pendingLinkGoneEvent:
			e.handlePendingLinkGone(ev.link)
		case watchdogEvent:
			e.handleWatchdog(ev.attempt)
		case reannounceEvent:
			e.handleReannounce()
		case skipEvent:
			e.skip()
		case sendChatEvent:
			e.handleSendChat(ev.text)
		case sendReactionEvent:
			e.handleSendReaction(ev.value)
		case stopEvent:
			e.shutdown()
			return
		}
	}
}

// handlePresence arbitrates a broadcast from another participant.
// Presence only matters while matching: the lexicographically lower
// identity initiates, the higher one stays passive and waits for the
// inbound call.
func (e *Engine) handlePresence(m signaling.Message) {
	if e.states.Get() != state.StatusMatching {
		return
	}
	if m.ID == "" || m.ID == string(e.cfg.Identity) {
		return
	}
	if m.Status != state.StatusMatching.String() {
		return
	}

	if m.IsAnnounce() {
		if err := e.cfg.Signaler.Ack(); err != nil {
			e.log.Debugf("ack for %s: %v", m.ID, err)
		}
	}

	remote := endpoint.Identity(m.ID)
	if !e.cfg.Identity.Less(remote) {
		e.log.Debugf("staying passive for %s", m.ID)
		return
	}
	e.beginSession(remote)
}

func (e *Engine) handleRelayUp() {
	e.relayUp = true
	switch e.states.Get() {
	case state.StatusSignalingOffline, state.StatusReconnecting:
		e.setStatus(state.StatusMatching)
	}
	e.announce()
}

func (e *Engine) handleRelayDown() {
	e.relayUp = false
	if e.states.Get() == state.StatusMatching {
		e.setStatus(state.StatusSignalingOffline)
	}
}

func (e *Engine) handleRelayRetry() {
	if e.states.Get() == state.StatusSignalingOffline {
		e.setStatus(state.StatusReconnecting)
	}
}

func (e *Engine) handleFatalError(kind endpoint.ErrorKind, err error) {
	if !kind.Recoverable() {
		e.log.Warnf("endpoint failure (%s): %v", kind, err)
		return
	}
	e.log.Warnf("endpoint failure (%s), skipping: %v", kind, err)
	e.skip()
}

func (e *Engine) handleLinkMessage(ev linkMessageEvent) {
	if e.sess == nil || ev.attempt != e.sess.attempt {
		return
	}
	p, err := decodeLinkPayload(ev.data)
	if err != nil {
		e.log.Debugf("dropping link frame: %v", err)
		return
	}
	switch p.Type {
	case payloadTypeChat:
		if e.cfg.OnMessage != nil {
			e.cfg.OnMessage(p.Text)
		}
	case payloadTypeReaction:
		r, ok := ParseReaction(p.Value)
		if !ok {
			e.log.Debugf("dropping unknown reaction %q", p.Value)
			return
		}
		if e.cfg.OnReaction != nil {
			e.cfg.OnReaction(r)
		}
	}
}

func (e *Engine) handleSendChat(text string) {
	link := e.openLink()
	if link == nil {
		return
	}
	data, err := encodeChat(text)
	if err != nil {
		return
	}
	if err := link.Send(data); err != nil {
		e.log.Debugf("chat send: %v", err)
	}
}

func (e *Engine) handleSendReaction(r Reaction) {
	link := e.openLink()
	if link == nil {
		return
	}
	data, err := encodeReaction(r)
	if err != nil {
		e.log.Debugf("reaction send: %v", err)
		return
	}
	if err := link.Send(data); err != nil {
		e.log.Debugf("reaction send: %v", err)
	}
}

func (e *Engine) openLink() endpoint.DataLink {
	if e.sess == nil || e.sess.link == nil {
		return nil
	}
	return e.sess.link
}

func (e *Engine) handleReannounce() {
	if e.states.Get() != state.StatusMatching {
		return
	}
	e.announce()
}

// announce broadcasts presence. Failures are expected while the relay
// is down and only worth a debug line.
func (e *Engine) announce() {
	if err := e.cfg.Signaler.Announce(); err != nil {
		e.log.Debugf("announce: %v", err)
	}
}

func (e *Engine) setStatus(s state.Status) {
	if e.states.Get() == s {
		return
	}
	e.states.Set(s)
	e.log.Infof("status %s", s)
	if e.cfg.OnStatusChange != nil {
		e.cfg.OnStatusChange(s)
	}
}

func (e *Engine) setRemoteStream(rs *media.RemoteStream) {
	e.viewMu.Lock()
	e.remoteStream = rs
	e.viewMu.Unlock()
}

func (e *Engine) setPartner(id endpoint.Identity) {
	e.viewMu.Lock()
	e.partner = id
	e.viewMu.Unlock()
}

// shutdown releases loop-owned resources on the way out of run.
func (e *Engine) shutdown() {
	e.cancelWatchdog()
	e.cancelReannounce()
	e.closeSession()
	e.setRemoteStream(nil)
	e.setPartner("")
}
