package endpoint

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/visavis/visavis/pkg/media"
)

const (
	// DefaultBrokerURL is the production broker.
	DefaultBrokerURL = "wss://broker.visavis.io"

	// DefaultHeartbeatInterval is the broker keepalive period.
	DefaultHeartbeatInterval = 5 * time.Second
)

// Config configures the broker-backed endpoint client.
type Config struct {
	// BrokerURL is the websocket URL of the broker
	// (default: DefaultBrokerURL).
	BrokerURL string

	// ICEServers lists STUN/TURN URLs used for connection
	// establishment. Empty means host candidates only.
	ICEServers []string

	// OnIncomingCall receives inbound media calls. A nil handler
	// rejects them.
	OnIncomingCall func(Call)

	// OnIncomingDataLink receives inbound data links, already
	// answered. A nil handler rejects them.
	OnIncomingDataLink func(DataLink)

	// OnFatalError receives classified endpoint failures.
	OnFatalError func(ErrorKind, error)

	// HeartbeatInterval is the broker keepalive period
	// (default: DefaultHeartbeatInterval).
	HeartbeatInterval time.Duration

	// Dialer is an optional websocket dialer override for testing.
	Dialer Dialer

	// LoggerFactory creates the endpoint logger.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return nil
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBrokerURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidBrokerURL, u.Scheme)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.BrokerURL == "" {
		c.BrokerURL = DefaultBrokerURL
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Dialer == nil {
		c.Dialer = wsDialer{}
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// connHandle is the client's view of a live call or data link.
type connHandle interface {
	remoteID() Identity
	answer(sdp string) error
	candidate(init webrtc.ICECandidateInit)
	fireClose()
	fireError(err error)
	shutdown()
}

// Client implements Endpoint against a message broker. One websocket
// carries all signaling; each call or data link gets its own peer
// connection keyed by a connection ID.
type Client struct {
	cfg Config
	log logging.LeveledLogger

	writeMu sync.Mutex
	sock    Socket

	mu       sync.RWMutex
	identity Identity
	token    string
	opened   bool
	closed   bool
	down     bool
	handles  map[string]connHandle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an endpoint client. Open must be called before placing
// connections.
func New(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &Client{
		cfg:     config,
		log:     config.LoggerFactory.NewLogger("endpoint"),
		handles: make(map[string]connHandle),
	}, nil
}

// Open implements Endpoint. It dials the broker, waits for the
// registration confirmation and starts the signaling pumps.
func (c *Client) Open(ctx context.Context) (Identity, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.opened {
		c.mu.Unlock()
		return "", ErrAlreadyOpen
	}
	c.mu.Unlock()

	id := Identity(uuid.NewString())
	token := uuid.NewString()

	dialURL, err := brokerDialURL(c.cfg.BrokerURL, string(id), token)
	if err != nil {
		return "", err
	}

	sock, err := c.cfg.Dialer.DialContext(ctx, dialURL)
	if err != nil {
		return "", fmt.Errorf("dialing broker: %w", err)
	}

	if err := awaitOpen(ctx, sock); err != nil {
		sock.Close() //nolint:errcheck
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sock.Close() //nolint:errcheck
		return "", ErrClosed
	}
	c.opened = true
	c.identity = id
	c.token = token
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.writeMu.Lock()
	c.sock = sock
	c.writeMu.Unlock()

	c.wg.Add(2)
	go c.readLoop(sock)
	go c.heartbeat()

	c.log.Infof("registered with broker as %s", id)
	return id, nil
}

// awaitOpen reads frames until the broker confirms registration.
func awaitOpen(ctx context.Context, sock Socket) error {
	result := make(chan error, 1)
	go func() {
		for {
			_, data, err := sock.ReadMessage()
			if err != nil {
				result <- fmt.Errorf("awaiting registration: %w", err)
				return
			}
			env, err := DecodeEnvelope(data)
			if err != nil {
				continue
			}
			switch env.Type {
			case EnvelopeOpen:
				result <- nil
				return
			case EnvelopeError:
				var p ErrorPayload
				if err := decodePayload(env, &p); err == nil && p.Message != "" {
					result <- fmt.Errorf("%w: %s", ErrBrokerRejected, p.Message)
				} else {
					result <- ErrBrokerRejected
				}
				return
			}
		}
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		sock.Close() //nolint:errcheck
		return ctx.Err()
	}
}

// Identity returns the broker-assigned identity, empty before Open.
func (c *Client) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// PlaceCall implements Endpoint.
func (c *Client) PlaceCall(remote Identity, local *media.Stream) (Call, error) {
	if err := c.placeable(); err != nil {
		return nil, err
	}

	connID := uuid.NewString()
	call := newOutboundCall(c, remote, connID)

	conn, err := c.buildConnection(connID, remote, ConnKindMedia, local, call.callbacks())
	if err != nil {
		return nil, fmt.Errorf("placing call to %s: %w", remote, err)
	}
	call.setConn(conn)
	c.register(connID, call)

	offerSDP, err := conn.createOffer()
	if err != nil {
		c.releaseConnection(connID)
		conn.close()
		return nil, fmt.Errorf("placing call to %s: %w", remote, err)
	}
	if err := c.sendOffer(remote, connID, ConnKindMedia, offerSDP); err != nil {
		c.releaseConnection(connID)
		conn.close()
		return nil, err
	}
	conn.markSignaled()

	c.log.Infof("placed call to %s", remote)
	return call, nil
}

// PlaceDataLink implements Endpoint.
func (c *Client) PlaceDataLink(remote Identity) (DataLink, error) {
	if err := c.placeable(); err != nil {
		return nil, err
	}

	connID := uuid.NewString()
	link := newDataLink(c, remote, connID)

	conn, err := c.buildConnection(connID, remote, ConnKindData, nil, link.callbacks())
	if err != nil {
		return nil, fmt.Errorf("placing data link to %s: %w", remote, err)
	}
	link.setConn(conn)

	dc, err := conn.pc.CreateDataChannel("data", nil)
	if err != nil {
		conn.close()
		return nil, fmt.Errorf("placing data link to %s: %w", remote, err)
	}
	link.bindChannel(dc)
	c.register(connID, link)

	offerSDP, err := conn.createOffer()
	if err != nil {
		c.releaseConnection(connID)
		conn.close()
		return nil, fmt.Errorf("placing data link to %s: %w", remote, err)
	}
	if err := c.sendOffer(remote, connID, ConnKindData, offerSDP); err != nil {
		c.releaseConnection(connID)
		conn.close()
		return nil, err
	}
	conn.markSignaled()

	c.log.Infof("placed data link to %s", remote)
	return link, nil
}

// Close implements Endpoint.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.teardownConnections()

	c.writeMu.Lock()
	sock := c.sock
	c.sock = nil
	c.writeMu.Unlock()
	if sock != nil {
		sock.Close() //nolint:errcheck
	}

	c.wg.Wait()
	c.log.Info("endpoint closed")
	return nil
}

func (c *Client) placeable() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if !c.opened {
		return ErrNotOpen
	}
	if c.down {
		return ErrDisconnected
	}
	return nil
}

func (c *Client) rtcConfig() webrtc.Configuration {
	if len(c.cfg.ICEServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.cfg.ICEServers}},
	}
}

func (c *Client) buildConnection(connID string, remote Identity, kind string,
	local *media.Stream, cb connCallbacks) (*connection, error) {
	return newConnection(connID, remote, kind, local, c.rtcConfig(), c.send, cb, c.log)
}

// readLoop pumps broker frames until the socket dies.
func (c *Client) readLoop(sock Socket) {
	defer c.wg.Done()

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.handleSocketDown(err)
			return
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			c.log.Debugf("dropping broker frame: %v", err)
			continue
		}
		c.route(env)
	}
}

// heartbeat keeps the broker registration alive.
func (c *Client) heartbeat() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.send(Envelope{Type: EnvelopeHeartbeat}); err != nil {
				c.log.Debugf("broker heartbeat: %v", err)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) route(env Envelope) {
	switch env.Type {
	case EnvelopeOffer:
		c.handleOffer(env)
	case EnvelopeAnswer:
		c.handleAnswer(env)
	case EnvelopeCandidate:
		c.handleCandidate(env)
	case EnvelopeLeave:
		c.handleLeave(env)
	case EnvelopeExpire:
		c.handleExpire(env)
	case EnvelopeError:
		c.handleBrokerError(env)
	case EnvelopeOpen, EnvelopeHeartbeat:
		// Nothing to do after registration.
	}
}

func (c *Client) handleOffer(env Envelope) {
	var p OfferPayload
	if err := decodePayload(env, &p); err != nil {
		c.log.Debugf("dropping offer: %v", err)
		return
	}
	remote := Identity(env.Src)
	if remote == "" || p.ConnectionID == "" || p.SDP == "" {
		c.log.Debugf("dropping offer with missing fields from %q", env.Src)
		return
	}

	switch p.Kind {
	case ConnKindMedia:
		call := newInboundCall(c, remote, p.ConnectionID, p.SDP)
		c.register(p.ConnectionID, call)
		c.log.Infof("incoming call from %s", remote)
		if c.cfg.OnIncomingCall == nil {
			call.Close() //nolint:errcheck
			return
		}
		c.cfg.OnIncomingCall(call)

	case ConnKindData:
		link := newDataLink(c, remote, p.ConnectionID)
		conn, err := c.buildConnection(p.ConnectionID, remote, ConnKindData, nil, link.callbacks())
		if err != nil {
			c.log.Warnf("accepting data link from %s: %v", remote, err)
			return
		}
		link.setConn(conn)
		c.register(p.ConnectionID, link)

		answerSDP, err := conn.acceptOffer(p.SDP)
		if err != nil {
			c.releaseConnection(p.ConnectionID)
			conn.close()
			c.log.Warnf("accepting data link from %s: %v", remote, err)
			return
		}
		if err := c.sendAnswer(remote, p.ConnectionID, answerSDP); err != nil {
			c.releaseConnection(p.ConnectionID)
			conn.close()
			c.log.Warnf("answering data link from %s: %v", remote, err)
			return
		}
		conn.markSignaled()

		c.log.Infof("incoming data link from %s", remote)
		if c.cfg.OnIncomingDataLink == nil {
			link.Close() //nolint:errcheck
			return
		}
		c.cfg.OnIncomingDataLink(link)

	default:
		c.log.Warnf("offer from %s: %v: %q", remote, ErrUnknownConnectionKind, p.Kind)
	}
}

func (c *Client) handleAnswer(env Envelope) {
	var p AnswerPayload
	if err := decodePayload(env, &p); err != nil {
		c.log.Debugf("dropping answer: %v", err)
		return
	}
	h := c.lookup(p.ConnectionID)
	if h == nil || h.remoteID() != Identity(env.Src) {
		c.log.Debugf("dropping answer for unknown connection %q", p.ConnectionID)
		return
	}
	if err := h.answer(p.SDP); err != nil {
		c.log.Warnf("applying answer from %s: %v", env.Src, err)
	}
}

func (c *Client) handleCandidate(env Envelope) {
	var p CandidatePayload
	if err := decodePayload(env, &p); err != nil {
		c.log.Debugf("dropping candidate: %v", err)
		return
	}
	h := c.lookup(p.ConnectionID)
	if h == nil || h.remoteID() != Identity(env.Src) {
		c.log.Debugf("dropping candidate for unknown connection %q", p.ConnectionID)
		return
	}
	h.candidate(p.Candidate)
}

func (c *Client) handleLeave(env Envelope) {
	remote := Identity(env.Src)

	var p LeavePayload
	if len(env.Payload) > 0 {
		if err := decodePayload(env, &p); err != nil {
			c.log.Debugf("dropping leave: %v", err)
			return
		}
	}

	if p.ConnectionID != "" {
		h := c.lookup(p.ConnectionID)
		if h != nil && h.remoteID() == remote {
			h.fireClose()
		}
		return
	}

	for _, h := range c.handlesFor(remote) {
		h.fireClose()
	}
}

func (c *Client) handleExpire(env Envelope) {
	err := fmt.Errorf("endpoint: peer %s unreachable", env.Src)
	c.log.Warnf("%v", err)
	if c.cfg.OnFatalError != nil {
		c.cfg.OnFatalError(KindUnavailablePeer, err)
	}
}

// handleBrokerError surfaces broker-side failures. They only abort
// something when connections are in flight; otherwise a log line is
// all they are worth.
func (c *Client) handleBrokerError(env Envelope) {
	msg := "broker error"
	var p ErrorPayload
	if len(env.Payload) > 0 {
		if err := decodePayload(env, &p); err == nil && p.Message != "" {
			msg = p.Message
		}
	}

	c.mu.RLock()
	active := len(c.handles) > 0
	c.mu.RUnlock()

	if active && c.cfg.OnFatalError != nil {
		c.cfg.OnFatalError(KindNetwork, fmt.Errorf("endpoint: %s", msg))
		return
	}
	c.log.Warnf("broker error: %s", msg)
}

// handleSocketDown reacts to a dead broker socket. The endpoint does
// not redial; placements fail until the process restarts.
func (c *Client) handleSocketDown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.down = true
	cancel := c.cancel
	c.mu.Unlock()

	c.writeMu.Lock()
	c.sock = nil
	c.writeMu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.log.Warnf("broker socket lost: %v", cause)
	c.teardownConnections()

	if c.cfg.OnFatalError != nil {
		c.cfg.OnFatalError(KindDisconnected, fmt.Errorf("endpoint: broker socket: %w", cause))
	}
}

func (c *Client) teardownConnections() {
	c.mu.Lock()
	handles := make([]connHandle, 0, len(c.handles))
	for _, h := range c.handles {
		handles = append(handles, h)
	}
	c.handles = make(map[string]connHandle)
	c.mu.Unlock()

	for _, h := range handles {
		h.shutdown()
	}
}

func (c *Client) send(env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.sock == nil {
		return ErrDisconnected
	}
	return c.sock.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) sendOffer(remote Identity, connID, kind, sdp string) error {
	env, err := EncodeEnvelope(EnvelopeOffer, string(remote), OfferPayload{
		ConnectionID: connID,
		Kind:         kind,
		SDP:          sdp,
	})
	if err != nil {
		return err
	}
	return c.send(env)
}

func (c *Client) sendAnswer(remote Identity, connID, sdp string) error {
	env, err := EncodeEnvelope(EnvelopeAnswer, string(remote), AnswerPayload{
		ConnectionID: connID,
		SDP:          sdp,
	})
	if err != nil {
		return err
	}
	return c.send(env)
}

// sendLeave is best-effort; the far side also notices via transport
// state.
func (c *Client) sendLeave(remote Identity, connID string) {
	env, err := EncodeEnvelope(EnvelopeLeave, string(remote), LeavePayload{
		ConnectionID: connID,
	})
	if err != nil {
		return
	}
	if err := c.send(env); err != nil {
		c.log.Debugf("sending leave to %s: %v", remote, err)
	}
}

func (c *Client) register(connID string, h connHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[connID] = h
}

func (c *Client) lookup(connID string) connHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handles[connID]
}

func (c *Client) releaseConnection(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, connID)
}

func (c *Client) handlesFor(remote Identity) []connHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []connHandle
	for _, h := range c.handles {
		if h.remoteID() == remote {
			out = append(out, h)
		}
	}
	return out
}

func (c *Client) releaseCall(call *mediaCall, sendLeave bool) {
	c.releaseConnection(call.connID)
	if sendLeave {
		c.sendLeave(call.remote, call.connID)
	}
}

func (c *Client) releaseLink(link *dataLink, sendLeave bool) {
	c.releaseConnection(link.connID)
	if sendLeave {
		c.sendLeave(link.remote, link.connID)
	}
}

func brokerDialURL(base, id, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidBrokerURL, err)
	}
	q := u.Query()
	q.Set("id", id)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ Endpoint = (*Client)(nil)
