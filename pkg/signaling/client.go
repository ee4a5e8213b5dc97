// Package signaling maintains the relay connection used for peer
// discovery.
//
// The relay is a broadcast publish/subscribe socket with best-effort,
// at-least-once delivery and no cross-client ordering. The client keeps
// exactly one socket open per process, announces presence on a
// heartbeat, filters inbound presence down to the events the matching
// engine may act on, and redials forever at a fixed delay when the
// socket drops. Session media and data never touch the relay.
package signaling

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/visavis/visavis/pkg/state"
)

// DefaultRelayURL is the production relay endpoint.
const DefaultRelayURL = "wss://relay.visavis.io"

// Default timing. The heartbeat keeps the relay connection alive and
// lets slow joiners discover peers whose initial announce they missed;
// the reconnect delay is fixed on purpose (no exponential growth, no
// cap): the relay is cheap and ephemeral.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultReconnectDelay    = 5 * time.Second
)

// Socket is the subset of a websocket connection the client uses.
// *websocket.Conn satisfies it; tests inject scripted sockets.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens relay sockets. The default implementation wraps the
// gorilla websocket dialer.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Socket, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

func (w *wsDialer) DialContext(ctx context.Context, rawURL string) (Socket, error) {
	conn, resp, err := w.d.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, nil
}

// Config holds configuration for the relay client.
type Config struct {
	// RelayURL is the relay base URL (default: DefaultRelayURL). The
	// region's channel name is appended to it.
	RelayURL string

	// Region selects the presence channel. Unknown regions use the
	// global channel.
	Region string

	// Identity is the local rendezvous identifier, used as the sender
	// id on announces and for the self-reflection filter. Required.
	Identity string

	// Status returns the current session status literal stamped on
	// outbound presence. Required.
	Status func() string

	// OnPresence receives inbound announce/ack events that survived
	// filtering (not self-originated, declared status "matching").
	OnPresence func(Message)

	// OnUp fires when the socket (re)opens, before any announce, so the
	// engine can restore status first.
	OnUp func()

	// OnDown fires once per lost connection (never on local teardown).
	OnDown func()

	// OnReconnecting fires once per outage when redialing begins.
	OnReconnecting func()

	// HeartbeatInterval is the announce period while the socket is open.
	HeartbeatInterval time.Duration

	// ReconnectDelay is the fixed delay before and between redials.
	ReconnectDelay time.Duration

	// Dialer is the socket factory. Defaults to the gorilla dialer.
	Dialer Dialer

	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Identity == "" {
		return ErrIdentityRequired
	}
	if c.Status == nil {
		return ErrStatusProviderRequired
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RelayURL == "" {
		c.RelayURL = DefaultRelayURL
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Dialer == nil {
		c.Dialer = &wsDialer{d: websocket.DefaultDialer}
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// Client is the relay connection. At most one socket is open at a time;
// a dropped socket is redialed forever at the fixed delay until Close.
type Client struct {
	cfg     Config
	channel string
	url     string
	log     logging.LeveledLogger

	mu      sync.Mutex // guards sock, started, closed, and write order
	sock    Socket
	started bool
	closed  bool

	// Touched only by the run goroutine.
	downNotified bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a relay client for the configured region's channel.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	channel := ChannelForRegion(cfg.Region)
	dialURL, err := url.JoinPath(cfg.RelayURL, "channels", channel)
	if err != nil {
		return nil, ErrInvalidRelayURL
	}

	return &Client{
		cfg:     cfg,
		channel: channel,
		url:     dialURL,
		log:     cfg.LoggerFactory.NewLogger("signaling"),
	}, nil
}

// Channel returns the resolved presence channel name.
func (c *Client) Channel() string {
	return c.channel
}

// Start begins dialing and serving the relay connection in the
// background. The first dial attempt is immediate.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run()

	return nil
}

// Announce broadcasts one announce carrying the current status literal.
func (c *Client) Announce() error {
	return c.send(MessageAnnounce)
}

// Ack replies to an announcer so it also discovers this peer; broadcast
// delivery is not guaranteed to reach all listeners symmetrically.
func (c *Client) Ack() error {
	return c.send(MessageAck)
}

func (c *Client) send(t MessageType) error {
	m := NewMessage(t, c.cfg.Identity, c.cfg.Status())
	data, err := m.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return ErrNotConnected
	}
	return c.sock.WriteMessage(websocket.TextMessage, data)
}

// Close tears the client down: no further reconnects, socket closed,
// heartbeat stopped. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sock := c.sock
	c.sock = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sock != nil {
		sock.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *Client) run() {
	defer c.wg.Done()

	for {
		sock, err := c.connect()
		if err != nil {
			return
		}

		c.setSock(sock)
		c.downNotified = false
		if c.cfg.OnUp != nil {
			c.cfg.OnUp()
		}
		c.log.Infof("relay up on channel %s", c.channel)

		stop := make(chan struct{})
		c.wg.Add(1)
		go c.heartbeat(stop)

		c.readLoop(sock)

		close(stop)
		c.setSock(nil)
		sock.Close()

		if c.done() {
			return
		}

		c.notifyDown()
		select {
		case <-time.After(c.cfg.ReconnectDelay):
		case <-c.ctx.Done():
			return
		}
		if c.cfg.OnReconnecting != nil {
			c.cfg.OnReconnecting()
		}
	}
}

// connect dials until a socket opens, waiting the fixed delay between
// attempts. It returns an error only when the client is shutting down.
func (c *Client) connect() (Socket, error) {
	var sock Socket
	op := func() error {
		if err := c.ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		s, err := c.cfg.Dialer.DialContext(c.ctx, c.url)
		if err != nil {
			c.log.Warnf("relay dial %s: %v", c.url, err)
			c.notifyDown()
			return err
		}
		sock = s
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(c.cfg.ReconnectDelay), c.ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return sock, nil
}

func (c *Client) readLoop(sock Socket) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.log.Debugf("relay read: %v", err)
			return
		}

		m, err := DecodeMessage(data)
		if err != nil {
			c.log.Debugf("dropping presence payload: %v", err)
			continue
		}
		if m.ID == c.cfg.Identity {
			// The relay echoes broadcasts back to the sender.
			continue
		}
		if m.Status != state.StatusMatching.String() {
			continue
		}
		if c.cfg.OnPresence != nil {
			c.cfg.OnPresence(m)
		}
	}
}

// heartbeat re-announces while the socket is open.
func (c *Client) heartbeat(stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Announce(); err != nil {
				c.log.Debugf("heartbeat announce: %v", err)
			}
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) notifyDown() {
	if c.downNotified {
		return
	}
	c.downNotified = true
	c.log.Warn("relay down")
	if c.cfg.OnDown != nil {
		c.cfg.OnDown()
	}
}

func (c *Client) setSock(s Socket) {
	c.mu.Lock()
	c.sock = s
	c.mu.Unlock()
}

func (c *Client) done() bool {
	if c.ctx.Err() != nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
