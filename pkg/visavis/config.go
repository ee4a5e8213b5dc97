package visavis

import (
	"time"

	"github.com/pion/logging"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/match"
	"github.com/visavis/visavis/pkg/media"
	"github.com/visavis/visavis/pkg/signaling"
	"github.com/visavis/visavis/pkg/state"
)

// EndpointHandlers carries the callbacks a transport endpoint must
// invoke for inbound traffic. The node wires them to its matching
// engine.
type EndpointHandlers struct {
	OnIncomingCall     func(endpoint.Call)
	OnIncomingDataLink func(endpoint.DataLink)
	OnFatalError       func(kind endpoint.ErrorKind, err error)
}

// EndpointFactory builds the transport endpoint. The default factory
// dials the production broker; tests substitute in-process endpoints.
type EndpointFactory func(h EndpointHandlers) (endpoint.Endpoint, error)

// Config holds all configuration for a Node. The zero value is a
// working production configuration.
type Config struct {
	// Discovery relay.
	RelayURL string // default: signaling.DefaultRelayURL
	Region   string // presence channel region, default: global channel

	// Transport broker.
	BrokerURL  string   // default: endpoint.DefaultBrokerURL
	ICEServers []string // STUN/TURN URLs handed to every connection

	// Media capture parameters.
	Media media.Config

	// Timing - Optional (uses defaults if zero)
	WatchdogTimeout   time.Duration // handshake bound (default: 15s)
	ReannounceDelay   time.Duration // post-skip announce grace (default: 1s)
	HeartbeatInterval time.Duration // relay announce period (default: 5s)
	ReconnectDelay    time.Duration // relay redial pause (default: 5s)

	// Callbacks - Optional
	OnMessageReceived  func(text string)
	OnReactionReceived func(r match.Reaction)
	OnStatusChanged    func(s state.Status)

	// Advanced - Internal use / Testing
	Controller      media.Controller // replaces the device controller
	EndpointFactory EndpointFactory  // replaces the broker endpoint
	RelayDialer     signaling.Dialer // replaces the relay websocket dialer

	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if c.Media.LoggerFactory == nil {
		c.Media.LoggerFactory = c.LoggerFactory
	}
}
