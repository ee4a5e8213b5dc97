// Package integration contains end-to-end tests that run real endpoint
// clients against an in-process broker.
//
// This file (broker.go) implements the loopback broker. It speaks the
// production broker's frame protocol: clients register under the id
// query parameter, receive OPEN, and exchange envelopes routed by dst
// with src stamped on the way through. Frames addressed to unknown
// peers bounce back as EXPIRE.
package integration

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/visavis/visavis/pkg/endpoint"
)

var upgrader = websocket.Upgrader{}

// Broker is an in-process stand-in for the production session broker.
type Broker struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	clients map[string]*brokerConn
}

// NewBroker starts a loopback broker on an ephemeral port and tears it
// down with the test.
func NewBroker(t *testing.T) *Broker {
	t.Helper()

	b := &Broker{
		t:       t,
		clients: make(map[string]*brokerConn),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.Close)

	return b
}

// URL returns the websocket URL clients dial.
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

// Close disconnects every registered client and stops the server.
func (b *Broker) Close() {
	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.clients))
	for _, c := range b.clients {
		conns = append(conns, c)
	}
	b.clients = make(map[string]*brokerConn)
	b.mu.Unlock()

	for _, c := range conns {
		c.ws.Close() //nolint:errcheck
	}
	b.srv.Close()
}

func (b *Broker) handle(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &brokerConn{id: id, ws: ws}

	if id == "" {
		conn.write(mustEnvelope(endpoint.EnvelopeError, "", endpoint.ErrorPayload{
			Message: "missing id",
		}))
		ws.Close() //nolint:errcheck
		return
	}

	b.mu.Lock()
	if prev := b.clients[id]; prev != nil {
		prev.ws.Close() //nolint:errcheck
	}
	b.clients[id] = conn
	b.mu.Unlock()

	if err := conn.write(endpoint.Envelope{Type: endpoint.EnvelopeOpen}); err != nil {
		b.drop(conn)
		return
	}

	go b.pump(conn)
}

// pump relays one client's frames until its socket dies.
func (b *Broker) pump(conn *brokerConn) {
	defer b.drop(conn)

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		env, err := endpoint.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		if env.Type == endpoint.EnvelopeHeartbeat {
			continue
		}

		env.Src = conn.id

		b.mu.Lock()
		dst := b.clients[env.Dst]
		b.mu.Unlock()

		if dst == nil {
			conn.write(endpoint.Envelope{ //nolint:errcheck
				Type: endpoint.EnvelopeExpire,
				Src:  env.Dst,
			})
			continue
		}

		if err := dst.write(env); err != nil {
			b.drop(dst)
		}
	}
}

func (b *Broker) drop(conn *brokerConn) {
	b.mu.Lock()
	if b.clients[conn.id] == conn {
		delete(b.clients, conn.id)
	}
	b.mu.Unlock()

	conn.ws.Close() //nolint:errcheck
}

// brokerConn serializes writes; frames for one destination can arrive
// from several pump goroutines at once.
type brokerConn struct {
	id string

	writeMu sync.Mutex
	ws      *websocket.Conn
}

func (c *brokerConn) write(env endpoint.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func mustEnvelope(t endpoint.EnvelopeType, dst string, payload interface{}) endpoint.Envelope {
	env, err := endpoint.EncodeEnvelope(t, dst, payload)
	if err != nil {
		panic(err)
	}
	return env
}
