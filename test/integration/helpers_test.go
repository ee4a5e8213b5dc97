package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visavis/visavis/pkg/endpoint"
)

// newClient builds an endpoint client against the loopback broker,
// opens it and ties its lifetime to the test.
func newClient(t *testing.T, broker *Broker, cfg endpoint.Config) *endpoint.Client {
	t.Helper()

	cfg.BrokerURL = broker.URL()

	client, err := endpoint.New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() {
		client.Close() //nolint:errcheck
	})

	return client
}

// dialRaw connects a bare websocket to the broker, registering under
// the given id. It does not consume the OPEN frame.
func dialRaw(t *testing.T, broker *Broker, id string) *websocket.Conn {
	t.Helper()

	url := broker.URL()
	if id != "" {
		url += "/?id=" + id
	}

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing broker: %v", err)
	}
	t.Cleanup(func() {
		ws.Close() //nolint:errcheck
	})

	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) endpoint.Envelope {
	t.Helper()

	if err := ws.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() error: %v", err)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}

	env, err := endpoint.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	return env
}

func writeEnvelope(t *testing.T, ws *websocket.Conn, env endpoint.Envelope) {
	t.Helper()

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

// expectOpen consumes the registration confirmation.
func expectOpen(t *testing.T, ws *websocket.Conn) {
	t.Helper()

	if env := readEnvelope(t, ws); env.Type != endpoint.EnvelopeOpen {
		t.Fatalf("first frame is %s, want %s", env.Type, endpoint.EnvelopeOpen)
	}
}

// sendWhenOpen retries Send until the data channel opens.
func sendWhenOpen(t *testing.T, link endpoint.DataLink, payload []byte) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for {
		err := link.Send(payload)
		if err == nil {
			return
		}
		if !errors.Is(err, endpoint.ErrLinkNotOpen) {
			t.Fatalf("Send() error: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("data link never opened")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func awaitBytes(t *testing.T, ch <-chan []byte, want string) {
	t.Helper()

	select {
	case got := <-ch:
		if string(got) != want {
			t.Fatalf("received %q, want %q", got, want)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}
