package integration

import (
	"encoding/json"
	"testing"

	"github.com/visavis/visavis/pkg/endpoint"
)

// TestBroker_RoutesFrames verifies that the loopback broker stamps src
// and delivers frames by dst, and that heartbeats stay on the broker.
func TestBroker_RoutesFrames(t *testing.T) {
	broker := NewBroker(t)

	alice := dialRaw(t, broker, "alice")
	bob := dialRaw(t, broker, "bob")
	expectOpen(t, alice)
	expectOpen(t, bob)

	writeEnvelope(t, alice, endpoint.Envelope{
		Type: endpoint.EnvelopeHeartbeat,
	})

	offer, err := endpoint.EncodeEnvelope(endpoint.EnvelopeOffer, "bob", endpoint.OfferPayload{
		ConnectionID: "conn-1",
		Kind:         endpoint.ConnKindData,
		SDP:          "v=0",
	})
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}
	writeEnvelope(t, alice, offer)

	env := readEnvelope(t, bob)
	if env.Type != endpoint.EnvelopeOffer {
		t.Fatalf("bob received %s, want %s", env.Type, endpoint.EnvelopeOffer)
	}
	if env.Src != "alice" {
		t.Fatalf("src = %q, want %q", env.Src, "alice")
	}

	var p endpoint.OfferPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.ConnectionID != "conn-1" || p.Kind != endpoint.ConnKindData || p.SDP != "v=0" {
		t.Fatalf("payload = %+v", p)
	}
}

// TestBroker_ExpiresUnknownPeer verifies that undeliverable frames
// bounce back as EXPIRE naming the unreachable peer.
func TestBroker_ExpiresUnknownPeer(t *testing.T) {
	broker := NewBroker(t)

	alice := dialRaw(t, broker, "alice")
	expectOpen(t, alice)

	offer, err := endpoint.EncodeEnvelope(endpoint.EnvelopeOffer, "ghost", endpoint.OfferPayload{
		ConnectionID: "conn-1",
		Kind:         endpoint.ConnKindData,
		SDP:          "v=0",
	})
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}
	writeEnvelope(t, alice, offer)

	env := readEnvelope(t, alice)
	if env.Type != endpoint.EnvelopeExpire {
		t.Fatalf("received %s, want %s", env.Type, endpoint.EnvelopeExpire)
	}
	if env.Src != "ghost" {
		t.Fatalf("src = %q, want %q", env.Src, "ghost")
	}
}

// TestBroker_RejectsMissingID verifies that a registration without an
// id is turned away with an ERROR frame.
func TestBroker_RejectsMissingID(t *testing.T) {
	broker := NewBroker(t)

	ws := dialRaw(t, broker, "")

	env := readEnvelope(t, ws)
	if env.Type != endpoint.EnvelopeError {
		t.Fatalf("received %s, want %s", env.Type, endpoint.EnvelopeError)
	}
}
