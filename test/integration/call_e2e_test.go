package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/visavis/visavis/pkg/endpoint"
)

// TestCall_InboundDelivery walks the call signaling path end to end
// without media: a scripted peer offers a call through the broker, the
// client surfaces it, and declining it sends LEAVE back out.
func TestCall_InboundDelivery(t *testing.T) {
	broker := NewBroker(t)

	calls := make(chan endpoint.Call, 1)
	client := newClient(t, broker, endpoint.Config{
		OnIncomingCall: func(c endpoint.Call) { calls <- c },
	})

	alice := dialRaw(t, broker, "alice")
	expectOpen(t, alice)

	offer, err := endpoint.EncodeEnvelope(endpoint.EnvelopeOffer, string(client.Identity()), endpoint.OfferPayload{
		ConnectionID: "conn-1",
		Kind:         endpoint.ConnKindMedia,
		SDP:          "v=0",
	})
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}
	writeEnvelope(t, alice, offer)

	var call endpoint.Call
	select {
	case call = <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no incoming call")
	}

	if got := call.Remote(); got != "alice" {
		t.Fatalf("Remote() = %s, want alice", got)
	}

	if err := call.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	env := readEnvelope(t, alice)
	if env.Type != endpoint.EnvelopeLeave {
		t.Fatalf("received %s, want %s", env.Type, endpoint.EnvelopeLeave)
	}
	if env.Src != string(client.Identity()) {
		t.Fatalf("src = %q, want %q", env.Src, client.Identity())
	}

	var p endpoint.LeavePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.ConnectionID != "conn-1" {
		t.Fatalf("connectionId = %q, want conn-1", p.ConnectionID)
	}
}
