package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/visavis/visavis/pkg/endpoint"
)

// TestDataLink_EndToEnd establishes a real peer connection between two
// clients signaling through the loopback broker and exchanges traffic
// both ways.
func TestDataLink_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("establishes real peer connections")
	}
	defer test.TimeOut(30 * time.Second).Stop()

	broker := NewBroker(t)

	bGot := make(chan []byte, 8)
	bLinks := make(chan endpoint.DataLink, 1)
	b := newClient(t, broker, endpoint.Config{
		OnIncomingDataLink: func(l endpoint.DataLink) {
			l.HandleMessage(func(data []byte) {
				bGot <- append([]byte(nil), data...)
			})
			bLinks <- l
		},
	})

	a := newClient(t, broker, endpoint.Config{})

	link, err := a.PlaceDataLink(b.Identity())
	if err != nil {
		t.Fatalf("PlaceDataLink() error: %v", err)
	}

	aGot := make(chan []byte, 8)
	link.HandleMessage(func(data []byte) {
		aGot <- append([]byte(nil), data...)
	})

	chat := `{"type":"chat","text":"hello stranger"}`
	sendWhenOpen(t, link, []byte(chat))
	awaitBytes(t, bGot, chat)

	var remote endpoint.DataLink
	select {
	case remote = <-bLinks:
	case <-time.After(10 * time.Second):
		t.Fatal("no incoming data link")
	}
	if got := remote.Remote(); got != a.Identity() {
		t.Fatalf("Remote() = %s, want %s", got, a.Identity())
	}

	reaction := `{"type":"reaction","value":"wave"}`
	sendWhenOpen(t, remote, []byte(reaction))
	awaitBytes(t, aGot, reaction)
}

// TestDataLink_RemoteClose verifies that hanging up on one side
// surfaces as a close on the other.
func TestDataLink_RemoteClose(t *testing.T) {
	if testing.Short() {
		t.Skip("establishes real peer connections")
	}
	defer test.TimeOut(30 * time.Second).Stop()

	broker := NewBroker(t)

	links := make(chan endpoint.DataLink, 1)
	b := newClient(t, broker, endpoint.Config{
		OnIncomingDataLink: func(l endpoint.DataLink) { links <- l },
	})

	a := newClient(t, broker, endpoint.Config{})

	near, err := a.PlaceDataLink(b.Identity())
	if err != nil {
		t.Fatalf("PlaceDataLink() error: %v", err)
	}

	closed := make(chan struct{})
	near.HandleClose(func() { close(closed) })

	sendWhenOpen(t, near, []byte("probe"))

	var far endpoint.DataLink
	select {
	case far = <-links:
	case <-time.After(10 * time.Second):
		t.Fatal("no incoming data link")
	}

	if err := far.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatal("near side never saw the close")
	}

	if err := near.Send([]byte("after")); !errors.Is(err, endpoint.ErrLinkNotOpen) {
		t.Fatalf("Send() after close = %v, want %v", err, endpoint.ErrLinkNotOpen)
	}
}

// TestEndpoint_UnknownPeerExpires verifies that placing a connection to
// an absent peer reports an unavailable-peer failure.
func TestEndpoint_UnknownPeerExpires(t *testing.T) {
	broker := NewBroker(t)

	kinds := make(chan endpoint.ErrorKind, 1)
	a := newClient(t, broker, endpoint.Config{
		OnFatalError: func(kind endpoint.ErrorKind, err error) {
			select {
			case kinds <- kind:
			default:
			}
		},
	})

	if _, err := a.PlaceDataLink("ghost"); err != nil {
		t.Fatalf("PlaceDataLink() error: %v", err)
	}

	select {
	case kind := <-kinds:
		if kind != endpoint.KindUnavailablePeer {
			t.Fatalf("kind = %v, want %v", kind, endpoint.KindUnavailablePeer)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no fatal error reported")
	}
}

// TestEndpoint_DistinctIdentities verifies that every registration gets
// its own identity.
func TestEndpoint_DistinctIdentities(t *testing.T) {
	broker := NewBroker(t)

	a := newClient(t, broker, endpoint.Config{})
	b := newClient(t, broker, endpoint.Config{})

	if a.Identity() == "" || b.Identity() == "" {
		t.Fatal("identity missing after Open")
	}
	if a.Identity() == b.Identity() {
		t.Fatalf("identities collide: %s", a.Identity())
	}
}
