package match

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/media"
	"github.com/visavis/visavis/pkg/signaling"
	"github.com/visavis/visavis/pkg/state"
)

type mockSignaler struct {
	mu        sync.Mutex
	announces int
	acks      int
	err       error
}

func (s *mockSignaler) Announce() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announces++
	return s.err
}

func (s *mockSignaler) Ack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks++
	return s.err
}

func (s *mockSignaler) Announces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announces
}

func (s *mockSignaler) Acks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acks
}

type engineFixture struct {
	t      *testing.T
	engine *Engine
	ep     *endpoint.MockEndpoint
	sig    *mockSignaler
	states *state.Manager
	chats  chan string
	emotes chan Reaction
}

// newEngineFixture builds a started engine sitting in matching with
// the relay up, the way the node hands it over after startup.
func newEngineFixture(t *testing.T, id endpoint.Identity, mutate func(*Config)) *engineFixture {
	t.Helper()

	f := &engineFixture{
		t:      t,
		ep:     endpoint.NewMockEndpoint(id),
		sig:    &mockSignaler{},
		states: state.NewManager(),
		chats:  make(chan string, 32),
		emotes: make(chan Reaction, 32),
	}
	f.states.Set(state.StatusMatching)

	cfg := Config{
		Identity:        id,
		Endpoint:        f.ep,
		Signaler:        f.sig,
		States:          f.states,
		WatchdogTimeout: time.Hour,
		ReannounceDelay: time.Millisecond,
		OnMessage:       func(text string) { f.chats <- text },
		OnReaction:      func(r Reaction) { f.emotes <- r },
	}
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.engine = e
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)

	e.OnRelayUp()
	f.awaitAnnounces(1)
	return f
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func (f *engineFixture) waitStatus(want state.Status) {
	f.t.Helper()
	eventually(f.t, func() bool { return f.states.Get() == want },
		"status never reached "+want.String())
}

// assertStill verifies the status has not moved after a quiet period.
func (f *engineFixture) assertStill(want state.Status, quiet time.Duration) {
	f.t.Helper()
	time.Sleep(quiet)
	if got := f.states.Get(); got != want {
		f.t.Fatalf("status = %s, want %s", got, want)
	}
}

func (f *engineFixture) awaitAnnounces(n int) {
	f.t.Helper()
	eventually(f.t, func() bool { return f.sig.Announces() >= n },
		"announce count never reached target")
}

func (f *engineFixture) awaitAcks(n int) {
	f.t.Helper()
	eventually(f.t, func() bool { return f.sig.Acks() >= n },
		"ack count never reached target")
}

func announceFrom(id string) signaling.Message {
	return signaling.NewMessage(signaling.MessageAnnounce, id, state.StatusMatching.String())
}

func ackFrom(id string) signaling.Message {
	return signaling.NewMessage(signaling.MessageAck, id, state.StatusMatching.String())
}

// pairUp drives the fixture into a connected session as initiator.
// The fixture identity must order below remote.
func (f *engineFixture) pairUp(remote string) (*endpoint.MockCall, *endpoint.MockDataLink) {
	f.t.Helper()

	f.engine.OnPresence(announceFrom(remote))
	f.waitStatus(state.StatusConnecting)

	call := f.ep.LastCall()
	link := f.ep.LastLink()
	if call == nil || link == nil {
		f.t.Fatal("no call or link placed")
	}
	link.SetOpen(true)
	call.FireStream(media.NewRemoteStream())
	f.waitStatus(state.StatusConnected)
	return call, link
}

func TestEngineConfigValidate(t *testing.T) {
	ep := endpoint.NewMockEndpoint("a")
	sig := &mockSignaler{}

	if _, err := New(Config{Endpoint: ep, Signaler: sig}); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("err = %v, want ErrIdentityRequired", err)
	}
	if _, err := New(Config{Identity: "a", Signaler: sig}); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("err = %v, want ErrEndpointRequired", err)
	}
	if _, err := New(Config{Identity: "a", Endpoint: ep}); !errors.Is(err, ErrSignalerRequired) {
		t.Fatalf("err = %v, want ErrSignalerRequired", err)
	}
	if _, err := New(Config{Identity: "a", Endpoint: ep, Signaler: sig}); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestEngineStartStop(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()

	e, err := New(Config{Identity: "a", Endpoint: endpoint.NewMockEndpoint("a"), Signaler: &mockSignaler{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	e.Stop()
	e.Stop()
	if err := e.Start(); !errors.Is(err, ErrStopped) {
		t.Fatalf("Start after Stop err = %v, want ErrStopped", err)
	}
}

func TestEngineLowerIdentityInitiates(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	f.engine.OnPresence(announceFrom("b2"))
	f.waitStatus(state.StatusConnecting)

	call := f.ep.LastCall()
	link := f.ep.LastLink()
	if call == nil || call.Remote() != "b2" {
		t.Fatalf("call = %v, want call to b2", call)
	}
	if link == nil || link.Remote() != "b2" {
		t.Fatalf("link = %v, want link to b2", link)
	}
	if got := f.engine.Partner(); got != "b2" {
		t.Fatalf("Partner() = %q, want b2", got)
	}
	f.awaitAcks(1)
}

func TestEngineHigherIdentityStaysPassive(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "b2", nil)

	f.engine.OnPresence(announceFrom("a1"))
	f.awaitAcks(1)

	f.assertStill(state.StatusMatching, 30*time.Millisecond)
	if n := len(f.ep.Calls()); n != 0 {
		t.Fatalf("placed %d calls, want 0", n)
	}
}

func TestEngineSelfPresenceIgnored(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	f.engine.OnPresence(announceFrom("a1"))

	f.assertStill(state.StatusMatching, 30*time.Millisecond)
	if n := len(f.ep.Calls()); n != 0 {
		t.Fatalf("placed %d calls, want 0", n)
	}
	if n := f.sig.Acks(); n != 0 {
		t.Fatalf("acked %d times, want 0", n)
	}
}

func TestEnginePresenceWrongStatusIgnored(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	m := announceFrom("b2")
	m.Status = state.StatusConnected.String()
	f.engine.OnPresence(m)

	f.assertStill(state.StatusMatching, 30*time.Millisecond)
	if n := len(f.ep.Calls()); n != 0 {
		t.Fatalf("placed %d calls, want 0", n)
	}
	if n := f.sig.Acks(); n != 0 {
		t.Fatalf("acked %d times, want 0", n)
	}
}

func TestEnginePresenceWhileConnectingIgnored(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	f.engine.OnPresence(announceFrom("b2"))
	f.waitStatus(state.StatusConnecting)

	f.engine.OnPresence(announceFrom("c3"))

	f.assertStill(state.StatusConnecting, 30*time.Millisecond)
	if n := len(f.ep.Calls()); n != 1 {
		t.Fatalf("placed %d calls, want 1", n)
	}
}

func TestEngineAckArbitratesWithoutReplying(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	f.engine.OnPresence(ackFrom("b2"))
	f.waitStatus(state.StatusConnecting)

	if n := f.sig.Acks(); n != 0 {
		t.Fatalf("acked an ack %d times, want 0", n)
	}
}

func TestEngineRemoteHangupReturnsToMatching(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	call, link := f.pairUp("b2")
	if f.engine.RemoteStream() == nil {
		t.Fatal("RemoteStream() = nil while connected")
	}
	announced := f.sig.Announces()

	call.FireClose()
	f.waitStatus(state.StatusMatching)

	if f.engine.RemoteStream() != nil {
		t.Fatal("RemoteStream() retained after hangup")
	}
	if got := f.engine.Partner(); got != "" {
		t.Fatalf("Partner() = %q after hangup, want empty", got)
	}
	if n := link.CloseCount(); n == 0 {
		t.Fatal("data link not closed on hangup")
	}
	f.awaitAnnounces(announced + 1)
}

func TestEngineLinkFailureSkips(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	call, link := f.pairUp("b2")
	link.FireError(errors.New("transport torn"))
	f.waitStatus(state.StatusMatching)

	if n := call.CloseCount(); n == 0 {
		t.Fatal("call not closed after link failure")
	}
}

func TestEngineSkipIdempotent(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	call, link := f.pairUp("b2")

	f.engine.Skip()
	f.waitStatus(state.StatusMatching)

	f.engine.Skip()
	f.assertStill(state.StatusMatching, 30*time.Millisecond)

	if n := call.CloseCount(); n != 1 {
		t.Fatalf("call closed %d times, want 1", n)
	}
	if n := link.CloseCount(); n != 1 {
		t.Fatalf("link closed %d times, want 1", n)
	}
}

func TestEngineSkipSparesTerminalStatuses(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()

	for _, st := range []state.Status{state.StatusIdle, state.StatusError} {
		f := newEngineFixture(t, "a1", nil)
		f.states.Set(st)

		f.engine.Skip()
		f.assertStill(st, 30*time.Millisecond)
	}
}

func TestEngineWatchdogAbandonsStalledHandshake(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", func(c *Config) {
		c.WatchdogTimeout = 30 * time.Millisecond
	})

	f.engine.OnPresence(announceFrom("b2"))
	f.waitStatus(state.StatusConnecting)
	call := f.ep.LastCall()

	f.waitStatus(state.StatusMatching)
	if n := call.CloseCount(); n == 0 {
		t.Fatal("stalled call not closed")
	}
	f.assertStill(state.StatusMatching, 50*time.Millisecond)
}

func TestEngineWatchdogSparesConnectedSession(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", func(c *Config) {
		c.WatchdogTimeout = 40 * time.Millisecond
	})

	call, _ := f.pairUp("b2")

	f.assertStill(state.StatusConnected, 100*time.Millisecond)
	if n := call.CloseCount(); n != 0 {
		t.Fatalf("call closed %d times, want 0", n)
	}
}

func TestEngineRelayCycle(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	f.engine.OnRelayDown()
	f.waitStatus(state.StatusSignalingOffline)

	f.engine.OnRelayReconnecting()
	f.waitStatus(state.StatusReconnecting)

	announced := f.sig.Announces()
	f.engine.OnRelayUp()
	f.waitStatus(state.StatusMatching)
	f.awaitAnnounces(announced + 1)
}

func TestEngineRelayDownDuringSessionKeepsStatus(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	call, _ := f.pairUp("b2")

	f.engine.OnRelayDown()
	f.assertStill(state.StatusConnected, 30*time.Millisecond)

	// With the relay gone, losing the partner leaves us invisible,
	// not matching.
	call.FireClose()
	f.waitStatus(state.StatusSignalingOffline)
}

func TestEngineAnswersCallWhileMatching(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "b2", nil)

	call := endpoint.NewMockCall("a1")
	f.engine.OnIncomingCall(call)
	f.waitStatus(state.StatusConnecting)

	eventually(t, call.Answered, "call never answered")
	if got := f.engine.Partner(); got != "a1" {
		t.Fatalf("Partner() = %q, want a1", got)
	}

	call.FireStream(media.NewRemoteStream())
	f.waitStatus(state.StatusConnected)
}

func TestEngineRefusesCallOutsideMatching(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	f.pairUp("b2")

	intruder := endpoint.NewMockCall("c3")
	f.engine.OnIncomingCall(intruder)

	eventually(t, func() bool { return intruder.CloseCount() > 0 }, "intruding call not closed")
	f.assertStill(state.StatusConnected, 20*time.Millisecond)
	if got := f.engine.Partner(); got != "b2" {
		t.Fatalf("Partner() = %q, want b2", got)
	}
}

func TestEngineRebindsRetriedCall(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "b2", nil)

	first := endpoint.NewMockCall("a1")
	f.engine.OnIncomingCall(first)
	f.waitStatus(state.StatusConnecting)

	second := endpoint.NewMockCall("a1")
	f.engine.OnIncomingCall(second)

	eventually(t, second.Answered, "retried call never answered")
	eventually(t, func() bool { return first.CloseCount() > 0 }, "stale call not closed")
	f.assertStill(state.StatusConnecting, 20*time.Millisecond)

	second.FireStream(media.NewRemoteStream())
	f.waitStatus(state.StatusConnected)
}

func TestEngineAdoptsPendingLink(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "b2", nil)

	link := endpoint.NewMockDataLink("a1")
	f.engine.OnIncomingDataLink(link)
	f.assertStill(state.StatusMatching, 20*time.Millisecond)

	call := endpoint.NewMockCall("a1")
	f.engine.OnIncomingCall(call)
	f.waitStatus(state.StatusConnecting)

	link.SetOpen(true)
	f.engine.SendChat("hi")
	eventually(t, func() bool { return len(link.Sent()) == 1 }, "chat never sent on adopted link")

	sent := link.Sent()[0]
	if string(sent) != `{"type":"chat","text":"hi"}` {
		t.Fatalf("sent = %s", sent)
	}
}

func TestEnginePendingLinkReplaced(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "b2", nil)

	first := endpoint.NewMockDataLink("a1")
	second := endpoint.NewMockDataLink("a0")
	f.engine.OnIncomingDataLink(first)
	f.engine.OnIncomingDataLink(second)

	eventually(t, func() bool { return first.CloseCount() > 0 }, "replaced pending link not closed")

	call := endpoint.NewMockCall("a0")
	f.engine.OnIncomingCall(call)
	f.waitStatus(state.StatusConnecting)

	second.SetOpen(true)
	f.engine.SendReaction(ReactionWave)
	eventually(t, func() bool { return len(second.Sent()) == 1 }, "reaction never sent on adopted link")
}

func TestEngineLinkDelivery(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	_, link := f.pairUp("b2")

	link.FireMessage([]byte(`{"type":"chat","text":"hey"}`))
	select {
	case got := <-f.chats:
		if got != "hey" {
			t.Fatalf("chat = %q, want hey", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chat never delivered")
	}

	link.FireMessage([]byte(`{"type":"reaction","value":"fire"}`))
	select {
	case got := <-f.emotes:
		if got != ReactionFire {
			t.Fatalf("reaction = %v, want fire", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaction never delivered")
	}

	// Unknown reactions and malformed frames are dropped.
	link.FireMessage([]byte(`{"type":"reaction","value":"boom"}`))
	link.FireMessage([]byte(`garbage`))
	select {
	case got := <-f.emotes:
		t.Fatalf("unexpected reaction %v", got)
	case got := <-f.chats:
		t.Fatalf("unexpected chat %q", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestEngineSendWithoutLinkIsNoop(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	f.engine.SendChat("into the void")
	f.engine.SendReaction(ReactionHeart)
	f.assertStill(state.StatusMatching, 20*time.Millisecond)

	// A placed but unopened link swallows sends as well.
	f.engine.OnPresence(announceFrom("b2"))
	f.waitStatus(state.StatusConnecting)
	link := f.ep.LastLink()

	f.engine.SendChat("still early")
	time.Sleep(20 * time.Millisecond)
	if n := len(link.Sent()); n != 0 {
		t.Fatalf("sent %d frames on unopened link, want 0", n)
	}
}

func TestEngineFatalErrorRecoverableSkips(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	call, _ := f.pairUp("b2")

	f.engine.OnFatalError(endpoint.KindUnavailablePeer, errors.New("peer gone"))
	f.waitStatus(state.StatusMatching)
	if n := call.CloseCount(); n == 0 {
		t.Fatal("call not closed after recoverable failure")
	}
}

func TestEngineFatalErrorProtocolIgnored(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	call, _ := f.pairUp("b2")

	f.engine.OnFatalError(endpoint.KindProtocol, errors.New("bad frame"))
	f.assertStill(state.StatusConnected, 30*time.Millisecond)
	if n := call.CloseCount(); n != 0 {
		t.Fatalf("call closed %d times, want 0", n)
	}
}

func TestEngineStopClosesSession(t *testing.T) {
	defer test.TimeOut(5 * time.Second).Stop()
	f := newEngineFixture(t, "a1", nil)

	call, link := f.pairUp("b2")

	f.engine.Stop()
	if n := call.CloseCount(); n == 0 {
		t.Fatal("call not closed on Stop")
	}
	if n := link.CloseCount(); n == 0 {
		t.Fatal("link not closed on Stop")
	}
	// The status is the owner's concern, not the engine's.
	if got := f.states.Get(); got != state.StatusConnected {
		t.Fatalf("status = %s after Stop, want connected", got)
	}
}
