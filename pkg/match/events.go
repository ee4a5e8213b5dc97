package match

import (
	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/media"
	"github.com/visavis/visavis/pkg/signaling"
)

// event is a unit of work for the engine loop. Everything the engine
// reacts to, from presence frames to timer pops, arrives as one of
// these so the loop never needs locks around session state.
type event interface {
	isEvent()
}

// presenceEvent carries a relay broadcast from another participant.
type presenceEvent struct {
	msg signaling.Message
}

// relayUpEvent fires when the relay socket (re)opens.
type relayUpEvent struct{}

// relayDownEvent fires when the relay socket drops.
type relayDownEvent struct{}

// relayRetryEvent fires when a relay redial is about to start.
type relayRetryEvent struct{}

// incomingCallEvent carries a call offered by a remote endpoint.
type incomingCallEvent struct {
	call endpoint.Call
}

// incomingLinkEvent carries a data link offered by a remote endpoint.
type incomingLinkEvent struct {
	link endpoint.DataLink
}

// fatalErrorEvent carries an endpoint-level failure.
type fatalErrorEvent struct {
	kind endpoint.ErrorKind
	err  error
}

// Session events are tagged with the attempt counter captured when
// their handlers were bound. The loop drops events whose tag no
// longer matches the live session.

type callStreamEvent struct {
	attempt uint64
	stream  *media.RemoteStream
}

type callClosedEvent struct {
	attempt uint64
}

type callErrorEvent struct {
	attempt uint64
	err     error
}

type linkClosedEvent struct {
	attempt uint64
}

type linkErrorEvent struct {
	attempt uint64
	err     error
}

type linkMessageEvent struct {
	attempt uint64
	data    []byte
}

// pendingLinkGoneEvent fires when a parked data link dies before a
// call from its remote shows up.
type pendingLinkGoneEvent struct {
	link endpoint.DataLink
}

// watchdogEvent fires when a connection attempt has been in flight
// for the full watchdog window.
type watchdogEvent struct {
	attempt uint64
}

// reannounceEvent fires after the post-skip grace delay.
type reannounceEvent struct{}

// skipEvent abandons the current pairing and returns to matching.
type skipEvent struct{}

// sendChatEvent carries an outbound chat message.
type sendChatEvent struct {
	text string
}

// sendReactionEvent carries an outbound reaction.
type sendReactionEvent struct {
	value Reaction
}

// stopEvent shuts the loop down.
type stopEvent struct{}

func (presenceEvent) isEvent()        {}
func (relayUpEvent) isEvent()         {}
func (relayDownEvent) isEvent()       {}
func (relayRetryEvent) isEvent()      {}
func (incomingCallEvent) isEvent()    {}
func (incomingLinkEvent) isEvent()    {}
func (fatalErrorEvent) isEvent()      {}
func (callStreamEvent) isEvent()      {}
func (callClosedEvent) isEvent()      {}
func (callErrorEvent) isEvent()       {}
func (linkClosedEvent) isEvent()      {}
func (linkErrorEvent) isEvent()       {}
func (linkMessageEvent) isEvent()     {}
func (pendingLinkGoneEvent) isEvent() {}
func (watchdogEvent) isEvent()        {}
func (reannounceEvent) isEvent()      {}
func (skipEvent) isEvent()            {}
func (sendChatEvent) isEvent()        {}
func (sendReactionEvent) isEvent()    {}
func (stopEvent) isEvent()            {}
