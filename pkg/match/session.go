package match

import (
	"time"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/media"
	"github.com/visavis/visavis/pkg/state"
)

// activeSession is the call/link pair bound to one partner. Owned by
// the loop goroutine.
type activeSession struct {
	remote    endpoint.Identity
	call      endpoint.Call
	link      endpoint.DataLink
	attempt   uint64
	initiator bool
}

// beginSession runs the initiator side of arbitration: place the call,
// place the data link, then wait for media under the watchdog.
func (e *Engine) beginSession(remote endpoint.Identity) {
	e.attempt++
	attempt := e.attempt

	e.log.Infof("initiating session with %s", remote)

	call, err := e.cfg.Endpoint.PlaceCall(remote, e.cfg.LocalStream)
	if err != nil {
		e.log.Warnf("placing call to %s: %v", remote, err)
		e.scheduleReannounce()
		return
	}
	link, err := e.cfg.Endpoint.PlaceDataLink(remote)
	if err != nil {
		e.log.Warnf("placing data link to %s: %v", remote, err)
		call.Close()
		e.scheduleReannounce()
		return
	}

	e.sess = &activeSession{
		remote:    remote,
		call:      call,
		link:      link,
		attempt:   attempt,
		initiator: true,
	}
	e.bindCall(call, attempt)
	e.bindLink(link, attempt)
	e.setPartner(remote)
	e.setStatus(state.StatusConnecting)
	e.armWatchdog(attempt)
}

// handleIncomingCall runs the passive side. A call is only welcome
// while matching, or while connecting from the same remote (the
// initiator may retry its handshake before the watchdog fires here).
// Everything else is refused.
func (e *Engine) handleIncomingCall(call endpoint.Call) {
	remote := call.Remote()
	st := e.states.Get()

	switch {
	case st == state.StatusMatching:
		e.answerCall(call)
	case st == state.StatusConnecting && e.sess != nil && e.sess.remote == remote:
		e.rebindCall(call)
	default:
		e.log.Debugf("refusing call from %s while %s", remote, st)
		call.Close()
	}
}

// answerCall accepts a call while matching and opens a fresh session
// around it. A data link parked by handleIncomingLink for the same
// remote is adopted into the session.
func (e *Engine) answerCall(call endpoint.Call) {
	remote := call.Remote()
	e.attempt++
	attempt := e.attempt

	e.log.Infof("answering call from %s", remote)

	if err := call.Answer(e.cfg.LocalStream); err != nil {
		e.log.Warnf("answering call from %s: %v", remote, err)
		call.Close()
		e.scheduleReannounce()
		return
	}

	e.sess = &activeSession{
		remote:  remote,
		call:    call,
		attempt: attempt,
	}
	e.bindCall(call, attempt)

	if e.pending != nil && e.pendingRemote == remote {
		e.sess.link = e.pending
		e.bindLink(e.pending, attempt)
		e.pending = nil
		e.pendingRemote = ""
	}

	e.setPartner(remote)
	e.setStatus(state.StatusConnecting)
	e.armWatchdog(attempt)
}

// rebindCall swaps a retried call from the current remote into the
// running attempt. The watchdog keeps its original deadline.
func (e *Engine) rebindCall(call endpoint.Call) {
	sess := e.sess
	if err := call.Answer(e.cfg.LocalStream); err != nil {
		e.log.Warnf("answering retried call from %s: %v", sess.remote, err)
		call.Close()
		return
	}
	if sess.call != nil && sess.call != call {
		sess.call.Close()
	}
	sess.call = call
	e.bindCall(call, sess.attempt)
}

// handleIncomingLink binds a data link into the session it belongs to.
// The initiator's link and call race over the broker socket, so a link
// from a remote we have no session with yet is parked until its call
// arrives. Only one link is parked at a time.
func (e *Engine) handleIncomingLink(link endpoint.DataLink) {
	remote := link.Remote()

	if e.sess != nil && e.sess.remote == remote {
		if e.sess.link != nil && e.sess.link != link {
			e.sess.link.Close()
		}
		e.sess.link = link
		e.bindLink(link, e.sess.attempt)
		return
	}

	if e.pending != nil {
		e.pending.Close()
	}
	e.pending = link
	e.pendingRemote = remote
	link.HandleClose(func() { e.post(pendingLinkGoneEvent{link: link}) })
	link.HandleError(func(error) { e.post(pendingLinkGoneEvent{link: link}) })
}

func (e *Engine) handlePendingLinkGone(link endpoint.DataLink) {
	if e.pending != link {
		return
	}
	e.pending = nil
	e.pendingRemote = ""
}

// handleCallStream promotes the session to connected when the first
// remote media arrives.
func (e *Engine) handleCallStream(ev callStreamEvent) {
	if e.sess == nil || ev.attempt != e.sess.attempt {
		return
	}
	if e.states.Get() != state.StatusConnecting {
		return
	}
	e.log.Infof("session with %s is live", e.sess.remote)
	e.setRemoteStream(ev.stream)
	e.setStatus(state.StatusConnected)
}

// handleSessionGone reacts to the partner's call or link dying. Stale
// attempts are dropped; a live one is recovered with a skip.
func (e *Engine) handleSessionGone(attempt uint64, err error) {
	if e.sess == nil || attempt != e.sess.attempt {
		return
	}
	if err != nil {
		e.log.Warnf("session with %s failed: %v", e.sess.remote, err)
	} else {
		e.log.Infof("session with %s ended by remote", e.sess.remote)
	}
	e.skip()
}

// handleWatchdog abandons an attempt that never produced media. The
// attempt tag keeps a stale timer from touching a later session; the
// status check keeps it level triggered, firing only if the handshake
// is still in flight.
func (e *Engine) handleWatchdog(attempt uint64) {
	if e.sess == nil || attempt != e.sess.attempt {
		return
	}
	if e.states.Get() != state.StatusConnecting {
		return
	}
	e.log.Warnf("handshake with %s stalled, skipping", e.sess.remote)
	e.skip()
}

// skip is the uniform recovery path: abandon whatever pairing exists
// and rejoin the discovery pool. Terminal and pre-start statuses are
// never disturbed, and a dead relay lands in signaling_offline instead
// of matching.
func (e *Engine) skip() {
	switch e.states.Get() {
	case state.StatusIdle, state.StatusError, state.StatusDisconnected:
		return
	}

	e.cancelWatchdog()
	e.cancelReannounce()
	e.closeSession()
	e.setRemoteStream(nil)
	e.setPartner("")
	e.attempt++

	if e.relayUp {
		e.setStatus(state.StatusMatching)
		e.scheduleReannounce()
	} else {
		e.setStatus(state.StatusSignalingOffline)
	}
}

// closeSession closes the active call, the active link and any parked
// link.
func (e *Engine) closeSession() {
	if e.sess != nil {
		if e.sess.call != nil {
			e.sess.call.Close()
		}
		if e.sess.link != nil {
			e.sess.link.Close()
		}
		e.sess = nil
	}
	if e.pending != nil {
		e.pending.Close()
		e.pending = nil
		e.pendingRemote = ""
	}
}

// bindCall points the call's handlers at the loop, tagged with the
// attempt they belong to.
func (e *Engine) bindCall(call endpoint.Call, attempt uint64) {
	call.HandleStream(func(rs *media.RemoteStream) { e.post(callStreamEvent{attempt: attempt, stream: rs}) })
	call.HandleClose(func() { e.post(callClosedEvent{attempt: attempt}) })
	call.HandleError(func(err error) { e.post(callErrorEvent{attempt: attempt, err: err}) })
}

func (e *Engine) bindLink(link endpoint.DataLink, attempt uint64) {
	link.HandleMessage(func(data []byte) { e.post(linkMessageEvent{attempt: attempt, data: data}) })
	link.HandleClose(func() { e.post(linkClosedEvent{attempt: attempt}) })
	link.HandleError(func(err error) { e.post(linkErrorEvent{attempt: attempt, err: err}) })
}

func (e *Engine) armWatchdog(attempt uint64) {
	e.cancelWatchdog()
	e.watchdog = time.AfterFunc(e.cfg.WatchdogTimeout, func() {
		e.post(watchdogEvent{attempt: attempt})
	})
}

func (e *Engine) cancelWatchdog() {
	if e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}
}

func (e *Engine) scheduleReannounce() {
	e.cancelReannounce()
	e.reannounce = time.AfterFunc(e.cfg.ReannounceDelay, func() {
		e.post(reannounceEvent{})
	})
}

func (e *Engine) cancelReannounce() {
	if e.reannounce != nil {
		e.reannounce.Stop()
		e.reannounce = nil
	}
}
