// Package endpoint implements the peer-to-peer transport endpoint: a
// stable per-process identity plus the ability to place and receive
// media calls and reliable data links.
//
// The production Client registers with a message broker over a
// persistent websocket and exchanges SDP offers/answers and trickled
// ICE candidates through it. Media and application traffic never touch
// the broker; once signaled, each call or data link runs over its own
// WebRTC peer connection.
//
// # Signaling Flow
//
//	Caller                 Broker                 Callee
//	──────                 ──────                 ──────
//	   │─── OFFER ───────────>│─── OFFER ───────────>│
//	   │<── ANSWER ───────────│<── ANSWER ───────────│
//	   │─── CANDIDATE ───────>│─── CANDIDATE ───────>│
//	   │<── CANDIDATE ────────│<── CANDIDATE ────────│
//	   │                      │                      │
//	   │<═══════ WebRTC Connection ═════════════════>│
//
// Failures are classified by ErrorKind. Recoverable kinds (an
// unreachable peer, a lost broker socket, network trouble aborting an
// attempt) are surfaced through the fatal-error callback so the caller
// can abandon the session and try another partner; everything else is
// logged and ignored.
package endpoint
