// Package visavis provides a high-level API for running an anonymous
// pairing participant.
//
// This package is the top-level facade that ties together the
// lower-level components (media capture, discovery signaling, the
// transport endpoint and the matching engine) into an ergonomic,
// idiomatic Go API.
//
// # Running a Participant
//
// To join the discovery pool, build a Node and start it:
//
//	node, err := visavis.New(visavis.Config{
//	    Region: "eu",
//	    OnMessageReceived: func(text string) {
//	        fmt.Println("partner:", text)
//	    },
//	    OnStatusChanged: func(s state.Status) {
//	        fmt.Println("status:", s)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
// Once started, the node announces itself, arbitrates with whoever
// answers and moves through the status sequence matching, connecting,
// connected on its own. The application reacts to callbacks and drives
// the three user verbs:
//
//	node.SendChat("hello")
//	node.SendReaction(match.ReactionWave)
//	node.Skip()
//
// # Lifecycle
//
// Start acquires the capture devices first; a device failure is
// terminal and leaves the node in the error status. Stop tears the
// stack down in a fixed order (engine, endpoint, relay, media) and
// always lands in the disconnected status. Both are safe to call once
// each; Stop is idempotent.
//
// # Testing
//
// The capture, relay and transport seams are all injectable: Controller
// replaces the device layer (media.MockController), RelayDialer
// replaces the relay socket (signaling.MockDialer) and EndpointFactory
// replaces the transport endpoint. Tests pair two nodes in one process
// by handing both a factory from the same MemoryHub and shuttling their
// relay traffic with PumpPresence.
package visavis
