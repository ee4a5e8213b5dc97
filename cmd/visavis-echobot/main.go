// visavis-echobot runs a participant that entertains every partner
// automatically: it greets them, echoes their chat and mirrors their
// reactions.
//
// Usage:
//
//	visavis-echobot [options]
//
// Options:
//
//	-relay     Presence relay websocket URL
//	-broker    Session broker websocket URL
//	-region    Optional region hint
//	-stun      STUN server URL
//	-no-video  Run without a camera
//	-no-audio  Run without a microphone
//	-log       trace, debug, info, warn, error, disabled
//
// Example:
//
//	visavis-echobot -no-video -log debug
package main

import (
	"log"

	"github.com/visavis/visavis/examples/common"
	"github.com/visavis/visavis/examples/echobot"
)

func main() {
	opts := common.ParseFlags()

	bot, err := echobot.New(opts)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	if err := common.RunNode(bot.Node); err != nil {
		log.Fatalf("Bot error: %v", err)
	}
}
