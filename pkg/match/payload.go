package match

import (
	"encoding/json"
	"fmt"
)

// Reaction is a lightweight emote sent over the data link.
type Reaction int

// Reaction kinds.
const (
	ReactionHeart Reaction = iota
	ReactionLaugh
	ReactionWave
	ReactionFire
)

// String returns the wire literal for the reaction.
func (r Reaction) String() string {
	switch r {
	case ReactionHeart:
		return "heart"
	case ReactionLaugh:
		return "laugh"
	case ReactionWave:
		return "wave"
	case ReactionFire:
		return "fire"
	default:
		return "unknown"
	}
}

// IsValid reports whether the reaction is a known kind.
func (r Reaction) IsValid() bool {
	switch r {
	case ReactionHeart, ReactionLaugh, ReactionWave, ReactionFire:
		return true
	default:
		return false
	}
}

// ParseReaction maps a wire literal back to a Reaction.
func ParseReaction(s string) (Reaction, bool) {
	switch s {
	case "heart":
		return ReactionHeart, true
	case "laugh":
		return ReactionLaugh, true
	case "wave":
		return ReactionWave, true
	case "fire":
		return ReactionFire, true
	default:
		return 0, false
	}
}

// Payload type literals carried in the "type" field of data-link
// frames.
const (
	payloadTypeChat     = "chat"
	payloadTypeReaction = "reaction"
)

// linkPayload is the JSON frame exchanged over an open data link.
// Chat frames carry "text", reaction frames carry "value".
type linkPayload struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Value string `json:"value,omitempty"`
}

func encodeChat(text string) ([]byte, error) {
	return json.Marshal(linkPayload{Type: payloadTypeChat, Text: text})
}

func encodeReaction(r Reaction) ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidReaction, int(r))
	}
	return json.Marshal(linkPayload{Type: payloadTypeReaction, Value: r.String()})
}

func decodeLinkPayload(data []byte) (linkPayload, error) {
	var p linkPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return linkPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch p.Type {
	case payloadTypeChat, payloadTypeReaction:
		return p, nil
	default:
		return linkPayload{}, fmt.Errorf("%w: unknown type %q", ErrMalformedPayload, p.Type)
	}
}
