package endpoint

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// EnvelopeType identifies a broker frame.
type EnvelopeType string

// Broker frame types.
const (
	// EnvelopeOpen confirms registration; sent by the broker once per
	// socket, before anything else.
	EnvelopeOpen EnvelopeType = "OPEN"

	// EnvelopeOffer carries an SDP offer to dst.
	EnvelopeOffer EnvelopeType = "OFFER"

	// EnvelopeAnswer carries an SDP answer to dst.
	EnvelopeAnswer EnvelopeType = "ANSWER"

	// EnvelopeCandidate carries one trickled ICE candidate to dst.
	EnvelopeCandidate EnvelopeType = "CANDIDATE"

	// EnvelopeLeave tells dst that src tore down connections.
	EnvelopeLeave EnvelopeType = "LEAVE"

	// EnvelopeExpire tells the sender of an undeliverable frame that
	// src could not be reached.
	EnvelopeExpire EnvelopeType = "EXPIRE"

	// EnvelopeError carries a broker-side failure message.
	EnvelopeError EnvelopeType = "ERROR"

	// EnvelopeHeartbeat keeps the registration alive.
	EnvelopeHeartbeat EnvelopeType = "HEARTBEAT"
)

// IsValid reports whether t is a known frame type.
func (t EnvelopeType) IsValid() bool {
	switch t {
	case EnvelopeOpen, EnvelopeOffer, EnvelopeAnswer, EnvelopeCandidate,
		EnvelopeLeave, EnvelopeExpire, EnvelopeError, EnvelopeHeartbeat:
		return true
	default:
		return false
	}
}

// Envelope is the broker wire frame. Src is stamped by the broker on
// relayed frames; clients never set it themselves.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode renders the envelope as a JSON frame.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a broker frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s", ErrMalformedEnvelope, err)
	}
	if !e.Type.IsValid() {
		return Envelope{}, fmt.Errorf("%w: type %q", ErrMalformedEnvelope, e.Type)
	}
	return e, nil
}

// Connection kinds carried in offer payloads.
const (
	// ConnKindMedia marks an offer for a media call.
	ConnKindMedia = "media"

	// ConnKindData marks an offer for a data link.
	ConnKindData = "data"
)

// OfferPayload is the payload of an OFFER frame.
type OfferPayload struct {
	ConnectionID string `json:"connectionId"`
	Kind         string `json:"kind"`
	SDP          string `json:"sdp"`
}

// AnswerPayload is the payload of an ANSWER frame.
type AnswerPayload struct {
	ConnectionID string `json:"connectionId"`
	SDP          string `json:"sdp"`
}

// CandidatePayload is the payload of a CANDIDATE frame.
type CandidatePayload struct {
	ConnectionID string                  `json:"connectionId"`
	Candidate    webrtc.ICECandidateInit `json:"candidate"`
}

// LeavePayload is the payload of a LEAVE frame. An empty ConnectionID
// addresses every connection src holds with dst.
type LeavePayload struct {
	ConnectionID string `json:"connectionId,omitempty"`
}

// ErrorPayload is the payload of an ERROR frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

// EncodeEnvelope builds a frame of type t addressed to dst, with
// payload marshaled in.
func EncodeEnvelope(t EnvelopeType, dst string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Dst: dst, Payload: raw}, nil
}

func decodePayload(e Envelope, into interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty %s payload", ErrMalformedEnvelope, e.Type)
	}
	if err := json.Unmarshal(e.Payload, into); err != nil {
		return fmt.Errorf("%w: %s payload: %s", ErrMalformedEnvelope, e.Type, err)
	}
	return nil
}
