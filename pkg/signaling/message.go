package signaling

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the two presence message kinds.
type MessageType string

const (
	// MessageAnnounce is the unsolicited presence broadcast.
	MessageAnnounce MessageType = "client-announce"

	// MessageAck is the reply confirming mutual visibility to an announcer.
	MessageAck MessageType = "client-ack"
)

// IsValid reports whether t is a known presence message type.
func (t MessageType) IsValid() bool {
	return t == MessageAnnounce || t == MessageAck
}

// Message is the relay wire message, one per announce/ack. The field
// set and literals are the interoperability contract with every other
// instance on the channel: no envelope, no sequence numbers.
type Message struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Timestamp int64       `json:"timestamp"`
}

// NewMessage builds a presence message stamped with the current time in
// milliseconds since epoch.
func NewMessage(t MessageType, id, status string) Message {
	return Message{
		Type:      t,
		ID:        id,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Validate checks the wire fields.
func (m Message) Validate() error {
	if !m.Type.IsValid() {
		return ErrInvalidMessageType
	}
	if m.ID == "" {
		return ErrMissingIdentity
	}
	if m.Status == "" {
		return ErrMissingStatus
	}
	return nil
}

// IsAnnounce reports whether the message is an unsolicited announce
// (which obliges the receiver to reply with an ack before arbitrating).
func (m Message) IsAnnounce() bool {
	return m.Type == MessageAnnounce
}

// Encode marshals the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses and validates a presence payload. Failures mean
// the payload is dropped by the caller.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
