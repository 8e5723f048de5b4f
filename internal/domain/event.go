package domain

import (
	"crypto/rand"
	"encoding/hex"
)

// EventData is the business payload carried by every event.
type EventData struct {
	OrderID string  `json:"orderId"`
	Value   float64 `json:"value"`
}

// Event is a single inbound business occurrence, immutable once accepted.
type Event struct {
	EventType string    `json:"eventType"`
	Data      EventData `json:"data"`
}

// QueuedEvent is the work item persisted to the durable queue.
// EventID doubles as the queue's deduplication key.
type QueuedEvent struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Data      EventData `json:"data"`
	Timestamp string    `json:"timestamp"` // ISO-8601, shared across a batch
}

const eventIDByteLength = 12 // 96 bits of entropy, hex-encoded

// NewEventID generates a globally unique event identifier of the form
// "event_" + 24 hex characters.
func NewEventID() string {
	raw := make([]byte, eventIDByteLength)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms; a broken
		// entropy source is not something we can recover from.
		panic("domain: reading random bytes: " + err.Error())
	}
	return "event_" + hex.EncodeToString(raw)
}
