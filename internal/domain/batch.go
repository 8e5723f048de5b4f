package domain

// EventStatus tags a per-event ingestion result.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
)

// EventResult is one entry of a BatchResult, in input order.
type EventResult struct {
	EventID   string      `json:"eventId"`
	EventType string      `json:"eventType"`
	Status    EventStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
}

// BatchResult reports the per-event outcome of one batch submission.
// The bulk enqueue is all-or-nothing, so either every result is success
// or every result is failed with the same error.
type BatchResult struct {
	Message   string        `json:"message"`
	Results   []EventResult `json:"results"`
	HasErrors bool          `json:"hasErrors"`
}
