package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Ingestion metrics
	BatchProcessed(outcome string, size int)
	EventsEnqueued(n int)

	// Delivery metrics
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	PartnersSkipped(n int)

	// Queue runtime metrics
	JobsClaimed(count int)
	JobOutcome(outcome string)
	JobsInFlightIncr()
	JobsInFlightDecr()

	// Maintenance metrics
	JobsRequeued(count int)
	JobsPurged(status string, count int)
}

// Outcome constants for BatchProcessed.
const (
	BatchOutcomeSuccess = "success"
	BatchOutcomeFailed  = "failed"
)

// Outcome constants for DeliveryOutcome.
const (
	DeliveryOutcomeDelivered = "delivered"
	DeliveryOutcomeFailed    = "failed"
)
