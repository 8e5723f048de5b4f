package metrics

import (
	"testing"
	"time"
)

func TestNoopSink_AllMethods(t *testing.T) {
	// Must not panic.
	n := NewNoopSink()
	n.BatchProcessed(BatchOutcomeSuccess, 1)
	n.EventsEnqueued(1)
	n.DeliveryAttemptCompleted(1, "2xx", time.Second)
	n.DeliveryOutcome(DeliveryOutcomeDelivered)
	n.PartnersSkipped(1)
	n.JobsClaimed(1)
	n.JobOutcome("completed")
	n.JobsInFlightIncr()
	n.JobsInFlightDecr()
	n.JobsRequeued(1)
	n.JobsPurged("dead", 1)
}
