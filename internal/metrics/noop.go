package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) BatchProcessed(outcome string, size int)                                   {}
func (n *NoopSink) EventsEnqueued(count int)                                                  {}
func (n *NoopSink) DeliveryAttemptCompleted(attempt int, statusClass string, d time.Duration) {}
func (n *NoopSink) DeliveryOutcome(outcome string)                                            {}
func (n *NoopSink) PartnersSkipped(count int)                                                 {}
func (n *NoopSink) JobsClaimed(count int)                                                     {}
func (n *NoopSink) JobOutcome(outcome string)                                                 {}
func (n *NoopSink) JobsInFlightIncr()                                                         {}
func (n *NoopSink) JobsInFlightDecr()                                                         {}
func (n *NoopSink) JobsRequeued(count int)                                                    {}
func (n *NoopSink) JobsPurged(status string, count int)                                       {}

var _ Sink = (*NoopSink)(nil)
