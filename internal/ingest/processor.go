// Package ingest turns inbound event batches into durable queue jobs.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hooklinehq/hookline/internal/domain"
	"github.com/hooklinehq/hookline/internal/queue"
)

// MetricsSink defines the interface for recording ingestion metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BatchProcessed(outcome string, size int)
	EventsEnqueued(n int)
}

// Processor assigns event IDs and submits batches to the queue.
type Processor struct {
	enqueuer queue.Enqueuer
	metrics  MetricsSink // optional, nil = disabled
	newID    func() string
	clock    func() time.Time
}

func New(enqueuer queue.Enqueuer) *Processor {
	return &Processor{
		enqueuer: enqueuer,
		newID:    domain.NewEventID,
		clock:    time.Now,
	}
}

// WithMetrics attaches a metrics sink to the processor.
func (p *Processor) WithMetrics(sink MetricsSink) *Processor {
	p.metrics = sink
	return p
}

// ProcessBatch assigns each event a unique ID, stamps the whole batch
// with one shared timestamp, and submits everything to the queue in a
// single all-or-nothing bulk enqueue. On success every result row is
// success with the queue-assigned job ID; on failure every row is
// failed with the same error and nothing was enqueued.
func (p *Processor) ProcessBatch(ctx context.Context, events []domain.Event) domain.BatchResult {
	timestamp := p.clock().UTC().Format(time.RFC3339)

	queued := make([]domain.QueuedEvent, len(events))
	for i, event := range events {
		queued[i] = domain.QueuedEvent{
			EventID:   p.newID(),
			EventType: event.EventType,
			Data:      event.Data,
			Timestamp: timestamp,
		}
	}

	jobs := make([]queue.Job, len(events))
	for i := range queued {
		payload, err := json.Marshal(queued[i])
		if err != nil {
			// QueuedEvent marshals unconditionally; reaching this
			// means a programming error, not bad input.
			log.Printf("ingest: marshal event %s: %v", queued[i].EventID, err)
			return p.failBatch(queued, err)
		}

		jobs[i] = queue.Job{
			Name:      "event:" + queued[i].EventType,
			Payload:   payload,
			DedupeKey: queued[i].EventID,
		}
	}

	jobIDs, err := p.enqueuer.EnqueueBatch(ctx, jobs)
	if err != nil {
		log.Printf("ingest: bulk enqueue of %d events failed: %v", len(events), err)
		return p.failBatch(queued, err)
	}

	results := make([]domain.EventResult, len(queued))
	for i, ev := range queued {
		results[i] = domain.EventResult{
			EventID:   jobIDs[i],
			EventType: ev.EventType,
			Status:    domain.EventStatusSuccess,
		}
	}

	if p.metrics != nil {
		p.metrics.BatchProcessed("success", len(events))
		p.metrics.EventsEnqueued(len(events))
	}
	log.Printf("ingest: enqueued %d events", len(events))

	return domain.BatchResult{
		Message: fmt.Sprintf("All %d events successfully enqueued", len(events)),
		Results: results,
	}
}

// failBatch reports the whole batch failed with a single shared error.
func (p *Processor) failBatch(queued []domain.QueuedEvent, err error) domain.BatchResult {
	results := make([]domain.EventResult, len(queued))
	for i, ev := range queued {
		results[i] = domain.EventResult{
			EventID:   ev.EventID,
			EventType: ev.EventType,
			Status:    domain.EventStatusFailed,
			Error:     err.Error(),
		}
	}

	if p.metrics != nil {
		p.metrics.BatchProcessed("failed", len(queued))
	}

	return domain.BatchResult{
		Message:   fmt.Sprintf("Some events failed to enqueue: %v", err),
		Results:   results,
		HasErrors: true,
	}
}
