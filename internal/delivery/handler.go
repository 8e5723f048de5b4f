package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hooklinehq/hookline/internal/domain"
	"github.com/hooklinehq/hookline/internal/queue"
)

// HandleJob adapts the processor to the queue runtime's Handler shape.
// A non-nil return fails the job and hands it to the runtime's retry
// policy; since a single partner failure fails the whole event, retried
// jobs may redeliver to partners that already succeeded.
func (p *Processor) HandleJob(ctx context.Context, job queue.ClaimedJob) error {
	var event domain.QueuedEvent
	if err := json.Unmarshal(job.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal job %s: %w", job.ID, err)
	}
	_, err := p.ProcessEvent(ctx, event)
	return err
}
