// Package janitor enforces retention on finished queue jobs.
//
// Completed and dead jobs stay queryable for a while so operators can
// inspect recent history, then get deleted on a cron schedule. Each
// terminal status has its own keep-count and age cap; a job is removed
// as soon as it exceeds either.
package janitor

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hooklinehq/hookline/internal/queue"
)

// Store defines the interface for deleting finished jobs.
type Store interface {
	PurgeFinished(ctx context.Context, status queue.Status, cutoff time.Time, keep int) (int64, error)
}

// MetricsSink records how many jobs each sweep deleted.
type MetricsSink interface {
	JobsPurged(status string, count int)
}

// Retention caps one terminal status by row count and age.
type Retention struct {
	Keep int
	Age  time.Duration
}

// Config holds janitor configuration.
type Config struct {
	// Schedule is a standard 5-field cron expression.
	// Default: every 15 minutes.
	Schedule string

	Completed Retention
	Dead      Retention
}

// DefaultConfig returns the default janitor configuration.
func DefaultConfig() Config {
	return Config{
		Schedule:  "*/15 * * * *",
		Completed: Retention{Keep: 1000, Age: 24 * time.Hour},
		Dead:      Retention{Keep: 5000, Age: 7 * 24 * time.Hour},
	}
}

// Janitor deletes finished jobs past their retention on a cron schedule.
type Janitor struct {
	config  Config
	store   Store
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

// New creates a new Janitor.
func New(config Config, store Store) *Janitor {
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}
	return &Janitor{
		config: config,
		store:  store,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink to the janitor.
func (j *Janitor) WithMetrics(sink MetricsSink) *Janitor {
	j.metrics = sink
	return j
}

// Run sweeps on the configured cron schedule until ctx is cancelled.
// Returns an error only when the schedule cannot be parsed.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(j.config.Schedule, func() {
		j.sweep(ctx)
	})
	if err != nil {
		return err
	}

	log.Printf("janitor: started (schedule=%q, completed keep=%d age=%s, dead keep=%d age=%s)",
		j.config.Schedule,
		j.config.Completed.Keep, j.config.Completed.Age,
		j.config.Dead.Keep, j.config.Dead.Age)

	c.Start()
	<-ctx.Done()

	// Let an in-flight sweep finish before reporting stopped.
	<-c.Stop().Done()
	log.Println("janitor: stopped")
	return nil
}

// sweep runs one retention pass over both terminal statuses.
func (j *Janitor) sweep(ctx context.Context) {
	j.purge(ctx, queue.StatusCompleted, j.config.Completed)
	j.purge(ctx, queue.StatusDead, j.config.Dead)
}

func (j *Janitor) purge(ctx context.Context, status queue.Status, retention Retention) {
	cutoff := j.clock().UTC().Add(-retention.Age)

	purged, err := j.store.PurgeFinished(ctx, status, cutoff, retention.Keep)
	if err != nil {
		// DB error: log and move on. The next sweep retries.
		log.Printf("janitor: purge %s jobs: %v", status, err)
		return
	}
	if purged == 0 {
		return
	}

	if j.metrics != nil {
		j.metrics.JobsPurged(string(status), int(purged))
	}
	log.Printf("janitor: purged %d %s jobs (cutoff=%s, keep=%d)",
		purged, status, cutoff.Format(time.RFC3339), retention.Keep)
}
