// Package reconciler recovers jobs abandoned by crashed workers.
//
// A job is abandoned when it is in_progress but its lease expired
// without the worker completing, retrying or burying it. The reconciler
// periodically returns such jobs to the queue. Handlers are already
// required to tolerate redelivery, so recovery needs no coordination
// with the original worker.
package reconciler

import (
	"context"
	"log"
	"time"
)

// Store defines the interface for recovering expired leases.
type Store interface {
	RequeueExpiredLeases(ctx context.Context, now time.Time, limit int) (int64, error)
}

// MetricsSink records how many jobs each cycle recovered.
type MetricsSink interface {
	JobsRequeued(count int)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs. Default: 1 minute.
	Interval time.Duration

	// BatchSize is the maximum number of jobs to recover per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		BatchSize: 100,
	}
}

// Reconciler returns lease-expired jobs to the queue.
type Reconciler struct {
	config  Config
	store   Store
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

// New creates a new Reconciler.
func New(config Config, store Store) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Reconciler{
		config: config,
		store:  store,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink to the reconciler.
func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// Run starts the recovery loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, batch=%d)", r.config.Interval, r.config.BatchSize)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one recovery cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()

	recovered, err := r.store.RequeueExpiredLeases(ctx, now, r.config.BatchSize)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to requeue expired leases: %v", err)
		return
	}

	if recovered == 0 {
		// Nothing to do. Silent success.
		return
	}

	if r.metrics != nil {
		r.metrics.JobsRequeued(int(recovered))
	}
	log.Printf("reconciler: requeued %d jobs with expired leases", recovered)
}
