package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MetricsSink defines the interface for recording runtime metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	JobsClaimed(count int)
	JobOutcome(outcome string)
	JobsInFlightIncr()
	JobsInFlightDecr()
}

// Outcome constants for JobOutcome.
const (
	JobOutcomeCompleted = "completed"
	JobOutcomeRetried   = "retried"
	JobOutcomeDead      = "dead"
)

// Config holds runtime configuration.
type Config struct {
	// Concurrency is the number of worker slots. Each slot processes one
	// job to completion before taking the next. Default 5.
	Concurrency int

	// PollInterval is how often the runtime looks for due jobs.
	PollInterval time.Duration

	// RateLimitMax jobs may be dispatched per RateLimitWindow across all
	// slots. Zero disables the limiter.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// MaxAttempts is the job-level retry budget, independent of any
	// retrying the handler does internally. Default 3.
	MaxAttempts int

	// BackoffBase seeds the exponential retry schedule:
	// base * 2^(attempt-1). Default 5s.
	BackoffBase time.Duration

	// Lease bounds one processing attempt; a job still in_progress past
	// its lease is considered abandoned and requeued by the reconciler.
	Lease time.Duration

	// DrainTimeout bounds how long Run waits for in-flight jobs after
	// its context is cancelled.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	return c
}

// Runtime claims due jobs and dispatches them to a Handler on a bounded
// pool of worker slots.
type Runtime struct {
	config  Config
	store   Store
	handler Handler
	limiter *rate.Limiter
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

// NewRuntime creates a runtime. The handler is invoked once per claimed
// job; its error return drives the retry/dead-letter policy.
func NewRuntime(config Config, store Store, handler Handler) *Runtime {
	config = config.withDefaults()

	var limiter *rate.Limiter
	if config.RateLimitMax > 0 && config.RateLimitWindow > 0 {
		perSecond := float64(config.RateLimitMax) / config.RateLimitWindow.Seconds()
		limiter = rate.NewLimiter(rate.Limit(perSecond), config.RateLimitMax)
	}

	return &Runtime{
		config:  config,
		store:   store,
		handler: handler,
		limiter: limiter,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the runtime.
func (r *Runtime) WithMetrics(sink MetricsSink) *Runtime {
	r.metrics = sink
	return r
}

// Run claims and processes jobs until ctx is cancelled, then waits up to
// DrainTimeout for in-flight jobs to finish.
func (r *Runtime) Run(ctx context.Context) {
	log.Printf("queue: runtime started (concurrency=%d, poll=%s, attempts=%d, lease=%s)",
		r.config.Concurrency, r.config.PollInterval, r.config.MaxAttempts, r.config.Lease)

	sem := make(chan struct{}, r.config.Concurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.claimCycle(ctx, sem, &wg)

	for {
		select {
		case <-ctx.Done():
			r.drain(&wg)
			return
		case <-ticker.C:
			r.claimCycle(ctx, sem, &wg)
		}
	}
}

// claimCycle claims as many due jobs as there are free worker slots and
// hands each to a goroutine holding one slot.
func (r *Runtime) claimCycle(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	free := cap(sem) - len(sem)
	if free == 0 {
		return
	}

	jobs, err := r.store.ClaimJobs(ctx, r.clock().UTC(), free, r.config.Lease)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("queue: claim error: %v", err)
		}
		return
	}
	if len(jobs) == 0 {
		return
	}

	if r.metrics != nil {
		r.metrics.JobsClaimed(len(jobs))
	}

	for _, job := range jobs {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				// Shutdown while throttled: the unstarted job stays leased
				// and comes back via the reconciler once the lease expires.
				return
			}
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(job ClaimedJob) {
			defer wg.Done()
			defer func() { <-sem }()
			r.process(job)
		}(job)
	}
}

// process runs the handler for one claimed job and records its terminal
// outcome. The job context is bounded by the lease so an attempt cannot
// outlive its claim.
func (r *Runtime) process(job ClaimedJob) {
	if r.metrics != nil {
		r.metrics.JobsInFlightIncr()
		defer r.metrics.JobsInFlightDecr()
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), r.config.Lease)
	defer cancel()

	err := r.handler(jobCtx, job)
	if err == nil {
		if storeErr := r.store.CompleteJob(jobCtx, job.ID); storeErr != nil {
			log.Printf("queue: job=%s complete error: %v", job.ID, storeErr)
		}
		if r.metrics != nil {
			r.metrics.JobOutcome(JobOutcomeCompleted)
		}
		return
	}

	if job.Attempt >= r.config.MaxAttempts {
		log.Printf("queue: job=%s dead after %d attempts: %v", job.ID, job.Attempt, err)
		if storeErr := r.store.BuryJob(jobCtx, job.ID, err.Error()); storeErr != nil {
			log.Printf("queue: job=%s bury error: %v", job.ID, storeErr)
		}
		if r.metrics != nil {
			r.metrics.JobOutcome(JobOutcomeDead)
		}
		return
	}

	runAt := r.clock().UTC().Add(r.retryDelay(job.Attempt))
	log.Printf("queue: job=%s attempt=%d/%d failed, retry at %s: %v",
		job.ID, job.Attempt, r.config.MaxAttempts, runAt.Format(time.RFC3339), err)
	if storeErr := r.store.RetryJob(jobCtx, job.ID, err.Error(), runAt); storeErr != nil {
		log.Printf("queue: job=%s retry error: %v", job.ID, storeErr)
	}
	if r.metrics != nil {
		r.metrics.JobOutcome(JobOutcomeRetried)
	}
}

// retryDelay computes the exponential backoff for the next attempt:
// base * 2^(attempt-1).
func (r *Runtime) retryDelay(attempt int) time.Duration {
	delay := r.config.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// drain waits for in-flight jobs after shutdown, bounded by DrainTimeout.
func (r *Runtime) drain(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("queue: runtime stopped, all in-flight jobs finished")
	case <-time.After(r.config.DrainTimeout):
		log.Printf("queue: runtime stopped, drain timeout %s elapsed with jobs still in flight", r.config.DrainTimeout)
	}
}
