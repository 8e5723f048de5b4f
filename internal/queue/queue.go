// Package queue defines the contracts for the durable job queue and the
// runtime that dispatches claimed jobs to a handler.
//
// The queue itself lives in Postgres (see internal/store/postgres); this
// package only sees narrow interfaces so the ingestion and delivery
// components never touch SQL. Delivery is at-least-once: a job may be
// redelivered after a crash or an expired lease, and handlers must
// tolerate re-invocation for the same payload.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a queued job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDead       Status = "dead"
)

// Job is one work item submitted to the queue.
type Job struct {
	// Name identifies the job kind, e.g. "event:order.created".
	Name string

	// Payload is the serialized work item.
	Payload json.RawMessage

	// DedupeKey makes submission idempotent: enqueueing a second job
	// with the same key must not create a second durable entry. It is
	// also the queue-assigned job identifier, so resubmission returns
	// the prior job's ID.
	DedupeKey string
}

// ClaimedJob is a job leased to a worker slot for one processing attempt.
type ClaimedJob struct {
	ID      string
	Name    string
	Payload json.RawMessage

	// Attempt is 1-based and counts this claim.
	Attempt     int
	MaxAttempts int
}

// Enqueuer is the submission contract consumed by batch ingestion.
//
// EnqueueBatch is all-or-nothing: on success it returns one queue-assigned
// job ID per submitted job, in input order; on failure no job was durably
// accepted. There is no partial submission.
type Enqueuer interface {
	EnqueueBatch(ctx context.Context, jobs []Job) ([]string, error)
}

// Store is the persistence contract consumed by the runtime.
type Store interface {
	// ClaimJobs leases up to limit due jobs until now+lease, marking them
	// in_progress and incrementing their attempt counter.
	ClaimJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]ClaimedJob, error)

	// CompleteJob marks a claimed job completed.
	CompleteJob(ctx context.Context, id string) error

	// RetryJob returns a failed job to the queue, due again at runAt.
	RetryJob(ctx context.Context, id string, jobErr string, runAt time.Time) error

	// BuryJob dead-letters a job that exhausted its attempts.
	BuryJob(ctx context.Context, id string, jobErr string) error
}

// Handler processes one claimed job. A non-nil error marks the job
// failed and eligible for the runtime's retry policy.
type Handler func(ctx context.Context, job ClaimedJob) error

// ErrQueueClosed is returned by EnqueueBatch implementations after the
// underlying connection has been released.
var ErrQueueClosed = errors.New("queue: closed")
