package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/hooklinehq/hookline/internal/domain"
	"github.com/hooklinehq/hookline/internal/queue"
)

const defaultJobAttempts = 3

// Store implements the queue and lookup contracts using PostgreSQL.
//
// The jobs table is the durable queue: enqueue inserts rows, claiming
// uses FOR UPDATE SKIP LOCKED so concurrent workers never lease the
// same job, and a lease column lets the reconciler recover jobs from
// crashed workers.
type Store struct {
	db          *sql.DB
	jobAttempts int
	clock       func() time.Time
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{
		db:          db,
		jobAttempts: defaultJobAttempts,
		clock:       time.Now,
	}
}

// WithJobAttempts sets the max delivery attempts stamped on enqueued jobs.
func (s *Store) WithJobAttempts(n int) *Store {
	if n > 0 {
		s.jobAttempts = n
	}
	return s
}

// EnqueueBatch inserts all jobs in a single transaction. Either every
// job is durably queued or none are; there is no partial submission.
// A job whose dedupe key already exists is not re-inserted, and the
// existing job's ID is returned in its slot.
func (s *Store) EnqueueBatch(ctx context.Context, jobs []queue.Job) ([]string, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := s.clock().UTC()
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		var id string
		err := tx.QueryRowContext(ctx, queryEnqueueJob,
			job.DedupeKey,
			job.Name,
			[]byte(job.Payload),
			s.jobAttempts,
			now,
		).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ClaimJobs leases up to limit due jobs until now+lease. Claimed rows
// move to in_progress with their attempt counter incremented; SKIP
// LOCKED keeps concurrent pollers from double-claiming.
func (s *Store) ClaimJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]queue.ClaimedJob, error) {
	rows, err := s.db.QueryContext(ctx, queryClaimJobs, now, now.Add(lease), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []queue.ClaimedJob
	for rows.Next() {
		var job queue.ClaimedJob
		var payload []byte

		err := rows.Scan(
			&job.ID,
			&job.Name,
			&payload,
			&job.Attempt,
			&job.MaxAttempts,
		)
		if err != nil {
			return nil, err
		}
		job.Payload = payload
		claimed = append(claimed, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteJob marks a claimed job completed. The status guard in the
// query makes this a no-op if the job's lease was already reclaimed.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, queryCompleteJob, id)
	return err
}

// RetryJob returns a failed job to the queue, due again at runAt.
func (s *Store) RetryJob(ctx context.Context, id string, jobErr string, runAt time.Time) error {
	_, err := s.db.ExecContext(ctx, queryRetryJob, id, jobErr, runAt)
	return err
}

// BuryJob dead-letters a job that exhausted its attempts.
func (s *Store) BuryJob(ctx context.Context, id string, jobErr string) error {
	_, err := s.db.ExecContext(ctx, queryBuryJob, id, jobErr)
	return err
}

// RequeueExpiredLeases returns in_progress jobs whose lease expired
// before now back to queued, and reports how many were recovered.
func (s *Store) RequeueExpiredLeases(ctx context.Context, now time.Time, limit int) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryRequeueExpiredLeases, now, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PurgeFinished deletes jobs in the given terminal status that finished
// before cutoff or that fall outside the keep most recent rows.
func (s *Store) PurgeFinished(ctx context.Context, status queue.Status, cutoff time.Time, keep int) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryPurgeFinishedJobs, string(status), cutoff, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetActiveSubscriptions returns active subscriptions for the event type
// with the partner record joined in, ordered by subscription age.
func (s *Store) GetActiveSubscriptions(ctx context.Context, eventType string) ([]domain.ResolvedSubscription, error) {
	rows, err := s.db.QueryContext(ctx, queryGetActiveSubscriptions, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ResolvedSubscription
	for rows.Next() {
		var sub domain.ResolvedSubscription

		err := rows.Scan(
			&sub.ID,
			&sub.EventType,
			&sub.IsActive,
			&sub.CreatedAt,
			&sub.UpdatedAt,
			&sub.Partner.ID,
			&sub.Partner.Name,
			&sub.Partner.WebhookURL,
			&sub.Partner.SecretKey,
			&sub.Partner.APIKey,
			&sub.Partner.IsActive,
			&sub.Partner.CreatedAt,
			&sub.Partner.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetPartnerByAPIKey returns the active partner holding the API key.
// Returns sql.ErrNoRows when no active partner matches.
func (s *Store) GetPartnerByAPIKey(ctx context.Context, apiKey string) (domain.Partner, error) {
	var partner domain.Partner
	err := s.db.QueryRowContext(ctx, queryGetPartnerByAPIKey, apiKey).Scan(
		&partner.ID,
		&partner.Name,
		&partner.WebhookURL,
		&partner.SecretKey,
		&partner.APIKey,
		&partner.IsActive,
		&partner.CreatedAt,
		&partner.UpdatedAt,
	)
	if err != nil {
		return domain.Partner{}, err
	}
	return partner, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Compile-time interface assertions
var (
	_ queue.Enqueuer = (*Store)(nil)
	_ queue.Store    = (*Store)(nil)
)
