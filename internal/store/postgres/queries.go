package postgres

// The no-op ON CONFLICT update makes RETURNING fire for duplicate dedupe
// keys, so resubmitting an event reports the existing job instead of
// failing the batch.
const queryEnqueueJob = `
INSERT INTO jobs (id, name, payload, status, attempt, max_attempts, run_at, created_at, updated_at)
VALUES ($1, $2, $3, 'queued', 0, $4, $5, $5, $5)
ON CONFLICT (id) DO UPDATE SET updated_at = jobs.updated_at
RETURNING id
`

const queryClaimJobs = `
UPDATE jobs
SET status = 'in_progress',
    attempt = attempt + 1,
    claimed_at = $1,
    lease_expires_at = $2,
    updated_at = $1
WHERE id IN (
    SELECT id FROM jobs
    WHERE status = 'queued'
      AND run_at <= $1
    ORDER BY run_at ASC, created_at ASC
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING id, name, payload, attempt, max_attempts
`

const queryCompleteJob = `
UPDATE jobs
SET status = 'completed',
    finished_at = NOW(),
    claimed_at = NULL,
    lease_expires_at = NULL,
    updated_at = NOW()
WHERE id = $1
  AND status = 'in_progress'
`

const queryRetryJob = `
UPDATE jobs
SET status = 'queued',
    last_error = $2,
    run_at = $3,
    claimed_at = NULL,
    lease_expires_at = NULL,
    updated_at = NOW()
WHERE id = $1
  AND status = 'in_progress'
`

const queryBuryJob = `
UPDATE jobs
SET status = 'dead',
    last_error = $2,
    finished_at = NOW(),
    claimed_at = NULL,
    lease_expires_at = NULL,
    updated_at = NOW()
WHERE id = $1
  AND status = 'in_progress'
`

const queryRequeueExpiredLeases = `
WITH expired AS (
    SELECT id FROM jobs
    WHERE status = 'in_progress'
      AND lease_expires_at < $1
    ORDER BY lease_expires_at ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
UPDATE jobs
SET status = 'queued',
    claimed_at = NULL,
    lease_expires_at = NULL,
    updated_at = $1
FROM expired
WHERE jobs.id = expired.id
`

const queryPurgeFinishedJobs = `
DELETE FROM jobs
WHERE status = $1
  AND (finished_at < $2
       OR id IN (
           SELECT id FROM jobs
           WHERE status = $1
           ORDER BY finished_at DESC
           OFFSET $3
       ))
`

const queryGetActiveSubscriptions = `
SELECT
    s.id, s.event_type, s.is_active, s.created_at, s.updated_at,
    p.id, p.name, p.webhook_url, p.secret_key, p.api_key, p.is_active,
    p.created_at, p.updated_at
FROM subscriptions s
JOIN partners p ON s.partner_id = p.id
WHERE s.event_type = $1
  AND s.is_active = true
ORDER BY s.created_at ASC
`

const queryGetPartnerByAPIKey = `
SELECT id, name, webhook_url, secret_key, api_key, is_active, created_at, updated_at
FROM partners
WHERE api_key = $1
  AND is_active = true
`
