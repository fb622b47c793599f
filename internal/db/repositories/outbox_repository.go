// outbox_repository.go implements OutboxRepository, the durable de-duplicated job
// queue over the jobs_outbox table. Enqueue rides the caller's transaction so a job
// and the state change that caused it commit or roll back together; Claim uses
// FOR UPDATE SKIP LOCKED so concurrent workers never receive the same job.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/db/models"
)

// OutboxRepository handles job outbox database operations
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue inserts a pending job unless unique_scope already exists, in which
// case it is a silent no-op. It runs against the supplied ExtContext so the
// producer can enqueue inside its own transaction. Returns whether a row was
// actually inserted.
func (r *OutboxRepository) Enqueue(ctx context.Context, q sqlx.ExtContext, jobType string, payload interface{}, uniqueScope *string, runAfter time.Time) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO jobs_outbox (
			id, job_type, payload, unique_scope, status, attempts, max_attempts,
			run_after, created_at
		) VALUES ($1, $2, $3, $4, $5, 0, $6, $7, NOW())
		ON CONFLICT (unique_scope) DO NOTHING`

	res, err := q.ExecContext(ctx, query,
		uuid.New(), jobType, body, uniqueScope, models.JobStatusPending,
		defaultMaxAttempts, runAfter,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const defaultMaxAttempts = 3

// Claim atomically selects up to limit pending jobs whose run_after has
// elapsed, flips them to processing, stamps started_at, and increments the
// attempt counter. SKIP LOCKED guarantees a job goes to at most one worker.
func (r *OutboxRepository) Claim(ctx context.Context, limit int) ([]models.OutboxJob, error) {
	query := `
		UPDATE jobs_outbox SET
			status = $1, attempts = attempts + 1, started_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs_outbox
			WHERE status = $2 AND run_after <= NOW()
			ORDER BY run_after
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`

	var jobs []models.OutboxJob
	err := sqlx.SelectContext(ctx, r.db, &jobs, query,
		models.JobStatusProcessing, models.JobStatusPending, limit)
	return jobs, err
}

// Complete marks a job completed
func (r *OutboxRepository) Complete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs_outbox SET status = $2, finished_at = NOW(), last_error = NULL
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, models.JobStatusCompleted)
	return err
}

// Fail records a failed attempt. The job returns to pending with a retry
// backoff unless attempts are exhausted or the caller dead-letters it
// explicitly (poison pill); dead-lettered jobs are never retried
// automatically.
func (r *OutboxRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string, backoff time.Duration, deadLetter bool) error {
	query := `
		UPDATE jobs_outbox SET
			status = CASE
				WHEN $3 OR attempts >= max_attempts THEN $4
				ELSE $5
			END,
			last_error = $2,
			run_after = NOW() + $6 * INTERVAL '1 second',
			finished_at = CASE
				WHEN $3 OR attempts >= max_attempts THEN NOW()
				ELSE NULL
			END
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		id, errMsg, deadLetter, models.JobStatusDeadLetter, models.JobStatusPending,
		int(backoff.Seconds()))
	return err
}

// GetByID retrieves a job by ID, or (nil, nil) if it does not exist
func (r *OutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.OutboxJob, error) {
	var job models.OutboxJob
	query := `SELECT * FROM jobs_outbox WHERE id = $1`
	err := sqlx.GetContext(ctx, r.db, &job, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CountByStatus returns a status -> count map for monitoring
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM jobs_outbox GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
