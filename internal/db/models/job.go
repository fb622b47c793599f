// Package models - job.go defines the durable outbox job record.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outbox job statuses.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusDeadLetter = "dead_letter"
)

// Known job types.
const (
	JobTypeVerifyHash          = "verify_hash"
	JobTypeGenerateCertificate = "generate_certificate"
)

// OutboxJob is one row in the jobs_outbox table. Jobs are enqueued in the same
// transaction as the domain write that caused them, then claimed and executed
// by the worker.
type OutboxJob struct {
	ID      uuid.UUID       `json:"id" db:"id"`
	JobType string          `json:"job_type" db:"job_type"`
	Payload json.RawMessage `json:"payload" db:"payload"`

	// UniqueScope deduplicates logically identical work. Enqueueing a job whose
	// scope already exists is a silent no-op. Nil scopes never deduplicate.
	UniqueScope *string `json:"unique_scope,omitempty" db:"unique_scope"`

	Status      string     `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	MaxAttempts int        `json:"max_attempts" db:"max_attempts"`
	RunAfter    time.Time  `json:"run_after" db:"run_after"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	LastError   *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
