// Package jobs runs the outbox worker: it claims durable jobs from the
// jobs_outbox table and executes them through a per-type handler registry.
// Jobs are enqueued transactionally with the domain write that caused them and
// are designed to be idempotent, so re-running after a crash produces the same
// result as a clean run.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/config"
	"github.com/proveniq/properties-backend/internal/db/models"
	"github.com/proveniq/properties-backend/internal/db/repositories"
	"github.com/proveniq/properties-backend/internal/safego"
	"github.com/proveniq/properties-backend/internal/telemetry"
)

// ErrPermanent marks a job failure that retrying can never fix (payload refers
// to a deleted row, malformed payload). The worker dead-letters such jobs
// immediately instead of burning the remaining attempts.
var ErrPermanent = errors.New("permanent job failure")

// Handler executes one claimed job. Returning nil completes the job;
// returning an error wrapping ErrPermanent dead-letters it; any other error
// schedules a retry with backoff until attempts are exhausted.
type Handler func(ctx context.Context, job *models.OutboxJob) error

// Worker polls the outbox and dispatches claimed jobs to registered handlers.
type Worker struct {
	outbox   *repositories.OutboxRepository
	handlers map[string]Handler
	cfg      *config.JobsConfig
	logger   *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// NewWorker creates a new outbox Worker. Handlers are attached with Register
// before Start.
func NewWorker(db *sqlx.DB, cfg *config.JobsConfig, logger *slog.Logger) *Worker {
	return &Worker{
		outbox:   repositories.NewOutboxRepository(db),
		handlers: make(map[string]Handler),
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register attaches a handler for a job type.
func (w *Worker) Register(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Start launches the poll loop in a background goroutine. It polls
// immediately once, then on the configured interval, and exits when ctx is
// cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	safego.Go(func() {
		defer close(w.done)

		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		w.logger.Info("outbox worker started",
			"poll_interval", w.cfg.PollInterval, "batch_size", w.cfg.BatchSize)

		w.poll(ctx)
		for {
			select {
			case <-ticker.C:
				w.poll(ctx)
			case <-w.stopChan:
				w.logger.Info("outbox worker stopped")
				return
			case <-ctx.Done():
				w.logger.Info("outbox worker stopped", "reason", ctx.Err())
				return
			}
		}
	})
}

// Stop signals the poll loop to exit and waits for the in-flight batch to
// finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.done
}

// poll claims one batch and runs every claimed job to completion. Claimed jobs
// are invisible to other workers, so batch execution is sequential per worker
// and concurrency comes from running more workers.
func (w *Worker) poll(ctx context.Context) {
	jobs, err := w.outbox.Claim(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("outbox claim failed", "error", err)
		return
	}

	for i := range jobs {
		w.run(ctx, &jobs[i])
	}
}

func (w *Worker) run(ctx context.Context, job *models.OutboxJob) {
	start := time.Now()

	handler, ok := w.handlers[job.JobType]
	if !ok {
		w.fail(ctx, job, errors.New("no handler registered for job type"), true)
		return
	}

	err := handler(ctx, job)
	telemetry.OutboxJobDuration.WithLabelValues(job.JobType).Observe(time.Since(start).Seconds())
	if err != nil {
		w.fail(ctx, job, err, errors.Is(err, ErrPermanent))
		return
	}

	if err := w.outbox.Complete(ctx, job.ID); err != nil {
		w.logger.Error("failed to mark job completed",
			"job_id", job.ID, "job_type", job.JobType, "error", err)
		return
	}
	telemetry.OutboxJobsTotal.WithLabelValues(job.JobType, telemetry.JobOutcomeCompleted).Inc()
	w.logger.Info("job completed",
		"job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts,
		"duration", time.Since(start))
}

func (w *Worker) fail(ctx context.Context, job *models.OutboxJob, jobErr error, deadLetter bool) {
	outcome := telemetry.JobOutcomeRetried
	if deadLetter {
		outcome = telemetry.JobOutcomeDeadLettered
	}
	telemetry.OutboxJobsTotal.WithLabelValues(job.JobType, outcome).Inc()

	w.logger.Warn("job failed",
		"job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts,
		"dead_letter", deadLetter, "error", jobErr)

	if err := w.outbox.Fail(ctx, job.ID, jobErr.Error(), w.cfg.RetryBackoff, deadLetter); err != nil {
		w.logger.Error("failed to record job failure", "job_id", job.ID, "error", err)
	}
}
