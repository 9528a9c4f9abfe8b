// Package jobstore persists migration jobs. The jobs table is the source
// of truth for lifecycle state, attempts and the retry schedule; the
// message broker only carries job ids.
package jobstore

import (
	"context"
	"time"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// Store is the durable side of the job queue.
type Store interface {
	// Insert persists a freshly enqueued job.
	Insert(ctx context.Context, job *domain.Job) error
	// Get returns a job by id or domain.ErrJobNotFound.
	Get(ctx context.Context, id string) (*domain.Job, error)
	// Claim transitions queued -> active for exactly one caller and
	// counts the attempt. Returns domain.ErrJobAlreadyClaimed when the
	// job is not claimable.
	Claim(ctx context.Context, id, workerID string) (*domain.Job, error)
	// SetStep records the worker state-machine position.
	SetStep(ctx context.Context, id string, step domain.JobStep) error
	// Complete finalizes the job as successfully done.
	Complete(ctx context.Context, id string) error
	// Fail finalizes the job as terminally failed with a reason.
	Fail(ctx context.Context, id, reason string) error
	// Delay schedules a retry: active -> delayed until runAt.
	Delay(ctx context.Context, id string, runAt time.Time, reason string) error
	// DueDelayed flips delayed jobs whose runAt has passed back to
	// queued and returns their ids for re-publication.
	DueDelayed(ctx context.Context, now time.Time, limit int) ([]string, error)
	// StaleActive requeues jobs abandoned by a crashed worker: active
	// jobs untouched since cutoff go back to queued.
	StaleActive(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	// Reset deletes all jobs. Administrative use only.
	Reset(ctx context.Context) error
}
