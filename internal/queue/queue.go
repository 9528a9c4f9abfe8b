// Package queue is the narrow durable-retrying-executor facade: Postgres
// rows carry job state and the retry schedule, RabbitMQ carries delivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
)

// Publisher pushes a message onto the broker. Satisfied by the shared
// rabbitmq client.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Message is the broker payload: delivery carries only the job id, the
// job store holds everything else.
type Message struct {
	JobID string `json:"job_id"`
}

// Queue enqueues migration jobs and reads them back.
type Queue struct {
	store       jobstore.Store
	pub         Publisher
	maxAttempts int
	logger      *slog.Logger
}

func New(store jobstore.Store, pub Publisher, maxAttempts int, logger *slog.Logger) *Queue {
	return &Queue{store: store, pub: pub, maxAttempts: maxAttempts, logger: logger}
}

// Enqueue persists a job under a caller-assigned id and publishes it.
// The id is assigned before the dedup-index put so the index can point at
// the job from the moment it wins the race.
func (q *Queue) Enqueue(ctx context.Context, id string, req domain.MigrationRequest) (*domain.Job, error) {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:          id,
		Request:     req,
		Step:        domain.StepValidating,
		State:       domain.JobQueued,
		MaxAttempts: q.maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := q.store.Insert(ctx, job); err != nil {
		return nil, err
	}

	if err := q.publish(ctx, job.ID); err != nil {
		if failErr := q.store.Fail(ctx, job.ID, "enqueue publish failed"); failErr != nil {
			q.logger.Error("Failed to mark unpublished job",
				slog.String("job_id", job.ID),
				slog.Any("error", failErr),
			)
		}
		return nil, domain.NewRetryableError(fmt.Errorf("failed to publish job: %w", err))
	}

	q.logger.Debug("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("did", req.DID),
	)

	return job, nil
}

// Job returns a job by id.
func (q *Queue) Job(ctx context.Context, id string) (*domain.Job, error) {
	return q.store.Get(ctx, id)
}

func (q *Queue) publish(ctx context.Context, jobID string) error {
	body, err := json.Marshal(Message{JobID: jobID})
	if err != nil {
		return err
	}
	return q.pub.Publish(ctx, body, "application/json")
}
