package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// PostgresStore is the production job store.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// jobRow is the flat scan target for the jobs table.
type jobRow struct {
	JobID       string    `db:"job_id"`
	DID         string    `db:"did"`
	Chain       int64     `db:"chain"`
	OrgIDVC     string    `db:"orgid_vc"`
	Step        string    `db:"step"`
	State       string    `db:"state"`
	Attempts    int       `db:"attempts"`
	MaxAttempts int       `db:"max_attempts"`
	WorkerID    string    `db:"worker_id"`
	Error       string    `db:"error"`
	RunAt       time.Time `db:"run_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *jobRow) toJob() *domain.Job {
	return &domain.Job{
		ID: r.JobID,
		Request: domain.MigrationRequest{
			DID:     r.DID,
			Chain:   r.Chain,
			OrgIDVC: r.OrgIDVC,
		},
		Step:        domain.JobStep(r.Step),
		State:       domain.JobState(r.State),
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		WorkerID:    r.WorkerID,
		Error:       r.Error,
		RunAt:       r.RunAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const jobColumns = `job_id, did, chain, orgid_vc, step, state, attempts, max_attempts, worker_id, error, run_at, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, did, chain, orgid_vc, step, state,
			attempts, max_attempts, worker_id, error, run_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', '', $9, $10, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Request.DID,
		job.Request.Chain,
		job.Request.OrgIDVC,
		job.Step,
		job.State,
		job.Attempts,
		job.MaxAttempts,
		job.RunAt,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toJob(), nil
}

func (s *PostgresStore) Claim(ctx context.Context, id, workerID string) (*domain.Job, error) {
	var row jobRow
	query := `
		UPDATE jobs
		SET state = $1,
		    worker_id = $2,
		    attempts = attempts + 1,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND state = $4
		RETURNING ` + jobColumns

	err := s.db.GetContext(ctx, &row, query, domain.JobActive, workerID, id, domain.JobQueued)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("Failed to claim job - already claimed or not found",
			slog.String("job_id", id),
			slog.String("worker_id", workerID),
		)
		return nil, domain.ErrJobAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return row.toJob(), nil
}

func (s *PostgresStore) SetStep(ctx context.Context, id string, step domain.JobStep) error {
	query := `UPDATE jobs SET step = $1, updated_at = NOW() WHERE job_id = $2`
	if _, err := s.db.ExecContext(ctx, query, step, id); err != nil {
		return fmt.Errorf("failed to set job step: %w", err)
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET state = $1, step = $2, error = '', updated_at = NOW()
		WHERE job_id = $3
	`
	if _, err := s.db.ExecContext(ctx, query, domain.JobCompleted, domain.StepDone, id); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id, reason string) error {
	query := `
		UPDATE jobs
		SET state = $1, error = $2, updated_at = NOW()
		WHERE job_id = $3
	`
	if _, err := s.db.ExecContext(ctx, query, domain.JobFailed, reason, id); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delay(ctx context.Context, id string, runAt time.Time, reason string) error {
	query := `
		UPDATE jobs
		SET state = $1, error = $2, run_at = $3, updated_at = NOW()
		WHERE job_id = $4
	`
	if _, err := s.db.ExecContext(ctx, query, domain.JobDelayed, reason, runAt, id); err != nil {
		return fmt.Errorf("failed to delay job: %w", err)
	}
	return nil
}

func (s *PostgresStore) DueDelayed(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		UPDATE jobs
		SET state = $1, updated_at = NOW()
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE state = $2 AND run_at <= $3
			ORDER BY run_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id
	`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, domain.JobQueued, domain.JobDelayed, now, limit); err != nil {
		return nil, fmt.Errorf("failed to requeue due jobs: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) StaleActive(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		UPDATE jobs
		SET state = $1, worker_id = '', updated_at = NOW()
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE state = $2 AND updated_at < $3
			ORDER BY updated_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id
	`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, domain.JobQueued, domain.JobActive, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("failed to reset jobs: %w", err)
	}
	return nil
}
