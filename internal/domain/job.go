package domain

import "time"

// JobState is the queue-internal lifecycle state of a migration job.
// The jobs table is the source of truth; RabbitMQ only carries job ids.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobActive    JobState = "active"
	JobDelayed   JobState = "delayed"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStep is the worker state-machine position, recorded as the processor
// advances so a status query can show where a job stopped.
type JobStep string

const (
	StepValidating JobStep = "validating"
	StepVerifying  JobStep = "verifying_signature"
	StepPublishing JobStep = "publishing"
	StepSubmitting JobStep = "submitting"
	StepDone       JobStep = "done"
)

// Job is a durably persisted unit of migration work with bounded retry.
type Job struct {
	ID          string           `db:"job_id"`
	Request     MigrationRequest `db:"-"`
	Step        JobStep          `db:"step"`
	State       JobState         `db:"state"`
	Attempts    int              `db:"attempts"`
	MaxAttempts int              `db:"max_attempts"`
	WorkerID    string           `db:"worker_id"`
	Error       string           `db:"error"`
	RunAt       time.Time        `db:"run_at"`
	CreatedAt   time.Time        `db:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at"`
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool {
	return j.State == JobCompleted || j.State == JobFailed
}

// RequestState maps the queue-internal lifecycle state to the
// client-facing migration state.
func (s JobState) RequestState() RequestState {
	switch s {
	case JobQueued:
		return StateRequested
	case JobActive, JobDelayed:
		return StateProgress
	case JobCompleted:
		return StateCompleted
	case JobFailed:
		return StateFailed
	default:
		return StateRequested
	}
}
