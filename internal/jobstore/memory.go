package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*domain.Job), now: time.Now}
}

// NewMemoryStoreAt uses an injected clock for timestamp-sensitive tests.
func NewMemoryStoreAt(now func() time.Time) *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*domain.Job), now: now}
}

func (s *MemoryStore) Insert(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) Claim(_ context.Context, id, workerID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.State != domain.JobQueued {
		return nil, domain.ErrJobAlreadyClaimed
	}
	job.State = domain.JobActive
	job.WorkerID = workerID
	job.Attempts++
	job.UpdatedAt = s.now()
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) SetStep(_ context.Context, id string, step domain.JobStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Step = step
		job.UpdatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.State = domain.JobCompleted
		job.Step = domain.StepDone
		job.Error = ""
		job.UpdatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.State = domain.JobFailed
		job.Error = reason
		job.UpdatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) Delay(_ context.Context, id string, runAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.State = domain.JobDelayed
		job.Error = reason
		job.RunAt = runAt
		job.UpdatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) DueDelayed(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Job
	for _, job := range s.jobs {
		if job.State == domain.JobDelayed && !job.RunAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	ids := make([]string, 0, len(due))
	for _, job := range due {
		job.State = domain.JobQueued
		job.UpdatedAt = s.now()
		ids = append(ids, job.ID)
	}
	return ids, nil
}

func (s *MemoryStore) StaleActive(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, job := range s.jobs {
		if len(ids) >= limit {
			break
		}
		if job.State == domain.JobActive && job.UpdatedAt.Before(cutoff) {
			job.State = domain.JobQueued
			job.WorkerID = ""
			job.UpdatedAt = s.now()
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*domain.Job)
	return nil
}
