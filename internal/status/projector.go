// Package status projects queue-internal job state onto the small
// client-facing migration state enum.
package status

import (
	"context"
	"errors"
	"log/slog"

	"github.com/windingtree/orgid-migrator/internal/dedup"
	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
	"github.com/windingtree/orgid-migrator/internal/vc"
)

// Projector answers status queries. It is a pure function of current
// queue state combined with the dedup index; nothing is persisted.
type Projector struct {
	index  dedup.Index
	jobs   jobstore.Store
	logger *slog.Logger
}

func NewProjector(index dedup.Index, jobs jobstore.Store, logger *slog.Logger) *Projector {
	return &Projector{index: index, jobs: jobs, logger: logger}
}

// ByJob returns the status for a job id, domain.ErrJobNotFound when the
// id is unknown.
func (p *Projector) ByJob(ctx context.Context, id string) (*domain.RequestStatus, error) {
	job, err := p.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.project(job), nil
}

// Of returns the status for a DID. A DID with no request, or a dangling
// index entry whose job the queue no longer knows, resolves to the ready
// state - a crashed cleanup must never surface as a hard failure here.
func (p *Projector) Of(ctx context.Context, did string) (*domain.RequestStatus, error) {
	jobID, err := p.index.Get(ctx, domain.IndexKey(did))
	if errors.Is(err, domain.ErrRequestNotFound) {
		return &domain.RequestStatus{DID: did, State: domain.StateReady}, nil
	}
	if err != nil {
		return nil, err
	}

	job, err := p.jobs.Get(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		p.logger.Warn("Dangling dedup entry: job unknown to the queue",
			slog.String("did", did),
			slog.String("job_id", jobID),
		)
		return &domain.RequestStatus{DID: did, State: domain.StateReady}, nil
	}
	if err != nil {
		return nil, err
	}

	return p.project(job), nil
}

func (p *Projector) project(job *domain.Job) *domain.RequestStatus {
	status := &domain.RequestStatus{
		ID:        job.ID,
		Timestamp: job.CreatedAt,
		DID:       job.Request.DID,
		State:     job.State.RequestState(),
	}

	if job.State == domain.JobFailed {
		status.Reason = job.Error
	}

	// The destination DID is the credential issuer; best effort only.
	if cred, err := vc.Parse([]byte(job.Request.OrgIDVC)); err == nil {
		status.NewDID = cred.Issuer
	}

	return status
}
