// Package request implements migration-request intake and the status
// operations exposed to clients.
package request

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/dedup"
	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
	"github.com/windingtree/orgid-migrator/internal/queue"
	"github.com/windingtree/orgid-migrator/internal/status"
	"github.com/windingtree/orgid-migrator/internal/validate"
	"github.com/windingtree/orgid-migrator/internal/vc"
)

// Purger optionally drains the live broker queue on reset.
type Purger interface {
	Purge(ctx context.Context) error
}

// Service wires intake: base validation, signer verification against the
// source-chain owner, the atomic dedup put and the enqueue.
type Service struct {
	validator   *validate.Engine
	verifier    vc.ProofVerifier
	source      chain.SourceRegistry
	sourceChain int64
	index       dedup.Index
	queue       *queue.Queue
	jobs        jobstore.Store
	projector   *status.Projector
	purger      Purger
	logger      *slog.Logger
}

type Config struct {
	Validator   *validate.Engine
	Verifier    vc.ProofVerifier
	Source      chain.SourceRegistry
	SourceChain int64
	Index       dedup.Index
	Queue       *queue.Queue
	Jobs        jobstore.Store
	Projector   *status.Projector
	Purger      Purger
	Logger      *slog.Logger
}

func NewService(cfg Config) *Service {
	return &Service{
		validator:   cfg.Validator,
		verifier:    cfg.Verifier,
		source:      cfg.Source,
		sourceChain: cfg.SourceChain,
		index:       cfg.Index,
		queue:       cfg.Queue,
		jobs:        cfg.Jobs,
		projector:   cfg.Projector,
		purger:      cfg.Purger,
		logger:      cfg.Logger,
	}
}

// Add validates and queues a migration request. Validation failures never
// create a job or an index entry; the atomic index put guarantees that of
// two concurrent intakes for one DID exactly one is accepted.
func (s *Service) Add(ctx context.Context, req domain.MigrationRequest) (*domain.RequestStatus, error) {
	if _, err := s.index.Get(ctx, domain.IndexKey(req.DID)); err == nil {
		return nil, domain.ErrDuplicate
	} else if !errors.Is(err, domain.ErrRequestNotFound) {
		return nil, err
	}

	res, err := s.validator.Base(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Request validated", slog.String("did", req.DID))

	owner, err := s.source.Owner(ctx, res.DID.OrgID)
	if err != nil {
		return nil, err
	}
	if err := s.verifier.Verify(ctx, res.Credential, vc.AccountID(s.sourceChain, owner)); err != nil {
		return nil, err
	}
	s.logger.Debug("ORGiD VC verified", slog.String("did", req.DID))

	jobID := uuid.NewString()
	if err := s.index.Put(ctx, domain.IndexKey(req.DID), jobID); err != nil {
		return nil, err
	}

	job, err := s.queue.Enqueue(ctx, jobID, req)
	if err != nil {
		// Roll the index back so the DID is not locked by a job that
		// never made it into the queue.
		if delErr := s.index.Delete(ctx, domain.IndexKey(req.DID)); delErr != nil {
			s.logger.Error("Failed to roll back dedup entry",
				slog.String("did", req.DID),
				slog.Any("error", delErr),
			)
		}
		return nil, err
	}

	s.logger.Info("Migration request queued",
		slog.String("did", req.DID),
		slog.String("job_id", job.ID),
	)

	return &domain.RequestStatus{
		ID:        job.ID,
		Timestamp: job.CreatedAt,
		DID:       req.DID,
		NewDID:    res.Credential.Issuer,
		State:     job.State.RequestState(),
	}, nil
}

// ByJobID returns the status for a job id.
func (s *Service) ByJobID(ctx context.Context, id string) (*domain.RequestStatus, error) {
	return s.projector.ByJob(ctx, id)
}

// ByDID returns the status for a DID.
func (s *Service) ByDID(ctx context.Context, did string) (*domain.RequestStatus, error) {
	return s.projector.Of(ctx, did)
}

// Reset destroys all queue and index state. Test environments only; the
// HTTP layer refuses it in production.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.jobs.Reset(ctx); err != nil {
		return err
	}
	if err := s.index.Reset(ctx); err != nil {
		return err
	}
	if s.purger != nil {
		if err := s.purger.Purge(ctx); err != nil {
			return err
		}
	}
	s.logger.Warn("Queue and dedup index reset")
	return nil
}
