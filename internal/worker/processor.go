package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/content"
	"github.com/windingtree/orgid-migrator/internal/dedup"
	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
	"github.com/windingtree/orgid-migrator/internal/validate"
	"github.com/windingtree/orgid-migrator/internal/vc"
)

// Backoff describes the exponential retry schedule: Base doubles per
// attempt up to Cap.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay computes the delay before the next attempt given the number of
// attempts already made.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := b.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// ProcessorConfig wires the processor's collaborators.
type ProcessorConfig struct {
	Validator  *validate.Engine
	Verifier   vc.ProofVerifier
	Content    content.Store
	Chains     *chain.Registry
	Jobs       jobstore.Store
	Index      dedup.Index
	Policy     dedup.CleanupPolicy
	Backoff    Backoff
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// Processor executes one migration job end to end: claim, validate,
// verify the credential proof, publish the credential and submit the
// registration transaction.
type Processor struct {
	validator  *validate.Engine
	verifier   vc.ProofVerifier
	content    content.Store
	chains     *chain.Registry
	jobs       jobstore.Store
	index      dedup.Index
	policy     dedup.CleanupPolicy
	backoff    Backoff
	jobTimeout time.Duration
	logger     *slog.Logger
}

func NewProcessor(cfg *ProcessorConfig) *Processor {
	return &Processor{
		validator:  cfg.Validator,
		verifier:   cfg.Verifier,
		content:    cfg.Content,
		chains:     cfg.Chains,
		jobs:       cfg.Jobs,
		index:      cfg.Index,
		policy:     cfg.Policy,
		backoff:    cfg.Backoff,
		jobTimeout: cfg.JobTimeout,
		logger:     cfg.Logger,
	}
}

// Process handles one delivered job id. A nil return means the delivery
// is settled (including terminal failures, which are recorded in the job
// store); domain.ErrRequeueDelivery means the job state could not be
// recorded and the delivery must go back to the broker.
func (p *Processor) Process(ctx context.Context, jobID, workerID string) error {
	job, err := p.jobs.Claim(ctx, jobID, workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) || errors.Is(err, domain.ErrJobNotFound) {
			// Someone else owns it, or the scheduler already rescued it.
			p.logger.Debug("Skipping unclaimable job", slog.String("job_id", jobID))
			return nil
		}
		return domain.ErrRequeueDelivery
	}

	logger := p.logger.With(
		slog.String("job_id", job.ID),
		slog.String("did", job.Request.DID),
		slog.Int("attempt", job.Attempts),
	)
	logger.Info("Processing migration job")

	runCtx := ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	runErr := p.run(runCtx, job, logger)
	if runErr == nil {
		if err := p.jobs.Complete(ctx, job.ID); err != nil {
			logger.Error("Failed to mark job completed", slog.Any("error", err))
			return domain.ErrRequeueDelivery
		}
		p.release(ctx, job, domain.JobCompleted, logger)
		logger.Info("Migration completed")
		return nil
	}

	return p.dispose(ctx, job, runErr, logger)
}

// run drives the state machine, recording each step before executing it.
func (p *Processor) run(ctx context.Context, job *domain.Job, logger *slog.Logger) error {
	if err := p.jobs.SetStep(ctx, job.ID, domain.StepValidating); err != nil {
		return domain.NewRetryableError(err)
	}
	result, err := p.validator.Base(ctx, job.Request)
	if err != nil {
		return err
	}

	if err := p.jobs.SetStep(ctx, job.ID, domain.StepVerifying); err != nil {
		return domain.NewRetryableError(err)
	}
	account, err := p.verifyProof(ctx, result.Credential)
	if err != nil {
		return err
	}

	if err := p.jobs.SetStep(ctx, job.ID, domain.StepPublishing); err != nil {
		return domain.NewRetryableError(err)
	}
	cid, err := p.content.Publish(ctx, result.Credential.Raw(), result.DID.OrgID.Hex()+".json")
	if err != nil {
		return err
	}
	logger.Debug("Credential published", slog.String("cid", cid))

	if err := p.jobs.SetStep(ctx, job.ID, domain.StepSubmitting); err != nil {
		return domain.NewRetryableError(err)
	}
	gw, err := p.chains.Gateway(result.Subject.Chain)
	if err != nil {
		return domain.BadRequest("Chain %d is not allowed", result.Subject.Chain)
	}
	txHash, err := gw.Register(ctx, result.DID.OrgID, "ipfs://"+cid, account.Address)
	if err != nil {
		return err
	}
	logger.Info("Registration submitted",
		slog.String("tx", txHash.Hex()),
		slog.Int64("chain", result.Subject.Chain),
	)

	return p.jobs.SetStep(ctx, job.ID, domain.StepDone)
}

// verifyProof checks the credential's proof section and returns the
// account the proof resolves to. The signer must be the identity owner's
// account on the source chain, which the validator already bound through
// the verification method.
func (p *Processor) verifyProof(ctx context.Context, cred *vc.SignedCredential) (vc.BlockchainAccount, error) {
	if cred.Proof == nil {
		return vc.BlockchainAccount{}, domain.BadRequest("Invalid ORGiD VC: proof not found")
	}
	if cred.Proof.VerificationMethod == "" {
		return vc.BlockchainAccount{}, domain.BadRequest("Invalid ORGiD VC: verificationMethod Id not found")
	}

	vm := cred.ResolveVerificationMethod(cred.Proof.VerificationMethod)
	if vm == nil || vm.BlockchainAccountID == "" {
		return vc.BlockchainAccount{}, domain.BadRequest("Invalid verificationMethod: %s", cred.Proof.VerificationMethod)
	}

	account, err := vc.ParseBlockchainAccountID(vm.BlockchainAccountID)
	if err != nil {
		return vc.BlockchainAccount{}, err
	}

	if err := p.verifier.Verify(ctx, cred, vm.BlockchainAccountID); err != nil {
		return vc.BlockchainAccount{}, err
	}
	return account, nil
}

// dispose settles a failed attempt: transient failures are rescheduled
// with exponential backoff while attempts remain, everything else is
// terminal.
func (p *Processor) dispose(ctx context.Context, job *domain.Job, runErr error, logger *slog.Logger) error {
	retryable := p.isTransient(runErr)

	if retryable && job.Attempts < job.MaxAttempts {
		runAt := time.Now().UTC().Add(p.backoff.Delay(job.Attempts))
		if err := p.jobs.Delay(ctx, job.ID, runAt, runErr.Error()); err != nil {
			logger.Error("Failed to schedule retry", slog.Any("error", err))
			return domain.ErrRequeueDelivery
		}
		logger.Warn("Attempt failed, retry scheduled",
			slog.Time("run_at", runAt),
			slog.Any("error", runErr),
		)
		return nil
	}

	if err := p.jobs.Fail(ctx, job.ID, runErr.Error()); err != nil {
		logger.Error("Failed to mark job failed", slog.Any("error", err))
		return domain.ErrRequeueDelivery
	}
	p.release(ctx, job, domain.JobFailed, logger)
	logger.Error("Migration failed terminally",
		slog.Bool("retryable", retryable),
		slog.Any("error", runErr),
	)
	return nil
}

// isTransient classifies a run error: contention reverts, explicitly
// retryable errors and job timeouts are worth another attempt.
func (p *Processor) isTransient(err error) bool {
	var revert *chain.RevertError
	if errors.As(err, &revert) {
		return revert.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return domain.IsRetryable(err)
}

// release clears the dedup index entry when the cleanup policy says the
// terminal state frees the DID for resubmission.
func (p *Processor) release(ctx context.Context, job *domain.Job, state domain.JobState, logger *slog.Logger) {
	if !p.policy.Releases(state) {
		return
	}
	if err := p.index.Delete(ctx, domain.IndexKey(job.Request.DID)); err != nil {
		logger.Error("Failed to release dedup entry", slog.Any("error", err))
	}
}
