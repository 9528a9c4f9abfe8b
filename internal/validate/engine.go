// Package validate implements the base validation of a migration request
// against on-chain facts. It is pure besides chain-gateway reads and is
// run both at intake (fast fail) and at worker start (authoritative
// re-check: facts may have changed between intake and execution).
package validate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/vc"
)

// Engine runs the ordered, short-circuiting base checks.
type Engine struct {
	source chain.SourceRegistry
	chains *chain.Registry
	logger *slog.Logger
}

func NewEngine(source chain.SourceRegistry, chains *chain.Registry, logger *slog.Logger) *Engine {
	return &Engine{source: source, chains: chains, logger: logger}
}

// Result is an accepted request: the parsed DIDs and the typed credential
// ready for signature verification.
type Result struct {
	DID        domain.DID
	Subject    domain.DID
	Credential *vc.SignedCredential
}

// Base validates a migration request. Every rejection is a client error;
// chain-read failures surface as retryable errors.
func (e *Engine) Base(ctx context.Context, req domain.MigrationRequest) (*Result, error) {
	did, err := domain.ParseDID(req.DID)
	if err != nil {
		return nil, err
	}

	if _, err := e.source.Get(ctx, did.OrgID); err != nil {
		if errors.Is(err, chain.ErrOrgIDNotFound) {
			return nil, domain.BadRequest("ORGiD %s not found on the source registry", req.DID)
		}
		return nil, err
	}

	cred, err := vc.Parse([]byte(req.OrgIDVC))
	if err != nil {
		return nil, err
	}

	subject, err := domain.ParseDID(cred.CredentialSubject.ID)
	if err != nil {
		return nil, domain.BadRequest("Invalid ORGiD VC subject DID: %s", cred.CredentialSubject.ID)
	}
	if subject.OrgID != did.OrgID {
		return nil, domain.BadRequest("ORGiD VC DID must be equal to requested DID")
	}
	if subject.Chain != req.Chain {
		return nil, domain.BadRequest("Chain mismatch: requested %d, VC subject %d", req.Chain, subject.Chain)
	}

	if !e.chains.Allowed(subject.Chain) {
		return nil, domain.BadRequest("Chain %d is not allowed", subject.Chain)
	}

	gw, err := e.chains.Gateway(subject.Chain)
	if err != nil {
		return nil, domain.BadRequest("Chain %d is not allowed", subject.Chain)
	}

	migrated, err := gw.Exists(ctx, did.OrgID)
	if err != nil {
		return nil, err
	}
	if migrated {
		// Permanent condition: retrying cannot succeed.
		return nil, domain.BadRequest("ORGiD %s already migrated", req.DID)
	}

	e.logger.Debug("Request validated",
		slog.String("did", req.DID),
		slog.Int64("chain", req.Chain),
	)

	return &Result{DID: did, Subject: subject, Credential: cred}, nil
}
