// Package chain defines the boundaries to the on-chain ORGiD registries:
// a read-only source registry snapshot and per-chain destination gateways.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrOrgIDNotFound is returned when an identity is absent from the
	// source registry snapshot
	ErrOrgIDNotFound = errors.New("ORGiD not found on source registry")

	// ErrChainNotAllowed is returned for chains outside the allow-list
	ErrChainNotAllowed = errors.New("chain not allowed")
)

// OrgIDRecord is one identity record of the source registry snapshot.
type OrgIDRecord struct {
	OrgID       string          `json:"orgId"`
	OrgJSONURI  string          `json:"orgJsonUri"`
	ParentOrgID string          `json:"parentOrgId,omitempty"`
	Owner       string          `json:"owner"`
	IsActive    bool            `json:"isActive"`
	OrgJSON     json.RawMessage `json:"orgJson,omitempty"`
}

// SourceRegistry reads the legacy registry's record set.
type SourceRegistry interface {
	// Get returns the record for an identity or ErrOrgIDNotFound.
	Get(ctx context.Context, orgID common.Hash) (*OrgIDRecord, error)
	// Owner returns the owner address of an identity.
	Owner(ctx context.Context, orgID common.Hash) (common.Address, error)
	// Records returns the full record set for owned-identity listings.
	Records(ctx context.Context) ([]OrgIDRecord, error)
}

// Gateway is a write-capable handle to one destination registry.
type Gateway interface {
	// ChainID identifies the destination network.
	ChainID() int64
	// Exists reports whether the identity is already migrated.
	Exists(ctx context.Context, orgID common.Hash) (bool, error)
	// Register performs the on-chain registration call. Once invoked the
	// transaction cannot be rolled back by this system.
	Register(ctx context.Context, orgID common.Hash, orgJSONURI string, owner common.Address) (common.Hash, error)
}

// Config describes one destination chain of the allow-list.
type Config struct {
	Name        string `yaml:"name"`
	ChainID     int64  `yaml:"chain_id"`
	ContractHex string `yaml:"contract"`
	ProviderURI string `yaml:"provider_uri"`
}

// Registry holds the destination gateways keyed by chain id; only chains
// present here are allowed migration targets.
type Registry struct {
	gateways map[int64]Gateway
}

// NewRegistry builds a registry from the given gateways.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[int64]Gateway, len(gateways))}
	for _, gw := range gateways {
		r.gateways[gw.ChainID()] = gw
	}
	return r
}

// Gateway returns the destination gateway for a chain id.
func (r *Registry) Gateway(chainID int64) (Gateway, error) {
	gw, ok := r.gateways[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChainNotAllowed, chainID)
	}
	return gw, nil
}

// Allowed reports allow-list membership for a chain id.
func (r *Registry) Allowed(chainID int64) bool {
	_, ok := r.gateways[chainID]
	return ok
}

// RevertError is a definitive on-chain revert, distinct from a network
// failure. Contention reverts (nonce races, replacement pricing) are the
// only retryable kind.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "transaction reverted: " + e.Reason
}

// transientReverts are revert/submission reasons caused by contention
// rather than by the call itself being invalid.
var transientReverts = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"transaction underpriced",
	"already known",
}

// Transient reports whether the revert stems from a contention condition
// worth retrying.
func (e *RevertError) Transient() bool {
	reason := strings.ToLower(e.Reason)
	for _, s := range transientReverts {
		if strings.Contains(reason, s) {
			return true
		}
	}
	return false
}
