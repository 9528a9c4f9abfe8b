package chain

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MockSource is a map-backed source registry for tests and local runs.
// A configurable latency mimics real lookups; Err forces a failure.
type MockSource struct {
	Latency time.Duration
	Err     error

	mu      sync.RWMutex
	records map[common.Hash]OrgIDRecord
}

func NewMockSource() *MockSource {
	return &MockSource{records: make(map[common.Hash]OrgIDRecord)}
}

// Add inserts a record keyed by its orgId.
func (s *MockSource) Add(record OrgIDRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[common.HexToHash(record.OrgID)] = record
}

func (s *MockSource) Get(_ context.Context, orgID common.Hash) (*OrgIDRecord, error) {
	time.Sleep(s.Latency)
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[orgID]
	if !ok {
		return nil, ErrOrgIDNotFound
	}
	return &record, nil
}

func (s *MockSource) Owner(ctx context.Context, orgID common.Hash) (common.Address, error) {
	record, err := s.Get(ctx, orgID)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(record.Owner), nil
}

func (s *MockSource) Records(_ context.Context) ([]OrgIDRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OrgIDRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	return out, nil
}

// RegisterCall records one Register invocation on a MockGateway.
type RegisterCall struct {
	OrgID      common.Hash
	OrgJSONURI string
	Owner      common.Address
}

// MockGateway is a scriptable destination gateway. ExistsErr/RegisterErrs
// inject failures; RegisterErrs is consumed one call at a time so a test
// can fail N attempts and then succeed.
type MockGateway struct {
	Chain        int64
	ExistsErr    error
	RegisterErrs []error

	mu        sync.Mutex
	migrated  map[common.Hash]bool
	Registers []RegisterCall
}

func NewMockGateway(chainID int64) *MockGateway {
	return &MockGateway{Chain: chainID, migrated: make(map[common.Hash]bool)}
}

// SetMigrated marks an identity as already present on the destination.
func (g *MockGateway) SetMigrated(orgID common.Hash) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.migrated[orgID] = true
}

func (g *MockGateway) ChainID() int64 {
	return g.Chain
}

func (g *MockGateway) Exists(_ context.Context, orgID common.Hash) (bool, error) {
	if g.ExistsErr != nil {
		return false, g.ExistsErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.migrated[orgID], nil
}

func (g *MockGateway) Register(_ context.Context, orgID common.Hash, orgJSONURI string, owner common.Address) (common.Hash, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.RegisterErrs) > 0 {
		err := g.RegisterErrs[0]
		g.RegisterErrs = g.RegisterErrs[1:]
		if err != nil {
			return common.Hash{}, err
		}
	}

	g.Registers = append(g.Registers, RegisterCall{OrgID: orgID, OrgJSONURI: orgJSONURI, Owner: owner})
	g.migrated[orgID] = true
	return common.BytesToHash(orgID.Bytes()), nil
}
