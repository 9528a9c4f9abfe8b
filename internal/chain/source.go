package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// SnapshotSource reads the legacy registry from a Redis hash snapshot
// keyed by the source contract address. The snapshot is produced by the
// indexer that crawls the source chain; this service only reads it.
type SnapshotSource struct {
	rdb      *redis.Client
	contract string
}

// NewSnapshotSource creates a snapshot reader for the given source
// contract.
func NewSnapshotSource(rdb *redis.Client, contract string) *SnapshotSource {
	return &SnapshotSource{rdb: rdb, contract: contract}
}

func (s *SnapshotSource) key() string {
	return "src:" + s.contract
}

// Get returns the record for an identity or ErrOrgIDNotFound.
func (s *SnapshotSource) Get(ctx context.Context, orgID common.Hash) (*OrgIDRecord, error) {
	raw, err := s.rdb.HGet(ctx, s.key(), orgID.Hex()).Result()
	if err == redis.Nil {
		return nil, ErrOrgIDNotFound
	}
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("source registry read failed: %w", err))
	}

	var record OrgIDRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("corrupt source registry record for %s: %w", orgID.Hex(), err)
	}
	return &record, nil
}

// Owner returns the owner address of an identity.
func (s *SnapshotSource) Owner(ctx context.Context, orgID common.Hash) (common.Address, error) {
	record, err := s.Get(ctx, orgID)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(record.Owner) {
		return common.Address{}, fmt.Errorf("corrupt owner address for %s: %q", orgID.Hex(), record.Owner)
	}
	return common.HexToAddress(record.Owner), nil
}

// Records returns the full snapshot record set.
func (s *SnapshotSource) Records(ctx context.Context) ([]OrgIDRecord, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("source registry scan failed: %w", err))
	}

	records := make([]OrgIDRecord, 0, len(raw))
	for orgID, value := range raw {
		var record OrgIDRecord
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return nil, fmt.Errorf("corrupt source registry record for %s: %w", orgID, err)
		}
		records = append(records, record)
	}
	return records, nil
}
