// Package dedup enforces at-most-one in-flight migration per DID through
// a persistent DID-to-job-id index with atomic check-and-set semantics.
package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// Index maps a DID to its queued job id. Put is atomic against concurrent
// intakes for the same DID; the index is the source of truth for "is there
// already a request for this DID" independent of queue internals.
type Index interface {
	// Put stores did -> jobID, failing with domain.ErrDuplicate when an
	// entry already exists.
	Put(ctx context.Context, did, jobID string) error
	// Get returns the job id for a DID or domain.ErrRequestNotFound.
	Get(ctx context.Context, did string) (string, error)
	// Delete removes the entry for a DID.
	Delete(ctx context.Context, did string) error
	// Reset clears the whole index. Administrative use only.
	Reset(ctx context.Context) error
}

// CleanupPolicy decides whether a terminal job releases its index entry,
// allowing the DID to be re-submitted.
type CleanupPolicy string

const (
	// CleanupKeep leaves terminal entries in place: migrations are
	// one-shot even on failure unless an operator clears the entry.
	CleanupKeep CleanupPolicy = "keep"
	// CleanupReleaseFailed clears the entry when retries exhaust, so a
	// client can resubmit after a failure.
	CleanupReleaseFailed CleanupPolicy = "release-failed"
	// CleanupReleaseAll clears the entry on any terminal state.
	CleanupReleaseAll CleanupPolicy = "release-all"
)

// ParseCleanupPolicy validates a configured policy string; empty means
// CleanupKeep.
func ParseCleanupPolicy(s string) (CleanupPolicy, error) {
	switch CleanupPolicy(s) {
	case "", CleanupKeep:
		return CleanupKeep, nil
	case CleanupReleaseFailed:
		return CleanupReleaseFailed, nil
	case CleanupReleaseAll:
		return CleanupReleaseAll, nil
	default:
		return "", fmt.Errorf("unknown dedup cleanup policy: %q", s)
	}
}

// Releases reports whether a job reaching the given terminal state should
// release the index entry.
func (p CleanupPolicy) Releases(state domain.JobState) bool {
	switch p {
	case CleanupReleaseAll:
		return state == domain.JobCompleted || state == domain.JobFailed
	case CleanupReleaseFailed:
		return state == domain.JobFailed
	default:
		return false
	}
}

const keyPrefix = "request_"

// RedisIndex is the production index: one key per DID, set with SETNX so
// concurrent intakes race safely.
type RedisIndex struct {
	rdb *redis.Client
}

func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{rdb: rdb}
}

func requestKey(did string) string {
	return keyPrefix + did
}

func (i *RedisIndex) Put(ctx context.Context, did, jobID string) error {
	ok, err := i.rdb.SetNX(ctx, requestKey(did), jobID, 0).Result()
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("dedup index put failed: %w", err))
	}
	if !ok {
		return domain.ErrDuplicate
	}
	return nil
}

func (i *RedisIndex) Get(ctx context.Context, did string) (string, error) {
	jobID, err := i.rdb.Get(ctx, requestKey(did)).Result()
	if err == redis.Nil {
		return "", domain.ErrRequestNotFound
	}
	if err != nil {
		return "", domain.NewRetryableError(fmt.Errorf("dedup index get failed: %w", err))
	}
	return jobID, nil
}

func (i *RedisIndex) Delete(ctx context.Context, did string) error {
	if err := i.rdb.Del(ctx, requestKey(did)).Err(); err != nil {
		return domain.NewRetryableError(fmt.Errorf("dedup index delete failed: %w", err))
	}
	return nil
}

func (i *RedisIndex) Reset(ctx context.Context) error {
	iter := i.rdb.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := i.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("dedup index reset failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("dedup index reset scan failed: %w", err)
	}
	return nil
}
