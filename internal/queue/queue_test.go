package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
)

type stubPublisher struct {
	mu     sync.Mutex
	err    error
	bodies [][]byte
}

func (p *stubPublisher) Publish(_ context.Context, body []byte, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, append([]byte(nil), body...))
	return nil
}

func (p *stubPublisher) jobIDs(t *testing.T) []string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.bodies))
	for _, body := range p.bodies {
		var msg Message
		require.NoError(t, json.Unmarshal(body, &msg))
		ids = append(ids, msg.JobID)
	}
	return ids
}

var testRequest = domain.MigrationRequest{
	DID:     "did:orgid:100:0x5a3dfb36da60cb60b3908e5ed5b9f8a6f7d45a1e43b76f6ae129712acf66bd34",
	Chain:   100,
	OrgIDVC: "{}",
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("persists then publishes", func(t *testing.T) {
		store := jobstore.NewMemoryStore()
		pub := &stubPublisher{}
		q := New(store, pub, 5, slog.Default())

		job, err := q.Enqueue(ctx, "job-1", testRequest)
		require.NoError(t, err)
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, domain.JobQueued, job.State)
		assert.Equal(t, domain.StepValidating, job.Step)
		assert.Equal(t, 5, job.MaxAttempts)

		assert.Equal(t, []string{"job-1"}, pub.jobIDs(t))

		stored, err := q.Job(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, testRequest, stored.Request)
	})

	t.Run("publish failure fails the row", func(t *testing.T) {
		store := jobstore.NewMemoryStore()
		pub := &stubPublisher{err: errors.New("broker down")}
		q := New(store, pub, 5, slog.Default())

		_, err := q.Enqueue(ctx, "job-1", testRequest)
		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))

		// The row is finalized, not left queued forever with no delivery.
		stored, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobFailed, stored.State)
	})
}

func TestRequeuerSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("republishes due delayed jobs", func(t *testing.T) {
		store := jobstore.NewMemoryStore()
		pub := &stubPublisher{}
		q := New(store, pub, 5, slog.Default())

		_, err := q.Enqueue(ctx, "job-1", testRequest)
		require.NoError(t, err)
		pub.bodies = nil

		_, err = store.Claim(ctx, "job-1", "w1")
		require.NoError(t, err)
		require.NoError(t, store.Delay(ctx, "job-1", time.Now().UTC().Add(-time.Second), "transient"))

		r := NewRequeuer(store, pub, time.Second, 10, time.Minute, slog.Default())
		r.sweep(ctx)

		assert.Equal(t, []string{"job-1"}, pub.jobIDs(t))

		job, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobQueued, job.State)
	})

	t.Run("leaves future delayed jobs alone", func(t *testing.T) {
		store := jobstore.NewMemoryStore()
		pub := &stubPublisher{}
		q := New(store, pub, 5, slog.Default())

		_, err := q.Enqueue(ctx, "job-1", testRequest)
		require.NoError(t, err)
		pub.bodies = nil

		_, err = store.Claim(ctx, "job-1", "w1")
		require.NoError(t, err)
		require.NoError(t, store.Delay(ctx, "job-1", time.Now().UTC().Add(time.Hour), "transient"))

		r := NewRequeuer(store, pub, time.Second, 10, time.Minute, slog.Default())
		r.sweep(ctx)

		assert.Empty(t, pub.jobIDs(t))

		job, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobDelayed, job.State)
	})

	t.Run("rescues stale active jobs", func(t *testing.T) {
		store := jobstore.NewMemoryStoreAt(func() time.Time {
			return time.Now().UTC().Add(-time.Hour)
		})
		pub := &stubPublisher{}
		q := New(store, pub, 5, slog.Default())

		_, err := q.Enqueue(ctx, "job-1", testRequest)
		require.NoError(t, err)
		pub.bodies = nil

		// Claimed an hour ago and never touched since: a crashed worker.
		_, err = store.Claim(ctx, "job-1", "w1")
		require.NoError(t, err)

		r := NewRequeuer(store, pub, time.Second, 10, 10*time.Minute, slog.Default())
		r.sweep(ctx)

		assert.Equal(t, []string{"job-1"}, pub.jobIDs(t))

		job, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobQueued, job.State)
		assert.Empty(t, job.WorkerID)
	})

	t.Run("parks the job again when republish fails", func(t *testing.T) {
		store := jobstore.NewMemoryStore()
		pub := &stubPublisher{}
		q := New(store, pub, 5, slog.Default())

		_, err := q.Enqueue(ctx, "job-1", testRequest)
		require.NoError(t, err)
		pub.bodies = nil

		_, err = store.Claim(ctx, "job-1", "w1")
		require.NoError(t, err)
		require.NoError(t, store.Delay(ctx, "job-1", time.Now().UTC().Add(-time.Second), "nonce too low"))

		pub.err = errors.New("broker down")
		r := NewRequeuer(store, pub, time.Second, 10, time.Minute, slog.Default())
		r.sweep(ctx)

		// Delayed again so the next sweep can retry the publish, with
		// the worker's failure reason intact for status queries.
		job, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobDelayed, job.State)
		assert.Equal(t, "nonce too low", job.Error)
	})
}
