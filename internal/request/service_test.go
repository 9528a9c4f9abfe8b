package request

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/dedup"
	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
	"github.com/windingtree/orgid-migrator/internal/queue"
	"github.com/windingtree/orgid-migrator/internal/status"
	"github.com/windingtree/orgid-migrator/internal/validate"
	"github.com/windingtree/orgid-migrator/internal/vc"
	"github.com/windingtree/orgid-migrator/internal/vc/vctest"
)

const orgIDHex = "0x5a3dfb36da60cb60b3908e5ed5b9f8a6f7d45a1e43b76f6ae129712acf66bd34"

// stubPublisher records published bodies and can fail on demand.
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

type fixture struct {
	service *Service
	pub     *stubPublisher
	index   *dedup.MemoryIndex
	jobs    *jobstore.MemoryStore
	did     string
	request domain.MigrationRequest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, owner := vctest.NewKey(t)
	did := "did:orgid:100:" + orgIDHex

	source := chain.NewMockSource()
	source.Add(chain.OrgIDRecord{
		OrgID:    orgIDHex,
		Owner:    owner.Hex(),
		IsActive: true,
	})

	registry := chain.NewRegistry(chain.NewMockGateway(100))
	jobs := jobstore.NewMemoryStore()
	index := dedup.NewMemoryIndex()
	pub := &stubPublisher{}
	jobQueue := queue.New(jobs, pub, 3, slog.Default())
	projector := status.NewProjector(index, jobs, slog.Default())

	credential := vctest.Sign(t, key, vctest.Options{
		SubjectDID:          did,
		BlockchainAccountID: vc.AccountID(4, owner),
	})

	service := NewService(Config{
		Validator:   validate.NewEngine(source, registry, slog.Default()),
		Verifier:    vc.NewEIP191Verifier(),
		Source:      source,
		SourceChain: 4,
		Index:       index,
		Queue:       jobQueue,
		Jobs:        jobs,
		Projector:   projector,
		Logger:      slog.Default(),
	})

	return &fixture{
		service: service,
		pub:     pub,
		index:   index,
		jobs:    jobs,
		did:     did,
		request: domain.MigrationRequest{DID: did, Chain: 100, OrgIDVC: credential},
	}
}

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("queues a valid request", func(t *testing.T) {
		f := newFixture(t)

		st, err := f.service.Add(ctx, f.request)
		require.NoError(t, err)
		assert.NotEmpty(t, st.ID)
		assert.Equal(t, f.did, st.DID)
		assert.Equal(t, domain.StateRequested, st.State)

		// The broker carries only the job id.
		require.Len(t, f.pub.bodies, 1)
		var msg queue.Message
		require.NoError(t, json.Unmarshal(f.pub.bodies[0], &msg))
		assert.Equal(t, st.ID, msg.JobID)

		// Index entry points at the job.
		jobID, err := f.index.Get(ctx, domain.IndexKey(f.did))
		require.NoError(t, err)
		assert.Equal(t, st.ID, jobID)
	})

	t.Run("rejects a duplicate", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Add(ctx, f.request)
		require.NoError(t, err)

		_, err = f.service.Add(ctx, f.request)
		assert.ErrorIs(t, err, domain.ErrDuplicate)
		assert.Equal(t, 403, domain.StatusOf(err))

		// No second job, no second delivery.
		assert.Len(t, f.pub.bodies, 1)
	})

	t.Run("treats DID spellings as one identity", func(t *testing.T) {
		f := newFixture(t)

		st, err := f.service.Add(ctx, f.request)
		require.NoError(t, err)

		// The chain segment is spelling, not identity: status queries
		// and dedup see the plain form as the same request.
		plain := "did:orgid:" + orgIDHex
		byPlain, err := f.service.ByDID(ctx, plain)
		require.NoError(t, err)
		assert.Equal(t, st.ID, byPlain.ID)

		resub := f.request
		resub.DID = plain
		_, err = f.service.Add(ctx, resub)
		assert.ErrorIs(t, err, domain.ErrDuplicate)
	})

	t.Run("validation failure leaves no trace", func(t *testing.T) {
		f := newFixture(t)

		bad := f.request
		bad.DID = "did:orgid:100:0xc0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffee0000"

		_, err := f.service.Add(ctx, bad)
		require.Error(t, err)
		assert.Equal(t, 400, domain.StatusOf(err))

		_, err = f.index.Get(ctx, domain.IndexKey(bad.DID))
		assert.ErrorIs(t, err, domain.ErrRequestNotFound)
		assert.Empty(t, f.pub.bodies)
	})

	t.Run("signer must be the source owner", func(t *testing.T) {
		f := newFixture(t)

		// Re-sign the credential with a key that does not own the identity.
		otherKey, otherAddr := vctest.NewKey(t)
		forged := f.request
		forged.OrgIDVC = vctest.Sign(t, otherKey, vctest.Options{
			SubjectDID:          f.did,
			BlockchainAccountID: vc.AccountID(4, otherAddr),
		})

		_, err := f.service.Add(ctx, forged)
		require.Error(t, err)
		assert.Equal(t, 400, domain.StatusOf(err))

		_, err = f.index.Get(ctx, domain.IndexKey(f.did))
		assert.ErrorIs(t, err, domain.ErrRequestNotFound)
	})

	t.Run("rolls the index back when publish fails", func(t *testing.T) {
		f := newFixture(t)
		f.pub.err = errors.New("broker down")

		_, err := f.service.Add(ctx, f.request)
		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))

		// The DID is free to be submitted again.
		_, err = f.index.Get(ctx, domain.IndexKey(f.did))
		assert.ErrorIs(t, err, domain.ErrRequestNotFound)

		f.pub.err = nil
		_, err = f.service.Add(ctx, f.request)
		assert.NoError(t, err)
	})

	t.Run("concurrent submissions admit exactly one", func(t *testing.T) {
		f := newFixture(t)

		const racers = 8
		var wg sync.WaitGroup
		errs := make([]error, racers)

		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, errs[n] = f.service.Add(ctx, f.request)
			}(i)
		}
		wg.Wait()

		accepted := 0
		for _, err := range errs {
			if err == nil {
				accepted++
			} else {
				assert.ErrorIs(t, err, domain.ErrDuplicate)
			}
		}
		assert.Equal(t, 1, accepted)
		assert.Len(t, f.pub.bodies, 1)
	})
}

func TestStatusQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.service.Add(ctx, f.request)
	require.NoError(t, err)

	byID, err := f.service.ByJobID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRequested, byID.State)

	byDID, err := f.service.ByDID(ctx, f.did)
	require.NoError(t, err)
	assert.Equal(t, st.ID, byDID.ID)

	_, err = f.service.ByJobID(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.service.Add(ctx, f.request)
	require.NoError(t, err)

	require.NoError(t, f.service.Reset(ctx))

	_, err = f.jobs.Get(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	byDID, err := f.service.ByDID(ctx, f.did)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, byDID.State)
}
