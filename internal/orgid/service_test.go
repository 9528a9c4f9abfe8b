package orgid

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/content"
	"github.com/windingtree/orgid-migrator/internal/dedup"
	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
	"github.com/windingtree/orgid-migrator/internal/status"
)

const (
	ownerAddr  = "0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199"
	orgA       = "0x5a3dfb36da60cb60b3908e5ed5b9f8a6f7d45a1e43b76f6ae129712acf66bd34"
	orgB       = "0xc0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffee0000"
	orgForeign = "0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
)

func newService(t *testing.T) (*Service, *chain.MockSource, *dedup.MemoryIndex, *jobstore.MemoryStore, *content.MemoryStore) {
	t.Helper()

	source := chain.NewMockSource()
	index := dedup.NewMemoryIndex()
	jobs := jobstore.NewMemoryStore()
	store := content.NewMemoryStore()
	projector := status.NewProjector(index, jobs, slog.Default())

	return NewService(source, projector, store, slog.Default()), source, index, jobs, store
}

func TestOwned(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by checksummed owner", func(t *testing.T) {
		svc, source, _, _, _ := newService(t)

		orgJSON, _ := json.Marshal(map[string]any{
			"legalEntity": map[string]any{"legalName": "Acme GmbH"},
			"media":       map[string]any{"logo": "ipfs://bafylogo"},
		})
		source.Add(chain.OrgIDRecord{OrgID: orgA, Owner: ownerAddr, IsActive: true, OrgJSON: orgJSON})
		source.Add(chain.OrgIDRecord{OrgID: orgForeign, Owner: "0x0000000000000000000000000000000000000001", IsActive: true})

		// Lowercased query must still match the checksummed record.
		owned, err := svc.Owned(ctx, "0x8626f6940e2eb28930efb4cef49b2d1f2c9c1199")
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, "did:orgid:"+orgA, owned[0].DID)
		assert.Equal(t, domain.StateReady, owned[0].State)
		assert.Equal(t, "Acme GmbH", owned[0].Name)
		assert.Equal(t, "ipfs://bafylogo", owned[0].Logo)
	})

	t.Run("resolves metadata through the gateway", func(t *testing.T) {
		svc, source, _, _, store := newService(t)

		source.Add(chain.OrgIDRecord{
			OrgID:      orgA,
			Owner:      ownerAddr,
			OrgJSONURI: "ipfs://bafyremote",
			IsActive:   true,
		})
		store.Documents["ipfs://bafyremote"], _ = json.Marshal(map[string]any{
			"organizationalUnit": map[string]any{"name": "Acme Hotel"},
		})

		owned, err := svc.Owned(ctx, ownerAddr)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, "Acme Hotel", owned[0].Name)
		assert.Empty(t, owned[0].Logo)
	})

	t.Run("degrades to a placeholder on metadata failure", func(t *testing.T) {
		svc, source, _, _, _ := newService(t)

		source.Add(chain.OrgIDRecord{
			OrgID:      orgB,
			Owner:      ownerAddr,
			OrgJSONURI: "ipfs://missing",
			IsActive:   true,
		})

		owned, err := svc.Owned(ctx, ownerAddr)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, placeholderName, owned[0].Name)
	})

	t.Run("carries the migration status", func(t *testing.T) {
		svc, source, index, jobs, _ := newService(t)

		source.Add(chain.OrgIDRecord{OrgID: orgA, Owner: ownerAddr, IsActive: true})
		// Requested with the chain-qualified spelling; the listing builds
		// the plain form and must still observe the state.
		requested := "did:orgid:100:" + orgA
		require.NoError(t, jobs.Insert(ctx, &domain.Job{
			ID:      "job-1",
			Request: domain.MigrationRequest{DID: requested, Chain: 100, OrgIDVC: "{}"},
			State:   domain.JobCompleted,
		}))
		require.NoError(t, index.Put(ctx, domain.IndexKey(requested), "job-1"))

		owned, err := svc.Owned(ctx, ownerAddr)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, domain.StateCompleted, owned[0].State)
	})

	t.Run("rejects a malformed address", func(t *testing.T) {
		svc, _, _, _, _ := newService(t)

		_, err := svc.Owned(ctx, "not-an-address")
		require.Error(t, err)
		assert.Equal(t, 400, domain.StatusOf(err))
	})

	t.Run("empty result for an owner with nothing", func(t *testing.T) {
		svc, _, _, _, _ := newService(t)

		owned, err := svc.Owned(ctx, ownerAddr)
		require.NoError(t, err)
		assert.Empty(t, owned)
	})
}
