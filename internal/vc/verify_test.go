package vc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/vc/vctest"
)

func TestEIP191Verifier(t *testing.T) {
	ctx := context.Background()
	verifier := NewEIP191Verifier()

	key, addr := vctest.NewKey(t)
	subjectDID := "did:orgid:100:0x5a3dfb36da60cb60b3908e5ed5b9f8a6f7d45a1e43b76f6ae129712acf66bd34"
	accountID := AccountID(4, addr)

	raw := vctest.Sign(t, key, vctest.Options{
		SubjectDID:          subjectDID,
		BlockchainAccountID: accountID,
	})
	cred, err := Parse([]byte(raw))
	require.NoError(t, err)

	t.Run("valid signature", func(t *testing.T) {
		assert.NoError(t, verifier.Verify(ctx, cred, accountID))
	})

	t.Run("wrong expected signer", func(t *testing.T) {
		_, other := vctest.NewKey(t)
		err := verifier.Verify(ctx, cred, AccountID(4, other))
		require.Error(t, err)
		assert.Equal(t, 400, domain.StatusOf(err))
		assert.Contains(t, err.Error(), "signature does not match")
	})

	t.Run("signed by another key", func(t *testing.T) {
		otherKey, _ := vctest.NewKey(t)
		forged := vctest.Sign(t, otherKey, vctest.Options{
			SubjectDID:          subjectDID,
			BlockchainAccountID: accountID,
		})
		forgedCred, err := Parse([]byte(forged))
		require.NoError(t, err)

		err = verifier.Verify(ctx, forgedCred, accountID)
		require.Error(t, err)
		assert.Equal(t, 400, domain.StatusOf(err))
	})

	t.Run("tampered credential", func(t *testing.T) {
		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(raw), &doc))
		doc["issuer"] = json.RawMessage(`"did:orgid:0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"`)
		tampered, err := json.Marshal(doc)
		require.NoError(t, err)

		tamperedCred, err := Parse(tampered)
		require.NoError(t, err)

		err = verifier.Verify(ctx, tamperedCred, accountID)
		require.Error(t, err)
		assert.Equal(t, 400, domain.StatusOf(err))
	})

	t.Run("missing proof", func(t *testing.T) {
		noProof, err := Parse([]byte(`{"issuer":"x","credentialSubject":{"id":"y"}}`))
		require.NoError(t, err)

		err = verifier.Verify(ctx, noProof, accountID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "proof not found")
	})

	t.Run("malformed proof value", func(t *testing.T) {
		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(raw), &doc))
		doc["proof"] = json.RawMessage(`{"verificationMethod":"#key-1","proofValue":"0x1234"}`)
		mangled, err := json.Marshal(doc)
		require.NoError(t, err)

		mangledCred, err := Parse(mangled)
		require.NoError(t, err)

		err = verifier.Verify(ctx, mangledCred, accountID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed proof value")
	})
}
