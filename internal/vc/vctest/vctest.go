// Package vctest builds signed ORGiD credentials for tests.
package vctest

import (
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// Options shapes the credential to sign.
type Options struct {
	SubjectDID          string
	Issuer              string
	VMID                string
	BlockchainAccountID string
}

// NewKey generates a throwaway secp256k1 key and its address.
func NewKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// Sign builds a credential for the subject and signs it with key using
// the eth_sign scheme over the proof-less canonical form.
func Sign(t *testing.T, key *ecdsa.PrivateKey, opts Options) string {
	t.Helper()

	if opts.Issuer == "" {
		opts.Issuer = opts.SubjectDID
	}
	if opts.VMID == "" {
		opts.VMID = opts.SubjectDID + "#key-1"
	}

	doc := map[string]any{
		"id":           opts.SubjectDID + "#credential-1",
		"type":         []string{"VerifiableCredential", "OrgIdMigrationCredential"},
		"issuer":       opts.Issuer,
		"issuanceDate": "2022-06-01T00:00:00Z",
		"credentialSubject": map[string]any{
			"id": opts.SubjectDID,
			"verificationMethod": []map[string]any{
				{
					"id":                  opts.VMID,
					"type":                "EcdsaSecp256k1RecoveryMethod2020",
					"controller":          opts.SubjectDID,
					"blockchainAccountId": opts.BlockchainAccountID,
				},
			},
		},
	}

	unsigned, err := json.Marshal(doc)
	require.NoError(t, err)

	// Mirror the verifier's canonical form: proof-less map roundtrip.
	var canonical map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(unsigned, &canonical))
	input, err := json.Marshal(canonical)
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash(input), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	doc["proof"] = map[string]any{
		"type":               "EcdsaSecp256k1RecoverySignature2020",
		"created":            "2022-06-01T00:00:00Z",
		"proofPurpose":       "assertionMethod",
		"verificationMethod": opts.VMID,
		"proofValue":         hexutil.Encode(sig),
	}

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(raw)
}
