package vc

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

func TestParse(t *testing.T) {
	raw := []byte(`{
		"issuer": "did:orgid:100:0x5a3dfb36da60cb60b3908e5ed5b9f8a6f7d45a1e43b76f6ae129712acf66bd34",
		"credentialSubject": {
			"id": "did:orgid:100:0x5a3dfb36da60cb60b3908e5ed5b9f8a6f7d45a1e43b76f6ae129712acf66bd34",
			"verificationMethod": [{"id": "#key-1", "blockchainAccountId": "eip155:4:0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199"}]
		},
		"proof": {"verificationMethod": "#key-1", "proofValue": "0x00"}
	}`)

	cred, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, cred.Raw())
	require.NotNil(t, cred.Proof)
	assert.Equal(t, "#key-1", cred.Proof.VerificationMethod)

	vm := cred.ResolveVerificationMethod("#key-1")
	require.NotNil(t, vm)
	assert.Equal(t, "eip155:4:0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199", vm.BlockchainAccountID)
	assert.Nil(t, cred.ResolveVerificationMethod("#key-2"))

	_, err = Parse([]byte(`{not json`))
	require.Error(t, err)
	assert.Equal(t, 400, domain.StatusOf(err))
}

func TestSigningInput(t *testing.T) {
	raw := []byte(`{"issuer":"a","proof":{"proofValue":"0x00"},"credentialSubject":{"id":"b"}}`)
	cred, err := Parse(raw)
	require.NoError(t, err)

	input, err := cred.SigningInput()
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(input, &doc))
	assert.NotContains(t, doc, "proof")
	assert.Contains(t, doc, "issuer")
	assert.Contains(t, doc, "credentialSubject")

	// The canonical form is stable across calls.
	again, err := cred.SigningInput()
	require.NoError(t, err)
	assert.Equal(t, input, again)
}

func TestParseBlockchainAccountID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    BlockchainAccount
		wantErr bool
	}{
		{
			name: "valid eip155",
			id:   "eip155:100:0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199",
			want: BlockchainAccount{
				Namespace: "eip155",
				ChainID:   100,
				Address:   common.HexToAddress("0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199"),
			},
		},
		{"too few parts", "eip155:100", BlockchainAccount{}, true},
		{"non-numeric chain", "eip155:gnosis:0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199", BlockchainAccount{}, true},
		{"bad address", "eip155:100:0x1234", BlockchainAccount{}, true},
		{"empty", "", BlockchainAccount{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlockchainAccountID(tt.id)

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, 400, domain.StatusOf(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.id, got.String())
		})
	}
}

func TestAccountID(t *testing.T) {
	addr := common.HexToAddress("0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199")
	assert.Equal(t, "eip155:4:0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199", AccountID(4, addr))
}
