package vc

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// ProofVerifier checks a credential's proof against an expected signer
// given as a CAIP-10 account identifier. Implementations must return a
// client-class error for a bad signature so it is never retried.
type ProofVerifier interface {
	Verify(ctx context.Context, cred *SignedCredential, expectedSigner string) error
}

// VerifierFunc adapts a function to the ProofVerifier interface.
type VerifierFunc func(ctx context.Context, cred *SignedCredential, expectedSigner string) error

func (f VerifierFunc) Verify(ctx context.Context, cred *SignedCredential, expectedSigner string) error {
	return f(ctx, cred, expectedSigner)
}

// EIP191Verifier verifies EcdsaSecp256k1RecoveryMethod2020 proofs: the
// proof value is an eth_sign signature over the credential without its
// proof section, and the recovered address must match the expected signer.
type EIP191Verifier struct{}

func NewEIP191Verifier() *EIP191Verifier {
	return &EIP191Verifier{}
}

func (v *EIP191Verifier) Verify(_ context.Context, cred *SignedCredential, expectedSigner string) error {
	if cred.Proof == nil || cred.Proof.ProofValue == "" {
		return domain.BadRequest("Invalid ORGiD VC: proof not found")
	}

	account, err := ParseBlockchainAccountID(expectedSigner)
	if err != nil {
		return err
	}

	input, err := cred.SigningInput()
	if err != nil {
		return domain.BadRequest("Invalid ORGiD VC: %s", err.Error())
	}

	sig, err := hexutil.Decode(cred.Proof.ProofValue)
	if err != nil || len(sig) != crypto.SignatureLength {
		return domain.BadRequest("Invalid ORGiD VC: malformed proof value")
	}

	// eth_sign produces V of 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(input), sig)
	if err != nil {
		return domain.BadRequest("Invalid ORGiD VC: signature recovery failed")
	}

	if crypto.PubkeyToAddress(*pub) != account.Address {
		return domain.BadRequest("Invalid ORGiD VC: signature does not match the owner")
	}

	return nil
}
