// Package vc holds the typed ORGiD verifiable-credential model and the
// proof-verification capability used by the migration pipeline.
package vc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// VerificationMethod is one entry of the credential subject's own
// verification-method list.
type VerificationMethod struct {
	ID                  string `json:"id"`
	Type                string `json:"type,omitempty"`
	Controller          string `json:"controller,omitempty"`
	BlockchainAccountID string `json:"blockchainAccountId,omitempty"`
}

// CredentialSubject carries the subject DID and its published document
// fragments relevant to the migration.
type CredentialSubject struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
}

// Proof is the credential's cryptographic proof section.
type Proof struct {
	Type               string `json:"type,omitempty"`
	Created            string `json:"created,omitempty"`
	ProofPurpose       string `json:"proofPurpose,omitempty"`
	VerificationMethod string `json:"verificationMethod"`
	ProofValue         string `json:"proofValue,omitempty"`
}

// SignedCredential is a parsed ORGiD VC. The raw serialized form is kept
// so publishing stores exactly what the client signed.
type SignedCredential struct {
	ID                string            `json:"id,omitempty"`
	Type              []string          `json:"type,omitempty"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate,omitempty"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Proof             *Proof            `json:"proof,omitempty"`

	raw []byte
}

// Parse deserializes a signed credential, keeping the raw payload.
func Parse(raw []byte) (*SignedCredential, error) {
	var cred SignedCredential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, domain.BadRequest("Invalid ORGiD VC: %s", err.Error())
	}
	cred.raw = raw
	return &cred, nil
}

// Raw returns the credential exactly as it was submitted.
func (c *SignedCredential) Raw() []byte {
	return c.raw
}

// ResolveVerificationMethod looks the referenced method up in the
// credential's own verification-method list.
func (c *SignedCredential) ResolveVerificationMethod(id string) *VerificationMethod {
	for i := range c.CredentialSubject.VerificationMethod {
		if c.CredentialSubject.VerificationMethod[i].ID == id {
			return &c.CredentialSubject.VerificationMethod[i]
		}
	}
	return nil
}

// SigningInput returns the canonical byte form of the credential without
// its proof section, the payload the proof signature covers. Serializing
// through a map gives deterministic key ordering.
func (c *SignedCredential) SigningInput() ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(c.raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to canonicalize credential: %w", err)
	}
	delete(doc, "proof")
	return json.Marshal(doc)
}

// BlockchainAccount is a parsed CAIP-10 blockchain account identifier,
// e.g. "eip155:100:0xb63d...".
type BlockchainAccount struct {
	Namespace string
	ChainID   int64
	Address   common.Address
}

// String formats the account back to its CAIP-10 form.
func (a BlockchainAccount) String() string {
	return fmt.Sprintf("%s:%d:%s", a.Namespace, a.ChainID, a.Address.Hex())
}

// ParseBlockchainAccountID parses a CAIP-10 account identifier.
func ParseBlockchainAccountID(s string) (BlockchainAccount, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return BlockchainAccount{}, domain.BadRequest("Invalid blockchainAccountId: %s", s)
	}
	chainID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return BlockchainAccount{}, domain.BadRequest("Invalid blockchainAccountId chain: %s", s)
	}
	if !common.IsHexAddress(parts[2]) {
		return BlockchainAccount{}, domain.BadRequest("Invalid blockchainAccountId address: %s", s)
	}
	return BlockchainAccount{
		Namespace: parts[0],
		ChainID:   chainID,
		Address:   common.HexToAddress(parts[2]),
	}, nil
}

// AccountID formats an eip155 CAIP-10 identifier for a chain and address.
func AccountID(chainID int64, address common.Address) string {
	return fmt.Sprintf("eip155:%d:%s", chainID, address.Hex())
}
