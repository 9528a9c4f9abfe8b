package domain

import (
	"regexp"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// didRe matches ORGiD DIDs: did:orgid:<orgId> or did:orgid:<chain>:<orgId>
// where orgId is a 32-byte hex hash.
var didRe = regexp.MustCompile(`^did:orgid:(?:([0-9]+):)?(0x[0-9a-fA-F]{64})$`)

// DID is a parsed ORGiD decentralized identifier.
type DID struct {
	Raw   string
	Chain int64 // 0 when the DID carries no network part
	OrgID common.Hash
}

// String returns the canonical DID string.
func (d DID) String() string {
	return d.Raw
}

// IndexKey canonicalizes a DID for dedup-index lookups. The network
// segment is spelling, not identity: did:orgid:<chain>:<orgId> and
// did:orgid:<orgId> must share one key or a listing built from the plain
// form misses the state of a chain-qualified request. Unparsable input
// keys by itself.
func IndexKey(s string) string {
	d, err := ParseDID(s)
	if err != nil {
		return s
	}
	return "did:orgid:" + d.OrgID.Hex()
}

// ParseDID parses an ORGiD DID into its network and identity parts.
// A malformed DID is a client error.
func ParseDID(s string) (DID, error) {
	m := didRe.FindStringSubmatch(s)
	if m == nil {
		return DID{}, BadRequest("Invalid DID format: %s", s)
	}

	var chain int64
	if m[1] != "" {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return DID{}, BadRequest("Invalid DID network: %s", s)
		}
		chain = n
	}

	return DID{
		Raw:   s,
		Chain: chain,
		OrgID: common.HexToHash(m[2]),
	}, nil
}
