package domain

import "time"

// MigrationRequest is the intake payload: a source-chain DID, the
// destination chain id and the serialized ORGiD VC authorizing the
// migration. Immutable once accepted; persisted verbatim inside the job.
type MigrationRequest struct {
	DID     string `json:"did" db:"did"`
	Chain   int64  `json:"chain" db:"chain"`
	OrgIDVC string `json:"orgIdVc" db:"orgid_vc"`
}

// RequestState is the client-facing migration state, derived on demand
// from the job lifecycle state and never persisted separately.
type RequestState string

const (
	StateReady     RequestState = "ready"
	StateRequested RequestState = "requested"
	StateProgress  RequestState = "progress"
	StateCompleted RequestState = "completed"
	StateFailed    RequestState = "failed"
)

// RequestStatus is the status shape returned by every status operation.
type RequestStatus struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	DID       string       `json:"did"`
	NewDID    string       `json:"newDid,omitempty"`
	State     RequestState `json:"state"`
	Reason    string       `json:"reason,omitempty"`
}
