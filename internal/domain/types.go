package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ActionType identifies the kind of lifecycle event a provenance record describes
type ActionType string

const (
	ActionCreation         ActionType = "creation"
	ActionModification     ActionType = "modification"
	ActionDerivation       ActionType = "derivation"
	ActionUsage            ActionType = "usage"
	ActionVerification     ActionType = "verification"
	ActionTransfer         ActionType = "transfer"
	ActionStorageConfirmed ActionType = "storage_confirmed"
	ActionStorageFailed    ActionType = "storage_failed"
)

// IsValidActionType checks if an action type belongs to the closed enum
func IsValidActionType(a ActionType) bool {
	switch a {
	case ActionCreation, ActionModification, ActionDerivation, ActionUsage,
		ActionVerification, ActionTransfer, ActionStorageConfirmed, ActionStorageFailed:
		return true
	default:
		return false
	}
}

// IsValidAddress checks if an address is a well-formed wallet-style hex address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress canonicalizes a hex address to its checksummed form so
// differently-cased submissions of the same address compare equal
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// Record is one immutable audit-trail entry describing a single lifecycle
// event of a dataset. Records are append-only: the sole mutation permitted
// after commit is the one-shot attachment of ChainTxRef.
type Record struct {
	ID uuid.UUID `json:"id"`
	// DatasetID is the dataset this record belongs to
	DatasetID uuid.UUID `json:"dataset_id"`
	// ActionType identifies the lifecycle event kind
	ActionType ActionType `json:"action_type"`
	// PerformedBy is the wallet address of the acting party
	PerformedBy string `json:"performed_by"`
	// Description is a required human-readable summary of the event
	Description string `json:"description"`
	// Metadata carries the marshaled typed detail for this action kind
	Metadata json.RawMessage `json:"metadata,omitempty"`
	// ContentRef points at off-chain stored evidence (e.g. a manifest)
	ContentRef *string `json:"content_ref,omitempty"`
	// ChainTxRef references the external ledger transaction once the event is anchored on-chain
	ChainTxRef *string `json:"chain_tx_ref,omitempty"`
	// PreviousRecordID links to the prior record in the same causal chain (nil only for the root)
	PreviousRecordID *uuid.UUID `json:"previous_record_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsRoot reports whether the record is the chain root of its dataset
func (r *Record) IsRoot() bool {
	return r.PreviousRecordID == nil
}

// GraphNode is one entry of the lineage graph: a record plus its children
type GraphNode struct {
	Record   Record      `json:"record"`
	Children []uuid.UUID `json:"children"`
}

// Graph is the lineage view of a dataset's provenance chain, keyed by record
// id. Branching occurs when several derivations share a parent.
type Graph struct {
	RootID uuid.UUID                `json:"root_id"`
	Nodes  map[uuid.UUID]*GraphNode `json:"nodes"`
}

// Contributor represents one address entitled to a revenue share of a dataset
type Contributor struct {
	DatasetID uuid.UUID `json:"dataset_id"`
	Address   string    `json:"address"`
	// Share is the revenue percentage in [0,100]
	Share float64 `json:"share"`
	Name  *string `json:"name,omitempty"`
}

// Royalty is the cumulative amount owed to a contributor for one dataset.
// TotalAmount is monotonically non-decreasing across the lifecycle.
type Royalty struct {
	DatasetID      uuid.UUID `json:"dataset_id"`
	Address        string    `json:"contributor_address"`
	Share          float64   `json:"share"`
	TotalAmount    float64   `json:"total_amount"`
	LastCalculated time.Time `json:"last_calculated"`
}

// Allocation is the amount of one revenue event attributed to a single address
type Allocation struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// ShareInput is one (address, share) entry supplied to the share ledger
type ShareInput struct {
	Address string  `json:"address"`
	Share   float64 `json:"share"`
	Name    *string `json:"name,omitempty"`
}

// Notification is the message published to the broker after a provenance
// record has been durably committed
type Notification struct {
	RecordID    uuid.UUID  `json:"record_id"`
	DatasetID   uuid.UUID  `json:"dataset_id"`
	ActionType  ActionType `json:"action_type"`
	PerformedBy string     `json:"performed_by"`
	ContentRef  *string    `json:"content_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Subject returns the broker subject for the notification.
// Format: provenance.{action_type}, e.g. provenance.creation
func (n *Notification) Subject() string {
	return fmt.Sprintf("provenance.%s", n.ActionType)
}
