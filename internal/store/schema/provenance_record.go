package schema

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/datalith/provenance-ledger/internal/domain"
)

// ProvenanceRecord represents the provenance_records table - the append-only
// audit trail of dataset lifecycle events. Rows are never updated or deleted
// in normal operation; the only post-commit mutation is the one-shot
// attachment of chain_tx_ref.
type ProvenanceRecord struct {
	// ID is the record's stable identifier
	ID uuid.UUID `gorm:"column:id;primaryKey;type:uuid"`
	// DatasetID is the dataset this record belongs to
	DatasetID uuid.UUID `gorm:"column:dataset_id;not null;type:uuid;index:idx_provenance_records_dataset"`
	// ActionType identifies the lifecycle event kind (creation, modification, ...)
	ActionType domain.ActionType `gorm:"column:action_type;not null;type:text"`
	// PerformedBy is the wallet address of the acting party
	PerformedBy string `gorm:"column:performed_by;not null;type:text"`
	// Description is the required human-readable summary of the event
	Description string `gorm:"column:description;not null;type:text"`
	// Metadata carries the marshaled typed detail for this action kind
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	// ContentRef points at off-chain stored evidence
	ContentRef *string `gorm:"column:content_ref;type:text"`
	// ChainTxRef references the external ledger transaction once anchored on-chain
	ChainTxRef *string `gorm:"column:chain_tx_ref;type:text"`
	// PreviousRecordID links to the prior record of the same dataset (nil only for the root)
	PreviousRecordID *uuid.UUID `gorm:"column:previous_record_id;type:uuid;index:idx_provenance_records_previous"`
	// RootMarker is dataset_id for root records and nil otherwise; its unique
	// index is the database-level guarantee of exactly one root per dataset
	RootMarker *uuid.UUID `gorm:"column:root_marker;type:uuid;uniqueIndex:idx_provenance_records_root"`
	// CreatedAt is the timestamp the event was recorded; immutable once written
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the ProvenanceRecord model
func (ProvenanceRecord) TableName() string {
	return "provenance_records"
}
