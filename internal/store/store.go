package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/store/schema"
)

// AppendRecordInput carries the attributes of a new provenance record
type AppendRecordInput struct {
	ID               uuid.UUID
	DatasetID        uuid.UUID
	ActionType       domain.ActionType
	PerformedBy      string
	Description      string
	Metadata         json.RawMessage
	ContentRef       *string
	PreviousRecordID *uuid.UUID
	// ResolveTip makes the store ignore PreviousRecordID and chain the record
	// onto the dataset's current tip, resolved inside the append transaction
	// so concurrent linear appends serialize instead of silently branching
	ResolveTip bool
}

// UpsertRoyaltiesInput carries one distribution's outcome: the per-contributor
// allocations and the share snapshots they were derived from
type UpsertRoyaltiesInput struct {
	DatasetID   uuid.UUID
	Allocations []domain.Allocation
	// Shares maps contributor address to the share in effect at calculation time
	Shares         map[string]float64
	LastCalculated time.Time
}

// Store defines the interface for database operations
type Store interface {
	// AppendRecord durably appends a provenance record. It fails with
	// domain.ErrInvalidLinkage when the previous record does not resolve
	// within the same dataset, with domain.ErrDuplicateRoot when a second
	// rootless creation record is appended, and with domain.ErrMissingRoot
	// when a non-creation record is appended without a predecessor.
	AppendRecord(ctx context.Context, input AppendRecordInput) (*schema.ProvenanceRecord, error)
	// GetRecord retrieves a record by id; fails with domain.ErrRecordNotFound
	GetRecord(ctx context.Context, id uuid.UUID) (*schema.ProvenanceRecord, error)
	// ListRecordsByDataset retrieves all records of a dataset ordered by
	// creation time ascending
	ListRecordsByDataset(ctx context.Context, datasetID uuid.UUID) ([]schema.ProvenanceRecord, error)
	// ListChildren retrieves the records whose previous_record_id is recordID
	ListChildren(ctx context.Context, recordID uuid.UUID) ([]schema.ProvenanceRecord, error)
	// GetChainTip retrieves the most recently appended record of a dataset,
	// or nil when the dataset has no records
	GetChainTip(ctx context.Context, datasetID uuid.UUID) (*schema.ProvenanceRecord, error)
	// HasActionRecord checks whether the dataset's chain contains a record of
	// the given action type
	HasActionRecord(ctx context.Context, datasetID uuid.UUID, action domain.ActionType) (bool, error)
	// AttachChainTx attaches the external ledger transaction reference to a
	// committed record; fails with domain.ErrChainTxAlreadySet if one exists
	AttachChainTx(ctx context.Context, recordID uuid.UUID, txRef string) error
	// ListDatasetIDs pages over distinct dataset ids in ascending order,
	// returning ids strictly greater than the cursor
	ListDatasetIDs(ctx context.Context, cursor uuid.UUID, limit int) ([]uuid.UUID, error)

	// ReplaceContributors transactionally replaces the contributor set of a
	// dataset: missing rows are removed, changed rows updated, new rows inserted
	ReplaceContributors(ctx context.Context, datasetID uuid.UUID, contributors []domain.ShareInput) error
	// ListContributors retrieves the contributor rows of a dataset ordered by address
	ListContributors(ctx context.Context, datasetID uuid.UUID) ([]schema.Contributor, error)

	// UpsertRoyalties applies one distribution atomically: every royalty row
	// is created or incremented, or none are
	UpsertRoyalties(ctx context.Context, input UpsertRoyaltiesInput) error
	// ListRoyalties retrieves the royalty rows of a dataset ordered by address
	ListRoyalties(ctx context.Context, datasetID uuid.UUID) ([]schema.Royalty, error)

	// WithDatasetLock runs fn inside a transaction holding the dataset's
	// advisory lock, serializing it against other locked operations on the
	// same dataset while operations on other datasets proceed
	WithDatasetLock(ctx context.Context, datasetID uuid.UUID, fn func(txStore Store) error) error

	// GetSweepCursor retrieves the integrity sweeper's dataset cursor
	GetSweepCursor(ctx context.Context) (uuid.UUID, error)
	// SetSweepCursor stores the integrity sweeper's dataset cursor
	SetSweepCursor(ctx context.Context, cursor uuid.UUID) error
}
