package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventDetail is the typed payload carried by a provenance record. Each
// action kind has its own detail struct carrying only the fields relevant to
// it; the open metadata column persists the marshaled form.
type EventDetail interface {
	// DetailActionType returns the action kind the detail belongs to
	DetailActionType() ActionType
}

// CreationDetail accompanies the root creation record of a dataset
type CreationDetail struct {
	// Name is the dataset's display name at registration time
	Name string `json:"name,omitempty"`
	// Format describes the dataset's content format (csv, parquet, ...)
	Format string `json:"format,omitempty"`
	// SizeBytes is the dataset size at creation, when known
	SizeBytes uint64 `json:"size_bytes,omitempty"`
}

func (CreationDetail) DetailActionType() ActionType { return ActionCreation }

// ModificationDetail describes an in-place change to a dataset or its
// contributor set
type ModificationDetail struct {
	Summary string `json:"summary,omitempty"`
	// ChangedFields lists the attributes touched by the modification
	ChangedFields []string `json:"changed_fields,omitempty"`
}

func (ModificationDetail) DetailActionType() ActionType { return ActionModification }

// DerivationDetail links a derived dataset to its source lineage
type DerivationDetail struct {
	// SourceDatasetID is the dataset this one was derived from
	SourceDatasetID uuid.UUID `json:"source_dataset_id"`
	// Method describes the derivation (filter, join, augmentation, ...)
	Method string `json:"method,omitempty"`
}

func (DerivationDetail) DetailActionType() ActionType { return ActionDerivation }

// UsageDetail records a revenue-bearing use of a dataset, typically a
// completed marketplace purchase together with its royalty allocations
type UsageDetail struct {
	// PurchaseRef identifies the marketplace purchase driving the usage
	PurchaseRef string `json:"purchase_ref,omitempty"`
	// Revenue is the gross revenue amount of the event
	Revenue float64 `json:"revenue,omitempty"`
	// Allocations are the per-contributor amounts derived from the share ledger
	Allocations []Allocation `json:"allocations,omitempty"`
}

func (UsageDetail) DetailActionType() ActionType { return ActionUsage }

// VerificationDetail carries the evidence supplied by the verifier
type VerificationDetail struct {
	EvidenceRef string `json:"evidence_ref,omitempty"`
}

func (VerificationDetail) DetailActionType() ActionType { return ActionVerification }

// TransferDetail records an ownership transfer between two addresses
type TransferDetail struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
}

func (TransferDetail) DetailActionType() ActionType { return ActionTransfer }

// StorageConfirmedDetail marks a successful storage attempt
type StorageConfirmedDetail struct {
	Provider string `json:"provider,omitempty"`
	Location string `json:"location,omitempty"`
	// Attempt numbers storage attempts over time; confirmed and failed
	// outcomes are terminal per attempt
	Attempt int `json:"attempt,omitempty"`
}

func (StorageConfirmedDetail) DetailActionType() ActionType { return ActionStorageConfirmed }

// StorageFailedDetail marks a failed storage attempt
type StorageFailedDetail struct {
	Provider string `json:"provider,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
}

func (StorageFailedDetail) DetailActionType() ActionType { return ActionStorageFailed }

// EncodeDetail marshals a typed detail after checking it matches the action
// type of the record it is attached to
func EncodeDetail(action ActionType, detail EventDetail) (json.RawMessage, error) {
	if detail == nil {
		return nil, nil
	}
	if detail.DetailActionType() != action {
		return nil, fmt.Errorf("%w: %s detail attached to %s record",
			ErrInvalidDetail, detail.DetailActionType(), action)
	}

	data, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event detail: %w", err)
	}
	return data, nil
}

// DecodeDetail unmarshals a record's metadata into the typed detail for its
// action kind. Empty metadata yields a nil detail.
func DecodeDetail(action ActionType, raw json.RawMessage) (EventDetail, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var detail EventDetail
	switch action {
	case ActionCreation:
		detail = &CreationDetail{}
	case ActionModification:
		detail = &ModificationDetail{}
	case ActionDerivation:
		detail = &DerivationDetail{}
	case ActionUsage:
		detail = &UsageDetail{}
	case ActionVerification:
		detail = &VerificationDetail{}
	case ActionTransfer:
		detail = &TransferDetail{}
	case ActionStorageConfirmed:
		detail = &StorageConfirmedDetail{}
	case ActionStorageFailed:
		detail = &StorageFailedDetail{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidActionType, action)
	}

	if err := json.Unmarshal(raw, detail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s detail: %w", action, err)
	}
	return detail, nil
}
