package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/datalith/provenance-ledger/internal/adapter"
	"github.com/datalith/provenance-ledger/internal/contentaddr"
	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/logger"
	"github.com/datalith/provenance-ledger/internal/messaging"
	"github.com/datalith/provenance-ledger/internal/royalty"
	"github.com/datalith/provenance-ledger/internal/store"
)

// RecordEventInput carries one lifecycle event submitted by a caller
type RecordEventInput struct {
	DatasetID   uuid.UUID
	ActionType  domain.ActionType
	PerformedBy string
	Description string
	// Detail is the typed payload for the action kind; optional
	Detail domain.EventDetail
	// Evidence is an optional JSON artifact; when present and ContentRef is
	// unset, its content address becomes the record's ContentRef
	Evidence json.RawMessage
	// ContentRef is an explicit content reference supplied by the caller
	ContentRef *string
	// PreviousRecordID selects an explicit ancestor for intentional
	// branching; when nil the record chains onto the dataset's current tip
	PreviousRecordID *uuid.UUID
}

// ProvenanceView is the combined read-path output: the timeline (most recent
// first), the lineage graph, and the derived verification status
type ProvenanceView struct {
	DatasetID uuid.UUID       `json:"dataset_id"`
	Records   []domain.Record `json:"records"`
	Graph     *domain.Graph   `json:"graph"`
	Verified  bool            `json:"verified"`
}

// Service is the facade the API layer consumes: event recording, provenance
// reads, contributor management, revenue distribution and verification
type Service interface {
	// RecordEvent validates and appends one lifecycle event, resolving the
	// chain linkage automatically unless an explicit ancestor is supplied
	RecordEvent(ctx context.Context, input RecordEventInput) (*domain.Record, error)
	// GetProvenance returns the dataset's validated timeline and lineage graph
	GetProvenance(ctx context.Context, datasetID uuid.UUID) (*ProvenanceView, error)
	// SetContributors replaces the share ledger and records the change as a
	// modification provenance event
	SetContributors(ctx context.Context, datasetID uuid.UUID, shares []domain.ShareInput, performedBy string) error
	// GetContributors returns the dataset's contributor set
	GetContributors(ctx context.Context, datasetID uuid.UUID) ([]domain.Contributor, error)
	// RecordPurchaseRevenue distributes one completed purchase's revenue
	// across contributors and records the usage provenance event. Expected to
	// be called exactly once per completed purchase.
	RecordPurchaseRevenue(ctx context.Context, datasetID uuid.UUID, amount float64, purchaseRef string, performedBy string) ([]domain.Allocation, error)
	// GetRoyalties returns the cumulative royalty totals of a dataset
	GetRoyalties(ctx context.Context, datasetID uuid.UUID) ([]domain.Royalty, error)
	// VerifyDataset appends the one-way verification event; fails with
	// domain.ErrAlreadyVerified when the chain already contains one
	VerifyDataset(ctx context.Context, datasetID uuid.UUID, verifierAddress, evidenceRef string) (*domain.Record, error)
	// AttachChainTx attaches the on-chain anchor reference to a committed record
	AttachChainTx(ctx context.Context, recordID uuid.UUID, txRef string) error
}

type service struct {
	store     store.Store
	chains    ChainBuilder
	royalties royalty.Service
	addresser contentaddr.Addresser
	publisher messaging.Publisher
	clock     adapter.Clock
}

// NewService creates the provenance ledger service. The publisher may be nil
// when no broker is configured; notifications are then skipped.
func NewService(
	st store.Store,
	chains ChainBuilder,
	royalties royalty.Service,
	addresser contentaddr.Addresser,
	publisher messaging.Publisher,
	clock adapter.Clock,
) Service {
	return &service{
		store:     st,
		chains:    chains,
		royalties: royalties,
		addresser: addresser,
		publisher: publisher,
		clock:     clock,
	}
}

// RecordEvent validates and appends one lifecycle event
func (s *service) RecordEvent(ctx context.Context, input RecordEventInput) (*domain.Record, error) {
	if !domain.IsValidActionType(input.ActionType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidActionType, input.ActionType)
	}
	if !domain.IsValidAddress(input.PerformedBy) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, input.PerformedBy)
	}
	if input.Description == "" {
		return nil, fmt.Errorf("%w: %s event for dataset %s", domain.ErrMissingDescription, input.ActionType, input.DatasetID)
	}

	metadata, err := domain.EncodeDetail(input.ActionType, input.Detail)
	if err != nil {
		return nil, err
	}

	contentRef := input.ContentRef
	if contentRef == nil && len(input.Evidence) > 0 {
		ref, err := s.addresser.Address(input.Evidence)
		if err != nil {
			return nil, fmt.Errorf("failed to address evidence: %w", err)
		}
		contentRef = &ref
	}

	row, err := s.store.AppendRecord(ctx, store.AppendRecordInput{
		ID:               uuid.New(),
		DatasetID:        input.DatasetID,
		ActionType:       input.ActionType,
		PerformedBy:      domain.NormalizeAddress(input.PerformedBy),
		Description:      input.Description,
		Metadata:         metadata,
		ContentRef:       contentRef,
		PreviousRecordID: input.PreviousRecordID,
		ResolveTip:       input.PreviousRecordID == nil,
	})
	if err != nil {
		return nil, err
	}

	record := toDomainRecord(row)
	s.notify(ctx, &record)
	return &record, nil
}

// GetProvenance returns the validated timeline (most recent first), the
// lineage graph and the derived verification status
func (s *service) GetProvenance(ctx context.Context, datasetID uuid.UUID) (*ProvenanceView, error) {
	graph, err := s.chains.BuildGraph(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	chain, err := s.chains.BuildChain(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	// List views show the latest event first
	records := make([]domain.Record, 0, len(chain))
	verified := false
	for i := len(chain) - 1; i >= 0; i-- {
		records = append(records, chain[i])
		if chain[i].ActionType == domain.ActionVerification {
			verified = true
		}
	}

	return &ProvenanceView{
		DatasetID: datasetID,
		Records:   records,
		Graph:     graph,
		Verified:  verified,
	}, nil
}

// SetContributors replaces the share ledger and records the change as a
// modification provenance event
func (s *service) SetContributors(ctx context.Context, datasetID uuid.UUID, shares []domain.ShareInput, performedBy string) error {
	if !domain.IsValidAddress(performedBy) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAddress, performedBy)
	}

	if err := s.royalties.SetShares(ctx, datasetID, shares); err != nil {
		return err
	}

	_, err := s.RecordEvent(ctx, RecordEventInput{
		DatasetID:   datasetID,
		ActionType:  domain.ActionModification,
		PerformedBy: performedBy,
		Description: fmt.Sprintf("Contributor shares reassigned (%d contributors)", len(shares)),
		Detail: &domain.ModificationDetail{
			Summary:       "contributor share reassignment",
			ChangedFields: []string{"contributors"},
		},
	})
	if err != nil {
		return fmt.Errorf("shares replaced but provenance event failed: %w", err)
	}

	return nil
}

// GetContributors returns the dataset's contributor set
func (s *service) GetContributors(ctx context.Context, datasetID uuid.UUID) ([]domain.Contributor, error) {
	return s.royalties.GetShares(ctx, datasetID)
}

// RecordPurchaseRevenue distributes one purchase's revenue and records the
// usage provenance event carrying the allocation outcome
func (s *service) RecordPurchaseRevenue(ctx context.Context, datasetID uuid.UUID, amount float64, purchaseRef string, performedBy string) ([]domain.Allocation, error) {
	if !domain.IsValidAddress(performedBy) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, performedBy)
	}
	if purchaseRef == "" {
		purchaseRef = newPurchaseRef(s.clock)
	}

	allocations, err := s.royalties.Distribute(ctx, datasetID, amount)
	if err != nil {
		return nil, err
	}

	_, err = s.RecordEvent(ctx, RecordEventInput{
		DatasetID:   datasetID,
		ActionType:  domain.ActionUsage,
		PerformedBy: performedBy,
		Description: fmt.Sprintf("Purchase %s distributed %v across %d contributors", purchaseRef, amount, len(allocations)),
		Detail: &domain.UsageDetail{
			PurchaseRef: purchaseRef,
			Revenue:     amount,
			Allocations: allocations,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("revenue distributed but provenance event failed: %w", err)
	}

	return allocations, nil
}

// GetRoyalties returns the cumulative royalty totals of a dataset
func (s *service) GetRoyalties(ctx context.Context, datasetID uuid.UUID) ([]domain.Royalty, error) {
	return s.royalties.GetRoyalties(ctx, datasetID)
}

// VerifyDataset appends the one-way verification event. The verified status
// is derived from chain contents inside the dataset lock, so concurrent
// verifier calls cannot both succeed.
func (s *service) VerifyDataset(ctx context.Context, datasetID uuid.UUID, verifierAddress, evidenceRef string) (*domain.Record, error) {
	if !domain.IsValidAddress(verifierAddress) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, verifierAddress)
	}

	metadata, err := domain.EncodeDetail(domain.ActionVerification, &domain.VerificationDetail{EvidenceRef: evidenceRef})
	if err != nil {
		return nil, err
	}

	var record domain.Record
	err = s.store.WithDatasetLock(ctx, datasetID, func(tx store.Store) error {
		verified, err := tx.HasActionRecord(ctx, datasetID, domain.ActionVerification)
		if err != nil {
			return err
		}
		if verified {
			return fmt.Errorf("%w: dataset %s", domain.ErrAlreadyVerified, datasetID)
		}

		row, err := tx.AppendRecord(ctx, store.AppendRecordInput{
			ID:          uuid.New(),
			DatasetID:   datasetID,
			ActionType:  domain.ActionVerification,
			PerformedBy: domain.NormalizeAddress(verifierAddress),
			Description: fmt.Sprintf("Dataset verified by %s", domain.NormalizeAddress(verifierAddress)),
			Metadata:    metadata,
			ResolveTip:  true,
		})
		if err != nil {
			return err
		}

		record = toDomainRecord(row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, &record)
	return &record, nil
}

// AttachChainTx attaches the on-chain anchor reference to a committed record
func (s *service) AttachChainTx(ctx context.Context, recordID uuid.UUID, txRef string) error {
	return s.store.AttachChainTx(ctx, recordID, txRef)
}

// notify publishes a committed record to the broker. Best-effort: failures
// are logged and never surfaced to the caller, since the append is already
// durable.
func (s *service) notify(ctx context.Context, record *domain.Record) {
	if s.publisher == nil {
		return
	}

	notification := &domain.Notification{
		RecordID:    record.ID,
		DatasetID:   record.DatasetID,
		ActionType:  record.ActionType,
		PerformedBy: record.PerformedBy,
		ContentRef:  record.ContentRef,
		CreatedAt:   record.CreatedAt,
	}
	if err := s.publisher.PublishNotification(ctx, notification); err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("record_id", record.ID.String()),
			zap.String("dataset_id", record.DatasetID.String()),
		)
	}
}

// newPurchaseRef generates a sortable purchase reference for revenue events
// that arrive without one
func newPurchaseRef(clock adapter.Clock) string {
	return ulid.MustNewDefault(clock.Now()).String()
}
