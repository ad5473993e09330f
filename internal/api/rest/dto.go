package rest

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/datalith/provenance-ledger/internal/domain"
)

// RecordEventRequest is the payload for appending one lifecycle event
type RecordEventRequest struct {
	ActionType  string `json:"action_type" binding:"required"`
	PerformedBy string `json:"performed_by" binding:"required"`
	Description string `json:"description" binding:"required"`
	// Detail is the typed payload for the action kind; shape depends on action_type
	Detail json.RawMessage `json:"detail,omitempty"`
	// Evidence is an arbitrary JSON artifact to content-address and attach
	Evidence json.RawMessage `json:"evidence,omitempty"`
	// ContentRef overrides evidence-derived addressing when supplied
	ContentRef *string `json:"content_ref,omitempty"`
	// PreviousRecordID selects an explicit ancestor for intentional branching
	PreviousRecordID *uuid.UUID `json:"previous_record_id,omitempty"`
}

// RecordResponse represents one committed provenance record
type RecordResponse struct {
	ID               uuid.UUID       `json:"id"`
	DatasetID        uuid.UUID       `json:"dataset_id"`
	ActionType       string          `json:"action_type"`
	PerformedBy      string          `json:"performed_by"`
	Description      string          `json:"description"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	ContentRef       *string         `json:"content_ref,omitempty"`
	ChainTxRef       *string         `json:"chain_tx_ref,omitempty"`
	PreviousRecordID *uuid.UUID      `json:"previous_record_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ProvenanceResponse is the combined read-path output for one dataset
type ProvenanceResponse struct {
	DatasetID uuid.UUID        `json:"dataset_id"`
	Records   []RecordResponse `json:"records"`
	Graph     *GraphResponse   `json:"graph,omitempty"`
	Verified  bool             `json:"verified"`
}

// GraphResponse is the lineage view of a dataset's provenance chain
type GraphResponse struct {
	RootID uuid.UUID                       `json:"root_id"`
	Nodes  map[uuid.UUID]GraphNodeResponse `json:"nodes"`
}

// GraphNodeResponse is one node of the lineage graph
type GraphNodeResponse struct {
	Record   RecordResponse `json:"record"`
	Children []uuid.UUID    `json:"children"`
}

// SetContributorsRequest replaces a dataset's contributor share ledger
type SetContributorsRequest struct {
	PerformedBy  string                    `json:"performed_by" binding:"required"`
	Contributors []ContributorShareRequest `json:"contributors" binding:"required"`
}

// ContributorShareRequest is one (address, share) entry
type ContributorShareRequest struct {
	Address string  `json:"address" binding:"required"`
	Share   float64 `json:"share"`
	Name    *string `json:"name,omitempty"`
}

// ContributorResponse represents one contributor entry
type ContributorResponse struct {
	Address string  `json:"address"`
	Share   float64 `json:"share"`
	Name    *string `json:"name,omitempty"`
}

// RecordPurchaseRequest records one completed purchase for distribution
type RecordPurchaseRequest struct {
	Amount      float64 `json:"amount" binding:"required"`
	PurchaseRef string  `json:"purchase_ref,omitempty"`
	PerformedBy string  `json:"performed_by" binding:"required"`
}

// PurchaseResponse reports the per-contributor allocations of one purchase
type PurchaseResponse struct {
	DatasetID   uuid.UUID            `json:"dataset_id"`
	Amount      float64              `json:"amount"`
	Allocations []AllocationResponse `json:"allocations"`
}

// AllocationResponse is the amount attributed to a single address
type AllocationResponse struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// VerifyDatasetRequest submits a verification of a dataset's chain
type VerifyDatasetRequest struct {
	VerifierAddress string `json:"verifier_address" binding:"required"`
	EvidenceRef     string `json:"evidence_ref,omitempty"`
}

// RoyaltyResponse is the cumulative amount owed to one contributor
type RoyaltyResponse struct {
	Address        string    `json:"contributor_address"`
	Share          float64   `json:"share"`
	TotalAmount    float64   `json:"total_amount"`
	LastCalculated time.Time `json:"last_calculated"`
}

// AttachChainTxRequest anchors a committed record to an external ledger
type AttachChainTxRequest struct {
	ChainTxRef string `json:"chain_tx_ref" binding:"required"`
}

// toRecordResponse converts a domain record to its API representation
func toRecordResponse(r domain.Record) RecordResponse {
	return RecordResponse{
		ID:               r.ID,
		DatasetID:        r.DatasetID,
		ActionType:       string(r.ActionType),
		PerformedBy:      r.PerformedBy,
		Description:      r.Description,
		Metadata:         r.Metadata,
		ContentRef:       r.ContentRef,
		ChainTxRef:       r.ChainTxRef,
		PreviousRecordID: r.PreviousRecordID,
		CreatedAt:        r.CreatedAt,
	}
}

// toGraphResponse converts the domain lineage graph to its API representation
func toGraphResponse(g *domain.Graph) *GraphResponse {
	if g == nil {
		return nil
	}
	nodes := make(map[uuid.UUID]GraphNodeResponse, len(g.Nodes))
	for id, node := range g.Nodes {
		nodes[id] = GraphNodeResponse{
			Record:   toRecordResponse(node.Record),
			Children: node.Children,
		}
	}
	return &GraphResponse{
		RootID: g.RootID,
		Nodes:  nodes,
	}
}
