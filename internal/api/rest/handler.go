package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/datalith/provenance-ledger/internal/domain"
	"github.com/datalith/provenance-ledger/internal/ledger"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// RecordEvent appends one lifecycle event to a dataset's chain
	// POST /api/v1/datasets/:dataset_id/events
	RecordEvent(c *gin.Context)

	// GetProvenance returns the dataset's timeline, lineage graph and
	// verification status
	// GET /api/v1/datasets/:dataset_id/provenance
	GetProvenance(c *gin.Context)

	// SetContributors replaces the dataset's contributor share ledger
	// PUT /api/v1/datasets/:dataset_id/contributors
	SetContributors(c *gin.Context)

	// GetContributors returns the dataset's contributor set
	// GET /api/v1/datasets/:dataset_id/contributors
	GetContributors(c *gin.Context)

	// RecordPurchase distributes one completed purchase's revenue
	// POST /api/v1/datasets/:dataset_id/purchases
	RecordPurchase(c *gin.Context)

	// VerifyDataset appends the one-way verification event
	// POST /api/v1/datasets/:dataset_id/verification
	VerifyDataset(c *gin.Context)

	// GetRoyalties returns the dataset's cumulative royalty totals
	// GET /api/v1/datasets/:dataset_id/royalties
	GetRoyalties(c *gin.Context)

	// AttachChainTx anchors a committed record to an external ledger
	// POST /api/v1/records/:record_id/chain-tx
	AttachChainTx(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	service ledger.Service
}

// NewHandler creates a new REST API handler on top of the ledger service
func NewHandler(service ledger.Service) Handler {
	return &handler{service: service}
}

// datasetID parses the :dataset_id path parameter; responds and returns false
// when it is not a valid UUID
func datasetID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("dataset_id"))
	if err != nil {
		respondBadRequest(c, "Invalid dataset ID", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// RecordEvent appends one lifecycle event to a dataset's chain
func (h *handler) RecordEvent(c *gin.Context) {
	id, ok := datasetID(c)
	if !ok {
		return
	}

	var req RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	action := domain.ActionType(req.ActionType)
	if !domain.IsValidActionType(action) {
		respondValidationError(c, "unknown action type: "+req.ActionType)
		return
	}

	var detail domain.EventDetail
	if len(req.Detail) > 0 {
		var err error
		detail, err = domain.DecodeDetail(action, req.Detail)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
	}

	record, err := h.service.RecordEvent(c.Request.Context(), ledger.RecordEventInput{
		DatasetID:        id,
		ActionType:       action,
		PerformedBy:      req.PerformedBy,
		Description:      req.Description,
		Detail:           detail,
		Evidence:         req.Evidence,
		ContentRef:       req.ContentRef,
		PreviousRecordID: req.PreviousRecordID,
	})
	if err != nil {
		respondDomainError(c, err, "Failed to record event")
		return
	}

	c.JSON(http.StatusCreated, toRecordResponse(*record))
}

// GetProvenance returns the dataset's validated timeline and lineage graph
func (h *handler) GetProvenance(c *gin.Context) {
	id, ok := datasetID(c)
	if !ok {
		return
	}

	view, err := h.service.GetProvenance(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "Failed to get provenance")
		return
	}

	records := make([]RecordResponse, 0, len(view.Records))
	for _, r := range view.Records {
		records = append(records, toRecordResponse(r))
	}

	c.JSON(http.StatusOK, ProvenanceResponse{
		DatasetID: view.DatasetID,
		Records:   records,
		Graph:     toGraphResponse(view.Graph),
		Verified:  view.Verified,
	})
}

// SetContributors replaces the dataset's contributor share ledger
func (h *handler) SetContributors(c *gin.Context) {
	id, ok := datasetID(c)
	if !ok {
		return
	}

	var req SetContributorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	shares := make([]domain.ShareInput, 0, len(req.Contributors))
	for _, entry := range req.Contributors {
		shares = append(shares, domain.ShareInput{
			Address: entry.Address,
			Share:   entry.Share,
			Name:    entry.Name,
		})
	}

	if err := h.service.SetContributors(c.Request.Context(), id, shares, req.PerformedBy); err != nil {
		respondDomainError(c, err, "Failed to set contributors")
		return
	}

	c.Status(http.StatusNoContent)
}

// GetContributors returns the dataset's contributor set
func (h *handler) GetContributors(c *gin.Context) {
	id, ok := datasetID(c)
	if !ok {
		return
	}

	contributors, err := h.service.GetContributors(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "Failed to get contributors")
		return
	}

	response := make([]ContributorResponse, 0, len(contributors))
	for _, contributor := range contributors {
		response = append(response, ContributorResponse{
			Address: contributor.Address,
			Share:   contributor.Share,
			Name:    contributor.Name,
		})
	}

	c.JSON(http.StatusOK, response)
}

// RecordPurchase distributes one completed purchase's revenue
func (h *handler) RecordPurchase(c *gin.Context) {
	id, ok := datasetID(c)
	if !ok {
		return
	}

	var req RecordPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	allocations, err := h.service.RecordPurchaseRevenue(
		c.Request.Context(),
		id,
		req.Amount,
		req.PurchaseRef,
		req.PerformedBy,
	)
	if err != nil {
		respondDomainError(c, err, "Failed to record purchase")
		return
	}

	response := PurchaseResponse{
		DatasetID:   id,
		Amount:      req.Amount,
		Allocations: make([]AllocationResponse, 0, len(allocations)),
	}
	for _, allocation := range allocations {
		response.Allocations = append(response.Allocations, AllocationResponse{
			Address: allocation.Address,
			Amount:  allocation.Amount,
		})
	}

	c.JSON(http.StatusOK, response)
}

// VerifyDataset appends the one-way verification event
func (h *handler) VerifyDataset(c *gin.Context) {
	id, ok := datasetID(c)
	if !ok {
		return
	}

	var req VerifyDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	record, err := h.service.VerifyDataset(c.Request.Context(), id, req.VerifierAddress, req.EvidenceRef)
	if err != nil {
		respondDomainError(c, err, "Failed to verify dataset")
		return
	}

	c.JSON(http.StatusCreated, toRecordResponse(*record))
}

// GetRoyalties returns the dataset's cumulative royalty totals
func (h *handler) GetRoyalties(c *gin.Context) {
	id, ok := datasetID(c)
	if !ok {
		return
	}

	royalties, err := h.service.GetRoyalties(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "Failed to get royalties")
		return
	}

	response := make([]RoyaltyResponse, 0, len(royalties))
	for _, royalty := range royalties {
		response = append(response, RoyaltyResponse{
			Address:        royalty.Address,
			Share:          royalty.Share,
			TotalAmount:    royalty.TotalAmount,
			LastCalculated: royalty.LastCalculated,
		})
	}

	c.JSON(http.StatusOK, response)
}

// AttachChainTx anchors a committed record to an external ledger transaction
func (h *handler) AttachChainTx(c *gin.Context) {
	recordID, err := uuid.Parse(c.Param("record_id"))
	if err != nil {
		respondBadRequest(c, "Invalid record ID", err.Error())
		return
	}

	var req AttachChainTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	if err := h.service.AttachChainTx(c.Request.Context(), recordID, req.ChainTxRef); err != nil {
		respondDomainError(c, err, "Failed to attach chain transaction")
		return
	}

	c.Status(http.StatusNoContent)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
