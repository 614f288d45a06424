package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/internal/trace/service"
	"github.com/batchflow/batchflow-backend/pkg/httputil"
	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// BatchHandler handles material and production batch endpoints
type BatchHandler struct {
	batchService  *service.BatchService
	expiryService *service.ExpiryService
	logger        *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(batchService *service.BatchService, expiryService *service.ExpiryService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		batchService:  batchService,
		expiryService: expiryService,
		logger:        log,
	}
}

// ReceiveMaterial registers an inbound material batch
func (h *BatchHandler) ReceiveMaterial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaterialID     string    `json:"material_id" validate:"required,uuid"`
		SupplierID     string    `json:"supplier_id" validate:"required,uuid"`
		ProductionDate time.Time `json:"production_date" validate:"required"`
		ExpiryDate     time.Time `json:"expiry_date" validate:"required"`
		Quantity       float64   `json:"quantity" validate:"required,gt=0"`
		Notes          *string   `json:"notes"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch := &repository.MaterialBatch{
		MaterialID:     req.MaterialID,
		SupplierID:     req.SupplierID,
		ProductionDate: req.ProductionDate,
		ExpiryDate:     req.ExpiryDate,
		Quantity:       req.Quantity,
		Notes:          req.Notes,
	}

	created, err := h.batchService.ReceiveMaterialBatch(r.Context(), batch)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, created)
}

// GetMaterial gets a material batch by ID
func (h *BatchHandler) GetMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.batchService.GetMaterialBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// ListByMaterial lists batches of a material
func (h *BatchHandler) ListByMaterial(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "materialId")

	batches, err := h.batchService.ListMaterialBatches(r.Context(), materialID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// FIFOCandidates lists consumable batches of a material in pick order
func (h *BatchHandler) FIFOCandidates(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "materialId")

	batches, err := h.expiryService.FIFOCandidates(r.Context(), materialID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// UpdateMaterial updates the mutable fields of a material batch
func (h *BatchHandler) UpdateMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var batch repository.MaterialBatch
	if err := httputil.DecodeJSON(r, &batch); err != nil {
		httputil.Error(w, err)
		return
	}

	batch.ID = id
	updated, err := h.batchService.UpdateMaterialBatch(r.Context(), &batch)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, updated)
}

// DeleteMaterial soft deletes a material batch
func (h *BatchHandler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.batchService.DeleteMaterialBatch(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// CreateProduction creates a production batch
func (h *BatchHandler) CreateProduction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID       string    `json:"product_id" validate:"required,uuid"`
		PlannedQuantity float64   `json:"planned_quantity" validate:"required,gt=0"`
		ProductionDate  time.Time `json:"production_date" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch := &repository.ProductionBatch{
		ProductID:       req.ProductID,
		PlannedQuantity: req.PlannedQuantity,
		ProductionDate:  req.ProductionDate,
	}

	created, err := h.batchService.CreateProductionBatch(r.Context(), batch)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, created)
}

// GetProduction gets a production batch by ID
func (h *BatchHandler) GetProduction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.batchService.GetProductionBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// StartProduction moves a production batch to in_progress
func (h *BatchHandler) StartProduction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.batchService.StartProduction(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// CompleteProduction completes a production batch and mints its finished goods batch
func (h *BatchHandler) CompleteProduction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		ActualQuantity float64 `json:"actual_quantity" validate:"required,gt=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	finished, err := h.batchService.CompleteProduction(r.Context(), id, req.ActualQuantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, finished)
}
