package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/batchflow/batchflow-backend/internal/trace/service"
	"github.com/batchflow/batchflow-backend/pkg/httputil"
	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// UsageHandler handles usage ledger endpoints
type UsageHandler struct {
	ledgerService *service.LedgerService
	logger        *logger.Logger
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(ledgerService *service.LedgerService, log *logger.Logger) *UsageHandler {
	return &UsageHandler{
		ledgerService: ledgerService,
		logger:        log,
	}
}

// Record records material consumption for a production batch
func (h *UsageHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductionBatchID string  `json:"production_batch_id" validate:"required,uuid"`
		MaterialBatchID   string  `json:"material_batch_id" validate:"required,uuid"`
		Quantity          float64 `json:"quantity" validate:"required,gt=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	usage, err := h.ledgerService.RecordUsage(r.Context(), req.ProductionBatchID, req.MaterialBatchID, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, usage)
}

// Reverse reverses a usage record
func (h *UsageHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.ledgerService.ReverseUsage(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// ListByProduction lists usage records of a production batch
func (h *UsageHandler) ListByProduction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	usages, err := h.ledgerService.ListUsagesForProduction(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, usages)
}

// ListByMaterial lists usage records consuming a material batch
func (h *UsageHandler) ListByMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	usages, err := h.ledgerService.ListUsagesForMaterial(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, usages)
}
