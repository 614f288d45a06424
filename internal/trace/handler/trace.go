package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/batchflow/batchflow-backend/internal/trace/service"
	"github.com/batchflow/batchflow-backend/pkg/httputil"
	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// TraceHandler handles traceability chain endpoints
type TraceHandler struct {
	traceService *service.TraceService
	logger       *logger.Logger
}

// NewTraceHandler creates a new trace handler
func NewTraceHandler(traceService *service.TraceService, log *logger.Logger) *TraceHandler {
	return &TraceHandler{
		traceService: traceService,
		logger:       log,
	}
}

// Backward traces a finished goods batch back to its material batches
func (h *TraceHandler) Backward(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	chain, err := h.traceService.TraceBackward(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, chain)
}

// Forward traces a material batch forward to finished goods
func (h *TraceHandler) Forward(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	chain, err := h.traceService.TraceForward(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, chain)
}
