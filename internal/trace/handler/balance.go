package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/batchflow/batchflow-backend/internal/trace/service"
	"github.com/batchflow/batchflow-backend/pkg/errors"
	"github.com/batchflow/batchflow-backend/pkg/httputil"
	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// BalanceHandler handles reconciliation and expiry sweep endpoints
type BalanceHandler struct {
	reconciliation *service.ReconciliationService
	expiryService  *service.ExpiryService
	logger         *logger.Logger
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(reconciliation *service.ReconciliationService, expiryService *service.ExpiryService, log *logger.Logger) *BalanceHandler {
	return &BalanceHandler{
		reconciliation: reconciliation,
		expiryService:  expiryService,
		logger:         log,
	}
}

// CheckBatch reconciles one material batch
func (h *BalanceHandler) CheckBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.reconciliation.CheckBalance(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// CheckAll reconciles every active material batch
func (h *BalanceHandler) CheckAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reconciliation.CheckAllBatches(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// LockExpired runs an on-demand expiry sweep. An optional as_of query
// parameter (RFC 3339) sweeps against a different reference time.
func (h *BalanceHandler) LockExpired(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("as_of must be an RFC 3339 timestamp"))
			return
		}
		asOf = parsed
	}

	count, err := h.expiryService.LockExpiredBatches(r.Context(), asOf)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int{"locked": count})
}
