package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"

	"github.com/batchflow/batchflow-backend/internal/trace/handler"
	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/internal/trace/service"
	"github.com/batchflow/batchflow-backend/pkg/database"
	"github.com/batchflow/batchflow-backend/pkg/logger"
	"github.com/batchflow/batchflow-backend/pkg/testutil"
)

func newBalanceRouter(t *testing.T) (chi.Router, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.Wrap(mockDB.DB, log)

	materialRepo := repository.NewMaterialBatchRepository(db)
	reconciliation := service.NewReconciliationService(
		materialRepo,
		repository.NewFinishedGoodsRepository(db),
		repository.NewUsageRepository(db),
		repository.NewStockRecordRepository(db),
		nil,
		log,
	)
	expiry := service.NewExpiryService(materialRepo, nil, log)
	h := handler.NewBalanceHandler(reconciliation, expiry, log)

	r := chi.NewRouter()
	r.Get("/balance", h.CheckAll)
	r.Get("/batches/{id}/balance", h.CheckBatch)
	r.Post("/expiry/lock", h.LockExpired)
	return r, mockDB
}

func TestBalanceHandler_LockExpired(t *testing.T) {
	router, mockDB := newBalanceRouter(t)
	defer mockDB.Close()

	asOf := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mockDB.ExpectExec("UPDATE material_batches").
		WithArgs(asOf, "expired", "normal").
		WillReturnResult(sqlmock.NewResult(0, 2))

	req := testutil.NewHTTPRequest(http.MethodPost, "/expiry/lock?as_of=2026-04-01T00:00:00Z", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"locked":2`)

	mockDB.ExpectationsWereMet(t)
}

func TestBalanceHandler_LockExpired_BadAsOf(t *testing.T) {
	router, mockDB := newBalanceRouter(t)
	defer mockDB.Close()

	req := testutil.NewHTTPRequest(http.MethodPost, "/expiry/lock?as_of=yesterday", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "RFC 3339")

	mockDB.ExpectationsWereMet(t)
}

func TestBalanceHandler_CheckBatch_NotFound(t *testing.T) {
	router, mockDB := newBalanceRouter(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs("b6a4f0a2-0000-4000-8000-000000000001").
		WillReturnRows(testutil.MockRows("id"))
	mockDB.ExpectQuery(`SELECT * FROM finished_goods_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs("b6a4f0a2-0000-4000-8000-000000000001").
		WillReturnRows(testutil.MockRows("id"))

	req := testutil.NewHTTPRequest(http.MethodGet, "/batches/b6a4f0a2-0000-4000-8000-000000000001/balance", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)

	mockDB.ExpectationsWereMet(t)
}
