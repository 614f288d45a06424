package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/internal/trace/service"
	"github.com/batchflow/batchflow-backend/pkg/testutil"
)

func newExpiryService(t *testing.T) (*service.ExpiryService, *testutil.MockDB, *testutil.FixtureFactory) {
	mockDB, db := newMockDB(t)
	svc := service.NewExpiryService(repository.NewMaterialBatchRepository(db), nil, testLog)
	return svc, mockDB, testutil.NewFixtureFactory()
}

func TestExpiryService_LockExpiredBatches(t *testing.T) {
	svc, mockDB, _ := newExpiryService(t)
	defer mockDB.Close()

	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	mockDB.ExpectExec("UPDATE material_batches").
		WithArgs(asOf, "expired", "normal").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := svc.LockExpiredBatches(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	mockDB.ExpectationsWereMet(t)
}

func TestExpiryService_LockExpiredBatches_NothingToLock(t *testing.T) {
	svc, mockDB, _ := newExpiryService(t)
	defer mockDB.Close()

	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	mockDB.ExpectExec("UPDATE material_batches").
		WithArgs(asOf, "expired", "normal").
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err := svc.LockExpiredBatches(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	mockDB.ExpectationsWereMet(t)
}

func TestExpiryService_LockExpiredBatches_ZeroAsOfMeansNow(t *testing.T) {
	svc, mockDB, _ := newExpiryService(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE material_batches").
		WithArgs(sqlmock.AnyArg(), "expired", "normal").
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := svc.LockExpiredBatches(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mockDB.ExpectationsWereMet(t)
}

func TestExpiryService_FIFOCandidates(t *testing.T) {
	svc, mockDB, fixtures := newExpiryService(t)
	defer mockDB.Close()

	materialID := "c0c7b330-9e9c-4f8d-9f56-0d3f0c2f0001"
	soonest := fixtures.MaterialBatch()
	soonest.ExpiryDate = time.Now().UTC().AddDate(0, 1, 0)
	later := fixtures.MaterialBatch()

	mockDB.Mock.ExpectQuery("FROM material_batches").
		WithArgs(materialID, "normal").
		WillReturnRows(materialRow(soonest).AddRow(
			later.ID, later.BatchNumber, later.MaterialID, later.SupplierID,
			later.ProductionDate, later.ExpiryDate, later.Quantity, later.Status,
			nil, nil, later.ProductionDate, later.ProductionDate,
		))

	batches, err := svc.FIFOCandidates(context.Background(), materialID)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, soonest.ID, batches[0].ID)
	assert.Equal(t, later.ID, batches[1].ID)

	mockDB.ExpectationsWereMet(t)
}
