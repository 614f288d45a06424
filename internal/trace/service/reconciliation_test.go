package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/internal/trace/service"
	"github.com/batchflow/batchflow-backend/pkg/testutil"
)

func newReconciliationService(t *testing.T) (*service.ReconciliationService, *testutil.MockDB, *testutil.FixtureFactory) {
	mockDB, db := newMockDB(t)

	svc := service.NewReconciliationService(
		repository.NewMaterialBatchRepository(db),
		repository.NewFinishedGoodsRepository(db),
		repository.NewUsageRepository(db),
		repository.NewStockRecordRepository(db),
		nil,
		testLog,
	)
	return svc, mockDB, testutil.NewFixtureFactory()
}

func expectMovementSums(mockDB *testutil.MockDB, batchID string, in, out, ret, scrap float64) {
	sumQuery := `SELECT SUM(quantity) FROM stock_records WHERE batch_id = $1 AND record_type = $2`
	mockDB.ExpectQuery(sumQuery).
		WithArgs(batchID, "in").
		WillReturnRows(testutil.MockRows("sum").AddRow(in))
	mockDB.ExpectQuery(sumQuery).
		WithArgs(batchID, "out").
		WillReturnRows(testutil.MockRows("sum").AddRow(out))
	mockDB.ExpectQuery(sumQuery).
		WithArgs(batchID, "return").
		WillReturnRows(testutil.MockRows("sum").AddRow(ret))
	mockDB.ExpectQuery(sumQuery).
		WithArgs(batchID, "scrap").
		WillReturnRows(testutil.MockRows("sum").AddRow(scrap))
}

func expectSums(mockDB *testutil.MockDB, batchID string, in, out, ret, scrap, used float64) {
	expectMovementSums(mockDB, batchID, in, out, ret, scrap)
	mockDB.ExpectQuery(`SELECT SUM(quantity) FROM batch_material_usages WHERE material_batch_id = $1`).
		WithArgs(batchID).
		WillReturnRows(testutil.MockRows("sum").AddRow(used))
}

func TestReconciliationService_CheckBalance_Balanced(t *testing.T) {
	svc, mockDB, fixtures := newReconciliationService(t)
	defer mockDB.Close()

	// in 100, out 50, used 40 against a current stock of 10 balances
	material := fixtures.MaterialBatch()
	material.Quantity = 10

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))
	expectSums(mockDB, material.ID, 100, 50, 0, 0, 40)

	report, err := svc.CheckBalance(context.Background(), material.ID)
	require.NoError(t, err)

	assert.Equal(t, 100.0, report.TotalIn)
	assert.Equal(t, 50.0, report.TotalOut)
	assert.Equal(t, 40.0, report.TotalUsed)
	assert.Equal(t, 10.0, report.Calculated)
	assert.Equal(t, 10.0, report.CurrentStock)
	assert.Equal(t, 0.0, report.Difference)
	assert.True(t, report.IsBalanced)
	assert.False(t, report.CheckedAt.IsZero())

	mockDB.ExpectationsWereMet(t)
}

func TestReconciliationService_CheckBalance_Imbalanced(t *testing.T) {
	svc, mockDB, fixtures := newReconciliationService(t)
	defer mockDB.Close()

	// Same movement history but the batch row says 25: off by 15
	material := fixtures.MaterialBatch()
	material.Quantity = 25

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))
	expectSums(mockDB, material.ID, 100, 50, 0, 0, 40)

	report, err := svc.CheckBalance(context.Background(), material.ID)
	require.NoError(t, err)

	assert.Equal(t, 10.0, report.Calculated)
	assert.Equal(t, 25.0, report.CurrentStock)
	assert.Equal(t, -15.0, report.Difference)
	assert.Equal(t, 15.0, report.AbsDifference)
	assert.False(t, report.IsBalanced)

	mockDB.ExpectationsWereMet(t)
}

func TestReconciliationService_CheckBalance_ToleratesRounding(t *testing.T) {
	svc, mockDB, fixtures := newReconciliationService(t)
	defer mockDB.Close()

	material := fixtures.MaterialBatch()
	material.Quantity = 10.005

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))
	expectSums(mockDB, material.ID, 100, 50, 0, 0, 40)

	report, err := svc.CheckBalance(context.Background(), material.ID)
	require.NoError(t, err)
	assert.True(t, report.IsBalanced, "differences below the tolerance must balance")

	mockDB.ExpectationsWereMet(t)
}

func TestReconciliationService_CheckBalance_ReturnsAndScrap(t *testing.T) {
	svc, mockDB, fixtures := newReconciliationService(t)
	defer mockDB.Close()

	// in 100 + return 5 - out 20 - scrap 15 - used 30 = 40
	material := fixtures.MaterialBatch()
	material.Quantity = 40

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))
	expectSums(mockDB, material.ID, 100, 20, 5, 15, 30)

	report, err := svc.CheckBalance(context.Background(), material.ID)
	require.NoError(t, err)

	assert.Equal(t, 105.0, report.TotalIn)
	assert.Equal(t, 35.0, report.TotalOut)
	assert.Equal(t, 40.0, report.Calculated)
	assert.True(t, report.IsBalanced)

	mockDB.ExpectationsWereMet(t)
}

func TestReconciliationService_CheckBalance_FinishedGoodsBatch(t *testing.T) {
	svc, mockDB, fixtures := newReconciliationService(t)
	defer mockDB.Close()

	// The id names a finished goods batch; its production receipt is the
	// only movement and the usage ledger never enters the identity.
	finished := fixtures.FinishedGoodsBatch(fixtures.ProductionBatch().ID)
	finished.Quantity = 48

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(finished.ID).
		WillReturnRows(testutil.MockRows(materialColumns()...))
	mockDB.ExpectQuery(`SELECT * FROM finished_goods_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(finished.ID).
		WillReturnRows(finishedRow(finished))
	expectMovementSums(mockDB, finished.ID, 48, 0, 0, 0)

	report, err := svc.CheckBalance(context.Background(), finished.ID)
	require.NoError(t, err)

	assert.Equal(t, finished.BatchNumber, report.BatchNumber)
	assert.Equal(t, 48.0, report.TotalIn)
	assert.Equal(t, 0.0, report.TotalUsed)
	assert.Equal(t, 48.0, report.Calculated)
	assert.True(t, report.IsBalanced)

	mockDB.ExpectationsWereMet(t)
}

func TestReconciliationService_CheckAllBatches(t *testing.T) {
	svc, mockDB, fixtures := newReconciliationService(t)
	defer mockDB.Close()

	balanced := fixtures.MaterialBatch()
	balanced.Quantity = 60
	imbalanced := fixtures.MaterialBatch()
	imbalanced.Quantity = 99
	finished := fixtures.FinishedGoodsBatch(fixtures.ProductionBatch().ID)
	finished.Quantity = 50

	mockDB.Mock.ExpectQuery("FROM material_batches").
		WillReturnRows(materialRow(balanced).AddRow(
			imbalanced.ID, imbalanced.BatchNumber, imbalanced.MaterialID, imbalanced.SupplierID,
			imbalanced.ProductionDate, imbalanced.ExpiryDate, imbalanced.Quantity, imbalanced.Status,
			nil, nil, imbalanced.ProductionDate, imbalanced.ProductionDate,
		))
	mockDB.Mock.ExpectQuery("FROM finished_goods_batches").
		WillReturnRows(finishedRow(finished))

	expectSums(mockDB, balanced.ID, 100, 0, 0, 0, 40)
	expectSums(mockDB, imbalanced.ID, 100, 0, 0, 0, 40)
	expectMovementSums(mockDB, finished.ID, 50, 0, 0, 0)

	summary, err := svc.CheckAllBatches(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalChecked)
	assert.Equal(t, 2, summary.BalancedCount)
	assert.Equal(t, 1, summary.ImbalancedCount)
	require.Len(t, summary.Reports, 3)

	mockDB.ExpectationsWereMet(t)
}
