package service_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/batchflow/batchflow-backend/pkg/database"
	"github.com/batchflow/batchflow-backend/pkg/logger"
	"github.com/batchflow/batchflow-backend/pkg/testutil"
)

var testLog = logger.New("test", "test")

func newMockDB(t *testing.T) (*testutil.MockDB, *database.DB) {
	mockDB := testutil.NewMockDB(t)
	return mockDB, database.Wrap(mockDB.DB, testLog)
}

func materialColumns() []string {
	return []string{
		"id", "batch_number", "material_id", "supplier_id",
		"production_date", "expiry_date", "quantity", "status",
		"notes", "deleted_at", "created_at", "updated_at",
	}
}

func materialRow(fx *testutil.MaterialBatchFixture) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(materialColumns()...).AddRow(
		fx.ID, fx.BatchNumber, fx.MaterialID, fx.SupplierID,
		fx.ProductionDate, fx.ExpiryDate, fx.Quantity, fx.Status,
		nil, nil, now, now,
	)
}

func productionColumns() []string {
	return []string{
		"id", "batch_number", "product_id", "planned_quantity",
		"actual_quantity", "production_date", "status",
		"deleted_at", "created_at", "updated_at",
	}
}

func productionRow(fx *testutil.ProductionBatchFixture) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(productionColumns()...).AddRow(
		fx.ID, fx.BatchNumber, fx.ProductID, fx.PlannedQuantity,
		nil, fx.ProductionDate, fx.Status,
		nil, now, now,
	)
}

func usageColumns() []string {
	return []string{"id", "production_batch_id", "material_batch_id", "quantity", "used_at"}
}

func finishedColumns() []string {
	return []string{
		"id", "batch_number", "production_batch_id", "quantity",
		"deleted_at", "created_at", "updated_at",
	}
}

func finishedRow(fx *testutil.FinishedGoodsBatchFixture) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(finishedColumns()...).AddRow(
		fx.ID, fx.BatchNumber, fx.ProductionBatchID, fx.Quantity,
		nil, now, now,
	)
}
