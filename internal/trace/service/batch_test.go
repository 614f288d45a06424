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
	"github.com/batchflow/batchflow-backend/pkg/errors"
	"github.com/batchflow/batchflow-backend/pkg/testutil"
)

func newBatchService(t *testing.T) (*service.BatchService, *testutil.MockDB, *testutil.FixtureFactory) {
	mockDB, db := newMockDB(t)

	materialRepo := repository.NewMaterialBatchRepository(db)
	productionRepo := repository.NewProductionBatchRepository(db)
	finishedRepo := repository.NewFinishedGoodsRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	stockRepo := repository.NewStockRecordRepository(db)
	numberService := service.NewBatchNumberService(repository.NewSequenceRepository(db), testBatchNumberConfig(), testLog)

	svc := service.NewBatchService(db, materialRepo, productionRepo, finishedRepo, usageRepo, stockRepo, numberService, nil, testLog)
	return svc, mockDB, testutil.NewFixtureFactory()
}

func TestBatchService_ReceiveMaterialBatch(t *testing.T) {
	svc, mockDB, _ := newBatchService(t)
	defer mockDB.Close()

	now := time.Now().UTC()
	today := time.Now().Format("20060102")

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery("INSERT INTO batch_sequences").
		WithArgs("material", today).
		WillReturnRows(testutil.MockRows("value").AddRow(12))
	mockDB.Mock.ExpectQuery("INSERT INTO material_batches").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))
	mockDB.Mock.ExpectQuery("INSERT INTO stock_records").
		WillReturnRows(testutil.MockRows("recorded_at").AddRow(now))
	mockDB.ExpectCommit()

	batch := &repository.MaterialBatch{
		MaterialID:     "7f4a1a44-0f7a-40a1-8f06-0f2a9b0f0001",
		SupplierID:     "7f4a1a44-0f7a-40a1-8f06-0f2a9b0f0002",
		ProductionDate: now.AddDate(0, 0, -3),
		ExpiryDate:     now.AddDate(1, 0, 0),
		Quantity:       200,
	}

	created, err := svc.ReceiveMaterialBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "MAT-"+today+"-012", created.BatchNumber)
	assert.Equal(t, "normal", created.Status)
	assert.NotEmpty(t, created.ID)

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_ReceiveMaterialBatch_BadInput(t *testing.T) {
	svc, mockDB, _ := newBatchService(t)
	defer mockDB.Close()

	now := time.Now().UTC()

	// Non-positive quantity
	_, err := svc.ReceiveMaterialBatch(context.Background(), &repository.MaterialBatch{
		ProductionDate: now,
		ExpiryDate:     now.AddDate(1, 0, 0),
		Quantity:       0,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	// Expiry before production date
	_, err = svc.ReceiveMaterialBatch(context.Background(), &repository.MaterialBatch{
		ProductionDate: now,
		ExpiryDate:     now.AddDate(0, 0, -1),
		Quantity:       10,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_UpdateMaterialBatch_BatchNumberImmutable(t *testing.T) {
	svc, mockDB, fixtures := newBatchService(t)
	defer mockDB.Close()

	material := fixtures.MaterialBatch()

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))

	update := &repository.MaterialBatch{
		ID:             material.ID,
		BatchNumber:    "MAT-20200101-001",
		MaterialID:     material.MaterialID,
		SupplierID:     material.SupplierID,
		ProductionDate: material.ProductionDate,
		ExpiryDate:     material.ExpiryDate,
	}

	_, err := svc.UpdateMaterialBatch(context.Background(), update)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
	assert.Contains(t, err.Error(), "batch number")

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_UpdateMaterialBatch_CannotReviveExpiredBatch(t *testing.T) {
	svc, mockDB, fixtures := newBatchService(t)
	defer mockDB.Close()

	material := fixtures.ExpiredMaterialBatch()
	material.Status = "expired"

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))

	update := &repository.MaterialBatch{
		ID:             material.ID,
		MaterialID:     material.MaterialID,
		SupplierID:     material.SupplierID,
		ProductionDate: material.ProductionDate,
		ExpiryDate:     material.ExpiryDate,
		Status:         repository.BatchStatusNormal,
	}

	_, err := svc.UpdateMaterialBatch(context.Background(), update)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
	assert.Contains(t, err.Error(), "status")

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_UpdateMaterialBatch_OmittedStatusCarriesOver(t *testing.T) {
	svc, mockDB, fixtures := newBatchService(t)
	defer mockDB.Close()

	material := fixtures.ExpiredMaterialBatch()
	material.Status = "expired"

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))
	mockDB.Mock.ExpectExec("UPDATE material_batches SET").
		WithArgs(material.ID, material.MaterialID, material.SupplierID,
			material.ProductionDate, material.ExpiryDate, "expired", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))

	update := &repository.MaterialBatch{
		ID:             material.ID,
		MaterialID:     material.MaterialID,
		SupplierID:     material.SupplierID,
		ProductionDate: material.ProductionDate,
		ExpiryDate:     material.ExpiryDate,
	}

	updated, err := svc.UpdateMaterialBatch(context.Background(), update)
	require.NoError(t, err)
	assert.Equal(t, "expired", updated.Status)

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_DeleteMaterialBatch_RefusesUsedBatch(t *testing.T) {
	svc, mockDB, fixtures := newBatchService(t)
	defer mockDB.Close()

	material := fixtures.MaterialBatch()

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))
	mockDB.ExpectQuery(`SELECT SUM(quantity) FROM batch_material_usages WHERE material_batch_id = $1`).
		WithArgs(material.ID).
		WillReturnRows(testutil.MockRows("sum").AddRow(25.0))

	err := svc.DeleteMaterialBatch(context.Background(), material.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_DeleteMaterialBatch_Unused(t *testing.T) {
	svc, mockDB, fixtures := newBatchService(t)
	defer mockDB.Close()

	material := fixtures.MaterialBatch()

	mockDB.ExpectQuery(`SELECT * FROM material_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(material.ID).
		WillReturnRows(materialRow(material))
	mockDB.ExpectQuery(`SELECT SUM(quantity) FROM batch_material_usages WHERE material_batch_id = $1`).
		WithArgs(material.ID).
		WillReturnRows(testutil.MockRows("sum").AddRow(nil))
	mockDB.ExpectExec("UPDATE material_batches SET deleted_at").
		WithArgs(material.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.DeleteMaterialBatch(context.Background(), material.ID)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_CreateProductionBatch(t *testing.T) {
	svc, mockDB, _ := newBatchService(t)
	defer mockDB.Close()

	now := time.Now().UTC()
	today := time.Now().Format("20060102")

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery("INSERT INTO batch_sequences").
		WithArgs("production", today).
		WillReturnRows(testutil.MockRows("value").AddRow(3))
	mockDB.Mock.ExpectQuery("INSERT INTO production_batches").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))
	mockDB.ExpectCommit()

	batch := &repository.ProductionBatch{
		ProductID:       "7f4a1a44-0f7a-40a1-8f06-0f2a9b0f0003",
		PlannedQuantity: 80,
		ProductionDate:  now,
	}

	created, err := svc.CreateProductionBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "PRD-"+today+"-003", created.BatchNumber)
	assert.Equal(t, "pending", created.Status)

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_StartProduction_WrongState(t *testing.T) {
	svc, mockDB, fixtures := newBatchService(t)
	defer mockDB.Close()

	production := fixtures.ProductionBatch()
	production.Status = "completed"

	mockDB.ExpectQuery(`SELECT * FROM production_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(production.ID).
		WillReturnRows(productionRow(production))

	err := svc.StartProduction(context.Background(), production.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_CompleteProduction(t *testing.T) {
	svc, mockDB, fixtures := newBatchService(t)
	defer mockDB.Close()

	production := fixtures.ProductionBatch()
	production.Status = "in_progress"
	now := time.Now().UTC()
	today := time.Now().Format("20060102")

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM production_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(production.ID).
		WillReturnRows(productionRow(production))
	mockDB.Mock.ExpectExec("UPDATE production_batches").
		WithArgs(production.ID, "completed", 48.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectQuery("INSERT INTO batch_sequences").
		WithArgs("finished", today).
		WillReturnRows(testutil.MockRows("value").AddRow(1))
	mockDB.Mock.ExpectQuery("INSERT INTO finished_goods_batches").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))
	mockDB.Mock.ExpectQuery("INSERT INTO stock_records").
		WillReturnRows(testutil.MockRows("recorded_at").AddRow(now))
	mockDB.ExpectCommit()

	finished, err := svc.CompleteProduction(context.Background(), production.ID, 48)
	require.NoError(t, err)
	assert.Equal(t, "FGD-"+today+"-001", finished.BatchNumber)
	assert.Equal(t, production.ID, finished.ProductionBatchID)
	assert.Equal(t, 48.0, finished.Quantity)

	mockDB.ExpectationsWereMet(t)
}

func TestBatchService_CompleteProduction_AlreadyCompleted(t *testing.T) {
	svc, mockDB, fixtures := newBatchService(t)
	defer mockDB.Close()

	production := fixtures.ProductionBatch()
	production.Status = "completed"

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM production_batches WHERE id = $1 AND deleted_at IS NULL`).
		WithArgs(production.ID).
		WillReturnRows(productionRow(production))
	mockDB.ExpectRollback()

	_, err := svc.CompleteProduction(context.Background(), production.ID, 48)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	mockDB.ExpectationsWereMet(t)
}
