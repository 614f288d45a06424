package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/batchflow/batchflow-backend/internal/trace/events"
	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/pkg/database"
	"github.com/batchflow/batchflow-backend/pkg/errors"
	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// BatchService handles the lifecycle of material, production and finished
// goods batches. Batch numbers are allocated inside the same transaction
// that creates the batch row, so a failed create never burns a number
// that was already published.
type BatchService struct {
	db             *database.DB
	materialRepo   *repository.MaterialBatchRepository
	productionRepo *repository.ProductionBatchRepository
	finishedRepo   *repository.FinishedGoodsRepository
	usageRepo      *repository.UsageRepository
	stockRepo      *repository.StockRecordRepository
	numberService  *BatchNumberService
	publisher      *events.TraceEventPublisher
	logger         *logger.Logger
}

// NewBatchService creates a new batch service
func NewBatchService(
	db *database.DB,
	materialRepo *repository.MaterialBatchRepository,
	productionRepo *repository.ProductionBatchRepository,
	finishedRepo *repository.FinishedGoodsRepository,
	usageRepo *repository.UsageRepository,
	stockRepo *repository.StockRecordRepository,
	numberService *BatchNumberService,
	publisher *events.TraceEventPublisher,
	log *logger.Logger,
) *BatchService {
	return &BatchService{
		db:             db,
		materialRepo:   materialRepo,
		productionRepo: productionRepo,
		finishedRepo:   finishedRepo,
		usageRepo:      usageRepo,
		stockRepo:      stockRepo,
		numberService:  numberService,
		publisher:      publisher,
		logger:         log,
	}
}

// ReceiveMaterialBatch registers an inbound material batch. The batch
// number, the batch row and the inbound stock movement are created in
// one transaction.
func (s *BatchService) ReceiveMaterialBatch(ctx context.Context, batch *repository.MaterialBatch) (*repository.MaterialBatch, error) {
	if batch.Quantity <= 0 {
		return nil, errors.BadRequest("received quantity must be positive")
	}
	if !batch.ExpiryDate.After(batch.ProductionDate) {
		return nil, errors.BadRequest("expiry date must be after production date")
	}

	batch.Status = repository.BatchStatusNormal

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		batchNumber, err := s.numberService.GenerateTx(ctx, tx, BatchTypeMaterial)
		if err != nil {
			return err
		}
		batch.BatchNumber = batchNumber

		if err := s.materialRepo.CreateTx(ctx, tx, batch); err != nil {
			return err
		}

		record := &repository.StockRecord{
			BatchID:    batch.ID,
			RecordType: repository.StockRecordIn,
			Quantity:   batch.Quantity,
			Reference:  &batch.ID,
		}
		return s.stockRepo.CreateTx(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("batch_number", batch.BatchNumber).
		Str("material_id", batch.MaterialID).
		Float64("quantity", batch.Quantity).
		Msg("material batch received")

	s.publisher.PublishBatchReceived(ctx, batch)

	return batch, nil
}

// GetMaterialBatch returns a material batch by ID
func (s *BatchService) GetMaterialBatch(ctx context.Context, id string) (*repository.MaterialBatch, error) {
	return s.materialRepo.GetByID(ctx, id)
}

// ListMaterialBatches lists material batches for a material
func (s *BatchService) ListMaterialBatches(ctx context.Context, materialID string) ([]*repository.MaterialBatch, error) {
	return s.materialRepo.ListByMaterial(ctx, materialID)
}

// UpdateMaterialBatch updates the mutable fields of a material batch.
// Batch number, quantity and status are immutable here: the number is
// identity, quantity moves only through the ledger and status only
// through the expiry sweep.
func (s *BatchService) UpdateMaterialBatch(ctx context.Context, batch *repository.MaterialBatch) (*repository.MaterialBatch, error) {
	existing, err := s.materialRepo.GetByID(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	if batch.BatchNumber != "" && batch.BatchNumber != existing.BatchNumber {
		return nil, errors.BadRequest("batch number cannot be changed")
	}
	if batch.Status != "" && batch.Status != existing.Status {
		return nil, errors.BadRequest("batch status is managed by the expiry sweep and cannot be changed")
	}
	if !batch.ExpiryDate.After(batch.ProductionDate) {
		return nil, errors.BadRequest("expiry date must be after production date")
	}

	// Status always carries over unchanged, an update never revives an
	// expired or locked batch.
	batch.Status = existing.Status

	if err := s.materialRepo.Update(ctx, batch); err != nil {
		return nil, err
	}

	return s.materialRepo.GetByID(ctx, batch.ID)
}

// DeleteMaterialBatch soft deletes a material batch. A batch that
// already appears in the usage ledger cannot be deleted, or the trace
// chains through it would dangle.
func (s *BatchService) DeleteMaterialBatch(ctx context.Context, id string) error {
	batch, err := s.materialRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	used, err := s.usageRepo.SumByMaterialBatch(ctx, id)
	if err != nil {
		return err
	}
	if used > 0 {
		return errors.Conflict(fmt.Sprintf("material batch %s has usage records and cannot be deleted", batch.BatchNumber))
	}

	if err := s.materialRepo.SoftDelete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("batch_id", id).Str("batch_number", batch.BatchNumber).Msg("material batch deleted")
	return nil
}

// CreateProductionBatch creates a production batch in pending state
func (s *BatchService) CreateProductionBatch(ctx context.Context, batch *repository.ProductionBatch) (*repository.ProductionBatch, error) {
	if batch.PlannedQuantity <= 0 {
		return nil, errors.BadRequest("planned quantity must be positive")
	}

	batch.Status = repository.ProductionStatusPending

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		batchNumber, err := s.numberService.GenerateTx(ctx, tx, BatchTypeProduction)
		if err != nil {
			return err
		}
		batch.BatchNumber = batchNumber

		return s.productionRepo.CreateTx(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("batch_number", batch.BatchNumber).
		Str("product_id", batch.ProductID).
		Msg("production batch created")

	return batch, nil
}

// GetProductionBatch returns a production batch by ID
func (s *BatchService) GetProductionBatch(ctx context.Context, id string) (*repository.ProductionBatch, error) {
	return s.productionRepo.GetByID(ctx, id)
}

// StartProduction moves a pending production batch to in_progress
func (s *BatchService) StartProduction(ctx context.Context, id string) error {
	batch, err := s.productionRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if batch.Status != repository.ProductionStatusPending {
		return errors.InvalidState(fmt.Sprintf("production batch %s is %s and cannot be started", batch.BatchNumber, batch.Status))
	}

	return s.productionRepo.UpdateStatus(ctx, id, repository.ProductionStatusInProgress)
}

// CompleteProduction completes a production batch and mints its finished
// goods batch. The status change, the finished batch and its inbound
// stock movement commit together.
func (s *BatchService) CompleteProduction(ctx context.Context, id string, actualQuantity float64) (*repository.FinishedGoodsBatch, error) {
	if actualQuantity <= 0 {
		return nil, errors.BadRequest("actual quantity must be positive")
	}

	var production *repository.ProductionBatch
	var finished *repository.FinishedGoodsBatch

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		production, err = s.productionRepo.GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if production.Status == repository.ProductionStatusCompleted {
			return errors.InvalidState(fmt.Sprintf("production batch %s is already completed", production.BatchNumber))
		}
		if production.Status == repository.ProductionStatusCancelled {
			return errors.InvalidState(fmt.Sprintf("production batch %s is cancelled", production.BatchNumber))
		}

		if err := s.productionRepo.CompleteTx(ctx, tx, id, actualQuantity); err != nil {
			return err
		}

		finishedNumber, err := s.numberService.GenerateTx(ctx, tx, BatchTypeFinished)
		if err != nil {
			return err
		}

		finished = &repository.FinishedGoodsBatch{
			BatchNumber:       finishedNumber,
			ProductionBatchID: id,
			Quantity:          actualQuantity,
		}
		if err := s.finishedRepo.CreateTx(ctx, tx, finished); err != nil {
			return err
		}

		record := &repository.StockRecord{
			BatchID:    finished.ID,
			RecordType: repository.StockRecordIn,
			Quantity:   actualQuantity,
			Reference:  &id,
		}
		return s.stockRepo.CreateTx(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("production_batch_id", id).
		Str("finished_batch_number", finished.BatchNumber).
		Float64("quantity", actualQuantity).
		Msg("production completed")

	s.publisher.PublishProductionCompleted(ctx, production, finished)

	return finished, nil
}
