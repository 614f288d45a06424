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

// LedgerService handles the material usage ledger. Every consumption is
// one transaction covering both the usage record and the quantity
// decrement, so the ledger and the batch quantity never drift.
type LedgerService struct {
	db             *database.DB
	materialRepo   *repository.MaterialBatchRepository
	productionRepo *repository.ProductionBatchRepository
	usageRepo      *repository.UsageRepository
	publisher      *events.TraceEventPublisher
	logger         *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	materialRepo *repository.MaterialBatchRepository,
	productionRepo *repository.ProductionBatchRepository,
	usageRepo *repository.UsageRepository,
	publisher *events.TraceEventPublisher,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		db:             db,
		materialRepo:   materialRepo,
		productionRepo: productionRepo,
		usageRepo:      usageRepo,
		publisher:      publisher,
		logger:         log,
	}
}

// RecordUsage consumes a quantity of a material batch for a production
// batch. The material row is locked for the duration of the transaction;
// consuming more than is on hand, or from a locked or expired batch,
// fails without side effects.
func (s *LedgerService) RecordUsage(ctx context.Context, productionBatchID, materialBatchID string, quantity float64) (*repository.BatchMaterialUsage, error) {
	if quantity <= 0 {
		return nil, errors.BadRequest("usage quantity must be positive")
	}

	var usage *repository.BatchMaterialUsage
	var remaining float64

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		production, err := s.productionRepo.GetByIDTx(ctx, tx, productionBatchID)
		if err != nil {
			return err
		}
		if production.Status == repository.ProductionStatusCompleted || production.Status == repository.ProductionStatusCancelled {
			return errors.InvalidState(fmt.Sprintf("production batch %s is %s and cannot record usage", production.BatchNumber, production.Status))
		}

		material, err := s.materialRepo.GetByIDForUpdate(ctx, tx, materialBatchID)
		if err != nil {
			return err
		}
		if material.Status != repository.BatchStatusNormal {
			return errors.InvalidState(fmt.Sprintf("material batch %s is %s and cannot be consumed", material.BatchNumber, material.Status))
		}
		if material.Quantity < quantity {
			return errors.InsufficientStock(material.BatchNumber, quantity, material.Quantity)
		}

		usage = &repository.BatchMaterialUsage{
			ProductionBatchID: productionBatchID,
			MaterialBatchID:   materialBatchID,
			Quantity:          quantity,
		}
		if err := s.usageRepo.CreateTx(ctx, tx, usage); err != nil {
			return err
		}

		ok, err := s.materialRepo.ConsumeQuantityTx(ctx, tx, materialBatchID, quantity)
		if err != nil {
			return err
		}
		if !ok {
			// Guard against a concurrent writer racing the row lock
			return errors.InsufficientStock(material.BatchNumber, quantity, material.Quantity)
		}
		remaining = material.Quantity - quantity

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("usage_id", usage.ID).
		Str("production_batch_id", productionBatchID).
		Str("material_batch_id", materialBatchID).
		Float64("quantity", quantity).
		Float64("remaining", remaining).
		Msg("material usage recorded")

	s.publisher.PublishUsageRecorded(ctx, usage, remaining)

	return usage, nil
}

// ReverseUsage deletes a usage record and returns its quantity to the
// material batch in one transaction. Reversal restores quantity even on
// a locked or expired batch; the status itself is untouched.
func (s *LedgerService) ReverseUsage(ctx context.Context, usageID string) error {
	var usage *repository.BatchMaterialUsage

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		usage, err = s.usageRepo.GetByIDTx(ctx, tx, usageID)
		if err != nil {
			return err
		}

		if _, err := s.materialRepo.GetByIDForUpdate(ctx, tx, usage.MaterialBatchID); err != nil {
			return err
		}

		if err := s.materialRepo.ReturnQuantityTx(ctx, tx, usage.MaterialBatchID, usage.Quantity); err != nil {
			return err
		}

		return s.usageRepo.DeleteTx(ctx, tx, usageID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("usage_id", usageID).
		Str("material_batch_id", usage.MaterialBatchID).
		Float64("quantity", usage.Quantity).
		Msg("material usage reversed")

	s.publisher.PublishUsageReversed(ctx, usage)

	return nil
}

// ListUsagesForProduction lists the ledger entries of a production batch
func (s *LedgerService) ListUsagesForProduction(ctx context.Context, productionBatchID string) ([]*repository.BatchMaterialUsage, error) {
	if _, err := s.productionRepo.GetByID(ctx, productionBatchID); err != nil {
		return nil, err
	}
	return s.usageRepo.ListByProductionBatch(ctx, productionBatchID)
}

// ListUsagesForMaterial lists the ledger entries consuming a material batch
func (s *LedgerService) ListUsagesForMaterial(ctx context.Context, materialBatchID string) ([]*repository.BatchMaterialUsage, error) {
	if _, err := s.materialRepo.GetByID(ctx, materialBatchID); err != nil {
		return nil, err
	}
	return s.usageRepo.ListByMaterialBatch(ctx, materialBatchID)
}
