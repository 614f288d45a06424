package service

import (
	"context"
	"math"
	"time"

	"github.com/batchflow/batchflow-backend/internal/trace/events"
	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/pkg/errors"
	"github.com/batchflow/batchflow-backend/pkg/logger"
	"github.com/batchflow/batchflow-backend/pkg/messaging"
)

// balanceEpsilon is the tolerance for comparing NUMERIC quantities that
// travel through float64
const balanceEpsilon = 0.01

// BalanceReport is the reconciliation result for one batch
type BalanceReport struct {
	BatchID       string    `json:"batch_id"`
	BatchNumber   string    `json:"batch_number"`
	TotalIn       float64   `json:"total_in"`
	TotalOut      float64   `json:"total_out"`
	TotalUsed     float64   `json:"total_used"`
	Calculated    float64   `json:"calculated"`
	CurrentStock  float64   `json:"current_stock"`
	Difference    float64   `json:"difference"`
	AbsDifference float64   `json:"abs_difference"`
	IsBalanced    bool      `json:"is_balanced"`
	CheckedAt     time.Time `json:"checked_at"`
}

// BalanceSummary aggregates a reconciliation run over all batches
type BalanceSummary struct {
	TotalChecked    int              `json:"total_checked"`
	BalancedCount   int              `json:"balanced_count"`
	ImbalancedCount int              `json:"imbalanced_count"`
	Reports         []*BalanceReport `json:"reports"`
	CheckedAt       time.Time        `json:"checked_at"`
}

// ReconciliationService cross-checks batch quantities against the stock
// movement and usage ledgers. Material batches reconcile against
// movements plus consumption; finished goods batches against movements
// alone. Results are advisory: a mismatch is reported and signalled,
// never enforced.
type ReconciliationService struct {
	materialRepo *repository.MaterialBatchRepository
	finishedRepo *repository.FinishedGoodsRepository
	usageRepo    *repository.UsageRepository
	stockRepo    *repository.StockRecordRepository
	publisher    *events.TraceEventPublisher
	logger       *logger.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	materialRepo *repository.MaterialBatchRepository,
	finishedRepo *repository.FinishedGoodsRepository,
	usageRepo *repository.UsageRepository,
	stockRepo *repository.StockRecordRepository,
	publisher *events.TraceEventPublisher,
	log *logger.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		materialRepo: materialRepo,
		finishedRepo: finishedRepo,
		usageRepo:    usageRepo,
		stockRepo:    stockRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// CheckBalance reconciles one batch: the quantity implied by its stock
// movements (and, for material batches, its usage ledger) against the
// quantity the batch row carries. The id may name a material or a
// finished goods batch.
func (s *ReconciliationService) CheckBalance(ctx context.Context, batchID string) (*BalanceReport, error) {
	material, err := s.materialRepo.GetByID(ctx, batchID)
	if err == nil {
		return s.checkMaterialBalance(ctx, material)
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	finished, ferr := s.finishedRepo.GetByID(ctx, batchID)
	if ferr != nil {
		return nil, err
	}
	return s.checkFinishedBalance(ctx, finished)
}

func (s *ReconciliationService) checkMaterialBalance(ctx context.Context, batch *repository.MaterialBatch) (*BalanceReport, error) {
	totalIn, totalOut, err := s.sumMovements(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	used, err := s.usageRepo.SumByMaterialBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	report := buildBalanceReport(batch.ID, batch.BatchNumber, batch.Quantity, totalIn, totalOut, used)
	s.warnIfImbalanced(report)
	return report, nil
}

// checkFinishedBalance reconciles a finished goods batch. Finished
// goods never appear in the usage ledger, their identity is movements
// only.
func (s *ReconciliationService) checkFinishedBalance(ctx context.Context, batch *repository.FinishedGoodsBatch) (*BalanceReport, error) {
	totalIn, totalOut, err := s.sumMovements(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	report := buildBalanceReport(batch.ID, batch.BatchNumber, batch.Quantity, totalIn, totalOut, 0)
	s.warnIfImbalanced(report)
	return report, nil
}

// sumMovements totals the stock records for a batch. Returns flow back
// into stock and scrap leaves it, so they fold into the in/out totals
// of the identity.
func (s *ReconciliationService) sumMovements(ctx context.Context, batchID string) (totalIn, totalOut float64, err error) {
	in, err := s.stockRepo.SumByType(ctx, batchID, repository.StockRecordIn)
	if err != nil {
		return 0, 0, err
	}
	out, err := s.stockRepo.SumByType(ctx, batchID, repository.StockRecordOut)
	if err != nil {
		return 0, 0, err
	}
	ret, err := s.stockRepo.SumByType(ctx, batchID, repository.StockRecordReturn)
	if err != nil {
		return 0, 0, err
	}
	scrap, err := s.stockRepo.SumByType(ctx, batchID, repository.StockRecordScrap)
	if err != nil {
		return 0, 0, err
	}
	return in + ret, out + scrap, nil
}

func (s *ReconciliationService) warnIfImbalanced(report *BalanceReport) {
	if report.IsBalanced {
		return
	}
	s.logger.Warn().
		Str("batch_number", report.BatchNumber).
		Float64("calculated", report.Calculated).
		Float64("current_stock", report.CurrentStock).
		Float64("difference", report.Difference).
		Msg("batch balance mismatch")
}

// CheckAllBatches reconciles every active material and finished goods
// batch and publishes a mismatch signal when any batch is out of
// balance.
func (s *ReconciliationService) CheckAllBatches(ctx context.Context) (*BalanceSummary, error) {
	materials, err := s.materialRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	finished, err := s.finishedRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	summary := &BalanceSummary{
		Reports:   make([]*BalanceReport, 0, len(materials)+len(finished)),
		CheckedAt: time.Now().UTC(),
	}

	var mismatched []string
	fold := func(batchID string, report *BalanceReport, err error) {
		if err != nil {
			s.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to check batch balance")
			return
		}
		summary.TotalChecked++
		if report.IsBalanced {
			summary.BalancedCount++
		} else {
			summary.ImbalancedCount++
			mismatched = append(mismatched, report.BatchNumber)
		}
		summary.Reports = append(summary.Reports, report)
	}

	for _, batch := range materials {
		report, err := s.checkMaterialBalance(ctx, batch)
		fold(batch.ID, report, err)
	}
	for _, batch := range finished {
		report, err := s.checkFinishedBalance(ctx, batch)
		fold(batch.ID, report, err)
	}

	if summary.ImbalancedCount > 0 {
		s.publisher.PublishBalanceMismatch(ctx, messaging.BalanceMismatchEvent{
			ImbalancedCount: summary.ImbalancedCount,
			BatchNumbers:    mismatched,
		})
	}

	return summary, nil
}

// buildBalanceReport applies the reconciliation identity
// calculated = totalIn - totalOut - used against the current stock.
func buildBalanceReport(batchID, batchNumber string, currentStock, totalIn, totalOut, used float64) *BalanceReport {
	calculated := totalIn - totalOut - used
	difference := calculated - currentStock

	return &BalanceReport{
		BatchID:       batchID,
		BatchNumber:   batchNumber,
		TotalIn:       totalIn,
		TotalOut:      totalOut,
		TotalUsed:     used,
		Calculated:    calculated,
		CurrentStock:  currentStock,
		Difference:    difference,
		AbsDifference: math.Abs(difference),
		IsBalanced:    math.Abs(difference) < balanceEpsilon,
		CheckedAt:     time.Now().UTC(),
	}
}
