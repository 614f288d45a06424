package events

import (
	"context"

	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/pkg/logger"
	"github.com/batchflow/batchflow-backend/pkg/messaging"
)

// TraceEventPublisher publishes batch traceability events.
// Publishing is best-effort: a broker failure is logged and never fails
// the ledger operation that triggered it.
type TraceEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewTraceEventPublisher creates a new trace event publisher
func NewTraceEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*TraceEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeTraceEvents, "trace-service", log)
	if err != nil {
		return nil, err
	}

	return &TraceEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBatchReceived publishes a batch received event
func (p *TraceEventPublisher) PublishBatchReceived(ctx context.Context, batch *repository.MaterialBatch) {
	if p == nil {
		return
	}

	data := messaging.BatchReceivedEvent{
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		MaterialID:  batch.MaterialID,
		SupplierID:  batch.SupplierID,
		Quantity:    batch.Quantity,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_number", batch.BatchNumber).Msg("failed to publish batch received event")
	}
}

// PublishUsageRecorded publishes a usage recorded event
func (p *TraceEventPublisher) PublishUsageRecorded(ctx context.Context, usage *repository.BatchMaterialUsage, remaining float64) {
	if p == nil {
		return
	}

	data := messaging.UsageRecordedEvent{
		UsageID:           usage.ID,
		ProductionBatchID: usage.ProductionBatchID,
		MaterialBatchID:   usage.MaterialBatchID,
		Quantity:          usage.Quantity,
		RemainingQuantity: remaining,
	}

	if err := p.publisher.Publish(ctx, messaging.EventUsageRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("usage_id", usage.ID).Msg("failed to publish usage recorded event")
	}
}

// PublishUsageReversed publishes a usage reversed event
func (p *TraceEventPublisher) PublishUsageReversed(ctx context.Context, usage *repository.BatchMaterialUsage) {
	if p == nil {
		return
	}

	data := messaging.UsageReversedEvent{
		UsageID:           usage.ID,
		ProductionBatchID: usage.ProductionBatchID,
		MaterialBatchID:   usage.MaterialBatchID,
		Quantity:          usage.Quantity,
	}

	if err := p.publisher.Publish(ctx, messaging.EventUsageReversed, data); err != nil {
		p.logger.Error().Err(err).Str("usage_id", usage.ID).Msg("failed to publish usage reversed event")
	}
}

// PublishProductionCompleted publishes a production completed event
func (p *TraceEventPublisher) PublishProductionCompleted(ctx context.Context, production *repository.ProductionBatch, finished *repository.FinishedGoodsBatch) {
	if p == nil {
		return
	}

	data := messaging.ProductionCompletedEvent{
		ProductionBatchID:     production.ID,
		ProductionBatchNumber: production.BatchNumber,
		FinishedBatchID:       finished.ID,
		FinishedBatchNumber:   finished.BatchNumber,
		Quantity:              finished.Quantity,
	}

	if err := p.publisher.Publish(ctx, messaging.EventProductionCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("batch_number", production.BatchNumber).Msg("failed to publish production completed event")
	}
}

// PublishBatchesExpired publishes an expiry sweep result
func (p *TraceEventPublisher) PublishBatchesExpired(ctx context.Context, data messaging.BatchesExpiredEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchesExpired, data); err != nil {
		p.logger.Error().Err(err).Int("count", data.Count).Msg("failed to publish batches expired event")
	}
}

// PublishBalanceMismatch publishes a reconciliation mismatch signal
func (p *TraceEventPublisher) PublishBalanceMismatch(ctx context.Context, data messaging.BalanceMismatchEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventBalanceMismatch, data); err != nil {
		p.logger.Error().Err(err).Int("imbalanced_count", data.ImbalancedCount).Msg("failed to publish balance mismatch event")
	}
}
