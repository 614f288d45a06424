package service

import (
	"context"
	"time"

	"github.com/batchflow/batchflow-backend/internal/trace/events"
	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/pkg/logger"
	"github.com/batchflow/batchflow-backend/pkg/messaging"
)

// ExpiryService locks expired material batches out of the usable pool
// and exposes the consumption ordering for pickers.
type ExpiryService struct {
	materialRepo *repository.MaterialBatchRepository
	publisher    *events.TraceEventPublisher
	logger       *logger.Logger
}

// NewExpiryService creates a new expiry service
func NewExpiryService(materialRepo *repository.MaterialBatchRepository, publisher *events.TraceEventPublisher, log *logger.Logger) *ExpiryService {
	return &ExpiryService{
		materialRepo: materialRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// LockExpiredBatches transitions every normal batch whose expiry date is
// strictly before asOf to expired and returns the count transitioned.
// Already-expired batches are not selected, so repeated sweeps are no-ops.
// A zero asOf means now.
func (s *ExpiryService) LockExpiredBatches(ctx context.Context, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	count, err := s.materialRepo.LockExpired(ctx, asOf)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.logger.Info().Int("count", count).Time("as_of", asOf).Msg("expired batches locked")
		s.publisher.PublishBatchesExpired(ctx, messaging.BatchesExpiredEvent{
			Count: count,
			AsOf:  asOf,
		})
	}

	return count, nil
}

// FIFOCandidates returns the consumable batches of a material in pick
// order: soonest to expire first, then oldest received. Locked and
// expired batches never appear.
func (s *ExpiryService) FIFOCandidates(ctx context.Context, materialID string) ([]*repository.MaterialBatch, error) {
	return s.materialRepo.FIFOCandidates(ctx, materialID)
}
