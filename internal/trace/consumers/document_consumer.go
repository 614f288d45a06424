package consumers

import (
	"context"

	"github.com/batchflow/batchflow-backend/internal/trace/repository"
	"github.com/batchflow/batchflow-backend/pkg/logger"
	"github.com/batchflow/batchflow-backend/pkg/messaging"
)

// DocumentEventConsumer keeps the local document reference cache in sync
// with the document service. Trace chains read only this cache, so a
// missed event degrades annotations, never traceability itself.
type DocumentEventConsumer struct {
	consumer *messaging.Consumer
	docRepo  *repository.DocumentRefRepository
	logger   *logger.Logger
}

// NewDocumentEventConsumer creates a new document event consumer
func NewDocumentEventConsumer(
	rmq *messaging.RabbitMQ,
	docRepo *repository.DocumentRefRepository,
	log *logger.Logger,
) (*DocumentEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "trace-service.document-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeDocumentEvents, "document.#"); err != nil {
		return nil, err
	}

	c := &DocumentEventConsumer{
		consumer: consumer,
		docRepo:  docRepo,
		logger:   log,
	}

	consumer.RegisterHandler(messaging.EventDocumentReleased, c.handleDocumentReleased)
	consumer.RegisterHandler(messaging.EventDocumentUpdated, c.handleDocumentUpdated)
	consumer.RegisterHandler(messaging.EventDocumentObsoleted, c.handleDocumentObsoleted)

	return c, nil
}

// Start starts consuming messages
func (c *DocumentEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *DocumentEventConsumer) handleDocumentReleased(ctx context.Context, event *messaging.Event) error {
	var data messaging.DocumentReleasedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("document_id", data.DocumentID).
		Str("batch_ref", data.BatchRef).
		Msg("received document released event")

	return c.docRepo.Set(ctx, &repository.DocumentRef{
		ID:             data.DocumentID,
		DocumentNumber: data.DocumentNumber,
		DocumentType:   data.DocumentType,
		BatchRef:       data.BatchRef,
		Title:          data.Title,
		IssuedAt:       data.IssuedAt,
	})
}

func (c *DocumentEventConsumer) handleDocumentUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.DocumentUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	existing, err := c.docRepo.Get(ctx, data.DocumentID)
	if err != nil {
		// Not cached here means the document never referenced one of our
		// batches; nothing to update.
		c.logger.Debug().Str("document_id", data.DocumentID).Msg("document update for unknown document, ignoring")
		return nil
	}

	if title, ok := data.Fields["title"].(string); ok {
		existing.Title = title
	}
	if docType, ok := data.Fields["document_type"].(string); ok {
		existing.DocumentType = docType
	}
	if batchRef, ok := data.Fields["batch_ref"].(string); ok {
		existing.BatchRef = batchRef
	}

	return c.docRepo.Set(ctx, existing)
}

func (c *DocumentEventConsumer) handleDocumentObsoleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.DocumentObsoletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().Str("document_id", data.DocumentID).Msg("received document obsoleted event")

	if err := c.docRepo.Delete(ctx, data.DocumentID); err != nil {
		// Deleting an uncached document is not an error worth requeueing
		c.logger.Debug().Err(err).Str("document_id", data.DocumentID).Msg("document obsoleted but not cached")
	}
	return nil
}
