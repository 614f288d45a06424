package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// A failing message is requeued until it reaches this many deliveries,
// then rejected into the queue's DLQ.
const maxDeliveryAttempts = 3

// MessageHandler processes one decoded event. Returning an error
// triggers redelivery.
type MessageHandler func(ctx context.Context, event *Event) error

// Consumer consumes events from a durable queue and dispatches them to
// handlers registered per event type. Delivery attempts are tracked
// per event id in process: a requeued message comes back to the same
// consumer, and the broker does not count plain requeues.
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	handlers  map[string]MessageHandler
	logger    *logger.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewConsumer declares the queue and its dead-letter queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.declareConsumerQueue(queueName); err != nil {
		return nil, fmt.Errorf("declaring queue %s: %w", queueName, err)
	}

	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    log,
		attempts:  make(map[string]int),
	}, nil
}

// Subscribe binds the queue to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("declaring exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("binding queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers the handler for an event type. Events with
// no registered handler are acked and dropped.
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start begins consuming in a background goroutine until the context
// is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName,
		"",    // consumer tag, auto-generated
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Str("queue", c.queueName).Msg("message channel closed")
					return
				}
				c.dispatch(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) dispatch(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		// Malformed payloads can never succeed, straight to the DLQ.
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		msg.Reject(false)
		return
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		msg.Ack(false)
		return
	}

	if err := handler(ctx, &event); err != nil {
		c.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Msg("failed to process event")

		if c.recordFailure(event.ID) >= maxDeliveryAttempts {
			c.logger.Warn().
				Str("event_id", event.ID).
				Msg("delivery attempts exhausted, dead-lettering")
			msg.Reject(false)
			return
		}

		msg.Nack(false, true)
		return
	}

	c.clearFailures(event.ID)
	msg.Ack(false)
}

// recordFailure counts one failed delivery for the event and returns
// the total so far. The entry is dropped once the event dead-letters,
// the id will not come back.
func (c *Consumer) recordFailure(eventID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts[eventID]++
	n := c.attempts[eventID]
	if n >= maxDeliveryAttempts {
		delete(c.attempts, eventID)
	}
	return n
}

func (c *Consumer) clearFailures(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, eventID)
}
