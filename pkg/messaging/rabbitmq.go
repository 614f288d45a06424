package messaging

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/batchflow/batchflow-backend/pkg/config"
	"github.com/batchflow/batchflow-backend/pkg/logger"
)

// Dead-lettering topology shared by all consumers. Messages that
// exhaust their delivery attempts end up in a per-queue DLQ bound to
// this exchange.
const deadLetterExchange = "trace.dlx"

// RabbitMQ holds the broker connection and the channel all publishers
// and consumers of this process share.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	logger  *logger.Logger
	mu      sync.RWMutex
	closed  bool
}

// New dials the broker, retrying up to MaxRetries times so the service
// survives starting before RabbitMQ is ready.
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config: cfg,
		logger: log,
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = rmq.dial(); err == nil {
			return rmq, nil
		}
		if attempt >= cfg.MaxRetries {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("broker not reachable, retrying")
		time.Sleep(cfg.ReconnectDelay)
	}
	return nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
}

func (r *RabbitMQ) dial() error {
	conn, err := amqp.Dial(r.config.URL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.Qos(r.config.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("setting QoS: %w", err)
	}

	r.conn = conn
	r.channel = ch
	r.logger.Info().Msg("connected to RabbitMQ")
	return nil
}

// Channel returns the shared channel
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// Close shuts the channel and connection down
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("closing connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health reports whether the broker connection is alive, for the
// service health endpoint
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.conn == nil || r.conn.IsClosed() {
		return map[string]string{"status": "down", "error": "connection closed"}
	}
	return map[string]string{"status": "up"}
}

// DeclareExchange declares a durable topic exchange
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.Channel().ExchangeDeclare(name, "topic", true, false, false, false, nil)
}

// declareConsumerQueue sets up a durable queue together with its
// dead-letter queue: <name> dead-letters into dlq.<name> via the
// shared dead-letter exchange.
func (r *RabbitMQ) declareConsumerQueue(name string) (amqp.Queue, error) {
	ch := r.Channel()

	if err := ch.ExchangeDeclare(deadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("declaring dead-letter exchange: %w", err)
	}

	dlq := "dlq." + name
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("declaring %s: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, name, deadLetterExchange, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("binding %s: %w", dlq, err)
	}

	return ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": name,
	})
}

// BindQueue binds a queue to an exchange with a routing key pattern
func (r *RabbitMQ) BindQueue(queueName, exchange, routingKey string) error {
	return r.Channel().QueueBind(queueName, routingKey, exchange, false, nil)
}
