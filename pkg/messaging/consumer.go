package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medflow/pharmacy-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// HeaderRetryCount carries how many times a message has been retried by a consumer
const HeaderRetryCount = "x-retry-count"

// DefaultMaxRetries is how often a failing message is retried before dead-lettering
const DefaultMaxRetries = 3

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// Consumer handles consuming events from RabbitMQ
type Consumer struct {
	rmq        *RabbitMQ
	queueName  string
	handlers   map[string]MessageHandler
	maxRetries int
	logger     *logger.Logger

	// republish puts a failed delivery back on the queue with bumped headers
	republish func(ctx context.Context, msg amqp.Publishing) error
}

// NewConsumer creates a new consumer for the given queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	c := newConsumer(queueName, log)
	c.rmq = rmq
	c.republish = func(ctx context.Context, msg amqp.Publishing) error {
		// default exchange routes by queue name
		return rmq.Channel().PublishWithContext(ctx, "", queueName, false, false, msg)
	}
	return c, nil
}

func newConsumer(queueName string, log *logger.Logger) *Consumer {
	return &Consumer{
		queueName:  queueName,
		handlers:   make(map[string]MessageHandler),
		maxRetries: DefaultMaxRetries,
		logger:     log.WithComponent("consumer"),
	}
}

// SetMaxRetries overrides DefaultMaxRetries
func (c *Consumer) SetMaxRetries(n int) {
	if n >= 0 {
		c.maxRetries = n
	}
}

// Subscribe subscribes to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start starts consuming messages from the queue until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
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
					c.logger.Warn().Msg("message channel closed")
					return
				}
				c.handleMessage(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		_ = msg.Reject(false)
		return
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		_ = msg.Ack(false)
		return
	}

	err := handler(ctx, &event)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	retryCount := getRetryCount(msg)
	log := c.logger.With().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Int("retry_count", retryCount).
		Logger()

	if retryCount >= c.maxRetries {
		log.Warn().Err(err).Msg("max retries exceeded, sending to DLQ")
		_ = msg.Reject(false)
		return
	}

	log.Error().Err(err).Msg("failed to process event, retrying")

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderRetryCount] = int32(retryCount + 1)

	if perr := c.republish(ctx, amqp.Publishing{
		Headers:       headers,
		ContentType:   msg.ContentType,
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.MessageId,
		CorrelationId: msg.CorrelationId,
		Timestamp:     msg.Timestamp,
		Body:          msg.Body,
	}); perr != nil {
		log.Error().Err(perr).Msg("failed to republish event, requeueing")
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// getRetryCount reads the consumer retry header, falling back to the broker's
// x-death bookkeeping for messages that were dead-lettered and replayed.
func getRetryCount(msg amqp.Delivery) int {
	if msg.Headers == nil {
		return 0
	}

	switch v := msg.Headers[HeaderRetryCount].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}

	if deaths, ok := msg.Headers["x-death"].([]interface{}); ok {
		for _, death := range deaths {
			if d, ok := death.(amqp.Table); ok {
				if count, ok := d["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}

	return 0
}
