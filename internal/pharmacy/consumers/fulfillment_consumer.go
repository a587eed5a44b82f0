package consumers

import (
	"context"
	"errors"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/actor"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

// FulfillmentQueue is the queue prescription fulfillment requests arrive on
const FulfillmentQueue = "pharmacy-service.fulfillment"

// Dispenser is the part of the inventory service the consumer drives
type Dispenser interface {
	Dispense(ctx context.Context, req domain.AllocationRequest) (*service.DispenseResult, error)
}

// FulfillmentConsumer dispenses stock for prescription fulfillment requests
type FulfillmentConsumer struct {
	consumer  *messaging.Consumer
	dispenser Dispenser
	logger    *logger.Logger
}

// NewFulfillmentConsumer creates a new fulfillment consumer
func NewFulfillmentConsumer(rmq *messaging.RabbitMQ, dispenser Dispenser, log *logger.Logger) (*FulfillmentConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, FulfillmentQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangePrescriptionEvents, "prescription.fulfillment.#"); err != nil {
		return nil, err
	}

	c := &FulfillmentConsumer{
		consumer:  consumer,
		dispenser: dispenser,
		logger:    log.WithComponent("fulfillment-consumer"),
	}
	consumer.RegisterHandler(messaging.EventFulfillmentRequested, c.handleFulfillmentRequested)

	return c, nil
}

// Start starts consuming messages
func (c *FulfillmentConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// handleFulfillmentRequested dispenses the requested units. Requests that can
// never succeed are acknowledged; a lost race or a store failure is returned
// so the message is retried.
func (c *FulfillmentConsumer) handleFulfillmentRequested(ctx context.Context, event *messaging.Event) error {
	var data messaging.FulfillmentRequestedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	requestID := data.RequestID
	if requestID == "" {
		requestID = event.ID
	}
	log := c.logger.WithRequestID(requestID)

	a := actor.SystemActor()
	if data.RequestedBy != "" {
		a = &actor.Actor{ID: data.RequestedBy}
	}
	ctx = actor.WithActor(ctx, a)
	if event.CorrelationID != "" {
		ctx = messaging.WithCorrelationID(ctx, event.CorrelationID)
	}

	result, err := c.dispenser.Dispense(ctx, domain.AllocationRequest{
		RequestID:   requestID,
		ProductID:   data.ProductID,
		WarehouseID: data.WarehouseID,
		Quantity:    data.Quantity,
	})
	switch {
	case err == nil:
		log.Info().
			Str("prescription_id", data.PrescriptionID).
			Str("status", string(result.Status)).
			Int("attempts", result.Attempts).
			Msg("prescription fulfilled")
		return nil
	case errors.Is(err, domain.ErrInsufficientStock):
		log.Warn().Err(err).Str("prescription_id", data.PrescriptionID).Msg("prescription could not be fulfilled")
		return nil
	case errors.Is(err, domain.ErrInvalidRequest):
		log.Error().Err(err).Str("prescription_id", data.PrescriptionID).Msg("discarding malformed fulfillment request")
		return nil
	default:
		return err
	}
}
