// Package events publishes pharmacy domain events to RabbitMQ. A nil
// *PharmacyEventPublisher is valid and drops every event, so services run
// unchanged when the broker is disabled.
package events

import (
	"context"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

// ServiceName is the event source of everything published here
const ServiceName = "pharmacy-service"

// PharmacyEventPublisher publishes pharmacy-related events
type PharmacyEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher declares the pharmacy exchange and returns a publisher on it
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, ServiceName, log)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(publisher, log), nil
}

// NewWithTransport builds a publisher over any transport
func NewWithTransport(transport messaging.EventPublisher, log *logger.Logger) *PharmacyEventPublisher {
	return &PharmacyEventPublisher{
		publisher: transport,
		logger:    log.WithComponent("events"),
	}
}

// PublishStockAllocated publishes the committed lines of an allocation plan
func (p *PharmacyEventPublisher) PublishStockAllocated(ctx context.Context, plan *domain.AllocationPlan, performedBy string) {
	if p == nil {
		return
	}

	lines := make([]messaging.AllocatedLine, len(plan.Lines))
	for i, l := range plan.Lines {
		lines[i] = messaging.AllocatedLine{
			BatchID:    l.BatchID,
			LotNumber:  l.LotNumber,
			Units:      l.Units,
			Remaining:  l.QuantityAfter(),
			ExpiryDate: l.ExpiryDate,
		}
	}

	p.publish(ctx, messaging.EventStockAllocated, messaging.StockAllocatedEvent{
		RequestID:   plan.RequestID,
		ProductID:   plan.ProductID,
		WarehouseID: plan.WarehouseID,
		Quantity:    plan.Total(),
		Lines:       lines,
		PerformedBy: performedBy,
	}, plan.ProductID)
}

// PublishBatchReceived publishes an intake
func (p *PharmacyEventPublisher) PublishBatchReceived(ctx context.Context, b *domain.Batch) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventBatchReceived, messaging.BatchReceivedEvent{
		BatchID:     b.ID,
		ProductID:   b.ProductID,
		WarehouseID: b.WarehouseID,
		LotNumber:   b.LotNumber,
		Quantity:    b.Quantity,
		Zone:        b.Zone.String(),
		ExpiryDate:  b.ExpiryDate,
	}, b.ProductID)
}

// PublishZoneChanged publishes a zone transition
func (p *PharmacyEventPublisher) PublishZoneChanged(ctx context.Context, b *domain.Batch, from domain.Zone, reason, performedBy string) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventBatchZoneChanged, messaging.BatchZoneChangedEvent{
		BatchID:     b.ID,
		ProductID:   b.ProductID,
		From:        from.String(),
		To:          b.Zone.String(),
		Reason:      reason,
		PerformedBy: performedBy,
	}, b.ProductID)
}

// PublishStockCorrected publishes a receipt correction
func (p *PharmacyEventPublisher) PublishStockCorrected(ctx context.Context, b *domain.Batch, delta int, reason, performedBy string) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventStockCorrected, messaging.StockCorrectedEvent{
		BatchID:     b.ID,
		ProductID:   b.ProductID,
		Delta:       delta,
		NewQuantity: b.Quantity,
		Reason:      reason,
		PerformedBy: performedBy,
	}, b.ProductID)
}

// PublishBatchExpiring publishes a scanner finding
func (p *PharmacyEventPublisher) PublishBatchExpiring(ctx context.Context, b domain.Batch, c domain.Classification) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventBatchExpiring, messaging.BatchExpiringEvent{
		BatchID:       b.ID,
		ProductID:     b.ProductID,
		WarehouseID:   b.WarehouseID,
		LotNumber:     b.LotNumber,
		ExpiryDate:    b.ExpiryDate,
		DaysRemaining: c.DaysRemaining,
		Status:        string(c.Status),
		Quantity:      b.Quantity,
	}, b.ProductID)
}

// PublishLostSale publishes an unserved request
func (p *PharmacyEventPublisher) PublishLostSale(ctx context.Context, productID, warehouseID string, requested, available int, reason domain.LostSaleReason) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventLostSaleRecorded, messaging.LostSaleRecordedEvent{
		ProductID:         productID,
		WarehouseID:       warehouseID,
		RequestedQuantity: requested,
		AvailableQuantity: available,
		Reason:            string(reason),
	}, productID)
}

func (p *PharmacyEventPublisher) publish(ctx context.Context, eventType string, data interface{}, productID string) {
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("product_id", productID).
			Msg("failed to publish event")
	}
}
