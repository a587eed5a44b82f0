// Package service composes the allocation engine with the batch ledger, the
// audit trail and event publishing.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/engine"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/metrics"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/pkg/actor"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// Stores bundles the persistence ports of InventoryService
type Stores struct {
	Batches     BatchStore
	Movements   MovementStore
	Inspections InspectionStore
	LostSales   LostSaleStore
	Alerts      AlertStore
}

// Options tunes InventoryService
type Options struct {
	// IntakeZone is where received batches land when the caller names none
	IntakeZone domain.Zone
	// CommitRetryBudget is how many times Dispense re-plans after a conflict
	CommitRetryBudget int
}

// InventoryService handles pharmacy inventory business logic
type InventoryService struct {
	stores    Stores
	engine    *engine.Engine
	publisher *events.PharmacyEventPublisher
	metrics   *metrics.AllocationMetrics
	opts      Options
	logger    *logger.Logger
}

// NewInventoryService creates a new inventory service. publisher and m may be nil.
func NewInventoryService(
	stores Stores,
	eng *engine.Engine,
	publisher *events.PharmacyEventPublisher,
	m *metrics.AllocationMetrics,
	opts Options,
	log *logger.Logger,
) *InventoryService {
	if opts.IntakeZone == "" {
		opts.IntakeZone = domain.ZoneQuarantine
	}
	return &InventoryService{
		stores:    stores,
		engine:    eng,
		publisher: publisher,
		metrics:   m,
		opts:      opts,
		logger:    log.WithComponent("inventory-service"),
	}
}

// ReceiveBatchInput is a new lot arriving at a warehouse
type ReceiveBatchInput struct {
	ProductID         string      `json:"product_id" validate:"required"`
	WarehouseID       string      `json:"warehouse_id" validate:"required"`
	LotNumber         string      `json:"lot_number" validate:"required"`
	Quantity          int         `json:"quantity" validate:"gt=0"`
	Zone              domain.Zone `json:"zone,omitempty" validate:"omitempty,zone"`
	ManufacturingDate *time.Time  `json:"manufacturing_date,omitempty"`
	ExpiryDate        time.Time   `json:"expiry_date" validate:"required"`
	Location          *string     `json:"location,omitempty"`
	SupplierID        *string     `json:"supplier_id,omitempty"`
}

// ReceiveBatch takes a lot into stock at full quantity
func (s *InventoryService) ReceiveBatch(ctx context.Context, in ReceiveBatchInput) (*domain.Batch, error) {
	zone := in.Zone
	if zone == "" {
		zone = s.opts.IntakeZone
	}
	if !domain.IsIntakeZone(zone) {
		return nil, domain.InvalidRequest("batches are received into available or quarantine")
	}

	batch := &domain.Batch{
		ProductID:         strings.TrimSpace(in.ProductID),
		WarehouseID:       strings.TrimSpace(in.WarehouseID),
		LotNumber:         strings.TrimSpace(in.LotNumber),
		Quantity:          in.Quantity,
		OriginalQuantity:  in.Quantity,
		Zone:              zone,
		ManufacturingDate: in.ManufacturingDate,
		ExpiryDate:        in.ExpiryDate,
		Location:          in.Location,
		SupplierID:        in.SupplierID,
		ReceivedAt:        s.engine.Now(),
	}
	if err := s.stores.Batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	zoneAfter := zone.String()
	s.recordMovements(ctx, repository.StockMovement{
		BatchID:        batch.ID,
		ProductID:      batch.ProductID,
		WarehouseID:    batch.WarehouseID,
		MovementType:   repository.MovementIntake,
		QuantityDelta:  batch.Quantity,
		QuantityBefore: 0,
		QuantityAfter:  batch.Quantity,
		ZoneAfter:      &zoneAfter,
		PerformedBy:    actor.IDFromContext(ctx),
	})
	s.publisher.PublishBatchReceived(ctx, batch)

	s.logger.WithBatch(batch.ID).Info().
		Str("product_id", batch.ProductID).
		Str("lot_number", batch.LotNumber).
		Int("quantity", batch.Quantity).
		Str("zone", zoneAfter).
		Msg("batch received")

	return batch, nil
}

// GetBatch gets a batch by ID
func (s *InventoryService) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return s.stores.Batches.GetBatch(ctx, id)
}

// ListBatches lists a product's batches in FEFO order
func (s *InventoryService) ListBatches(ctx context.Context, productID, warehouseID string) ([]domain.Batch, error) {
	if productID == "" {
		return nil, domain.InvalidRequest("product id is required")
	}
	batches, err := s.stores.Batches.ListByProduct(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	domain.SortFEFO(batches)
	return batches, nil
}

// BatchHistory returns the movements and inspections recorded for a batch
func (s *InventoryService) BatchHistory(ctx context.Context, batchID string) ([]repository.StockMovement, []repository.QuarantineInspection, error) {
	if _, err := s.stores.Batches.GetBatch(ctx, batchID); err != nil {
		return nil, nil, err
	}
	movements, err := s.stores.Movements.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("list movements: %w", err)
	}
	inspections, err := s.stores.Inspections.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("list inspections: %w", err)
	}
	return movements, inspections, nil
}

// TransitionInput moves a batch to another zone
type TransitionInput struct {
	BatchID    string                   `json:"-"`
	Target     domain.Zone              `json:"target_zone" validate:"required,zone"`
	Reason     string                   `json:"reason,omitempty"`
	Inspection *domain.InspectionResult `json:"inspection,omitempty"`
}

// TransitionZone moves a batch along the zone state machine. An inspection
// may only accompany a batch leaving quarantine and must pass to approve it.
func (s *InventoryService) TransitionZone(ctx context.Context, in TransitionInput) (*domain.Batch, error) {
	batch, err := s.stores.Batches.GetBatch(ctx, in.BatchID)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckMutable(*batch); err != nil {
		return nil, err
	}

	if in.Inspection != nil {
		if batch.Zone != domain.ZoneQuarantine {
			return nil, &domain.ValidationError{
				Code:    domain.CodeInvalidInspection,
				Field:   "inspection",
				Message: "only quarantined batches are inspected",
			}
		}
		if err := domain.CheckRelease(*in.Inspection, in.Target); err != nil {
			var zte *domain.ZoneTransitionError
			if errors.As(err, &zte) {
				zte.BatchID = batch.ID
			}
			return nil, err
		}
	}

	next, err := domain.Transition(*batch, in.Target)
	if err != nil {
		return nil, err
	}
	from := batch.Zone

	if err := s.stores.Batches.CompareAndSwapZone(ctx, batch.ID, from, next.Zone); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(from.String(), next.Zone.String())

	performedBy := actor.IDFromContext(ctx)
	if in.Inspection != nil {
		s.recordInspection(ctx, &next, *in.Inspection, performedBy)
	}

	zoneBefore, zoneAfter := from.String(), next.Zone.String()
	movement := repository.StockMovement{
		BatchID:        next.ID,
		ProductID:      next.ProductID,
		WarehouseID:    next.WarehouseID,
		MovementType:   repository.MovementZoneChange,
		QuantityBefore: next.Quantity,
		QuantityAfter:  next.Quantity,
		ZoneBefore:     &zoneBefore,
		ZoneAfter:      &zoneAfter,
		PerformedBy:    performedBy,
	}
	if in.Reason != "" {
		movement.Reason = &in.Reason
	}
	s.recordMovements(ctx, movement)
	s.publisher.PublishZoneChanged(ctx, &next, from, in.Reason, performedBy)

	s.logger.WithBatch(next.ID).Info().
		Str("from", zoneBefore).
		Str("to", zoneAfter).
		Str("performed_by", performedBy).
		Msg("batch zone changed")

	return &next, nil
}

// CorrectQuantity adjusts a batch after a receipt error or count. The result
// must stay within 0 and the original quantity; terminal zones and depleted
// batches are frozen.
func (s *InventoryService) CorrectQuantity(ctx context.Context, batchID string, delta int, reason string) (*domain.Batch, error) {
	if delta == 0 {
		return nil, domain.InvalidRequest("correction delta must not be zero")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, domain.InvalidRequest("correction reason is required")
	}

	batch, err := s.stores.Batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckMutable(*batch); err != nil {
		return nil, err
	}
	if domain.IsTerminal(batch.Zone) {
		return nil, &domain.ValidationError{
			Code:    domain.CodeInvalidQuantity,
			Field:   "zone",
			Message: fmt.Sprintf("batch in %s zone cannot be corrected", batch.Zone),
		}
	}

	corrected := *batch
	corrected.Quantity += delta
	if err := domain.Validate(corrected); err != nil {
		return nil, err
	}

	if err := s.stores.Batches.CompareAndSwapQuantity(ctx, domain.QuantitySwap{
		BatchID:  batch.ID,
		Expected: batch.Quantity,
		Next:     corrected.Quantity,
	}); err != nil {
		return nil, err
	}

	performedBy := actor.IDFromContext(ctx)
	s.recordMovements(ctx, repository.StockMovement{
		BatchID:        batch.ID,
		ProductID:      batch.ProductID,
		WarehouseID:    batch.WarehouseID,
		MovementType:   repository.MovementCorrection,
		QuantityDelta:  delta,
		QuantityBefore: batch.Quantity,
		QuantityAfter:  corrected.Quantity,
		Reason:         &reason,
		PerformedBy:    performedBy,
	})
	s.publisher.PublishStockCorrected(ctx, &corrected, delta, reason, performedBy)

	return &corrected, nil
}

// StockSummary aggregates a product's batches at the engine's clock
func (s *InventoryService) StockSummary(ctx context.Context, productID, warehouseID string) (domain.StockSummary, error) {
	if productID == "" {
		return domain.StockSummary{}, domain.InvalidRequest("product id is required")
	}
	batches, err := s.stores.Batches.ListByProduct(ctx, productID, warehouseID)
	if err != nil {
		return domain.StockSummary{}, err
	}
	return domain.Summarize(productID, warehouseID, batches, s.engine.Now(), s.engine.Policy()), nil
}

func (s *InventoryService) recordMovements(ctx context.Context, movements ...repository.StockMovement) {
	if err := s.stores.Movements.Record(ctx, movements); err != nil {
		s.logger.Error().Err(err).Int("movements", len(movements)).Msg("failed to record stock movements")
	}
}

func (s *InventoryService) recordInspection(ctx context.Context, b *domain.Batch, r domain.InspectionResult, inspectedBy string) {
	insp := &repository.QuarantineInspection{
		BatchID:            b.ID,
		ProductID:          b.ProductID,
		LotNumber:          b.LotNumber,
		InspectedBy:        inspectedBy,
		SealsIntact:        r.SealsIntact,
		TemperatureOK:      r.TemperatureOK,
		TemperatureCelsius: r.TemperatureCelsius,
		PackagingCondition: string(r.PackagingCondition),
		ExpiryDateOK:       r.ExpiryDateOK,
		Approved:           b.Zone == domain.ZoneApproved,
	}
	if r.RejectionReason != "" {
		insp.RejectionReason = &r.RejectionReason
	}
	if r.Notes != "" {
		insp.Notes = &r.Notes
	}
	if err := s.stores.Inspections.Create(ctx, insp); err != nil {
		s.logger.WithBatch(b.ID).Error().Err(err).Msg("failed to record inspection")
	}
}
