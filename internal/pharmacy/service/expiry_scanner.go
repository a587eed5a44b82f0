package service

import (
	"context"
	"fmt"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/metrics"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// ScanResult counts what one scan did
type ScanResult struct {
	Warehouses int `json:"warehouses"`
	Scanned    int `json:"scanned"`
	Created    int `json:"created"`
}

// ExpiryScanner raises alerts for batches with stock that are expiring or
// expired. An open alert of the same type for a batch suppresses a new one.
type ExpiryScanner struct {
	batches     BatchStore
	alerts      AlertStore
	publisher   *events.PharmacyEventPublisher
	metrics     *metrics.AllocationMetrics
	warningDays int
	clock       func() time.Time
	logger      *logger.Logger
}

// NewExpiryScanner creates a scanner warning warningDays ahead of expiry
func NewExpiryScanner(
	batches BatchStore,
	alerts AlertStore,
	publisher *events.PharmacyEventPublisher,
	m *metrics.AllocationMetrics,
	warningDays int,
	clock func() time.Time,
	log *logger.Logger,
) *ExpiryScanner {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &ExpiryScanner{
		batches:     batches,
		alerts:      alerts,
		publisher:   publisher,
		metrics:     m,
		warningDays: warningDays,
		clock:       clock,
		logger:      log.WithComponent("expiry-scanner"),
	}
}

// ScanAll scans every warehouse holding stock. Logs errors but continues scanning.
func (s *ExpiryScanner) ScanAll(ctx context.Context) (ScanResult, error) {
	warehouses, err := s.batches.ListWarehouses(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("list warehouses: %w", err)
	}

	var total ScanResult
	var lastErr error
	for _, w := range warehouses {
		res, err := s.ScanWarehouse(ctx, w)
		if err != nil {
			s.logger.Error().Err(err).Str("warehouse_id", w).Msg("expiry scan failed for warehouse")
			lastErr = err
		}
		total.Warehouses++
		total.Scanned += res.Scanned
		total.Created += res.Created
	}
	return total, lastErr
}

// ScanWarehouse scans one warehouse; "" scans all of them in one pass
func (s *ExpiryScanner) ScanWarehouse(ctx context.Context, warehouseID string) (ScanResult, error) {
	now := s.clock()
	batches, err := s.batches.ListExpiring(ctx, warehouseID, now.AddDate(0, 0, s.warningDays))
	if err != nil {
		return ScanResult{}, fmt.Errorf("list expiring batches: %w", err)
	}

	res := ScanResult{Warehouses: 1, Scanned: len(batches)}
	for _, b := range batches {
		c := domain.Classify(b.ExpiryDate, now)
		alertType, severity := repository.AlertExpiryWarning, repository.SeverityWarning
		if c.Status == domain.ExpiryExpired {
			alertType, severity = repository.AlertExpired, repository.SeverityCritical
		}

		exists, err := s.alerts.ExistsOpen(ctx, alertType, b.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to check existing alert")
			continue
		}
		if exists {
			continue
		}

		alert := &repository.ExpiryAlert{
			AlertType:     alertType,
			Severity:      severity,
			BatchID:       b.ID,
			ProductID:     b.ProductID,
			WarehouseID:   b.WarehouseID,
			LotNumber:     b.LotNumber,
			Message:       alertMessage(b, c),
			DaysRemaining: c.DaysRemaining,
			Quantity:      b.Quantity,
		}
		if err := s.alerts.Create(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to create expiry alert")
			continue
		}

		res.Created++
		s.metrics.ObserveExpiryAlert(alertType)
		s.publisher.PublishBatchExpiring(ctx, b, c)
	}

	return res, nil
}

func alertMessage(b domain.Batch, c domain.Classification) string {
	if c.Status == domain.ExpiryExpired {
		return fmt.Sprintf("lot %s of %s expired %d day(s) ago with %d unit(s) on hand",
			b.LotNumber, b.ProductID, -c.DaysRemaining, b.Quantity)
	}
	return fmt.Sprintf("lot %s of %s expires in %d day(s) with %d unit(s) on hand",
		b.LotNumber, b.ProductID, c.DaysRemaining, b.Quantity)
}
