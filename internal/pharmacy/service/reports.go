package service

import (
	"context"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/pkg/actor"
)

// ExpiryReportEntry is a batch with its expiry classification
type ExpiryReportEntry struct {
	domain.Batch
	Classification domain.Classification `json:"classification"`
}

// SuggestedReorder is the quantity to reorder after total units went unserved
func SuggestedReorder(total int) int {
	// ceil(total * 1.5)
	return (total*3 + 1) / 2
}

// LostSalesReport aggregates unserved requests per product between from and to
func (s *InventoryService) LostSalesReport(ctx context.Context, from, to time.Time) ([]repository.LostSaleSummary, error) {
	if to.IsZero() {
		to = s.engine.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	if from.After(to) {
		return nil, domain.InvalidRequest("report start is after its end")
	}

	summaries, err := s.stores.LostSales.Summarize(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].SuggestedReorder = SuggestedReorder(summaries[i].TotalQuantityRequested)
	}
	return summaries, nil
}

// ExpiryReport lists batches with stock that expire within the given days,
// already expired ones included, soonest first.
func (s *InventoryService) ExpiryReport(ctx context.Context, warehouseID string, withinDays int) ([]ExpiryReportEntry, error) {
	if withinDays < 0 {
		return nil, domain.InvalidRequest("within_days must not be negative")
	}
	now := s.engine.Now()

	batches, err := s.stores.Batches.ListExpiring(ctx, warehouseID, now.AddDate(0, 0, withinDays))
	if err != nil {
		return nil, err
	}
	domain.SortFEFO(batches)

	entries := make([]ExpiryReportEntry, len(batches))
	for i, b := range batches {
		entries[i] = ExpiryReportEntry{Batch: b, Classification: domain.Classify(b.ExpiryDate, now)}
	}
	return entries, nil
}

// AllocationMovements returns the audit rows written by a committed request
func (s *InventoryService) AllocationMovements(ctx context.Context, requestID string) ([]repository.StockMovement, error) {
	if requestID == "" {
		return nil, domain.InvalidRequest("request id is required")
	}
	return s.stores.Movements.ListByRequest(ctx, requestID)
}

// ListAlerts lists expiry alerts
func (s *InventoryService) ListAlerts(ctx context.Context, filter repository.AlertFilter) ([]repository.ExpiryAlert, int64, error) {
	return s.stores.Alerts.List(ctx, filter)
}

// AcknowledgeAlert marks an alert as handled by the acting user
func (s *InventoryService) AcknowledgeAlert(ctx context.Context, id string) (*repository.ExpiryAlert, error) {
	if err := s.stores.Alerts.Acknowledge(ctx, id, actor.IDFromContext(ctx)); err != nil {
		return nil, err
	}
	return s.stores.Alerts.GetByID(ctx, id)
}
