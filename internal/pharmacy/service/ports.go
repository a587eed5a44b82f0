package service

import (
	"context"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/engine"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
)

// BatchStore is the batch ledger as the service sees it. Both
// repository.BatchRepository and repository.MemoryStore satisfy it.
type BatchStore interface {
	engine.BatchRepository

	Create(ctx context.Context, batch *domain.Batch) error
	ListByProduct(ctx context.Context, productID, warehouseID string) ([]domain.Batch, error)
	ListExpiring(ctx context.Context, warehouseID string, until time.Time) ([]domain.Batch, error)
	ListWarehouses(ctx context.Context) ([]string, error)
}

// MovementStore records the stock audit trail
type MovementStore interface {
	Record(ctx context.Context, movements []repository.StockMovement) error
	ListByBatch(ctx context.Context, batchID string) ([]repository.StockMovement, error)
	ListByRequest(ctx context.Context, requestID string) ([]repository.StockMovement, error)
}

// InspectionStore records quarantine inspections
type InspectionStore interface {
	Create(ctx context.Context, insp *repository.QuarantineInspection) error
	ListByBatch(ctx context.Context, batchID string) ([]repository.QuarantineInspection, error)
}

// LostSaleStore records unserved requests
type LostSaleStore interface {
	Create(ctx context.Context, sale *repository.LostSale) error
	Summarize(ctx context.Context, from, to time.Time) ([]repository.LostSaleSummary, error)
}

// AlertStore persists expiry alerts
type AlertStore interface {
	Create(ctx context.Context, alert *repository.ExpiryAlert) error
	GetByID(ctx context.Context, id string) (*repository.ExpiryAlert, error)
	ExistsOpen(ctx context.Context, alertType, batchID string) (bool, error)
	List(ctx context.Context, filter repository.AlertFilter) ([]repository.ExpiryAlert, int64, error)
	Acknowledge(ctx context.Context, id, userID string) error
	DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error)
}

// LedgerPurger drops idempotency records older than cutoff. Only the
// PostgreSQL ledger needs it; Redis keys expire on their own.
type LedgerPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ BatchStore      = (*repository.BatchRepository)(nil)
	_ BatchStore      = (*repository.MemoryStore)(nil)
	_ MovementStore   = (*repository.MovementRepository)(nil)
	_ InspectionStore = (*repository.InspectionRepository)(nil)
	_ LostSaleStore   = (*repository.LostSaleRepository)(nil)
	_ AlertStore      = (*repository.AlertRepository)(nil)
	_ LedgerPurger    = (*repository.AppliedRequestRepository)(nil)
)
