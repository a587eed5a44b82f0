package engine

import (
	"context"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
)

// BatchRepository is the storage the engine plans against and commits to.
type BatchRepository interface {
	// FindEligibleBatches returns batches of the product with stock, in an
	// allocation-eligible zone and not expired at asOf. An empty warehouseID
	// matches every warehouse. Order is not significant.
	FindEligibleBatches(ctx context.Context, productID, warehouseID string, asOf time.Time) ([]domain.Batch, error)

	// GetBatch returns domain.ErrBatchNotFound when id is unknown.
	GetBatch(ctx context.Context, id string) (*domain.Batch, error)

	// CompareAndSwapQuantity sets the quantity to swap.Next only if it still
	// equals swap.Expected, otherwise returns *domain.ConflictError.
	CompareAndSwapQuantity(ctx context.Context, swap domain.QuantitySwap) error

	// CompareAndSwapZone sets the zone to next only if it still equals expected,
	// otherwise returns *domain.ConflictError.
	CompareAndSwapZone(ctx context.Context, batchID string, expected, next domain.Zone) error
}

// IdempotencyLedger remembers which allocation requests have been committed.
type IdempotencyLedger interface {
	HasApplied(ctx context.Context, requestID string) (bool, error)

	// RecordApplied claims requestID and reports false when it was already held.
	RecordApplied(ctx context.Context, requestID string) (bool, error)

	// Forget releases a claim whose commit did not go through.
	Forget(ctx context.Context, requestID string) error
}

// Clock returns the current time.
type Clock func() time.Time
