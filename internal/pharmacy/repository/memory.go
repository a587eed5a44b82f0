package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// MemoryStore is an in-process batch store and idempotency ledger. A single
// mutex serializes every compare-and-swap, which gives the same atomicity the
// PostgreSQL conditional UPDATE provides.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[string]domain.Batch
	applied map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string]domain.Batch),
		applied: make(map[string]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new batch, assigning an id when empty.
func (s *MemoryStore) Create(ctx context.Context, batch *domain.Batch) error {
	if err := domain.Validate(*batch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.batches {
		if existing.ProductID == batch.ProductID && existing.LotNumber == batch.LotNumber {
			return errors.Conflict("a batch with this lot number already exists for the product")
		}
	}

	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if _, exists := s.batches[batch.ID]; exists {
		return errors.Conflict("a batch with this id already exists")
	}

	now := s.now()
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = now
	}
	batch.CreatedAt = now
	batch.UpdatedAt = now
	s.batches[batch.ID] = *batch
	return nil
}

// GetBatch returns a copy of the batch.
func (s *MemoryStore) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return &b, nil
}

// ListByProduct returns every batch of the product, depleted ones included.
func (s *MemoryStore) ListByProduct(ctx context.Context, productID, warehouseID string) ([]domain.Batch, error) {
	return s.filter(func(b domain.Batch) bool {
		return b.ProductID == productID && matchesWarehouse(b, warehouseID)
	}), nil
}

// FindEligibleBatches implements engine.BatchRepository.
func (s *MemoryStore) FindEligibleBatches(ctx context.Context, productID, warehouseID string, asOf time.Time) ([]domain.Batch, error) {
	return s.filter(func(b domain.Batch) bool {
		return b.ProductID == productID &&
			matchesWarehouse(b, warehouseID) &&
			b.Quantity > 0 &&
			domain.IsAllocationEligible(b.Zone) &&
			!b.ExpiryDate.Before(asOf)
	}), nil
}

// ListExpiring returns batches with stock in a non-terminal zone that expire
// on or before until.
func (s *MemoryStore) ListExpiring(ctx context.Context, warehouseID string, until time.Time) ([]domain.Batch, error) {
	return s.filter(func(b domain.Batch) bool {
		return matchesWarehouse(b, warehouseID) &&
			b.Quantity > 0 &&
			!domain.IsTerminal(b.Zone) &&
			!b.ExpiryDate.After(until)
	}), nil
}

// ListWarehouses returns the distinct warehouses that hold stock.
func (s *MemoryStore) ListWarehouses(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, b := range s.batches {
		if b.Quantity > 0 {
			seen[b.WarehouseID] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out, nil
}

// CompareAndSwapQuantity implements engine.BatchRepository.
func (s *MemoryStore) CompareAndSwapQuantity(ctx context.Context, swap domain.QuantitySwap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[swap.BatchID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	if b.Quantity != swap.Expected {
		return &domain.ConflictError{BatchID: swap.BatchID}
	}
	if swap.Guard != nil && !swap.Guard.Allows(b) {
		return &domain.ConflictError{BatchID: swap.BatchID}
	}

	b.Quantity = swap.Next
	if err := domain.Validate(b); err != nil {
		return err
	}
	b.UpdatedAt = s.now()
	s.batches[swap.BatchID] = b
	return nil
}

// CompareAndSwapZone implements engine.BatchRepository.
func (s *MemoryStore) CompareAndSwapZone(ctx context.Context, batchID string, expected, next domain.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	if b.Zone != expected {
		return &domain.ConflictError{BatchID: batchID}
	}

	b.Zone = next
	b.UpdatedAt = s.now()
	s.batches[batchID] = b
	return nil
}

// HasApplied implements engine.IdempotencyLedger.
func (s *MemoryStore) HasApplied(ctx context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.applied[requestID]
	return ok, nil
}

// RecordApplied implements engine.IdempotencyLedger.
func (s *MemoryStore) RecordApplied(ctx context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.applied[requestID]; ok {
		return false, nil
	}
	s.applied[requestID] = s.now()
	return true, nil
}

// Forget implements engine.IdempotencyLedger.
func (s *MemoryStore) Forget(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.applied, requestID)
	return nil
}

func (s *MemoryStore) filter(keep func(domain.Batch) bool) []domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Batch, 0)
	for _, b := range s.batches {
		if keep(b) {
			out = append(out, b)
		}
	}
	domain.SortFEFO(out)
	return out
}

func matchesWarehouse(b domain.Batch, warehouseID string) bool {
	return warehouseID == "" || b.WarehouseID == warehouseID
}
