package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/engine"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/pkg/actor"
)

// CommitStatus is the outcome of a commit that did not fail
type CommitStatus string

const (
	CommitCommitted      CommitStatus = "committed"
	CommitAlreadyApplied CommitStatus = "already_applied"
)

// DispenseResult reports a dispense that went through. Plan is nil when the
// request had already been applied.
type DispenseResult struct {
	Plan     *domain.AllocationPlan `json:"plan,omitempty"`
	Status   CommitStatus           `json:"status"`
	Attempts int                    `json:"attempts"`
}

// Allocate plans a request. Requests without an id get one. When the stock
// cannot cover the request a lost sale is recorded before the error returns.
func (s *InventoryService) Allocate(ctx context.Context, req domain.AllocationRequest) (*domain.AllocationPlan, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	plan, err := s.engine.Allocate(ctx, req)
	if err != nil {
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			s.recordLostSale(ctx, req, insufficient.Available)
		}
		return nil, err
	}
	return plan, nil
}

// Commit applies a plan once. A replay of an applied request id reports
// CommitAlreadyApplied instead of failing.
func (s *InventoryService) Commit(ctx context.Context, plan *domain.AllocationPlan) (CommitStatus, error) {
	if err := plan.Check(); err != nil {
		return "", err
	}
	batches, err := s.planBatches(ctx, plan)
	if err != nil {
		return "", err
	}

	if err := s.engine.Commit(ctx, plan); err != nil {
		if errors.Is(err, domain.ErrAlreadyApplied) {
			return CommitAlreadyApplied, nil
		}
		return "", err
	}

	performedBy := actor.IDFromContext(ctx)
	requestID := plan.RequestID
	movements := make([]repository.StockMovement, len(plan.Lines))
	for i, l := range plan.Lines {
		b := batches[l.BatchID]
		movements[i] = repository.StockMovement{
			BatchID:        l.BatchID,
			ProductID:      b.ProductID,
			WarehouseID:    b.WarehouseID,
			MovementType:   repository.MovementAllocation,
			QuantityDelta:  -l.Units,
			QuantityBefore: l.QuantityBefore,
			QuantityAfter:  l.QuantityAfter(),
			RequestID:      &requestID,
			PerformedBy:    performedBy,
		}
	}
	// Commit survives cancellation, so its audit trail does too.
	auditCtx := context.WithoutCancel(ctx)
	s.recordMovements(auditCtx, movements...)
	s.publisher.PublishStockAllocated(auditCtx, plan, performedBy)

	return CommitCommitted, nil
}

// planBatches loads the batches a plan touches and checks that they belong
// to the plan's product and warehouse.
func (s *InventoryService) planBatches(ctx context.Context, plan *domain.AllocationPlan) (map[string]*domain.Batch, error) {
	batches := make(map[string]*domain.Batch, len(plan.Lines))
	for _, l := range plan.Lines {
		b, err := s.stores.Batches.GetBatch(ctx, l.BatchID)
		if err != nil {
			if errors.Is(err, domain.ErrBatchNotFound) {
				return nil, domain.InvalidRequest("plan references unknown batch " + l.BatchID)
			}
			return nil, err
		}
		if b.ProductID != plan.ProductID {
			return nil, domain.InvalidRequest(fmt.Sprintf("batch %s does not hold product %s", l.BatchID, plan.ProductID))
		}
		if plan.WarehouseID != "" && b.WarehouseID != plan.WarehouseID {
			return nil, domain.InvalidRequest(fmt.Sprintf("batch %s is not in warehouse %s", l.BatchID, plan.WarehouseID))
		}
		batches[l.BatchID] = b
	}
	return batches, nil
}

// Dispense allocates and commits in one call, re-planning after a lost race
// up to the configured retry budget.
func (s *InventoryService) Dispense(ctx context.Context, req domain.AllocationRequest) (*DispenseResult, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	log := s.logger.WithRequestID(req.RequestID)

	applied, err := s.engine.Applied(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("check idempotency ledger: %w", err)
	}
	if applied {
		return &DispenseResult{Status: CommitAlreadyApplied}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.CommitRetryBudget+1; attempt++ {
		plan, err := s.Allocate(ctx, req)
		if err != nil {
			return nil, err
		}

		status, err := s.Commit(ctx, plan)
		if err == nil {
			return &DispenseResult{Plan: plan, Status: status, Attempts: attempt}, nil
		}
		if !errors.Is(err, domain.ErrConflict) || errors.Is(err, engine.ErrRollbackIncomplete) {
			return nil, err
		}

		lastErr = err
		log.Info().Err(err).Int("attempt", attempt).Msg("dispense lost a race, re-planning")
		if ctx.Err() != nil {
			return nil, errors.Join(lastErr, ctx.Err())
		}
	}

	return nil, lastErr
}

func (s *InventoryService) recordLostSale(ctx context.Context, req domain.AllocationRequest, available int) {
	log := s.logger.WithProduct(req.ProductID, req.WarehouseID)

	reason := domain.LostSaleOutOfStock
	batches, err := s.stores.Batches.ListByProduct(ctx, req.ProductID, req.WarehouseID)
	if err != nil {
		log.Warn().Err(err).Msg("could not load stock breakdown for lost sale")
	} else {
		summary := domain.Summarize(req.ProductID, req.WarehouseID, batches, s.engine.Now(), s.engine.Policy())
		reason = domain.LostSaleReasonFor(summary)
	}

	sale := &repository.LostSale{
		ProductID:         req.ProductID,
		WarehouseID:       req.WarehouseID,
		RequestedQuantity: req.Quantity,
		AvailableQuantity: available,
		Reason:            string(reason),
		RequestedBy:       actor.IDFromContext(ctx),
	}
	if req.RequestID != "" {
		requestID := req.RequestID
		sale.RequestID = &requestID
	}
	if err := s.stores.LostSales.Create(ctx, sale); err != nil {
		log.Error().Err(err).Msg("failed to record lost sale")
		return
	}
	s.publisher.PublishLostSale(ctx, req.ProductID, req.WarehouseID, req.Quantity, available, reason)

	log.Info().
		Int("requested", req.Quantity).
		Int("available", available).
		Str("reason", string(reason)).
		Msg("lost sale recorded")
}
