// Package engine plans FEFO allocations against a batch repository and
// commits them with per-batch compare-and-swap, so several terminals and
// service instances can dispense from the same stock without locks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/metrics"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

var tracer = otel.Tracer("pharmacy/allocation-engine")

// maxRestoreAttempts bounds the read-modify-CAS loop used to undo a decrement
// that other committers have since built on.
const maxRestoreAttempts = 10

// ErrRollbackIncomplete is joined onto a commit error when a decrement could
// not be restored. The affected batch ids are in the message.
var ErrRollbackIncomplete = errors.New("allocation rollback incomplete")

// Config tunes an Engine.
type Config struct {
	Policy domain.EligibilityPolicy
	Clock  Clock
}

// Engine computes and commits allocation plans. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	repo    BatchRepository
	ledger  IdempotencyLedger
	policy  domain.EligibilityPolicy
	clock   Clock
	metrics *metrics.AllocationMetrics
	logger  *logger.Logger
}

// New creates an engine. A nil clock defaults to time.Now in UTC; metrics may be nil.
func New(repo BatchRepository, ledger IdempotencyLedger, cfg Config, m *metrics.AllocationMetrics, log *logger.Logger) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		repo:    repo,
		ledger:  ledger,
		policy:  cfg.Policy,
		clock:   clock,
		metrics: m,
		logger:  log.WithComponent("allocation-engine"),
	}
}

// Policy returns the zone eligibility policy in force.
func (e *Engine) Policy() domain.EligibilityPolicy {
	return e.policy
}

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Applied reports whether requestID has already been committed.
func (e *Engine) Applied(ctx context.Context, requestID string) (bool, error) {
	return e.ledger.HasApplied(ctx, requestID)
}

// Allocate builds a FEFO plan for the request without touching stock.
func (e *Engine) Allocate(ctx context.Context, req domain.AllocationRequest) (*domain.AllocationPlan, error) {
	ctx, span := tracer.Start(ctx, "engine.Allocate", trace.WithAttributes(
		attribute.String("product_id", req.ProductID),
		attribute.String("warehouse_id", req.WarehouseID),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	plan, err := e.allocate(ctx, req)

	lines := 0
	if plan != nil {
		lines = len(plan.Lines)
	}
	e.metrics.ObserveAllocation(outcomeOf(err), lines)
	span.SetAttributes(attribute.Int("batches", lines))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
	}

	return plan, err
}

func (e *Engine) allocate(ctx context.Context, req domain.AllocationRequest) (*domain.AllocationPlan, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return nil, domain.InvalidRequest("product id is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.InvalidRequest("quantity must be positive")
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = e.clock()
	}

	batches, err := e.repo.FindEligibleBatches(ctx, req.ProductID, req.WarehouseID, asOf)
	if err != nil {
		return nil, fmt.Errorf("find eligible batches: %w", err)
	}

	candidates := e.filterEligible(req, batches, asOf)
	domain.SortFEFO(candidates)

	available := 0
	for _, b := range candidates {
		available += b.Quantity
	}
	if available < req.Quantity {
		return nil, &domain.InsufficientStockError{
			ProductID: req.ProductID,
			Available: available,
			Requested: req.Quantity,
		}
	}

	plan := &domain.AllocationPlan{
		RequestID:   req.RequestID,
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Requested:   req.Quantity,
		AsOf:        asOf,
	}

	remaining := req.Quantity
	for _, b := range candidates {
		if remaining == 0 {
			break
		}
		take := min(b.Quantity, remaining)
		plan.Lines = append(plan.Lines, domain.PlanLine{
			BatchID:        b.ID,
			LotNumber:      b.LotNumber,
			ExpiryDate:     b.ExpiryDate,
			QuantityBefore: b.Quantity,
			Units:          take,
		})
		remaining -= take
	}

	return plan, nil
}

// filterEligible re-applies the eligibility rules to whatever the repository
// returned, so a lax adapter cannot widen the allocation source.
func (e *Engine) filterEligible(req domain.AllocationRequest, batches []domain.Batch, asOf time.Time) []domain.Batch {
	out := make([]domain.Batch, 0, len(batches))
	for _, b := range batches {
		if b.ProductID != req.ProductID {
			continue
		}
		if req.WarehouseID != "" && b.WarehouseID != req.WarehouseID {
			continue
		}
		if b.Quantity <= 0 || !e.policy.IsAllocationEligible(b.Zone) || domain.IsExpired(b, asOf) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Commit applies the plan. Once started it runs to completion even if ctx is
// cancelled: every decrement either lands or is restored.
func (e *Engine) Commit(ctx context.Context, plan *domain.AllocationPlan) error {
	var attrs []attribute.KeyValue
	units := 0
	if plan != nil {
		units = plan.Total()
		attrs = append(attrs,
			attribute.String("request_id", plan.RequestID),
			attribute.String("product_id", plan.ProductID),
			attribute.Int("lines", len(plan.Lines)),
		)
	}
	ctx, span := tracer.Start(ctx, "engine.Commit", trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := e.commit(ctx, plan)
	e.metrics.ObserveCommit(outcomeOf(err), units, time.Since(start).Seconds())
	if err != nil && !errors.Is(err, domain.ErrAlreadyApplied) {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
	}

	return err
}

func (e *Engine) commit(ctx context.Context, plan *domain.AllocationPlan) error {
	if err := plan.Check(); err != nil {
		return err
	}

	applied, err := e.ledger.HasApplied(ctx, plan.RequestID)
	if err != nil {
		return fmt.Errorf("check idempotency ledger: %w", err)
	}
	if applied {
		return domain.ErrAlreadyApplied
	}

	ctx = context.WithoutCancel(ctx)

	claimed, err := e.ledger.RecordApplied(ctx, plan.RequestID)
	if err != nil {
		return fmt.Errorf("record request in idempotency ledger: %w", err)
	}
	if !claimed {
		return domain.ErrAlreadyApplied
	}

	log := e.logger.WithRequestID(plan.RequestID)
	guard := &domain.DispenseGuard{Policy: e.policy, AsOf: e.Now()}

	for i, line := range plan.Lines {
		swap := domain.QuantitySwap{
			BatchID:  line.BatchID,
			Expected: line.QuantityBefore,
			Next:     line.QuantityAfter(),
			Guard:    guard,
		}
		err := e.repo.CompareAndSwapQuantity(ctx, swap)
		if err == nil {
			continue
		}

		if !errors.Is(err, domain.ErrConflict) {
			err = fmt.Errorf("decrement batch %s: %w", line.BatchID, err)
		}
		log.Warn().Err(err).
			Str("batch_id", line.BatchID).
			Int("applied_lines", i).
			Msg("allocation commit failed, rolling back")

		rbErr := e.rollback(ctx, plan.Lines[:i])
		if fErr := e.ledger.Forget(ctx, plan.RequestID); fErr != nil {
			log.Error().Err(fErr).Msg("failed to release idempotency claim")
			rbErr = errors.Join(rbErr, fmt.Errorf("release idempotency claim: %w", fErr))
		}
		if rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	log.Debug().
		Str("product_id", plan.ProductID).
		Int("units", plan.Total()).
		Int("batches", len(plan.Lines)).
		Msg("allocation committed")

	return nil
}

// rollback restores already-applied lines in reverse order.
func (e *Engine) rollback(ctx context.Context, applied []domain.PlanLine) error {
	if len(applied) == 0 {
		return nil
	}
	e.metrics.ObserveRollback(len(applied))

	var failed []string
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		if err := e.restore(ctx, line); err != nil {
			e.logger.Error().Err(err).
				Str("batch_id", line.BatchID).
				Int("units", line.Units).
				Msg("failed to restore batch quantity")
			failed = append(failed, line.BatchID)
			errs = append(errs, err)
		}
	}

	if len(failed) > 0 {
		return errors.Join(
			fmt.Errorf("%w: batches %s", ErrRollbackIncomplete, strings.Join(failed, ", ")),
			errors.Join(errs...),
		)
	}
	return nil
}

// restore adds line.Units back to the batch. The fast path assumes nobody
// touched the batch since our decrement; otherwise it re-reads and retries.
func (e *Engine) restore(ctx context.Context, line domain.PlanLine) error {
	err := e.repo.CompareAndSwapQuantity(ctx, domain.QuantitySwap{
		BatchID:  line.BatchID,
		Expected: line.QuantityAfter(),
		Next:     line.QuantityBefore,
	})
	if err == nil || !errors.Is(err, domain.ErrConflict) {
		return err
	}

	for attempt := 0; attempt < maxRestoreAttempts; attempt++ {
		b, err := e.repo.GetBatch(ctx, line.BatchID)
		if err != nil {
			return fmt.Errorf("read batch for restore: %w", err)
		}
		err = e.repo.CompareAndSwapQuantity(ctx, domain.QuantitySwap{
			BatchID:  line.BatchID,
			Expected: b.Quantity,
			Next:     b.Quantity + line.Units,
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}

	return fmt.Errorf("restore batch %s: gave up after %d attempts", line.BatchID, maxRestoreAttempts)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.OutcomeInsufficientStock
	case errors.Is(err, domain.ErrInvalidRequest):
		return metrics.OutcomeInvalidRequest
	case errors.Is(err, domain.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, domain.ErrAlreadyApplied):
		return metrics.OutcomeAlreadyApplied
	default:
		return metrics.OutcomeError
	}
}
