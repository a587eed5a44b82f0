package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/engine"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	apperrors "github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/testutil"
)

var now = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeMovements struct {
	mu   sync.Mutex
	rows []repository.StockMovement
	err  error
}

func (f *fakeMovements) Record(_ context.Context, movements []repository.StockMovement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, movements...)
	return nil
}

func (f *fakeMovements) ListByBatch(_ context.Context, batchID string) ([]repository.StockMovement, error) {
	return f.where(func(m repository.StockMovement) bool { return m.BatchID == batchID }), nil
}

func (f *fakeMovements) ListByRequest(_ context.Context, requestID string) ([]repository.StockMovement, error) {
	return f.where(func(m repository.StockMovement) bool {
		return m.RequestID != nil && *m.RequestID == requestID
	}), nil
}

func (f *fakeMovements) where(keep func(repository.StockMovement) bool) []repository.StockMovement {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []repository.StockMovement{}
	for _, m := range f.rows {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMovements) ofType(movementType string) []repository.StockMovement {
	return f.where(func(m repository.StockMovement) bool { return m.MovementType == movementType })
}

type fakeInspections struct {
	rows []repository.QuarantineInspection
}

func (f *fakeInspections) Create(_ context.Context, insp *repository.QuarantineInspection) error {
	insp.InspectedAt = now
	f.rows = append(f.rows, *insp)
	return nil
}

func (f *fakeInspections) ListByBatch(_ context.Context, batchID string) ([]repository.QuarantineInspection, error) {
	out := []repository.QuarantineInspection{}
	for _, i := range f.rows {
		if i.BatchID == batchID {
			out = append(out, i)
		}
	}
	return out, nil
}

type fakeLostSales struct {
	mu        sync.Mutex
	rows      []repository.LostSale
	summaries []repository.LostSaleSummary
}

func (f *fakeLostSales) Create(_ context.Context, sale *repository.LostSale) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *sale)
	return nil
}

func (f *fakeLostSales) Summarize(context.Context, time.Time, time.Time) ([]repository.LostSaleSummary, error) {
	out := make([]repository.LostSaleSummary, len(f.summaries))
	copy(out, f.summaries)
	return out, nil
}

type fakeAlerts struct {
	mu       sync.Mutex
	rows     []repository.ExpiryAlert
	deleted  time.Duration
	failOpen bool
}

func (f *fakeAlerts) Create(_ context.Context, alert *repository.ExpiryAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert.ID = "alert-" + alert.BatchID + "-" + alert.AlertType
	alert.CreatedAt = now
	f.rows = append(f.rows, *alert)
	return nil
}

func (f *fakeAlerts) GetByID(_ context.Context, id string) (*repository.ExpiryAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			a := f.rows[i]
			return &a, nil
		}
	}
	return nil, apperrors.NotFound("alert")
}

func (f *fakeAlerts) ExistsOpen(_ context.Context, alertType, batchID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpen {
		return false, errors.New("connection refused")
	}
	for _, a := range f.rows {
		if a.AlertType == alertType && a.BatchID == batchID && !a.IsAcknowledged {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAlerts) List(context.Context, repository.AlertFilter) ([]repository.ExpiryAlert, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repository.ExpiryAlert, len(f.rows))
	copy(out, f.rows)
	return out, int64(len(out)), nil
}

func (f *fakeAlerts) Acknowledge(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].IsAcknowledged = true
			f.rows[i].AcknowledgedBy = &userID
			return nil
		}
	}
	return apperrors.NotFound("alert")
}

func (f *fakeAlerts) DeleteOld(_ context.Context, olderThan time.Duration) (int64, error) {
	f.deleted = olderThan
	return 0, nil
}

type fixture struct {
	store       *repository.MemoryStore
	movements   *fakeMovements
	inspections *fakeInspections
	lostSales   *fakeLostSales
	alerts      *fakeAlerts
	published   *testutil.MockPublisher
	svc         *service.InventoryService
}

func newFixture(t *testing.T, opts service.Options) *fixture {
	t.Helper()
	f := &fixture{
		store:       repository.NewMemoryStore(),
		movements:   &fakeMovements{},
		inspections: &fakeInspections{},
		lostSales:   &fakeLostSales{},
		alerts:      &fakeAlerts{},
		published:   testutil.NewMockPublisher(),
	}
	eng := engine.New(f.store, f.store, engine.Config{
		Policy: domain.DefaultEligibilityPolicy(),
		Clock:  func() time.Time { return now },
	}, nil, logger.Nop())

	f.svc = service.NewInventoryService(service.Stores{
		Batches:     f.store,
		Movements:   f.movements,
		Inspections: f.inspections,
		LostSales:   f.lostSales,
		Alerts:      f.alerts,
	}, eng, events.NewWithTransport(f.published, logger.Nop()), nil, opts, logger.Nop())
	return f
}

func (f *fixture) seed(t *testing.T, batches ...domain.Batch) {
	t.Helper()
	for i := range batches {
		b := batches[i]
		if b.OriginalQuantity == 0 {
			b.OriginalQuantity = b.Quantity
		}
		if b.Zone == "" {
			b.Zone = domain.ZoneAvailable
		}
		if b.ProductID == "" {
			b.ProductID = "amoxicillin-500"
		}
		if b.WarehouseID == "" {
			b.WarehouseID = "main"
		}
		if b.LotNumber == "" {
			b.LotNumber = "LOT-" + b.ID
		}
		if b.ReceivedAt.IsZero() {
			b.ReceivedAt = date(2024, 9, 1)
		}
		require.NoError(t, f.store.Create(context.Background(), &b))
	}
}

func (f *fixture) quantity(t *testing.T, id string) int {
	t.Helper()
	b, err := f.store.GetBatch(context.Background(), id)
	require.NoError(t, err)
	return b.Quantity
}

func (f *fixture) zone(t *testing.T, id string) domain.Zone {
	t.Helper()
	b, err := f.store.GetBatch(context.Background(), id)
	require.NoError(t, err)
	return b.Zone
}
