package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/engine"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/handler"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/testutil"
)

var clock = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type movementLog struct {
	mu   sync.Mutex
	rows []repository.StockMovement
}

func (m *movementLog) Record(_ context.Context, rows []repository.StockMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *movementLog) ListByBatch(_ context.Context, batchID string) ([]repository.StockMovement, error) {
	return m.where(func(r repository.StockMovement) bool { return r.BatchID == batchID }), nil
}

func (m *movementLog) ListByRequest(_ context.Context, requestID string) ([]repository.StockMovement, error) {
	return m.where(func(r repository.StockMovement) bool { return r.RequestID != nil && *r.RequestID == requestID }), nil
}

func (m *movementLog) where(keep func(repository.StockMovement) bool) []repository.StockMovement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []repository.StockMovement{}
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

type inspectionLog struct{ rows []repository.QuarantineInspection }

func (l *inspectionLog) Create(_ context.Context, insp *repository.QuarantineInspection) error {
	l.rows = append(l.rows, *insp)
	return nil
}

func (l *inspectionLog) ListByBatch(_ context.Context, batchID string) ([]repository.QuarantineInspection, error) {
	out := []repository.QuarantineInspection{}
	for _, i := range l.rows {
		if i.BatchID == batchID {
			out = append(out, i)
		}
	}
	return out, nil
}

type lostSaleLog struct{ rows []repository.LostSale }

func (l *lostSaleLog) Create(_ context.Context, sale *repository.LostSale) error {
	l.rows = append(l.rows, *sale)
	return nil
}

func (l *lostSaleLog) Summarize(context.Context, time.Time, time.Time) ([]repository.LostSaleSummary, error) {
	totals := map[string]*repository.LostSaleSummary{}
	out := []repository.LostSaleSummary{}
	for _, s := range l.rows {
		if totals[s.ProductID] == nil {
			totals[s.ProductID] = &repository.LostSaleSummary{ProductID: s.ProductID}
		}
		totals[s.ProductID].TotalRequests++
		totals[s.ProductID].TotalQuantityRequested += s.RequestedQuantity
	}
	for _, t := range totals {
		out = append(out, *t)
	}
	return out, nil
}

type alertBoard struct {
	rows []repository.ExpiryAlert
}

func (b *alertBoard) Create(_ context.Context, a *repository.ExpiryAlert) error {
	b.rows = append(b.rows, *a)
	return nil
}

func (b *alertBoard) GetByID(_ context.Context, id string) (*repository.ExpiryAlert, error) {
	for i := range b.rows {
		if b.rows[i].ID == id {
			a := b.rows[i]
			return &a, nil
		}
	}
	return nil, errors.NotFound("alert")
}

func (b *alertBoard) ExistsOpen(context.Context, string, string) (bool, error) { return false, nil }

func (b *alertBoard) List(_ context.Context, f repository.AlertFilter) ([]repository.ExpiryAlert, int64, error) {
	out := []repository.ExpiryAlert{}
	for _, a := range b.rows {
		if f.Acknowledged != nil && a.IsAcknowledged != *f.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

func (b *alertBoard) Acknowledge(_ context.Context, id, userID string) error {
	for i := range b.rows {
		if b.rows[i].ID == id {
			b.rows[i].IsAcknowledged = true
			b.rows[i].AcknowledgedBy = &userID
			return nil
		}
	}
	return errors.NotFound("alert")
}

func (b *alertBoard) DeleteOld(context.Context, time.Duration) (int64, error) { return 0, nil }

type testServer struct {
	store     *repository.MemoryStore
	movements *movementLog
	lostSales *lostSaleLog
	alerts    *alertBoard
	published *testutil.MockPublisher
	router    http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		store:     repository.NewMemoryStore(),
		movements: &movementLog{},
		lostSales: &lostSaleLog{},
		alerts:    &alertBoard{},
		published: testutil.NewMockPublisher(),
	}
	eng := engine.New(ts.store, ts.store, engine.Config{
		Policy: domain.DefaultEligibilityPolicy(),
		Clock:  func() time.Time { return clock },
	}, nil, logger.Nop())
	svc := service.NewInventoryService(service.Stores{
		Batches:     ts.store,
		Movements:   ts.movements,
		Inspections: &inspectionLog{},
		LostSales:   ts.lostSales,
		Alerts:      ts.alerts,
	}, eng, events.NewWithTransport(ts.published, logger.Nop()), nil, service.Options{CommitRetryBudget: 2}, logger.Nop())

	r := chi.NewRouter()
	r.Use(httputil.RequestID)
	r.Use(httputil.Actor)
	handler.Mount(r, svc, logger.Nop())
	ts.router = r
	return ts
}

func (ts *testServer) seed(t *testing.T, b domain.Batch) {
	t.Helper()
	if b.ProductID == "" {
		b.ProductID = "amoxicillin-500"
	}
	if b.WarehouseID == "" {
		b.WarehouseID = "main"
	}
	if b.LotNumber == "" {
		b.LotNumber = "LOT-" + b.ID
	}
	if b.Zone == "" {
		b.Zone = domain.ZoneAvailable
	}
	if b.OriginalQuantity == 0 {
		b.OriginalQuantity = b.Quantity
	}
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = clock.AddDate(0, -3, 0)
	}
	if b.ExpiryDate.IsZero() {
		b.ExpiryDate = clock.AddDate(1, 0, 0)
	}
	require.NoError(t, ts.store.Create(context.Background(), &b))
}

func (ts *testServer) do(method, path string, body interface{}) *envelope {
	req := testutil.WithUserHeaders(testutil.NewHTTPRequest(method, path, body), "pharmacist-7", "rx@example.org")
	rr := testutil.ExecuteRequest(ts.router, req)
	env := &envelope{Status: rr.Code}
	_ = json.Unmarshal(rr.Body.Bytes(), env)
	env.raw = rr.Body.String()
	return env
}

type envelope struct {
	Status  int                 `json:"-"`
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *httputil.ErrorBody `json:"error"`
	Meta    *httputil.Meta      `json:"meta"`
	raw     string
}

func (e *envelope) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v), e.raw)
}

func (e *envelope) requireError(t *testing.T, status int, code string) {
	t.Helper()
	require.Equal(t, status, e.Status, e.raw)
	require.NotNil(t, e.Error, e.raw)
	assert.Equal(t, code, e.Error.Code)
}
