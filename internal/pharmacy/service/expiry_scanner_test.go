package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/metrics"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

func newScanner(f *fixture, m *metrics.AllocationMetrics) *service.ExpiryScanner {
	return service.NewExpiryScanner(f.store, f.alerts, events.NewWithTransport(f.published, logger.Nop()),
		m, 30, func() time.Time { return now }, logger.Nop())
}

func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func seedExpiring(t *testing.T, f *fixture) {
	t.Helper()
	f.seed(t,
		domain.Batch{ID: "expired", Quantity: 4, ExpiryDate: date(2024, 12, 20)},
		domain.Batch{ID: "imminent", Quantity: 3, ExpiryDate: date(2025, 1, 6)},
		domain.Batch{ID: "soon", WarehouseID: "north", Quantity: 2, Zone: domain.ZoneQuarantine, ExpiryDate: date(2025, 1, 25)},
		domain.Batch{ID: "fine", Quantity: 9, ExpiryDate: date(2025, 8, 1)},
		domain.Batch{ID: "rejected", Quantity: 5, Zone: domain.ZoneRejected, ExpiryDate: date(2024, 12, 1)},
		domain.Batch{ID: "empty", Quantity: 0, OriginalQuantity: 5, ExpiryDate: date(2024, 12, 1)},
	)
}

func TestExpiryScanner_ScanAll(t *testing.T) {
	f := newFixture(t, service.Options{})
	seedExpiring(t, f)
	reg := prometheus.NewRegistry()
	scanner := newScanner(f, metrics.NewAllocationMetrics(reg))

	res, err := scanner.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Warehouses)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 3, res.Created)

	byBatch := map[string]repository.ExpiryAlert{}
	for _, a := range f.alerts.rows {
		byBatch[a.BatchID] = a
	}
	require.Len(t, byBatch, 3)

	assert.Equal(t, repository.AlertExpired, byBatch["expired"].AlertType)
	assert.Equal(t, repository.SeverityCritical, byBatch["expired"].Severity)
	assert.Equal(t, -13, byBatch["expired"].DaysRemaining)

	assert.Equal(t, repository.AlertExpiryWarning, byBatch["imminent"].AlertType)
	assert.Equal(t, repository.SeverityWarning, byBatch["imminent"].Severity)
	assert.Equal(t, 4, byBatch["imminent"].DaysRemaining)
	assert.Contains(t, byBatch["imminent"].Message, "expires in 4 day(s)")

	assert.Equal(t, "north", byBatch["soon"].WarehouseID)

	assert.Len(t, f.published.Events(), 3)
	f.published.AssertEventPublished(t, messaging.EventBatchExpiring)
	assert.Equal(t, 3.0, counterTotal(t, reg, "pharmacy_expiry_alerts_total"))
}

func TestExpiryScanner_Deduplicates(t *testing.T) {
	f := newFixture(t, service.Options{})
	seedExpiring(t, f)
	scanner := newScanner(f, nil)

	_, err := scanner.ScanAll(context.Background())
	require.NoError(t, err)
	f.published.Reset()

	res, err := scanner.ScanWarehouse(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 0, res.Created)
	f.published.AssertNoEventsPublished(t)

	ack, err := f.svc.AcknowledgeAlert(pharmacist(context.Background()), "alert-imminent-expiry_warning")
	require.NoError(t, err)
	assert.True(t, ack.IsAcknowledged)
	assert.Equal(t, "pharmacist-7", *ack.AcknowledgedBy)

	res, err = scanner.ScanWarehouse(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
}

func TestExpiryScanner_StoreErrorsSkipBatch(t *testing.T) {
	f := newFixture(t, service.Options{})
	seedExpiring(t, f)
	f.alerts.failOpen = true

	res, err := newScanner(f, nil).ScanWarehouse(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 0, res.Created)
}

type fakePurger struct {
	cutoff time.Time
	calls  int
}

func (p *fakePurger) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	p.calls++
	return 2, nil
}

func TestExpiryScheduler_RunCycle(t *testing.T) {
	f := newFixture(t, service.Options{})
	seedExpiring(t, f)
	purger := &fakePurger{}

	sched := service.NewExpiryScheduler(newScanner(f, nil), f.alerts, purger, service.SchedulerOptions{
		Interval:       time.Hour,
		AlertRetention: 90 * 24 * time.Hour,
		LedgerTTL:      72 * time.Hour,
	}, logger.Nop())

	sched.RunCycle(context.Background())

	assert.Len(t, f.alerts.rows, 3)
	assert.Equal(t, 90*24*time.Hour, f.alerts.deleted)
	assert.Equal(t, 1, purger.calls)
	assert.WithinDuration(t, time.Now().Add(-72*time.Hour), purger.cutoff, time.Minute)
}

func TestExpiryScheduler_StartStop(t *testing.T) {
	f := newFixture(t, service.Options{})
	seedExpiring(t, f)

	sched := service.NewExpiryScheduler(newScanner(f, nil), f.alerts, nil, service.SchedulerOptions{
		Interval: time.Hour,
	}, logger.Nop())
	sched.Start(context.Background())

	require.Eventually(t, func() bool {
		alerts, _, _ := f.svc.ListAlerts(context.Background(), repository.AlertFilter{})
		return len(alerts) == 3
	}, 2*time.Second, 10*time.Millisecond)

	sched.Stop()
}

func TestLostSalesReport(t *testing.T) {
	f := newFixture(t, service.Options{})
	f.lostSales.summaries = []repository.LostSaleSummary{
		{ProductID: "amoxicillin-500", TotalRequests: 3, TotalQuantityRequested: 7},
		{ProductID: "ibuprofen-400", TotalRequests: 1, TotalQuantityRequested: 10},
	}

	report, err := f.svc.LostSalesReport(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, 11, report[0].SuggestedReorder)
	assert.Equal(t, 15, report[1].SuggestedReorder)

	_, err = f.svc.LostSalesReport(context.Background(), date(2025, 2, 1), date(2025, 1, 1))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSuggestedReorder(t *testing.T) {
	for total, want := range map[int]int{0: 0, 1: 2, 2: 3, 7: 11, 10: 15} {
		assert.Equal(t, want, service.SuggestedReorder(total), "total %d", total)
	}
}

func TestExpiryReport(t *testing.T) {
	f := newFixture(t, service.Options{})
	seedExpiring(t, f)

	entries, err := f.svc.ExpiryReport(context.Background(), "", 7)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "expired", entries[0].ID)
	assert.Equal(t, domain.ExpiryExpired, entries[0].Classification.Status)
	assert.Equal(t, "imminent", entries[1].ID)
	assert.Equal(t, domain.ExpiryExpiringImminently, entries[1].Classification.Status)

	_, err = f.svc.ExpiryReport(context.Background(), "", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
