package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/handler"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

func TestBatchHandler_Receive(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
		wantCode   string
		wantZone   domain.Zone
	}{
		{
			name: "defaults to quarantine",
			body: map[string]interface{}{
				"product_id": "amoxicillin-500", "warehouse_id": "main", "lot_number": "A1",
				"quantity": 40, "expiry_date": "2026-03-31T00:00:00Z",
			},
			wantStatus: http.StatusCreated,
			wantZone:   domain.ZoneQuarantine,
		},
		{
			name: "straight to available",
			body: map[string]interface{}{
				"product_id": "amoxicillin-500", "warehouse_id": "main", "lot_number": "A2",
				"quantity": 10, "zone": "available", "expiry_date": "2026-03-31T00:00:00Z",
			},
			wantStatus: http.StatusCreated,
			wantZone:   domain.ZoneAvailable,
		},
		{
			name: "unknown zone",
			body: map[string]interface{}{
				"product_id": "amoxicillin-500", "warehouse_id": "main", "lot_number": "A3",
				"quantity": 10, "zone": "freezer", "expiry_date": "2026-03-31T00:00:00Z",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "terminal zone",
			body: map[string]interface{}{
				"product_id": "amoxicillin-500", "warehouse_id": "main", "lot_number": "A4",
				"quantity": 10, "zone": "damaged", "expiry_date": "2026-03-31T00:00:00Z",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "zero quantity",
			body: map[string]interface{}{
				"product_id": "amoxicillin-500", "warehouse_id": "main", "lot_number": "A5",
				"quantity": 0, "expiry_date": "2026-03-31T00:00:00Z",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "expires before manufacture",
			body: map[string]interface{}{
				"product_id": "amoxicillin-500", "warehouse_id": "main", "lot_number": "A6",
				"quantity": 5, "manufacturing_date": "2026-01-01T00:00:00Z", "expiry_date": "2025-06-30T00:00:00Z",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_DATE_RANGE",
		},
		{
			name:       "unknown field",
			body:       map[string]interface{}{"product": "amoxicillin-500"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			res := ts.do(http.MethodPost, "/api/v1/pharmacy/batches", tt.body)

			if tt.wantCode != "" {
				res.requireError(t, tt.wantStatus, tt.wantCode)
				ts.published.AssertNoEventsPublished(t)
				return
			}
			require.Equal(t, tt.wantStatus, res.Status, res.raw)
			var batch domain.Batch
			res.decode(t, &batch)
			assert.NotEmpty(t, batch.ID)
			assert.Equal(t, tt.wantZone, batch.Zone)
			assert.Equal(t, batch.Quantity, batch.OriginalQuantity)
			ts.published.AssertEventPublished(t, messaging.EventBatchReceived)
		})
	}
}

func TestBatchHandler_ReceiveDuplicateLot(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, domain.Batch{ID: "b1", LotNumber: "A1", Quantity: 5})

	res := ts.do(http.MethodPost, "/api/v1/pharmacy/batches", map[string]interface{}{
		"product_id": "amoxicillin-500", "warehouse_id": "main", "lot_number": "A1",
		"quantity": 40, "expiry_date": "2026-03-31T00:00:00Z",
	})
	res.requireError(t, http.StatusConflict, "CONFLICT")
}

func TestBatchHandler_ListAndGet(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, domain.Batch{ID: "late", Quantity: 5, ExpiryDate: clock.AddDate(0, 6, 0)})
	ts.seed(t, domain.Batch{ID: "early", Quantity: 5, ExpiryDate: clock.AddDate(0, 2, 0)})
	ts.seed(t, domain.Batch{ID: "north", WarehouseID: "north", Quantity: 5})

	res := ts.do(http.MethodGet, "/api/v1/pharmacy/batches?product_id=amoxicillin-500&warehouse_id=main", nil)
	require.Equal(t, http.StatusOK, res.Status, res.raw)
	var batches []domain.Batch
	res.decode(t, &batches)
	require.Len(t, batches, 2)
	assert.Equal(t, "early", batches[0].ID)
	assert.Equal(t, "late", batches[1].ID)

	ts.do(http.MethodGet, "/api/v1/pharmacy/batches", nil).
		requireError(t, http.StatusBadRequest, "INVALID_REQUEST")

	res = ts.do(http.MethodGet, "/api/v1/pharmacy/batches/north", nil)
	require.Equal(t, http.StatusOK, res.Status, res.raw)

	ts.do(http.MethodGet, "/api/v1/pharmacy/batches/ghost", nil).
		requireError(t, http.StatusNotFound, "NOT_FOUND")
}

func TestBatchHandler_Transition(t *testing.T) {
	passed := map[string]interface{}{
		"seals_intact": true, "temperature_ok": true, "packaging_condition": "good", "expiry_date_ok": true,
	}
	failed := map[string]interface{}{
		"seals_intact": false, "temperature_ok": true, "packaging_condition": "good", "expiry_date_ok": true,
	}

	tests := []struct {
		name       string
		zone       domain.Zone
		body       map[string]interface{}
		wantStatus int
		wantCode   string
		wantZone   domain.Zone
	}{
		{
			name:       "approve after passing inspection",
			zone:       domain.ZoneQuarantine,
			body:       map[string]interface{}{"target_zone": "approved", "inspection": passed},
			wantStatus: http.StatusOK,
			wantZone:   domain.ZoneApproved,
		},
		{
			name:       "approve after failed inspection",
			zone:       domain.ZoneQuarantine,
			body:       map[string]interface{}{"target_zone": "approved", "inspection": failed},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "ILLEGAL_TRANSITION",
			wantZone:   domain.ZoneQuarantine,
		},
		{
			name:       "reject without inspection",
			zone:       domain.ZoneQuarantine,
			body:       map[string]interface{}{"target_zone": "rejected", "reason": "recalled lot"},
			wantStatus: http.StatusOK,
			wantZone:   domain.ZoneRejected,
		},
		{
			name:       "rejected is terminal",
			zone:       domain.ZoneRejected,
			body:       map[string]interface{}{"target_zone": "available"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "ILLEGAL_TRANSITION",
			wantZone:   domain.ZoneRejected,
		},
		{
			name:       "inspection outside quarantine",
			zone:       domain.ZoneAvailable,
			body:       map[string]interface{}{"target_zone": "damaged", "inspection": passed},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_INSPECTION",
			wantZone:   domain.ZoneAvailable,
		},
		{
			name:       "missing target",
			zone:       domain.ZoneAvailable,
			body:       map[string]interface{}{"reason": "shelf move"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
			wantZone:   domain.ZoneAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.seed(t, domain.Batch{ID: "b1", Quantity: 8, Zone: tt.zone})

			res := ts.do(http.MethodPost, "/api/v1/pharmacy/batches/b1/transition", tt.body)
			if tt.wantCode != "" {
				res.requireError(t, tt.wantStatus, tt.wantCode)
			} else {
				require.Equal(t, tt.wantStatus, res.Status, res.raw)
				ts.published.AssertEventPublished(t, messaging.EventBatchZoneChanged)
			}

			b, err := ts.store.GetBatch(context.Background(), "b1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantZone, b.Zone)
		})
	}
}

func TestBatchHandler_Correct(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, domain.Batch{ID: "b1", Quantity: 6, OriginalQuantity: 10})

	res := ts.do(http.MethodPost, "/api/v1/pharmacy/batches/b1/corrections", handler.CorrectionRequest{Delta: -2, Reason: "broken vial"})
	require.Equal(t, http.StatusOK, res.Status, res.raw)
	var b domain.Batch
	res.decode(t, &b)
	assert.Equal(t, 4, b.Quantity)

	ts.do(http.MethodPost, "/api/v1/pharmacy/batches/b1/corrections", handler.CorrectionRequest{Delta: 7, Reason: "recount"}).
		requireError(t, http.StatusUnprocessableEntity, "INVALID_QUANTITY")
	ts.do(http.MethodPost, "/api/v1/pharmacy/batches/b1/corrections", handler.CorrectionRequest{Delta: 0, Reason: "noop"}).
		requireError(t, http.StatusBadRequest, "VALIDATION_ERROR")
	ts.do(http.MethodPost, "/api/v1/pharmacy/batches/b1/corrections", handler.CorrectionRequest{Delta: 1}).
		requireError(t, http.StatusBadRequest, "VALIDATION_ERROR")

	res = ts.do(http.MethodGet, "/api/v1/pharmacy/batches/b1/history", nil)
	require.Equal(t, http.StatusOK, res.Status, res.raw)
	var history handler.BatchHistory
	res.decode(t, &history)
	require.Len(t, history.Movements, 1)
	assert.Equal(t, repository.MovementCorrection, history.Movements[0].MovementType)
	assert.Equal(t, "pharmacist-7", history.Movements[0].PerformedBy)
	assert.Empty(t, history.Inspections)
}

func TestBatchHandler_Summary(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, domain.Batch{ID: "ok", Quantity: 8})
	ts.seed(t, domain.Batch{ID: "q", Quantity: 3, Zone: domain.ZoneQuarantine})
	ts.seed(t, domain.Batch{ID: "old", Quantity: 2, ExpiryDate: clock.AddDate(0, 0, -3)})

	res := ts.do(http.MethodGet, "/api/v1/pharmacy/products/amoxicillin-500/stock", nil)
	require.Equal(t, http.StatusOK, res.Status, res.raw)
	var summary domain.StockSummary
	res.decode(t, &summary)
	assert.Equal(t, 8, summary.Dispensable)
	assert.Equal(t, 3, summary.Quarantined)
	assert.Equal(t, 2, summary.Expired)
	assert.Equal(t, 3, summary.BatchCount)
}
