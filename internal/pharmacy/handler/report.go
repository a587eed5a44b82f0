package handler

import (
	"net/http"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// ReportHandler handles reporting endpoints
type ReportHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.InventoryService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		logger:  log,
	}
}

// LostSales summarises unmet requests per product
func (h *ReportHandler) LostSales(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.service.LostSalesReport(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// Expiry lists stock expiring within the requested number of days
func (h *ReportHandler) Expiry(w http.ResponseWriter, r *http.Request) {
	days, err := httputil.QueryInt(r, "within_days", 30)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	entries, err := h.service.ExpiryReport(r.Context(), r.URL.Query().Get("warehouse_id"), days)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

// queryDate accepts a calendar date or an RFC 3339 timestamp
func queryDate(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.BadRequest(key + " must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	return t, nil
}
