package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// AlertHandler handles expiry alert endpoints
type AlertHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc *service.InventoryService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service: svc,
		logger:  log,
	}
}

// List lists alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := httputil.QueryInt(r, "page", 1)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if page < 1 {
		page = 1
	}
	perPage, err := httputil.QueryInt(r, "per_page", 50)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	filter := repository.AlertFilter{
		AlertType:   q.Get("type"),
		WarehouseID: q.Get("warehouse_id"),
		Page:        page,
		PerPage:     perPage,
	}
	if ack := q.Get("acknowledged"); ack != "" {
		a, err := strconv.ParseBool(ack)
		if err != nil {
			httputil.Error(w, errors.BadRequest("acknowledged must be true or false"))
			return
		}
		filter.Acknowledged = &a
	}

	alerts, total, err := h.service.ListAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, httputil.NewMeta(page, perPage, total))
}

// Acknowledge acknowledges an alert on behalf of the acting user
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	alert, err := h.service.AcknowledgeAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}
