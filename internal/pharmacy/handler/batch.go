package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.InventoryService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Receive books a delivered lot into stock
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req service.ReceiveBatchInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.ReceiveBatch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.Created(w, batch)
}

// List lists a product's batches in dispensing order
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	batches, err := h.service.ListBatches(r.Context(), q.Get("product_id"), q.Get("warehouse_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Get gets a batch by ID
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// Transition moves a batch to another storage zone
func (h *BatchHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req service.TransitionInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	req.BatchID = chi.URLParam(r, "id")

	batch, err := h.service.TransitionZone(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// CorrectionRequest is the body of a stock correction
type CorrectionRequest struct {
	Delta  int    `json:"delta" validate:"ne=0"`
	Reason string `json:"reason" validate:"required"`
}

// Correct applies a manual stock correction
func (h *BatchHandler) Correct(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.CorrectQuantity(r.Context(), chi.URLParam(r, "id"), req.Delta, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// BatchHistory is a batch's audit trail
type BatchHistory struct {
	Movements   []repository.StockMovement        `json:"movements"`
	Inspections []repository.QuarantineInspection `json:"inspections"`
}

// History returns the movements and inspections of a batch
func (h *BatchHandler) History(w http.ResponseWriter, r *http.Request) {
	movements, inspections, err := h.service.BatchHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, BatchHistory{Movements: movements, Inspections: inspections})
}

// Summary reports the stock position of a product
func (h *BatchHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.StockSummary(r.Context(), chi.URLParam(r, "productID"), r.URL.Query().Get("warehouse_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}
