package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// AllocationHandler handles allocation and dispensing endpoints
type AllocationHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.InventoryService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

// AllocationRequest asks for units of a product
type AllocationRequest struct {
	RequestID   string    `json:"request_id,omitempty" validate:"omitempty,max=100"`
	ProductID   string    `json:"product_id" validate:"required"`
	WarehouseID string    `json:"warehouse_id,omitempty"`
	Quantity    int       `json:"quantity" validate:"gt=0"`
	AsOf        time.Time `json:"as_of,omitempty"`
}

func (req AllocationRequest) toDomain() domain.AllocationRequest {
	return domain.AllocationRequest{
		RequestID:   req.RequestID,
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		AsOf:        req.AsOf,
	}
}

// CommitRequest carries a plan returned by Allocate. RequestID is optional
// and must match the plan when given.
type CommitRequest struct {
	Plan      *domain.AllocationPlan `json:"plan" validate:"required"`
	RequestID string                 `json:"request_id,omitempty"`
}

// CommitResponse reports how a commit was applied
type CommitResponse struct {
	RequestID string               `json:"request_id"`
	Status    service.CommitStatus `json:"status"`
}

func (h *AllocationHandler) decode(w http.ResponseWriter, r *http.Request) (domain.AllocationRequest, bool) {
	var req AllocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return domain.AllocationRequest{}, false
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return domain.AllocationRequest{}, false
	}
	return req.toDomain(), true
}

// Allocate plans a request without touching stock
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	plan, err := h.service.Allocate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, plan)
}

// Commit applies a plan returned by Allocate
func (h *AllocationHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	plan := req.Plan
	if req.RequestID != "" && req.RequestID != plan.RequestID {
		httputil.Error(w, errors.BadRequest("request_id does not match the plan"))
		return
	}

	status, err := h.service.Commit(r.Context(), plan)
	if err != nil {
		h.logger.WithRequestID(plan.RequestID).Warn().Err(err).Msg("commit failed")
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, CommitResponse{RequestID: plan.RequestID, Status: status})
}

// Dispense allocates and commits in one call
func (h *AllocationHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.service.Dispense(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Movements lists the stock movements written for a request
func (h *AllocationHandler) Movements(w http.ResponseWriter, r *http.Request) {
	movements, err := h.service.AllocationMovements(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, movements)
}
