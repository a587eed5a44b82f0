// Package handler exposes the pharmacy inventory service over HTTP.
package handler

import (
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

var registerOnce sync.Once

// RegisterValidations adds the validator tags used by request bodies.
func RegisterValidations() {
	registerOnce.Do(func() {
		err := httputil.RegisterCustomValidation("zone", func(fl validator.FieldLevel) bool {
			return domain.Zone(fl.Field().String()).IsValid()
		})
		if err != nil {
			panic(err)
		}
	})
}

// Mount registers the pharmacy routes under /api/v1/pharmacy.
func Mount(r chi.Router, svc *service.InventoryService, log *logger.Logger) {
	RegisterValidations()

	batchHandler := NewBatchHandler(svc, log)
	allocationHandler := NewAllocationHandler(svc, log)
	alertHandler := NewAlertHandler(svc, log)
	reportHandler := NewReportHandler(svc, log)

	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batchHandler.List)
			r.Post("/", batchHandler.Receive)
			r.Get("/{id}", batchHandler.Get)
			r.Get("/{id}/history", batchHandler.History)
			r.Post("/{id}/transition", batchHandler.Transition)
			r.Post("/{id}/corrections", batchHandler.Correct)
		})

		r.Get("/products/{productID}/stock", batchHandler.Summary)

		r.Post("/allocate", allocationHandler.Allocate)
		r.Post("/commit", allocationHandler.Commit)
		r.Post("/dispense", allocationHandler.Dispense)
		r.Get("/allocations/{requestID}/movements", allocationHandler.Movements)

		r.Get("/alerts", alertHandler.List)
		r.Put("/alerts/{id}/acknowledge", alertHandler.Acknowledge)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/lost-sales", reportHandler.LostSales)
			r.Get("/expiry", reportHandler.Expiry)
		})
	})
}
