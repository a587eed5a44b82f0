package handler

import (
	"net/http"
	"strconv"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
)

// writeError maps domain failures onto API errors. AppErrors pass through
// untouched and anything unrecognised becomes a 500.
func writeError(w http.ResponseWriter, err error) {
	httputil.Error(w, toAppError(err))
}

func toAppError(err error) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		insufficient *domain.InsufficientStockError
		conflict     *domain.ConflictError
		transition   *domain.ZoneTransitionError
		validation   *domain.ValidationError
	)
	switch {
	case errors.As(err, &insufficient):
		return errors.Wrap(err, "INSUFFICIENT_STOCK", err.Error(), http.StatusConflict).
			WithDetails(map[string]string{
				"available": strconv.Itoa(insufficient.Available),
				"requested": strconv.Itoa(insufficient.Requested),
			})
	case errors.As(err, &conflict):
		return errors.Wrap(err, "CONFLICT", "stock changed while the request was applied, retry", http.StatusConflict).
			WithDetails(map[string]string{"batch_id": conflict.BatchID})
	case errors.As(err, &transition):
		details := map[string]string{"from": string(transition.From), "to": string(transition.To)}
		if transition.BatchID != "" {
			details["batch_id"] = transition.BatchID
		}
		return errors.Unprocessable("ILLEGAL_TRANSITION", err.Error()).WithDetails(details)
	case errors.As(err, &validation):
		return errors.Unprocessable(validationCode(validation.Code), validation.Message).
			WithDetails(map[string]string{validation.Field: validation.Message})
	case errors.Is(err, domain.ErrBatchNotFound):
		return errors.NotFound("batch")
	case errors.Is(err, domain.ErrInvalidRequest):
		return errors.Wrap(err, "INVALID_REQUEST", err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrAlreadyApplied):
		return errors.Wrap(err, "ALREADY_APPLIED", err.Error(), http.StatusConflict)
	}
	return err
}

func validationCode(code string) string {
	switch code {
	case domain.CodeInvalidDateRange:
		return "INVALID_DATE_RANGE"
	case domain.CodeInvalidInspection:
		return "INVALID_INSPECTION"
	default:
		return "INVALID_QUANTITY"
	}
}
