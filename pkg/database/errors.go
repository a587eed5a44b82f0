package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	apperrors "github.com/medflow/pharmacy-backend/pkg/errors"
)

// PostgreSQL error codes the repositories care about.
const (
	CodeCheckViolation      = "23514"
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
	CodeInvalidText         = "22P02"
)

// PQCode returns the SQLSTATE of a lib/pq error, or "" for anything else.
func PQCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *apperrors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case CodeCheckViolation:
		return mapCheckConstraint(pqErr)

	case CodeUniqueViolation:
		return apperrors.Conflict(formatConstraintMessage(pqErr))

	case CodeForeignKeyViolation:
		return apperrors.BadRequest("referenced record does not exist")

	case CodeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return apperrors.Validation(map[string]string{
			col: "must not be empty",
		})

	case CodeInvalidText:
		return apperrors.BadRequest("malformed identifier")

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *apperrors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_range"):
		return apperrors.Validation(map[string]string{
			"quantity": "must be between 0 and the original quantity",
		})

	case strings.Contains(constraint, "original_quantity_positive"):
		return apperrors.Validation(map[string]string{
			"original_quantity": "must be at least 1",
		})

	case strings.Contains(constraint, "dates_ordered"):
		return apperrors.Validation(map[string]string{
			"manufacturing_date": "must not be after expiry date",
		})

	case strings.Contains(constraint, "zone_valid"):
		return apperrors.Validation(map[string]string{
			"zone": "must be one of: available, quarantine, approved, rejected, damaged",
		})

	default:
		return apperrors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "lot"):
		return "a batch with this lot number already exists for the product"
	case strings.Contains(constraint, "request"):
		return "this request has already been recorded"
	default:
		return "a record with these values already exists"
	}
}
