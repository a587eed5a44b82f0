package repository

import (
	"context"
	"time"

	"github.com/medflow/pharmacy-backend/pkg/database"
)

// AppliedRequestRepository is the PostgreSQL idempotency ledger for commits
type AppliedRequestRepository struct {
	db *database.DB
}

// NewAppliedRequestRepository creates a new ledger
func NewAppliedRequestRepository(db *database.DB) *AppliedRequestRepository {
	return &AppliedRequestRepository{db: db}
}

// HasApplied reports whether the request id is recorded
func (r *AppliedRequestRepository) HasApplied(ctx context.Context, requestID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM applied_requests WHERE request_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, requestID); err != nil {
		return false, err
	}
	return exists, nil
}

// RecordApplied inserts the request id and reports whether this call inserted it
func (r *AppliedRequestRepository) RecordApplied(ctx context.Context, requestID string) (bool, error) {
	query := `
		INSERT INTO applied_requests (request_id, applied_at)
		VALUES ($1, NOW())
		ON CONFLICT (request_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, requestID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Forget removes the request id so the request can be retried
func (r *AppliedRequestRepository) Forget(ctx context.Context, requestID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM applied_requests WHERE request_id = $1`, requestID)
	return err
}

// PurgeBefore deletes entries older than cutoff and returns how many went
func (r *AppliedRequestRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM applied_requests WHERE applied_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
