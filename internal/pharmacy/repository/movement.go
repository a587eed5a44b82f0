package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/pharmacy-backend/pkg/database"
)

// Movement types
const (
	MovementIntake     = "intake"
	MovementAllocation = "allocation"
	MovementCorrection = "correction"
	MovementZoneChange = "zone_change"
)

// StockMovement is one audit row for a change to a batch
type StockMovement struct {
	ID             string    `db:"id" json:"id"`
	BatchID        string    `db:"batch_id" json:"batch_id"`
	ProductID      string    `db:"product_id" json:"product_id"`
	WarehouseID    string    `db:"warehouse_id" json:"warehouse_id"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	QuantityDelta  int       `db:"quantity_delta" json:"quantity_delta"`
	QuantityBefore int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int       `db:"quantity_after" json:"quantity_after"`
	ZoneBefore     *string   `db:"zone_before" json:"zone_before,omitempty"`
	ZoneAfter      *string   `db:"zone_after" json:"zone_after,omitempty"`
	RequestID      *string   `db:"request_id" json:"request_id,omitempty"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	PerformedBy    string    `db:"performed_by" json:"performed_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MovementRepository handles stock movement persistence
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Record inserts movements in one transaction
func (r *MovementRepository) Record(ctx context.Context, movements []StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	query := `
		INSERT INTO stock_movements (
			id, batch_id, product_id, warehouse_id, movement_type, quantity_delta,
			quantity_before, quantity_after, zone_before, zone_after, request_id,
			reason, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for i := range movements {
			m := &movements[i]
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			if err := tx.QueryRowxContext(ctx, query,
				m.ID, m.BatchID, m.ProductID, m.WarehouseID, m.MovementType, m.QuantityDelta,
				m.QuantityBefore, m.QuantityAfter, m.ZoneBefore, m.ZoneAfter, m.RequestID,
				m.Reason, m.PerformedBy,
			).Scan(&m.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByBatch returns the movements of a batch, newest first
func (r *MovementRepository) ListByBatch(ctx context.Context, batchID string) ([]StockMovement, error) {
	movements := []StockMovement{}
	query := `SELECT * FROM stock_movements WHERE batch_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &movements, query, batchID); err != nil {
		return nil, err
	}
	return movements, nil
}

// ListByRequest returns the allocation movements written for a request
func (r *MovementRepository) ListByRequest(ctx context.Context, requestID string) ([]StockMovement, error) {
	movements := []StockMovement{}
	query := `SELECT * FROM stock_movements WHERE request_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &movements, query, requestID); err != nil {
		return nil, err
	}
	return movements, nil
}
