package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

const batchColumns = `id, product_id, warehouse_id, lot_number, quantity, original_quantity, zone,
	manufacturing_date, expiry_date, location, supplier_id, received_at, created_at, updated_at`

// BatchRepository handles batch persistence in PostgreSQL
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	if err := domain.Validate(*batch); err != nil {
		return err
	}
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO pharmacy_batches (
			id, product_id, warehouse_id, lot_number, quantity, original_quantity, zone,
			manufacturing_date, expiry_date, location, supplier_id, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.ProductID, batch.WarehouseID, batch.LotNumber, batch.Quantity,
		batch.OriginalQuantity, batch.Zone, batch.ManufacturingDate, batch.ExpiryDate,
		batch.Location, batch.SupplierID, batch.ReceivedAt,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetBatch gets a batch by ID
func (r *BatchRepository) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	var batch domain.Batch
	query := `SELECT ` + batchColumns + ` FROM pharmacy_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || database.PQCode(err) == database.CodeInvalidText {
			return nil, domain.ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// ListByProduct lists every batch of a product in FEFO order, depleted ones included
func (r *BatchRepository) ListByProduct(ctx context.Context, productID, warehouseID string) ([]domain.Batch, error) {
	batches := []domain.Batch{}
	query := `
		SELECT ` + batchColumns + ` FROM pharmacy_batches
		WHERE product_id = $1 AND ($2 = '' OR warehouse_id = $2)
		ORDER BY expiry_date, received_at, id
	`
	if err := r.db.SelectContext(ctx, &batches, query, productID, warehouseID); err != nil {
		return nil, err
	}
	return batches, nil
}

// FindEligibleBatches returns dispensable, unexpired batches with stock
func (r *BatchRepository) FindEligibleBatches(ctx context.Context, productID, warehouseID string, asOf time.Time) ([]domain.Batch, error) {
	batches := []domain.Batch{}
	query := `
		SELECT ` + batchColumns + ` FROM pharmacy_batches
		WHERE product_id = $1
		AND ($2 = '' OR warehouse_id = $2)
		AND quantity > 0
		AND zone IN ('available', 'approved')
		AND expiry_date >= $3
		ORDER BY expiry_date, received_at, id
	`
	if err := r.db.SelectContext(ctx, &batches, query, productID, warehouseID, asOf); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListExpiring returns batches with stock in a non-terminal zone expiring on or before until
func (r *BatchRepository) ListExpiring(ctx context.Context, warehouseID string, until time.Time) ([]domain.Batch, error) {
	batches := []domain.Batch{}
	query := `
		SELECT ` + batchColumns + ` FROM pharmacy_batches
		WHERE ($1 = '' OR warehouse_id = $1)
		AND quantity > 0
		AND zone IN ('available', 'approved', 'quarantine')
		AND expiry_date <= $2
		ORDER BY expiry_date, received_at, id
	`
	if err := r.db.SelectContext(ctx, &batches, query, warehouseID, until); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListWarehouses returns the distinct warehouses that hold stock
func (r *BatchRepository) ListWarehouses(ctx context.Context) ([]string, error) {
	warehouses := []string{}
	query := `SELECT DISTINCT warehouse_id FROM pharmacy_batches WHERE quantity > 0 ORDER BY warehouse_id`
	if err := r.db.SelectContext(ctx, &warehouses, query); err != nil {
		return nil, err
	}
	return warehouses, nil
}

// CompareAndSwapQuantity updates the quantity only if it still holds the expected value
func (r *BatchRepository) CompareAndSwapQuantity(ctx context.Context, swap domain.QuantitySwap) error {
	if swap.Next < 0 {
		return &domain.ValidationError{
			Code:    domain.CodeInvalidQuantity,
			Field:   "quantity",
			Message: "quantity must not be negative",
		}
	}

	query := `
		UPDATE pharmacy_batches SET quantity = $3, updated_at = NOW()
		WHERE id = $1 AND quantity = $2
	`
	args := []interface{}{swap.BatchID, swap.Expected, swap.Next}
	if g := swap.Guard; g != nil {
		zones := make([]string, 0, 2)
		for _, z := range g.Zones() {
			zones = append(zones, string(z))
		}
		query += ` AND zone = ANY($4) AND expiry_date >= $5`
		args = append(args, pq.Array(zones), g.AsOf)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.PQCode(err) == database.CodeCheckViolation {
			return &domain.ValidationError{
				Code:    domain.CodeInvalidQuantity,
				Field:   "quantity",
				Message: "quantity must not exceed original quantity",
			}
		}
		return err
	}

	return r.checkSwapped(ctx, result, swap.BatchID)
}

// CompareAndSwapZone updates the zone only if it still holds the expected value
func (r *BatchRepository) CompareAndSwapZone(ctx context.Context, batchID string, expected, next domain.Zone) error {
	query := `
		UPDATE pharmacy_batches SET zone = $3, updated_at = NOW()
		WHERE id = $1 AND zone = $2
	`
	result, err := r.db.ExecContext(ctx, query, batchID, expected, next)
	if err != nil {
		return err
	}

	return r.checkSwapped(ctx, result, batchID)
}

// checkSwapped tells a lost race apart from a missing row
func (r *BatchRepository) checkSwapped(ctx context.Context, result sql.Result, batchID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pharmacy_batches WHERE id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, batchID); err != nil {
		return err
	}
	if !exists {
		return domain.ErrBatchNotFound
	}
	return &domain.ConflictError{BatchID: batchID}
}
