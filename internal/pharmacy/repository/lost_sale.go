package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-backend/pkg/database"
)

// LostSale is a dispense request that could not be served
type LostSale struct {
	ID                string    `db:"id" json:"id"`
	RequestID         *string   `db:"request_id" json:"request_id,omitempty"`
	ProductID         string    `db:"product_id" json:"product_id"`
	WarehouseID       string    `db:"warehouse_id" json:"warehouse_id"`
	RequestedQuantity int       `db:"requested_quantity" json:"requested_quantity"`
	AvailableQuantity int       `db:"available_quantity" json:"available_quantity"`
	Reason            string    `db:"reason" json:"reason"`
	RequestedBy       string    `db:"requested_by" json:"requested_by"`
	RequestedAt       time.Time `db:"requested_at" json:"requested_at"`
}

// LostSaleSummary aggregates lost sales of one product over a period
type LostSaleSummary struct {
	ProductID              string    `db:"product_id" json:"product_id"`
	TotalRequests          int       `db:"total_requests" json:"total_requests"`
	TotalQuantityRequested int       `db:"total_quantity_requested" json:"total_quantity_requested"`
	LastRequested          time.Time `db:"last_requested" json:"last_requested"`
	SuggestedReorder       int       `db:"-" json:"suggested_reorder_quantity"`
}

// LostSaleRepository handles lost sale persistence
type LostSaleRepository struct {
	db *database.DB
}

// NewLostSaleRepository creates a new lost sale repository
func NewLostSaleRepository(db *database.DB) *LostSaleRepository {
	return &LostSaleRepository{db: db}
}

// Create records a lost sale
func (r *LostSaleRepository) Create(ctx context.Context, sale *LostSale) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}

	query := `
		INSERT INTO lost_sales (
			id, request_id, product_id, warehouse_id, requested_quantity,
			available_quantity, reason, requested_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING requested_at
	`

	return r.db.QueryRowxContext(ctx, query,
		sale.ID, sale.RequestID, sale.ProductID, sale.WarehouseID, sale.RequestedQuantity,
		sale.AvailableQuantity, sale.Reason, sale.RequestedBy,
	).Scan(&sale.RequestedAt)
}

// Summarize aggregates lost sales per product between from and to, largest shortfall first
func (r *LostSaleRepository) Summarize(ctx context.Context, from, to time.Time) ([]LostSaleSummary, error) {
	summaries := []LostSaleSummary{}
	query := `
		SELECT product_id,
			COUNT(*) AS total_requests,
			SUM(requested_quantity) AS total_quantity_requested,
			MAX(requested_at) AS last_requested
		FROM lost_sales
		WHERE requested_at BETWEEN $1 AND $2
		GROUP BY product_id
		ORDER BY total_quantity_requested DESC, product_id
	`
	if err := r.db.SelectContext(ctx, &summaries, query, from, to); err != nil {
		return nil, err
	}
	return summaries, nil
}
