package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-backend/pkg/database"
)

// QuarantineInspection records the checks made when a batch leaves quarantine
type QuarantineInspection struct {
	ID                 string    `db:"id" json:"id"`
	BatchID            string    `db:"batch_id" json:"batch_id"`
	ProductID          string    `db:"product_id" json:"product_id"`
	LotNumber          string    `db:"lot_number" json:"lot_number"`
	InspectedBy        string    `db:"inspected_by" json:"inspected_by"`
	SealsIntact        bool      `db:"seals_intact" json:"seals_intact"`
	TemperatureOK      bool      `db:"temperature_ok" json:"temperature_ok"`
	TemperatureCelsius *float64  `db:"temperature_celsius" json:"temperature_celsius,omitempty"`
	PackagingCondition string    `db:"packaging_condition" json:"packaging_condition"`
	ExpiryDateOK       bool      `db:"expiry_date_ok" json:"expiry_date_ok"`
	Approved           bool      `db:"approved" json:"approved"`
	RejectionReason    *string   `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	InspectedAt        time.Time `db:"inspected_at" json:"inspected_at"`
}

// InspectionRepository handles quarantine inspection persistence
type InspectionRepository struct {
	db *database.DB
}

// NewInspectionRepository creates a new inspection repository
func NewInspectionRepository(db *database.DB) *InspectionRepository {
	return &InspectionRepository{db: db}
}

// Create creates a new inspection
func (r *InspectionRepository) Create(ctx context.Context, insp *QuarantineInspection) error {
	if insp.ID == "" {
		insp.ID = uuid.New().String()
	}

	query := `
		INSERT INTO quarantine_inspections (
			id, batch_id, product_id, lot_number, inspected_by, seals_intact, temperature_ok,
			temperature_celsius, packaging_condition, expiry_date_ok, approved,
			rejection_reason, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING inspected_at
	`

	return r.db.QueryRowxContext(ctx, query,
		insp.ID, insp.BatchID, insp.ProductID, insp.LotNumber, insp.InspectedBy,
		insp.SealsIntact, insp.TemperatureOK, insp.TemperatureCelsius,
		insp.PackagingCondition, insp.ExpiryDateOK, insp.Approved,
		insp.RejectionReason, insp.Notes,
	).Scan(&insp.InspectedAt)
}

// ListByBatch returns the inspections of a batch, newest first
func (r *InspectionRepository) ListByBatch(ctx context.Context, batchID string) ([]QuarantineInspection, error) {
	inspections := []QuarantineInspection{}
	query := `SELECT * FROM quarantine_inspections WHERE batch_id = $1 ORDER BY inspected_at DESC`
	if err := r.db.SelectContext(ctx, &inspections, query, batchID); err != nil {
		return nil, err
	}
	return inspections, nil
}
