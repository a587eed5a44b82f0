// Package domain holds the pharmacy batch model and the pure rules around it:
// quantity invariants, the zone state machine, expiry classification and
// FEFO ordering. Nothing in this package performs I/O.
package domain

import (
	"time"
)

// Batch is a discrete, expiry-dated lot of a single product held in one warehouse.
type Batch struct {
	ID                string     `db:"id" json:"id"`
	ProductID         string     `db:"product_id" json:"product_id"`
	WarehouseID       string     `db:"warehouse_id" json:"warehouse_id"`
	LotNumber         string     `db:"lot_number" json:"lot_number"`
	Quantity          int        `db:"quantity" json:"quantity"`
	OriginalQuantity  int        `db:"original_quantity" json:"original_quantity"`
	Zone              Zone       `db:"zone" json:"zone"`
	ManufacturingDate *time.Time `db:"manufacturing_date" json:"manufacturing_date,omitempty"`
	ExpiryDate        time.Time  `db:"expiry_date" json:"expiry_date"`
	Location          *string    `db:"location" json:"location,omitempty"`
	SupplierID        *string    `db:"supplier_id" json:"supplier_id,omitempty"`
	ReceivedAt        time.Time  `db:"received_at" json:"received_at"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks the quantity and date invariants of a batch.
func Validate(b Batch) error {
	if b.OriginalQuantity < 1 {
		return &ValidationError{
			Code:    CodeInvalidQuantity,
			Field:   "original_quantity",
			Message: "original quantity must be at least 1",
		}
	}
	if b.Quantity < 0 {
		return &ValidationError{
			Code:    CodeInvalidQuantity,
			Field:   "quantity",
			Message: "quantity must not be negative",
		}
	}
	if b.Quantity > b.OriginalQuantity {
		return &ValidationError{
			Code:    CodeInvalidQuantity,
			Field:   "quantity",
			Message: "quantity must not exceed original quantity",
		}
	}
	if b.ExpiryDate.IsZero() {
		return &ValidationError{
			Code:    CodeInvalidDateRange,
			Field:   "expiry_date",
			Message: "expiry date is required",
		}
	}
	if b.ManufacturingDate != nil && b.ManufacturingDate.After(b.ExpiryDate) {
		return &ValidationError{
			Code:    CodeInvalidDateRange,
			Field:   "manufacturing_date",
			Message: "manufacturing date must not be after expiry date",
		}
	}
	return nil
}

// RemainingFraction returns quantity / original_quantity in [0, 1].
func RemainingFraction(b Batch) float64 {
	if b.OriginalQuantity < 1 {
		return 0
	}
	return float64(b.Quantity) / float64(b.OriginalQuantity)
}

// IsDepleted reports whether the batch has no units left.
func (b Batch) IsDepleted() bool {
	return b.Quantity == 0
}

// CheckMutable refuses any change to a depleted batch. Its movements and
// inspections stay readable.
func CheckMutable(b Batch) error {
	if b.IsDepleted() {
		return &ValidationError{
			Code:    CodeInvalidQuantity,
			Field:   "quantity",
			Message: "batch " + b.ID + " is depleted and can no longer change",
		}
	}
	return nil
}
