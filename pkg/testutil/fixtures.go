package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchFixture represents test batch data
type BatchFixture struct {
	ID               string
	ProductID        string
	WarehouseID      string
	LotNumber        string
	Quantity         int
	OriginalQuantity int
	Zone             string
	ExpiryDate       time.Time
	ReceivedAt       time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Batch creates an available batch fixture expiring in six months
func (f *FixtureFactory) Batch(opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()
	now := time.Now().UTC().Truncate(time.Second)

	batch := BatchFixture{
		ID:               uuid.New().String(),
		ProductID:        "amoxicillin-500",
		WarehouseID:      "main",
		LotNumber:        fmt.Sprintf("LOT-%04d", seq),
		Quantity:         100,
		OriginalQuantity: 100,
		Zone:             "available",
		ExpiryDate:       now.AddDate(0, 6, 0),
		ReceivedAt:       now.Add(time.Duration(seq) * time.Second),
	}

	for _, opt := range opts {
		opt(&batch)
	}

	return batch
}

// WithProduct sets the batch product
func WithProduct(productID string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ProductID = productID
	}
}

// WithWarehouse sets the batch warehouse
func WithWarehouse(warehouseID string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.WarehouseID = warehouseID
	}
}

// WithQuantity sets quantity and original quantity
func WithQuantity(quantity, original int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.Quantity = quantity
		b.OriginalQuantity = original
	}
}

// WithZone sets the batch zone
func WithZone(zone string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.Zone = zone
	}
}

// WithExpiry sets the batch expiry date
func WithExpiry(expiry time.Time) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ExpiryDate = expiry
	}
}

// WithLot sets the batch lot number
func WithLot(lot string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.LotNumber = lot
	}
}
