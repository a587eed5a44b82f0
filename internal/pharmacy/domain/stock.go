package domain

import (
	"time"
)

// StockStatus is the traffic-light summary of a product's stock.
type StockStatus string

const (
	StockCritical StockStatus = "critical"
	StockWarning  StockStatus = "warning"
	StockNormal   StockStatus = "normal"
)

// LostSaleReason explains why a request could not be served.
type LostSaleReason string

const (
	LostSaleOutOfStock   LostSaleReason = "out_of_stock"
	LostSaleExpired      LostSaleReason = "expired"
	LostSaleInQuarantine LostSaleReason = "in_quarantine"
)

// StockSummary aggregates the batches of one product.
type StockSummary struct {
	ProductID     string       `json:"product_id"`
	WarehouseID   string       `json:"warehouse_id,omitempty"`
	AsOf          time.Time    `json:"as_of"`
	Dispensable   int          `json:"dispensable"`
	Quarantined   int          `json:"quarantined"`
	Expired       int          `json:"expired"`
	ByZone        map[Zone]int `json:"by_zone"`
	BatchCount    int          `json:"batch_count"`
	NearestExpiry *time.Time   `json:"nearest_expiry,omitempty"`
	OldestBatchID string       `json:"oldest_batch_id,omitempty"`
	NewestBatchID string       `json:"newest_batch_id,omitempty"`
	Status        StockStatus  `json:"status"`
}

// Summarize aggregates batches of a single product at asOf. Depleted batches
// are ignored.
func Summarize(productID, warehouseID string, batches []Batch, asOf time.Time, policy EligibilityPolicy) StockSummary {
	summary := StockSummary{
		ProductID:   productID,
		WarehouseID: warehouseID,
		AsOf:        asOf,
		ByZone:      make(map[Zone]int),
	}

	var oldest, newest *Batch
	for i := range batches {
		b := batches[i]
		if b.Quantity <= 0 {
			continue
		}
		summary.BatchCount++
		summary.ByZone[b.Zone] += b.Quantity

		if oldest == nil || b.ReceivedAt.Before(oldest.ReceivedAt) {
			oldest = &batches[i]
		}
		if newest == nil || b.ReceivedAt.After(newest.ReceivedAt) {
			newest = &batches[i]
		}

		expired := IsExpired(b, asOf)
		switch {
		case expired && !IsTerminal(b.Zone):
			summary.Expired += b.Quantity
		case b.Zone == ZoneQuarantine:
			summary.Quarantined += b.Quantity
		case policy.IsAllocationEligible(b.Zone):
			summary.Dispensable += b.Quantity
			if summary.NearestExpiry == nil || b.ExpiryDate.Before(*summary.NearestExpiry) {
				expiry := b.ExpiryDate
				summary.NearestExpiry = &expiry
			}
		}
	}

	if oldest != nil {
		summary.OldestBatchID = oldest.ID
		summary.NewestBatchID = newest.ID
	}

	switch {
	case summary.Dispensable == 0:
		summary.Status = StockCritical
	case summary.NearestExpiry != nil &&
		Classify(*summary.NearestExpiry, asOf).Status != ExpiryValid:
		summary.Status = StockWarning
	default:
		summary.Status = StockNormal
	}

	return summary
}

// LostSaleReasonFor picks the reason an unserved request is recorded under:
// quarantined stock first, then expired stock, otherwise plain out of stock.
func LostSaleReasonFor(summary StockSummary) LostSaleReason {
	switch {
	case summary.Quarantined > 0:
		return LostSaleInQuarantine
	case summary.Expired > 0:
		return LostSaleExpired
	default:
		return LostSaleOutOfStock
	}
}
