package domain

import (
	"time"
)

// AllocationRequest asks for units of a product. An empty WarehouseID spans
// every warehouse; a zero AsOf means "now".
type AllocationRequest struct {
	RequestID   string    `json:"request_id"`
	ProductID   string    `json:"product_id"`
	WarehouseID string    `json:"warehouse_id,omitempty"`
	Quantity    int       `json:"quantity"`
	AsOf        time.Time `json:"as_of,omitempty"`
}

// PlanLine takes Units from one batch whose quantity was QuantityBefore when planned.
type PlanLine struct {
	BatchID        string    `json:"batch_id"`
	LotNumber      string    `json:"lot_number"`
	ExpiryDate     time.Time `json:"expiry_date"`
	QuantityBefore int       `json:"quantity_before"`
	Units          int       `json:"units"`
}

// QuantityAfter is the batch quantity once the line is applied.
func (l PlanLine) QuantityAfter() int {
	return l.QuantityBefore - l.Units
}

// AllocationPlan is an ordered, not yet committed set of batch decrements.
type AllocationPlan struct {
	RequestID   string     `json:"request_id"`
	ProductID   string     `json:"product_id"`
	WarehouseID string     `json:"warehouse_id,omitempty"`
	Requested   int        `json:"quantity_requested"`
	AsOf        time.Time  `json:"as_of"`
	Lines       []PlanLine `json:"lines"`
}

// Total sums units across lines.
func (p *AllocationPlan) Total() int {
	total := 0
	for _, l := range p.Lines {
		total += l.Units
	}
	return total
}

// Check verifies the plan is internally consistent before commit.
func (p *AllocationPlan) Check() error {
	if p == nil {
		return InvalidRequest("plan is required")
	}
	if p.RequestID == "" {
		return InvalidRequest("request id is required")
	}
	if p.Requested <= 0 {
		return InvalidRequest("requested quantity must be positive")
	}
	if len(p.Lines) == 0 {
		return InvalidRequest("plan has no lines")
	}
	seen := make(map[string]struct{}, len(p.Lines))
	for _, l := range p.Lines {
		if l.BatchID == "" {
			return InvalidRequest("plan line without batch id")
		}
		if _, dup := seen[l.BatchID]; dup {
			return InvalidRequest("batch " + l.BatchID + " appears twice")
		}
		seen[l.BatchID] = struct{}{}
		if l.Units <= 0 || l.Units > l.QuantityBefore {
			return InvalidRequest("plan line units out of range for batch " + l.BatchID)
		}
	}
	if p.Total() != p.Requested {
		return InvalidRequest("plan lines do not sum to the requested quantity")
	}
	return nil
}

// QuantitySwap is a compare-and-swap on a batch quantity. With Guard set the
// swap also fails unless the batch is still dispensable under the guard.
type QuantitySwap struct {
	BatchID  string
	Expected int
	Next     int
	Guard    *DispenseGuard
}

// DispenseGuard re-checks eligibility at the moment stock is taken: the zone
// must pass Policy and the batch must not be expired at AsOf.
type DispenseGuard struct {
	Policy EligibilityPolicy
	AsOf   time.Time
}

// Allows reports whether b may still be dispensed.
func (g DispenseGuard) Allows(b Batch) bool {
	return g.Policy.IsAllocationEligible(b.Zone) && !IsExpired(b, g.AsOf)
}

// Zones lists the zones the policy dispenses from.
func (g DispenseGuard) Zones() []Zone {
	zones := []Zone{ZoneAvailable}
	if g.Policy.DispenseApproved {
		zones = append(zones, ZoneApproved)
	}
	return zones
}
