package domain

import (
	"math"
	"sort"
	"time"
)

// ExpiryStatus buckets a batch by how close it is to expiry.
type ExpiryStatus string

const (
	ExpiryExpired            ExpiryStatus = "expired"
	ExpiryExpiringImminently ExpiryStatus = "expiring_imminently"
	ExpiryExpiringSoon       ExpiryStatus = "expiring_soon"
	ExpiryValid              ExpiryStatus = "valid"
)

// Classification thresholds, in whole days remaining.
const (
	ImminentExpiryDays = 7
	SoonExpiryDays     = 30
)

// Classification is the result of classifying an expiry date at a point in time.
type Classification struct {
	Status        ExpiryStatus `json:"status"`
	DaysRemaining int          `json:"days_remaining"`
}

// DaysRemaining returns floor((expiry - now) / 24h).
func DaysRemaining(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}

// Classify buckets expiry relative to now.
func Classify(expiry, now time.Time) Classification {
	days := DaysRemaining(expiry, now)

	var status ExpiryStatus
	switch {
	case days < 0:
		status = ExpiryExpired
	case days <= ImminentExpiryDays:
		status = ExpiryExpiringImminently
	case days <= SoonExpiryDays:
		status = ExpiryExpiringSoon
	default:
		status = ExpiryValid
	}

	return Classification{Status: status, DaysRemaining: days}
}

// IsExpired reports whether the batch is past its expiry at now.
func IsExpired(b Batch, now time.Time) bool {
	return DaysRemaining(b.ExpiryDate, now) < 0
}

// FEFOLess orders batches by expiry date, then receipt time, then id.
func FEFOLess(a, b Batch) bool {
	if !a.ExpiryDate.Equal(b.ExpiryDate) {
		return a.ExpiryDate.Before(b.ExpiryDate)
	}
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.ID < b.ID
}

// SortFEFO sorts batches in place, first-expired first.
func SortFEFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		return FEFOLess(batches[i], batches[j])
	})
}
