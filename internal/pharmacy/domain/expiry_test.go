package domain_test

import (
	"testing"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expiry   time.Time
		wantDays int
		want     domain.ExpiryStatus
	}{
		{"expired a week ago", now.AddDate(0, 0, -7), -7, domain.ExpiryExpired},
		{"expired an hour ago", now.Add(-time.Hour), -1, domain.ExpiryExpired},
		{"expires now", now, 0, domain.ExpiryExpiringImminently},
		{"expires in 23 hours", now.Add(23 * time.Hour), 0, domain.ExpiryExpiringImminently},
		{"expires in 7 days", now.AddDate(0, 0, 7), 7, domain.ExpiryExpiringImminently},
		{"expires in 8 days", now.AddDate(0, 0, 8), 8, domain.ExpiryExpiringSoon},
		{"expires in 30 days", now.AddDate(0, 0, 30), 30, domain.ExpiryExpiringSoon},
		{"expires in 31 days", now.AddDate(0, 0, 31), 31, domain.ExpiryValid},
		{"expires next year", now.AddDate(1, 0, 0), 365, domain.ExpiryValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := domain.Classify(tt.expiry, now)
			assert.Equal(t, tt.want, c.Status)
			assert.Equal(t, tt.wantDays, c.DaysRemaining)
		})
	}
}

func TestSortFEFO(t *testing.T) {
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	r1 := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	r2 := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

	batches := []domain.Batch{
		{ID: "feb", ExpiryDate: feb, ReceivedAt: r1},
		{ID: "jan-late-b", ExpiryDate: jan, ReceivedAt: r2},
		{ID: "jan-late-a", ExpiryDate: jan, ReceivedAt: r2},
		{ID: "jan-early", ExpiryDate: jan, ReceivedAt: r1},
	}

	domain.SortFEFO(batches)

	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"jan-early", "jan-late-a", "jan-late-b", "feb"}, ids)
}

func TestAllocationPlanCheck(t *testing.T) {
	valid := func() *domain.AllocationPlan {
		return &domain.AllocationPlan{
			RequestID: "req-1",
			ProductID: "p1",
			Requested: 8,
			Lines: []domain.PlanLine{
				{BatchID: "a", QuantityBefore: 5, Units: 5},
				{BatchID: "b", QuantityBefore: 10, Units: 3},
			},
		}
	}

	assert.NoError(t, valid().Check())

	tests := []struct {
		name   string
		mutate func(p *domain.AllocationPlan)
	}{
		{"missing request id", func(p *domain.AllocationPlan) { p.RequestID = "" }},
		{"zero requested", func(p *domain.AllocationPlan) { p.Requested = 0 }},
		{"no lines", func(p *domain.AllocationPlan) { p.Lines = nil }},
		{"sum mismatch", func(p *domain.AllocationPlan) { p.Requested = 9 }},
		{"units above quantity", func(p *domain.AllocationPlan) { p.Lines[0].Units = 6; p.Requested = 9 }},
		{"duplicate batch", func(p *domain.AllocationPlan) { p.Lines[1].BatchID = "a" }},
		{"zero units", func(p *domain.AllocationPlan) { p.Lines[1].Units = 0; p.Requested = 5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			assert.ErrorIs(t, p.Check(), domain.ErrInvalidRequest)
		})
	}

	var nilPlan *domain.AllocationPlan
	assert.ErrorIs(t, nilPlan.Check(), domain.ErrInvalidRequest)
}
