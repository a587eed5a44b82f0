package domain

import (
	"fmt"
)

// PackagingCondition is the state of a lot's packaging on inspection.
type PackagingCondition string

const (
	PackagingGood    PackagingCondition = "good"
	PackagingDamaged PackagingCondition = "damaged"
	PackagingWet     PackagingCondition = "wet"
)

// InspectionResult is the checklist filled in when a batch leaves quarantine.
type InspectionResult struct {
	SealsIntact        bool               `json:"seals_intact"`
	TemperatureOK      bool               `json:"temperature_ok"`
	TemperatureCelsius *float64           `json:"temperature_celsius,omitempty"`
	PackagingCondition PackagingCondition `json:"packaging_condition"`
	ExpiryDateOK       bool               `json:"expiry_date_ok"`
	RejectionReason    string             `json:"rejection_reason,omitempty"`
	Notes              string             `json:"notes,omitempty"`
}

// Passed reports whether every check on the list passed.
func (r InspectionResult) Passed() bool {
	return r.SealsIntact && r.TemperatureOK && r.ExpiryDateOK && r.PackagingCondition == PackagingGood
}

// FailedChecks names the checks that did not pass.
func (r InspectionResult) FailedChecks() []string {
	var failed []string
	if !r.SealsIntact {
		failed = append(failed, "seals_intact")
	}
	if !r.TemperatureOK {
		failed = append(failed, "temperature_ok")
	}
	if r.PackagingCondition != PackagingGood {
		failed = append(failed, "packaging_condition")
	}
	if !r.ExpiryDateOK {
		failed = append(failed, "expiry_date_ok")
	}
	return failed
}

// CheckRelease verifies that an inspection supports moving a quarantined
// batch to target. A failed inspection can only reject the batch.
func CheckRelease(r InspectionResult, target Zone) error {
	switch r.PackagingCondition {
	case PackagingGood, PackagingDamaged, PackagingWet:
	default:
		return &ValidationError{
			Code:    CodeInvalidInspection,
			Field:   "packaging_condition",
			Message: fmt.Sprintf("unknown packaging condition %q", r.PackagingCondition),
		}
	}
	if target == ZoneApproved && !r.Passed() {
		return &ZoneTransitionError{From: ZoneQuarantine, To: target}
	}
	return nil
}
