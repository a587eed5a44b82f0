package domain

import (
	"fmt"
	"strings"
)

// Zone is the workflow state of a batch.
type Zone string

const (
	ZoneAvailable  Zone = "available"
	ZoneQuarantine Zone = "quarantine"
	ZoneApproved   Zone = "approved"
	ZoneRejected   Zone = "rejected"
	ZoneDamaged    Zone = "damaged"
)

// Zones lists every zone in display order.
var Zones = []Zone{ZoneAvailable, ZoneQuarantine, ZoneApproved, ZoneRejected, ZoneDamaged}

var zoneTransitions = map[Zone][]Zone{
	ZoneQuarantine: {ZoneApproved, ZoneRejected},
	ZoneAvailable:  {ZoneQuarantine, ZoneDamaged},
	ZoneApproved:   {ZoneDamaged},
	ZoneRejected:   {},
	ZoneDamaged:    {},
}

// ParseZone converts a string into a known zone.
func ParseZone(s string) (Zone, error) {
	z := Zone(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := zoneTransitions[z]; !ok {
		return "", fmt.Errorf("unknown zone %q", s)
	}
	return z, nil
}

// IsValid reports whether z is a known zone.
func (z Zone) IsValid() bool {
	_, ok := zoneTransitions[z]
	return ok
}

func (z Zone) String() string {
	return string(z)
}

// AllowedTargets returns the zones z may move to. Terminal zones return none.
func AllowedTargets(z Zone) []Zone {
	targets := zoneTransitions[z]
	out := make([]Zone, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal reports whether no transition leaves z.
func IsTerminal(z Zone) bool {
	targets, ok := zoneTransitions[z]
	return ok && len(targets) == 0
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Zone) bool {
	for _, target := range zoneTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition returns a copy of b moved to target. The input is never modified.
func Transition(b Batch, target Zone) (Batch, error) {
	if !CanTransition(b.Zone, target) {
		return b, &ZoneTransitionError{BatchID: b.ID, From: b.Zone, To: target}
	}
	b.Zone = target
	return b, nil
}

// IsAllocationEligible reports whether batches in zone may be dispensed from.
// Only available and approved qualify.
func IsAllocationEligible(zone Zone) bool {
	return zone == ZoneAvailable || zone == ZoneApproved
}

// IsIntakeZone reports whether a newly received batch may start in zone.
func IsIntakeZone(zone Zone) bool {
	return zone == ZoneAvailable || zone == ZoneQuarantine
}

// EligibilityPolicy narrows IsAllocationEligible per facility.
type EligibilityPolicy struct {
	// DispenseApproved allows batches released from quarantine to be dispensed.
	DispenseApproved bool
}

// DefaultEligibilityPolicy dispenses from both available and approved.
func DefaultEligibilityPolicy() EligibilityPolicy {
	return EligibilityPolicy{DispenseApproved: true}
}

// IsAllocationEligible applies the policy on top of the zone rule.
func (p EligibilityPolicy) IsAllocationEligible(zone Zone) bool {
	if !IsAllocationEligible(zone) {
		return false
	}
	if zone == ZoneApproved {
		return p.DispenseApproved
	}
	return true
}
