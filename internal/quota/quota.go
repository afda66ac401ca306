// Package quota enforces subscription limits on proposed batches before any
// network activity starts. The check is advisory for UX only; the server
// enforces the same limits authoritatively and wins on conflict.
package quota

import (
	"fmt"

	"github.com/raphaelgruber/uplink/internal/models"
)

// Unlimited is the sentinel for a tier without an item cap. Callers never
// compare against it directly; Remaining handles it once.
const Unlimited = -1

// Tier describes the limits of one subscription level.
type Tier struct {
	Name         string
	MaxItems     int   // Unlimited for no cap
	MaxFileBytes int64 // per-item ceiling, 0 for no ceiling
}

// Remaining returns how many more items the tier admits given current usage.
// An unlimited tier always has room for the proposal at hand.
func (t Tier) Remaining(used int) int {
	if t.MaxItems == Unlimited {
		return Unlimited
	}
	r := t.MaxItems - used
	if r < 0 {
		return 0
	}
	return r
}

// Rejection is one dropped item with a user-facing reason.
type Rejection struct {
	Item   models.IngestionItem
	Reason string
}

// Decision is the outcome of a pre-submission quota check.
type Decision struct {
	Accepted []models.IngestionItem
	Rejected []Rejection
}

// Guard evaluates proposed batches against a tier.
type Guard struct {
	tier Tier
	used int
}

// NewGuard creates a guard for the given tier and current item usage.
func NewGuard(tier Tier, used int) *Guard {
	return &Guard{tier: tier, used: used}
}

// Tier returns the guard's tier.
func (g *Guard) Tier() Tier { return g.tier }

// Filter splits proposed items into accepted and rejected. Evaluation order:
// first the remaining item quota, then the per-item size ceiling. Rejected
// items are dropped before submission; no network call is made for them.
func (g *Guard) Filter(items []models.IngestionItem) Decision {
	var d Decision
	remaining := g.tier.Remaining(g.used)

	for _, it := range items {
		if remaining != Unlimited && len(d.Accepted) >= remaining {
			d.Rejected = append(d.Rejected, Rejection{
				Item:   it,
				Reason: fmt.Sprintf("item quota reached for tier %s (%d items)", g.tier.Name, g.tier.MaxItems),
			})
			continue
		}
		if g.tier.MaxFileBytes > 0 && it.SizeBytes > g.tier.MaxFileBytes {
			d.Rejected = append(d.Rejected, Rejection{
				Item: it,
				Reason: fmt.Sprintf("%s exceeds the %d MB limit for tier %s",
					it.DisplayName, g.tier.MaxFileBytes/(1024*1024), g.tier.Name),
			})
			continue
		}
		d.Accepted = append(d.Accepted, it)
	}

	return d
}
