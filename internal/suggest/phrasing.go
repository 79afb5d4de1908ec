package suggest

import (
	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/signals"
)

// recentWindow is how many of the latest interactions feed the phrasing
// selector.
const recentWindow = 10

// SuggestedCategory picks the activity to propose: the most frequent
// category among recent interactions when it recurs at least twice,
// otherwise a generic fallback for the relationship's tier. Ties go to the
// category seen most recently.
func SuggestedCategory(sig *signals.Signals) domain.Category {
	recent := sig.Interactions
	if len(recent) > recentWindow {
		recent = recent[:recentWindow]
	}

	counts := make(map[domain.Category]int)
	var order []domain.Category
	for _, it := range recent {
		if counts[it.Category] == 0 {
			order = append(order, it.Category)
		}
		counts[it.Category]++
	}

	var best domain.Category
	bestCount := 0
	for _, c := range order {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	if bestCount >= 2 && best.Valid() {
		return best
	}
	return TierFallback(sig.Relationship.Tier)
}

// TierFallback is the generic category proposed for a tier.
func TierFallback(t domain.Tier) domain.Category {
	switch t.Normalize() {
	case domain.TierInner:
		return domain.CategorySharedMeal
	case domain.TierClose:
		return domain.CategoryActivity
	default:
		return domain.CategoryConversation
	}
}
