// Package reciprocity tracks who reaches out in each relationship and
// learns how well each interaction category works for it.
package reciprocity

import (
	"github.com/lazypower/tether/internal/domain"
)

// ApplyInitiation records one logged interaction's initiator on rel.
// Mutual initiations count half to each side. InitiatorNone is a no-op.
func ApplyInitiation(rel *domain.Relationship, who domain.Initiator) {
	switch who {
	case domain.InitiatorUser:
		rel.TotalUserInitiations++
		rel.ConsecutiveUserInitiations++
		rel.ConsecutiveFriendInitiations = 0
	case domain.InitiatorFriend:
		rel.TotalFriendInitiations++
		rel.ConsecutiveFriendInitiations++
		rel.ConsecutiveUserInitiations = 0
	case domain.InitiatorMutual:
		rel.TotalUserInitiations += 0.5
		rel.TotalFriendInitiations += 0.5
		rel.ConsecutiveUserInitiations = 0
		rel.ConsecutiveFriendInitiations = 0
	default:
		return
	}
	rel.LastInitiatedBy = who
	rel.InitiationRatio = Ratio(rel.TotalUserInitiations, rel.TotalFriendInitiations)
}

// Ratio is user/(user+friend), 0.5 when nothing has been recorded.
func Ratio(user, friend float64) float64 {
	total := user + friend
	if total <= 0 {
		return 0.5
	}
	r := user / total
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Balance classifies an initiation ratio.
type Balance string

const (
	BalanceInsufficient       Balance = "insufficient_data"
	BalanceBalanced           Balance = "balanced"
	BalanceSlightlyImbalanced Balance = "slightly_imbalanced"
	BalanceVeryImbalanced     Balance = "very_imbalanced"
	BalanceOneSided           Balance = "one_sided"
)

// MinBalanceSamples is the initiation count below which Classify reports
// insufficient data.
const MinBalanceSamples = 3

// Classify returns the balance class for rel.
func Classify(rel *domain.Relationship) Balance {
	if rel.TotalInitiations() < MinBalanceSamples {
		return BalanceInsufficient
	}
	r := rel.InitiationRatio
	switch {
	case r >= 0.4 && r <= 0.6:
		return BalanceBalanced
	case r >= 0.3 && r <= 0.7:
		return BalanceSlightlyImbalanced
	case r >= 0.2 && r <= 0.8:
		return BalanceVeryImbalanced
	default:
		return BalanceOneSided
	}
}

// Severity of an initiation imbalance worth surfacing.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Direction says which side carries the relationship.
type Direction string

const (
	DirectionNone        Direction = ""
	DirectionUserHeavy   Direction = "user_heavy"
	DirectionFriendHeavy Direction = "friend_heavy"
)

// Imbalance is the alerting view of a relationship's reciprocity.
type Imbalance struct {
	Severity  Severity  `json:"severity"`
	Direction Direction `json:"direction,omitempty"`
}

const (
	// MinImbalanceSamples is the initiation count needed before alerting.
	MinImbalanceSamples = 5
	// SevereStreak is the same-direction run required for a severe alert.
	SevereStreak = 5
)

// Assess grades the imbalance for rel.
func Assess(rel *domain.Relationship) Imbalance {
	if rel.TotalInitiations() < MinImbalanceSamples {
		return Imbalance{Severity: SeverityNone}
	}

	r := rel.InitiationRatio
	dir := DirectionNone
	streak := 0
	skew := 0.0
	switch {
	case r > 0.5:
		dir, streak, skew = DirectionUserHeavy, rel.ConsecutiveUserInitiations, r
	case r < 0.5:
		dir, streak, skew = DirectionFriendHeavy, rel.ConsecutiveFriendInitiations, 1-r
	default:
		return Imbalance{Severity: SeverityNone}
	}

	switch {
	case skew > 0.85 && streak >= SevereStreak:
		return Imbalance{Severity: SeveritySevere, Direction: dir}
	case skew > 0.75:
		return Imbalance{Severity: SeverityModerate, Direction: dir}
	case skew > 0.65:
		return Imbalance{Severity: SeverityMild, Direction: dir}
	default:
		return Imbalance{Severity: SeverityNone}
	}
}
