package domain

import "time"

// Tier is one of three ordered relationship classes. Closer tiers expect
// more frequent contact.
type Tier string

const (
	TierInner  Tier = "inner"
	TierClose  Tier = "close"
	TierCasual Tier = "casual"
)

// Normalize maps unknown tiers to the lowest tier.
func (t Tier) Normalize() Tier {
	switch t {
	case TierInner, TierClose, TierCasual:
		return t
	default:
		return TierCasual
	}
}

// Rank orders tiers: 0 is the top (closest) tier.
func (t Tier) Rank() int {
	switch t.Normalize() {
	case TierInner:
		return 0
	case TierClose:
		return 1
	default:
		return 2
	}
}

// IsTop reports whether t is the tier with the shortest cadence.
func (t Tier) IsTop() bool { return t.Normalize() == TierInner }

// IsLowest reports whether t is the tier with the longest cadence.
func (t Tier) IsLowest() bool { return t.Normalize() == TierCasual }

// CadenceDays is the expected number of days between contacts.
func (t Tier) CadenceDays() int {
	switch t.Normalize() {
	case TierInner:
		return 7
	case TierClose:
		return 14
	default:
		return 30
	}
}

// DecayRate is the score points a relationship in this tier is expected to
// lose per day without contact.
func (t Tier) DecayRate() float64 {
	switch t.Normalize() {
	case TierInner:
		return 1.0
	case TierClose:
		return 0.6
	default:
		return 0.3
	}
}

// Archetype is a personality-style tag used only as a lookup key into
// static content tables.
type Archetype string

// Initiator records who reached out first for an interaction.
type Initiator string

const (
	InitiatorNone   Initiator = ""
	InitiatorUser   Initiator = "user"
	InitiatorFriend Initiator = "friend"
	InitiatorMutual Initiator = "mutual"
)

// Valid reports whether i is a known initiator tag (including none).
func (i Initiator) Valid() bool {
	switch i {
	case InitiatorNone, InitiatorUser, InitiatorFriend, InitiatorMutual:
		return true
	}
	return false
}

// NeutralEffectiveness is the seed value for every learned category multiplier.
const NeutralEffectiveness = 1.0

// Relationship is one person being tracked.
type Relationship struct {
	ID            string
	Name          string
	Tier          Tier
	Archetype     Archetype
	CurrentScore  float64
	MomentumScore float64
	Dormant       bool
	Resilience    float64

	// Annual dates in MM-DD form; empty when unknown.
	Birthday    string
	Anniversary string

	TotalUserInitiations         float64
	TotalFriendInitiations       float64
	ConsecutiveUserInitiations   int
	ConsecutiveFriendInitiations int
	InitiationRatio              float64
	LastInitiatedBy              Initiator

	CategoryEffectiveness map[Category]float64
	OutcomeCount          int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalInitiations is the sum of user and friend initiations.
func (r *Relationship) TotalInitiations() float64 {
	return r.TotalUserInitiations + r.TotalFriendInitiations
}

// Effectiveness returns the learned multiplier for a category, 1.0 when
// nothing has been learned yet.
func (r *Relationship) Effectiveness(c Category) float64 {
	if r.CategoryEffectiveness == nil {
		return NeutralEffectiveness
	}
	v, ok := r.CategoryEffectiveness[c]
	if !ok {
		return NeutralEffectiveness
	}
	return v
}

// ResilienceFactor returns the resilience divisor: 1.0 when unset,
// otherwise never below 0.1.
func (r *Relationship) ResilienceFactor() float64 {
	if r.Resilience < 0.1 {
		if r.Resilience == 0 {
			return 1.0
		}
		return 0.1
	}
	return r.Resilience
}
