package reciprocity

import (
	"math"

	"github.com/lazypower/tether/internal/domain"
)

// LearningRate weights a new observation in the effectiveness average.
const LearningRate = 0.2

// UpdateEffectiveness folds one measured effectiveness ratio into rel's
// multiplier for category c and bumps the outcome count. Non-finite
// ratios are ignored.
func UpdateEffectiveness(rel *domain.Relationship, c domain.Category, ratio float64) float64 {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return rel.Effectiveness(c)
	}
	if rel.CategoryEffectiveness == nil {
		rel.CategoryEffectiveness = make(map[domain.Category]float64)
	}
	next := EMA(rel.Effectiveness(c), ratio)
	rel.CategoryEffectiveness[c] = next
	rel.OutcomeCount++
	return next
}

// EMA is one exponential moving average step at LearningRate.
func EMA(old, observed float64) float64 {
	return old*(1-LearningRate) + observed*LearningRate
}

// Confidence in a learned multiplier, by sample count.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ConfidenceFor maps an outcome sample count to a confidence level.
func ConfidenceFor(samples int) Confidence {
	switch {
	case samples < 5:
		return ConfidenceLow
	case samples < 15:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// CategoryReport is one row of a relationship's learned effectiveness.
type CategoryReport struct {
	Category      domain.Category `json:"category"`
	Effectiveness float64         `json:"effectiveness"`
}

// Report summarizes reciprocity and learning for one relationship.
type Report struct {
	RelationshipID  string           `json:"relationship_id"`
	InitiationRatio float64          `json:"initiation_ratio"`
	Balance         Balance          `json:"balance"`
	Imbalance       Imbalance        `json:"imbalance"`
	OutcomeCount    int              `json:"outcome_count"`
	Confidence      Confidence       `json:"confidence"`
	Categories      []CategoryReport `json:"categories"`
}

// BuildReport assembles the reciprocity report for rel. Every known
// category is listed, defaulting to neutral effectiveness.
func BuildReport(rel *domain.Relationship) Report {
	rep := Report{
		RelationshipID:  rel.ID,
		InitiationRatio: rel.InitiationRatio,
		Balance:         Classify(rel),
		Imbalance:       Assess(rel),
		OutcomeCount:    rel.OutcomeCount,
		Confidence:      ConfidenceFor(rel.OutcomeCount),
	}
	for _, c := range domain.Categories {
		rep.Categories = append(rep.Categories, CategoryReport{Category: c, Effectiveness: rel.Effectiveness(c)})
	}
	return rep
}
