package domain

import "time"

// Outcome bridges a completed interaction to its measured effect on the
// relationship score. It is pending until MeasuredAt is set.
type Outcome struct {
	ID                 string
	InteractionID      string
	RelationshipID     string
	Category           Category
	LoggedAt           time.Time
	ScoreBefore        float64
	ExpectedImpact     float64
	ScoreAfter         float64
	ActualImpact       float64
	EffectivenessRatio float64
	MeasuredAt         *time.Time
	CreatedAt          time.Time
}

// Pending reports whether the outcome still awaits measurement.
func (o *Outcome) Pending() bool { return o.MeasuredAt == nil }
