package clean

import (
	"fmt"
	"time"

	"novacred-engine/internal/domain"
)

// Bound describes an impossible value: a value for which
// "value Op Threshold" holds is screened out.
type Bound struct {
	Field     domain.Field
	Op        string
	Threshold float64
}

// Violates reports whether v is impossible under b.
func (b Bound) Violates(v float64) bool {
	switch b.Op {
	case "<":
		return v < b.Threshold
	case "<=":
		return v <= b.Threshold
	case ">":
		return v > b.Threshold
	case ">=":
		return v >= b.Threshold
	}
	return false
}

func (b Bound) String() string {
	return fmt.Sprintf("%s %s %s", b.Field, b.Op, domain.FormatFloat(b.Threshold))
}

type Options struct {
	// ReferenceDate anchors age derivation so reruns never depend on the
	// wall clock.
	ReferenceDate       time.Time
	MinAge              int
	MaxAge              int
	AdultAge            int
	CreditOutlierMonths float64
	Bounds              []Bound
	// Strict makes Run return a *ReviewError when any record needs review.
	Strict bool
}

func DefaultBounds() []Bound {
	return []Bound{
		{Field: domain.FieldCreditHistoryMonths, Op: "<", Threshold: 0},
		{Field: domain.FieldDebtToIncome, Op: ">", Threshold: 1},
		{Field: domain.FieldSavingsBalance, Op: "<", Threshold: 0},
		{Field: domain.FieldAnnualIncome, Op: "<=", Threshold: 0},
	}
}

func DefaultOptions() Options {
	return Options{
		ReferenceDate:       time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		MinAge:              0,
		MaxAge:              120,
		AdultAge:            18,
		CreditOutlierMonths: 120,
		Bounds:              DefaultBounds(),
		Strict:              true,
	}
}
