// Package scoring computes the display-time evaluation result. The backend
// computes the authoritative value on submission; this is a preview.
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/okian/skillcert/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultPrecision = 2
)

// Formula is the per-evaluation result formula:
// percent = (obtained / Divisor) * Multiplier, rounded to Precision places.
type Formula struct {
	Divisor        float64
	Multiplier     float64
	MinimumPassing float64
	Precision      int32
}

// Option applies a configuration option to a Formula.
type Option func(*Formula)

// WithPrecision sets the number of decimal places kept in the percentage.
func WithPrecision(places int32) Option {
	return func(f *Formula) {
		if places >= 0 {
			f.Precision = places
		}
	}
}

// FromInstance builds the formula of an evaluation instance.
func FromInstance(inst model.EvaluationInstance, opts ...Option) Formula {
	f := Formula{
		Divisor:        inst.FormulaDivisor,
		Multiplier:     inst.FormulaMultiplier,
		MinimumPassing: inst.MinimumPassing,
		Precision:      defaultPrecision,
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Percent returns the result percentage for the obtained points. A divisor
// that is not positive yields 0; a negative multiplier is treated as 0 so the
// result never decreases as points increase. Non-finite parameters yield 0.
func (f Formula) Percent(obtained int) float64 {
	if !(f.Divisor > 0) || !(f.Multiplier > 0) || obtained <= 0 {
		return 0
	}
	if math.IsInf(f.Divisor, 0) || math.IsInf(f.Multiplier, 0) {
		return 0
	}
	p := decimal.NewFromInt(int64(obtained)).
		Div(decimal.NewFromFloat(f.Divisor)).
		Mul(decimal.NewFromFloat(f.Multiplier)).
		Round(f.Precision)
	return p.InexactFloat64()
}

// Passed reports whether a percentage meets the minimum passing mark.
func (f Formula) Passed(percent float64) bool {
	return percent >= f.MinimumPassing
}

// Obtained sums the scores. Unscored entries (nil) count as 0.
func Obtained(scores []*model.Score) int {
	total := 0
	for _, s := range scores {
		if s != nil {
			total += int(*s)
		}
	}
	return total
}

// MaxPoints is the highest obtainable sum for n questions.
func MaxPoints(n int) int { return n * 3 }
