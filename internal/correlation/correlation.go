// Package correlation reads the joint variability of two aligned series as
// a qualitative insight.
//
// The measure is the population covariance, deliberately not normalised by
// the standard deviations: the strength thresholds below are calibrated
// against raw covariance of the behavioural series this product tracks.
package correlation

import (
	"math"

	"lifescore/internal/core"
)

// Fixed strength thresholds on |covariance|.
const (
	StrongThreshold   = 15.0
	ModerateThreshold = 8.0
	// Epsilon separates a signed direction from "none".
	Epsilon = 1e-9
)

// Context names the pair of signals being compared. It selects the message
// template and is supplied by the caller, never inferred.
type Context string

const (
	MindfulnessSpending Context = "mindfulness_spending"
	CaloricImpulse      Context = "caloric_impulse"
	HydrationSpending   Context = "hydration_spending"
	StressSpending      Context = "stress_spending"
	Generic             Context = "generic"
)

// Contexts lists the contexts with dedicated templates.
func Contexts() []Context {
	return []Context{MindfulnessSpending, CaloricImpulse, HydrationSpending, StressSpending, Generic}
}

var templates = map[Context]map[core.Direction]string{
	MindfulnessSpending: {
		core.DirectionPositive: "More mindful minutes tend to come with more spending variability.",
		core.DirectionNegative: "On weeks you practise mindfulness more, your spending is steadier.",
		core.DirectionNone:     "Mindfulness practice shows no clear link to your spending pattern yet.",
	},
	CaloricImpulse: {
		core.DirectionPositive: "Days with a caloric surplus line up with more impulse purchases.",
		core.DirectionNegative: "Days with a caloric surplus line up with fewer impulse purchases.",
		core.DirectionNone:     "Caloric surplus and impulse purchases move independently.",
	},
	HydrationSpending: {
		core.DirectionPositive: "Better hydrated periods coincide with higher spending.",
		core.DirectionNegative: "Better hydrated periods coincide with lower spending.",
		core.DirectionNone:     "Hydration habits show no clear link to spending.",
	},
	StressSpending: {
		core.DirectionPositive: "Higher stress readings coincide with higher spending.",
		core.DirectionNegative: "Higher stress readings coincide with lower spending.",
		core.DirectionNone:     "Stress readings show no clear link to spending.",
	},
	Generic: {
		core.DirectionPositive: "These two signals tend to rise and fall together.",
		core.DirectionNegative: "When one of these signals rises, the other tends to fall.",
		core.DirectionNone:     "These two signals show no clear relationship.",
	},
}

// Analyze computes the covariance of a and b and labels it. Both series
// must have the same length of at least two finite samples.
func Analyze(a, b []float64, ctx Context) (core.CorrelationInsight, error) {
	if len(a) != len(b) {
		return core.CorrelationInsight{}, core.NewInputError("analyze", "series length mismatch: %d != %d", len(a), len(b))
	}
	if len(a) < 2 {
		return core.CorrelationInsight{}, core.NewInputError("analyze", "need at least 2 samples, got %d", len(a))
	}
	for i := range a {
		if !finite(a[i]) || !finite(b[i]) {
			return core.CorrelationInsight{}, core.NewInputError("analyze", "non-finite sample at index %d", i)
		}
	}

	cov := Covariance(a, b)
	direction := DirectionOf(cov)
	return core.CorrelationInsight{
		Context:    string(ctx),
		Strength:   StrengthOf(cov),
		Direction:  direction,
		Covariance: cov,
		Message:    Message(ctx, direction),
	}, nil
}

// Covariance returns mean((a_i - mean a) * (b_i - mean b)). Callers must
// pass series of equal, non-zero length.
func Covariance(a, b []float64) float64 {
	n := float64(len(a))
	ma, mb := mean(a), mean(b)
	var sum float64
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / n
}

// StrengthOf labels the magnitude of a covariance.
func StrengthOf(cov float64) core.Strength {
	abs := math.Abs(cov)
	switch {
	case abs > StrongThreshold:
		return core.StrengthStrong
	case abs > ModerateThreshold:
		return core.StrengthModerate
	default:
		return core.StrengthWeak
	}
}

// DirectionOf labels the sign of a covariance.
func DirectionOf(cov float64) core.Direction {
	switch {
	case cov > Epsilon:
		return core.DirectionPositive
	case cov < -Epsilon:
		return core.DirectionNegative
	default:
		return core.DirectionNone
	}
}

// Message picks the template for a context and direction, falling back to
// the generic wording for contexts without their own.
func Message(ctx Context, d core.Direction) string {
	if byDir, ok := templates[ctx]; ok {
		return byDir[d]
	}
	return templates[Generic][d]
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
