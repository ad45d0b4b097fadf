package correlation

import (
	"math"
	"math/rand"
	"testing"

	"lifescore/internal/core"
)

func TestAnalyze_MindfulnessVersusSpendingVariance(t *testing.T) {
	mindful := []float64{6, 5, 4, 3, 8, 7, 5}
	stdDev := []float64{120, 130, 125, 150, 110, 100, 115}

	got, err := Analyze(mindful, stdDev, MindfulnessSpending)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.Direction != core.DirectionNegative {
		t.Errorf("Direction = %s, want negative", got.Direction)
	}
	if got.Strength != core.StrengthStrong {
		t.Errorf("Strength = %s, want Strong", got.Strength)
	}
	// sum of deviation products is -975/7 over 7 samples.
	if want := -975.0 / 49.0; math.Abs(got.Covariance-want) > 1e-9 {
		t.Errorf("Covariance = %v, want %v", got.Covariance, want)
	}
	if got.Message != templates[MindfulnessSpending][core.DirectionNegative] {
		t.Errorf("unexpected message %q", got.Message)
	}
	if got.Context != string(MindfulnessSpending) {
		t.Errorf("Context = %q", got.Context)
	}
}

func TestAnalyze_ArityChecks(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
	}{
		{"length mismatch", []float64{1, 2, 3}, []float64{1, 2}},
		{"empty", nil, nil},
		{"single sample", []float64{1}, []float64{2}},
		{"NaN", []float64{1, math.NaN()}, []float64{1, 2}},
		{"Inf", []float64{1, 2}, []float64{math.Inf(1), 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(tt.a, tt.b, Generic)
			if !core.IsInputError(err) {
				t.Fatalf("expected InputError, got %v", err)
			}
		})
	}
}

func TestAnalyze_Symmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		n := 2 + rng.Intn(20)
		a, b := make([]float64, n), make([]float64, n)
		for j := range a {
			a[j] = rng.Float64() * 20
			b[j] = rng.Float64()*40 - 20
		}
		ab, err := Analyze(a, b, CaloricImpulse)
		if err != nil {
			t.Fatal(err)
		}
		ba, err := Analyze(b, a, CaloricImpulse)
		if err != nil {
			t.Fatal(err)
		}
		if ab.Strength != ba.Strength || ab.Direction != ba.Direction {
			t.Fatalf("asymmetric result: %+v vs %+v", ab, ba)
		}
	}
}

func TestStrengthThresholds(t *testing.T) {
	tests := []struct {
		cov  float64
		want core.Strength
	}{
		{0, core.StrengthWeak},
		{8, core.StrengthWeak},
		{-8.01, core.StrengthModerate},
		{15, core.StrengthModerate},
		{15.01, core.StrengthStrong},
		{-100, core.StrengthStrong},
	}
	for _, tt := range tests {
		if got := StrengthOf(tt.cov); got != tt.want {
			t.Errorf("StrengthOf(%v) = %s, want %s", tt.cov, got, tt.want)
		}
	}
}

func TestDirection(t *testing.T) {
	got, err := Analyze([]float64{1, 2, 3}, []float64{5, 5, 5}, StressSpending)
	if err != nil {
		t.Fatal(err)
	}
	if got.Direction != core.DirectionNone || got.Strength != core.StrengthWeak {
		t.Errorf("constant series should give none/Weak, got %+v", got)
	}

	got, err = Analyze([]float64{1, 2, 3, 4}, []float64{10, 20, 30, 40}, HydrationSpending)
	if err != nil {
		t.Fatal(err)
	}
	// covariance = 12.5
	if got.Direction != core.DirectionPositive || got.Strength != core.StrengthModerate {
		t.Errorf("unexpected insight %+v", got)
	}
}

func TestMessage_UnknownContextFallsBack(t *testing.T) {
	got := Message(Context("sleep_vs_coffee"), core.DirectionPositive)
	if got != templates[Generic][core.DirectionPositive] {
		t.Errorf("unexpected fallback message %q", got)
	}
	for _, c := range Contexts() {
		for _, d := range []core.Direction{core.DirectionPositive, core.DirectionNegative, core.DirectionNone} {
			if Message(c, d) == "" {
				t.Errorf("missing template for %s/%s", c, d)
			}
		}
	}
}
