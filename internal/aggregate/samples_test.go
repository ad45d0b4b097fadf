package aggregate

import (
	"testing"

	"lifescore/internal/core"
)

func TestSamples(t *testing.T) {
	in := []core.Sample{
		{Date: core.NewDate(2025, 1, 20), Value: 10},
		{Date: core.NewDate(2025, 1, 6), Value: 5},
		{Date: core.NewDate(2025, 1, 7), Value: 15},
		{Date: core.NewDate(2025, 2, 1), Value: 4},
	}

	tests := []struct {
		name    string
		policy  Policy
		reducer Reducer
		keys    []string
		values  []float64
	}{
		{"weekly sum", Weekly, Sum, []string{"2025-W02", "2025-W04", "2025-W05"}, []float64{20, 10, 4}},
		{"monthly mean", Monthly, Mean, []string{"2025-01", "2025-02"}, []float64{10, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Samples("mindfulness", in, tt.policy, tt.reducer)
			if err != nil {
				t.Fatalf("Samples() error = %v", err)
			}
			if got.Metric != "mindfulness" {
				t.Errorf("Metric = %s", got.Metric)
			}
			keys, values := got.Keys(), got.Values()
			if len(keys) != len(tt.keys) {
				t.Fatalf("keys = %v, want %v", keys, tt.keys)
			}
			for i := range tt.keys {
				if keys[i] != tt.keys[i] || values[i] != tt.values[i] {
					t.Errorf("point %d = %s/%v, want %s/%v", i, keys[i], values[i], tt.keys[i], tt.values[i])
				}
			}
		})
	}
}

func TestSamples_EmptyAndInvalid(t *testing.T) {
	got, err := Samples("stress", nil, Daily, Mean)
	if err != nil || got.Points == nil || len(got.Points) != 0 {
		t.Fatalf("expected empty series, got %#v, %v", got, err)
	}
	if _, err := Samples("stress", nil, Policy("hourly"), Mean); !core.IsInputError(err) {
		t.Errorf("expected InputError, got %v", err)
	}
}
