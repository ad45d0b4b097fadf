package aggregate

import (
	"sort"
	"time"

	"lifescore/internal/core"
)

// Samples buckets auxiliary readings with the same calendar policy used for
// transactions so the result can be aligned with transaction summaries.
// Minutes and glass counts want Sum; stress readings want Mean.
func Samples(name string, samples []core.Sample, policy Policy, r Reducer) (core.HistoricalSeries, error) {
	b, err := GetBucketer(policy)
	if err != nil {
		return core.HistoricalSeries{}, core.NewInputError("aggregate samples", "%v", err)
	}
	if r != Mean && r != Sum {
		return core.HistoricalSeries{}, core.NewInputError("aggregate samples", "unknown reducer %d", r)
	}

	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[time.Time]*acc)
	for _, s := range samples {
		start := b.Start(s.Date.Time)
		a, ok := buckets[start]
		if !ok {
			a = &acc{}
			buckets[start] = a
		}
		a.sum += s.Value
		a.n++
	}

	starts := make([]time.Time, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	series := core.HistoricalSeries{Metric: name, Points: make([]core.SeriesPoint, 0, len(starts))}
	for _, start := range starts {
		a := buckets[start]
		v := a.sum
		if r == Mean {
			v /= float64(a.n)
		}
		series.Points = append(series.Points, core.SeriesPoint{BucketKey: b.Key(start), Value: v})
	}
	return series, nil
}
