// Package trend projects ordered period summaries into chartable series.
package trend

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"lifescore/internal/core"
)

// Metric selects what a series tracks.
type Metric string

const (
	Financial Metric = "financial"
	Health    Metric = "health"
	Eco       Metric = "eco"
	// Spending is the per-bucket outflow.
	Spending Metric = "spending"
	// Count is the per-bucket number of transactions.
	Count Metric = "count"
	// NetWorth is the running total of bucket net flows. It is the only
	// cumulative metric.
	NetWorth Metric = "net_worth"
)

// Metrics lists every supported metric.
func Metrics() []Metric {
	return []Metric{Financial, Health, Eco, Spending, Count, NetWorth}
}

// ParseMetric maps a metric name to a Metric.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Metrics() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// ParseMetrics parses a comma-separated list of metric names. Blank entries
// are skipped and duplicates collapse.
func ParseMetrics(list string) ([]Metric, error) {
	var out []Metric
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		m, err := ParseMetric(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// BuildSeries projects one metric out of each summary, keeping the input
// order. An empty input yields an empty series. NetWorth starts from zero;
// use BuildNetWorth to anchor it on an opening balance.
func BuildSeries(summaries []core.PeriodSummary, metric Metric) (core.HistoricalSeries, error) {
	if metric == NetWorth {
		return BuildNetWorth(summaries, decimal.Zero), nil
	}

	project, err := projector(metric)
	if err != nil {
		return core.HistoricalSeries{}, err
	}
	series := core.HistoricalSeries{Metric: string(metric), Points: make([]core.SeriesPoint, 0, len(summaries))}
	for _, s := range summaries {
		series.Points = append(series.Points, core.SeriesPoint{BucketKey: s.BucketKey, Value: project(s)})
	}
	return series, nil
}

// BuildNetWorth accumulates bucket net flows on top of opening.
func BuildNetWorth(summaries []core.PeriodSummary, opening decimal.Decimal) core.HistoricalSeries {
	series := core.HistoricalSeries{Metric: string(NetWorth), Points: make([]core.SeriesPoint, 0, len(summaries))}
	running := opening
	for _, s := range summaries {
		running = running.Add(s.Net)
		series.Points = append(series.Points, core.SeriesPoint{BucketKey: s.BucketKey, Value: core.Float(running)})
	}
	return series
}

func projector(metric Metric) (func(core.PeriodSummary) float64, error) {
	switch metric {
	case Financial:
		return func(s core.PeriodSummary) float64 { return s.Scores.Financial }, nil
	case Health:
		return func(s core.PeriodSummary) float64 { return s.Scores.Health }, nil
	case Eco:
		return func(s core.PeriodSummary) float64 { return s.Scores.Eco }, nil
	case Spending:
		return func(s core.PeriodSummary) float64 { return core.Float(s.Outflow) }, nil
	case Count:
		return func(s core.PeriodSummary) float64 { return float64(s.TransactionCount) }, nil
	default:
		return nil, core.NewInputError("build series", "unknown metric %q", metric)
	}
}

// Align lays a sparse series onto the given bucket keys so it can be paired
// with another series for correlation. Keys absent from the series get 0.
func Align(series core.HistoricalSeries, keys []string) []float64 {
	byKey := make(map[string]float64, len(series.Points))
	for _, p := range series.Points {
		byKey[p.BucketKey] += p.Value
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out
}
