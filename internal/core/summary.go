package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinScore = 0
	MaxScore = 100
)

// ScoreTriple holds the three independent dimension scores of a transaction.
// The dimensions are never folded into a single number here.
type ScoreTriple struct {
	Financial int `json:"financial"`
	Health    int `json:"health"`
	Eco       int `json:"eco"`
}

// Clamp truncates a raw score into [MinScore, MaxScore].
func Clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// ScoredTransaction pairs a transaction with the scores the classifier
// produced under a given catalog version. Re-scoring yields a new value.
type ScoredTransaction struct {
	Transaction    Transaction
	Scores         ScoreTriple
	CatalogVersion int
}

// DimensionAggregate is the per-bucket reduction of each dimension.
type DimensionAggregate struct {
	Financial float64 `json:"financial"`
	Health    float64 `json:"health"`
	Eco       float64 `json:"eco"`
}

// CategoryTotal is the spent amount and transaction count of one category
// within a bucket.
type CategoryTotal struct {
	Spent decimal.Decimal `json:"spent"`
	Count int             `json:"count"`
}

// PeriodSummary is a compact summary for one calendar bucket.
type PeriodSummary struct {
	BucketKey        string                   `json:"bucket_key"`
	BucketStart      time.Time                `json:"bucket_start"`
	TransactionCount int                      `json:"transaction_count"`
	Scores           DimensionAggregate       `json:"scores"`
	Categories       map[string]CategoryTotal `json:"categories"`
	Inflow           decimal.Decimal          `json:"inflow"`
	Outflow          decimal.Decimal          `json:"outflow"`
	Net              decimal.Decimal          `json:"net"`
}

// SeriesPoint is one (bucket, value) pair of a trend series.
type SeriesPoint struct {
	BucketKey string  `json:"bucket_key"`
	Value     float64 `json:"value"`
}

// HistoricalSeries is an ordered, ascending-time sequence of points for one
// tracked metric.
type HistoricalSeries struct {
	Metric string        `json:"metric"`
	Points []SeriesPoint `json:"points"`
}

// Values returns the series values in order.
func (s HistoricalSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Keys returns the series bucket keys in order.
func (s HistoricalSeries) Keys() []string {
	out := make([]string, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.BucketKey
	}
	return out
}

const (
	StrengthWeak     Strength = "Weak"
	StrengthModerate Strength = "Moderate"
	StrengthStrong   Strength = "Strong"

	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNone     Direction = "none"
)

type (
	Strength  string
	Direction string
)

// CorrelationInsight is the qualitative reading of two aligned series.
type CorrelationInsight struct {
	Context    string    `json:"context"`
	Strength   Strength  `json:"strength"`
	Direction  Direction `json:"direction"`
	Covariance float64   `json:"covariance"`
	Message    string    `json:"message"`
}

// Sample is one dated reading of an auxiliary signal such as mindfulness
// minutes or glasses of water.
type Sample struct {
	Date  Date    `json:"date"`
	Value float64 `json:"value"`
}
