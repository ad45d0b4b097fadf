package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lifescore/internal/core"
)

// Uncategorized labels transactions without a category in breakdowns.
const Uncategorized = "Uncategorized"

const (
	// Mean averages each dimension over the bucket, unweighted by amount.
	Mean Reducer = iota
	// Sum adds the dimension scores of the bucket.
	Sum
)

// Reducer selects how scores of one bucket are combined.
type Reducer int

// Options tune Aggregate. The zero value gives the default behaviour:
// unweighted mean, failed transactions skipped.
type Options struct {
	Reducer       Reducer
	IncludeFailed bool
}

type bucket struct {
	start      time.Time
	count      int
	financial  int
	health     int
	eco        int
	categories map[string]core.CategoryTotal
	inflow     decimal.Decimal
	outflow    decimal.Decimal
}

// Aggregate groups scored transactions into calendar buckets and returns
// them in ascending chronological order regardless of input order. Buckets
// without transactions are never emitted; an empty input yields an empty,
// non-nil slice.
func Aggregate(scored []core.ScoredTransaction, policy Policy) ([]core.PeriodSummary, error) {
	return AggregateWith(scored, policy, Options{})
}

// AggregateWith is Aggregate with explicit options.
func AggregateWith(scored []core.ScoredTransaction, policy Policy, opts Options) ([]core.PeriodSummary, error) {
	b, err := GetBucketer(policy)
	if err != nil {
		return nil, core.NewInputError("aggregate", "%v", err)
	}
	if opts.Reducer != Mean && opts.Reducer != Sum {
		return nil, core.NewInputError("aggregate", "unknown reducer %d", opts.Reducer)
	}

	buckets := make(map[time.Time]*bucket)
	for _, st := range scored {
		tx := st.Transaction
		if tx.Status == core.StatusFailed && !opts.IncludeFailed {
			continue
		}
		start := b.Start(tx.Date.Time)
		bk, ok := buckets[start]
		if !ok {
			bk = &bucket{start: start, categories: make(map[string]core.CategoryTotal)}
			buckets[start] = bk
		}
		bk.add(st)
	}

	out := make([]core.PeriodSummary, 0, len(buckets))
	for _, bk := range buckets {
		out = append(out, bk.summary(b, opts.Reducer))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	return out, nil
}

func (b *bucket) add(st core.ScoredTransaction) {
	tx := st.Transaction
	b.count++
	b.financial += st.Scores.Financial
	b.health += st.Scores.Health
	b.eco += st.Scores.Eco

	name := strings.TrimSpace(tx.Category.Name)
	if name == "" {
		name = Uncategorized
	}
	ct := b.categories[name]
	ct.Spent = ct.Spent.Add(tx.Amount.Abs())
	ct.Count++
	b.categories[name] = ct

	if tx.Outflow() {
		b.outflow = b.outflow.Add(tx.Amount.Abs())
	} else {
		b.inflow = b.inflow.Add(tx.Amount)
	}
}

func (b *bucket) summary(bk Bucketer, r Reducer) core.PeriodSummary {
	agg := core.DimensionAggregate{
		Financial: float64(b.financial),
		Health:    float64(b.health),
		Eco:       float64(b.eco),
	}
	if r == Mean {
		n := float64(b.count)
		agg.Financial /= n
		agg.Health /= n
		agg.Eco /= n
	}
	return core.PeriodSummary{
		BucketKey:        bk.Key(b.start),
		BucketStart:      b.start,
		TransactionCount: b.count,
		Scores:           agg,
		Categories:       b.categories,
		Inflow:           b.inflow,
		Outflow:          b.outflow,
		Net:              b.inflow.Sub(b.outflow),
	}
}
