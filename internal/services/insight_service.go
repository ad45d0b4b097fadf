package services

import (
	"context"
	"fmt"
	"slices"

	"lifescore/internal/aggregate"
	"lifescore/internal/core"
	"lifescore/internal/correlation"
	"lifescore/internal/insights"
	"lifescore/internal/log"
	"lifescore/internal/sources"
	"lifescore/internal/trend"
)

// signalReducers says how each known signal is bucketed. Counts add up,
// readings average.
var signalReducers = map[string]aggregate.Reducer{
	sources.MetricMindfulness:    aggregate.Sum,
	sources.MetricCaloricSurplus: aggregate.Sum,
	sources.MetricHydration:      aggregate.Sum,
	sources.MetricStress:         aggregate.Mean,
}

// defaultPairs are read when a query names no correlations. Each is only
// attempted when its signal has data in the window.
var defaultPairs = []insights.CorrelationRequest{
	{Context: correlation.MindfulnessSpending, A: sources.MetricMindfulness, B: string(trend.Spending)},
	{Context: correlation.CaloricImpulse, A: sources.MetricCaloricSurplus, B: string(trend.Count)},
	{Context: correlation.HydrationSpending, A: sources.MetricHydration, B: string(trend.Spending)},
	{Context: correlation.StressSpending, A: sources.MetricStress, B: string(trend.Spending)},
}

// InsightQuery is what a presentation layer asks for.
type InsightQuery struct {
	// AccountID limits transactions and the net worth anchor to one
	// account. Empty means all accounts.
	AccountID    string
	Window       insights.Window
	Policy       aggregate.Policy
	Options      aggregate.Options
	Correlations []insights.CorrelationRequest
}

// InsightService gathers data from the store and runs it through the
// insight computer.
type InsightService struct {
	store    sources.Store
	computer insights.Computer
	logger   *log.Logger
}

func NewInsightService(store sources.Store, computer insights.Computer, logger *log.Logger) *InsightService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &InsightService{
		store:    store,
		computer: computer,
		logger:   logger.WithComponent(log.ComponentInsights),
	}
}

// CatalogVersion reports the version bundles are scored under.
func (s *InsightService) CatalogVersion() int { return s.computer.CatalogVersion() }

// Request loads everything a query needs. Transactions are read from the
// window start onwards so net worth can be anchored on today's balance.
func (s *InsightService) Request(ctx context.Context, q InsightQuery) (insights.Request, error) {
	if err := q.Window.Validate(); err != nil {
		return insights.Request{}, err
	}
	txs, err := s.store.ListTransactions(ctx, sources.TransactionFilter{AccountID: q.AccountID, From: q.Window.From})
	if err != nil {
		return insights.Request{}, fmt.Errorf("list transactions: %w", err)
	}
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return insights.Request{}, fmt.Errorf("list accounts: %w", err)
	}
	if q.AccountID != "" {
		accounts = slices.DeleteFunc(accounts, func(a core.Account) bool { return a.ID != q.AccountID })
	}

	req := insights.Request{
		Transactions: txs,
		Accounts:     accounts,
		Window:       q.Window,
		Policy:       q.Policy,
		Options:      q.Options,
		Correlations: q.Correlations,
	}
	for _, metric := range sources.KnownMetrics() {
		samples, err := s.store.ListSamples(ctx, metric, q.Window.From, q.Window.To)
		if err != nil {
			return insights.Request{}, fmt.Errorf("list %s samples: %w", metric, err)
		}
		req.Auxiliary = append(req.Auxiliary, insights.Auxiliary{
			Name:    metric,
			Samples: samples,
			Reducer: signalReducers[metric],
		})
	}
	return req, nil
}

// Insights computes the bundle for a query. With no explicit correlations
// the default signal pairs are read wherever there is enough data.
func (s *InsightService) Insights(ctx context.Context, q InsightQuery) (insights.Bundle, error) {
	req, err := s.Request(ctx, q)
	if err != nil {
		return insights.Bundle{}, err
	}
	bundle, err := s.computer.ComputeInsights(ctx, req)
	if err != nil {
		return insights.Bundle{}, err
	}

	for _, w := range bundle.Warnings {
		s.logger.WarnContext(ctx, "Transaction scored with degraded input",
			log.FieldTransactionID, w.TransactionID, log.FieldMissing, w.Missing)
	}
	s.logger.DebugContext(ctx, "Insights computed",
		log.FieldCatalogVersion, bundle.CatalogVersion,
		log.FieldBucketPolicy, bundle.Policy,
		log.FieldCount, len(bundle.Scored))

	if len(q.Correlations) == 0 {
		bundle = s.withDefaultCorrelations(ctx, bundle)
	}
	return bundle, nil
}

// Correlate reads one named pair over the query's buckets.
func (s *InsightService) Correlate(ctx context.Context, q InsightQuery, cr insights.CorrelationRequest) (core.CorrelationInsight, error) {
	q.Correlations = []insights.CorrelationRequest{cr}
	bundle, err := s.Insights(ctx, q)
	if err != nil {
		return core.CorrelationInsight{}, err
	}
	return bundle.Correlations[0], nil
}

// withDefaultCorrelations returns a copy of b with the default pairs
// appended. The input may be shared through a cache, so its slices are
// never written.
func (s *InsightService) withDefaultCorrelations(ctx context.Context, b insights.Bundle) insights.Bundle {
	if len(b.Summaries) < 2 {
		return b
	}
	out := slices.Clip(b.Correlations)
	for _, pair := range defaultPairs {
		series, ok := b.Lookup(pair.A)
		if !ok || len(series.Points) == 0 {
			continue
		}
		insight, err := b.Correlate(pair)
		if err != nil {
			s.logger.DebugContext(ctx, "Skipping correlation", log.FieldOperation, log.OpCorrelate,
				"context", pair.Context, log.FieldError, err)
			continue
		}
		out = append(out, insight)
	}
	b.Correlations = out
	return b
}
