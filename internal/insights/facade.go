// Package insights composes classification, aggregation, trend building and
// correlation into one result bundle for the presentation layer.
package insights

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"lifescore/internal/aggregate"
	"lifescore/internal/classifier"
	"lifescore/internal/core"
	"lifescore/internal/correlation"
	"lifescore/internal/trend"
)

// Window bounds a request by transaction date, both ends inclusive. A zero
// end is unbounded.
type Window struct {
	From core.Date `json:"from"`
	To   core.Date `json:"to"`
}

// Validate rejects a window whose start is after its end.
func (w Window) Validate() error {
	if !w.From.IsZero() && !w.To.IsZero() && w.From.After(w.To.Time) {
		return core.NewInputError("compute insights", "window start %s is after end %s", w.From, w.To)
	}
	return nil
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d core.Date) bool {
	if !w.From.IsZero() && d.Before(w.From.Time) {
		return false
	}
	if !w.To.IsZero() && d.After(w.To.Time) {
		return false
	}
	return true
}

// Auxiliary is a behavioural signal supplied by a collaborator, such as
// mindfulness minutes or hydration glasses, as dated samples.
type Auxiliary struct {
	Name    string
	Samples []core.Sample
	Reducer aggregate.Reducer
}

// CorrelationRequest pairs two named series under a message context. A
// name is either a trend metric (financial, spending, net_worth, ...) or
// the name of an Auxiliary signal in the same request.
type CorrelationRequest struct {
	Context correlation.Context
	A, B    string
}

// Request is everything one insight computation needs. The facade never
// fetches data itself.
type Request struct {
	Transactions []core.Transaction
	Accounts     []core.Account
	Window       Window
	Policy       aggregate.Policy
	Options      aggregate.Options
	Auxiliary    []Auxiliary
	Correlations []CorrelationRequest
}

// Bundle is the composed, read-only result of ComputeInsights. Bundles may
// be shared between callers and must not be mutated.
type Bundle struct {
	CatalogVersion int                         `json:"catalog_version"`
	Policy         aggregate.Policy            `json:"policy"`
	Window         Window                      `json:"window"`
	Scored         []core.ScoredTransaction    `json:"-"`
	Warnings       []core.DegradedInputWarning `json:"warnings"`
	Summaries      []core.PeriodSummary        `json:"summaries"`
	Series         []core.HistoricalSeries     `json:"series"`
	Auxiliary      []core.HistoricalSeries     `json:"auxiliary"`
	Correlations   []core.CorrelationInsight   `json:"correlations"`
	AccountTotal   decimal.Decimal             `json:"account_total"`
}

// Lookup returns the trend or auxiliary series with the given name.
func (b Bundle) Lookup(name string) (core.HistoricalSeries, bool) {
	for _, s := range b.Series {
		if s.Metric == name {
			return s, true
		}
	}
	for _, s := range b.Auxiliary {
		if s.Metric == name {
			return s, true
		}
	}
	return core.HistoricalSeries{}, false
}

// SelectSeries returns a copy of b keeping only the trend series of the
// given metrics. An empty selection keeps every series. b is not written.
func (b Bundle) SelectSeries(metrics []trend.Metric) Bundle {
	if len(metrics) == 0 {
		return b
	}
	b.Series = slices.DeleteFunc(slices.Clone(b.Series), func(s core.HistoricalSeries) bool {
		return !slices.Contains(metrics, trend.Metric(s.Metric))
	})
	return b
}

// BucketKeys returns the keys of the bundle's summaries in order.
func (b Bundle) BucketKeys() []string {
	keys := make([]string, len(b.Summaries))
	for i, s := range b.Summaries {
		keys[i] = s.BucketKey
	}
	return keys
}

// Correlate aligns the two named series on the bundle's buckets and reads
// their covariance.
func (b Bundle) Correlate(cr CorrelationRequest) (core.CorrelationInsight, error) {
	sa, ok := b.Lookup(cr.A)
	if !ok {
		return core.CorrelationInsight{}, core.NewInputError("compute insights", "unknown series %q", cr.A)
	}
	sb, ok := b.Lookup(cr.B)
	if !ok {
		return core.CorrelationInsight{}, core.NewInputError("compute insights", "unknown series %q", cr.B)
	}
	keys := b.BucketKeys()
	return correlation.Analyze(trend.Align(sa, keys), trend.Align(sb, keys), cr.Context)
}

// Computer is implemented by Facade and its caching decorator.
type Computer interface {
	ComputeInsights(ctx context.Context, req Request) (Bundle, error)
	CatalogVersion() int
}

// Facade orchestrates the scoring pipeline. It holds nothing but its
// classifier and is safe for concurrent use.
type Facade struct {
	classifier *classifier.Classifier
}

// New returns a facade scoring with c. A nil classifier uses the default
// catalog.
func New(c *classifier.Classifier) *Facade {
	if c == nil {
		c = classifier.New(nil)
	}
	return &Facade{classifier: c}
}

func (f *Facade) CatalogVersion() int { return f.classifier.Catalog().Version() }

// ComputeInsights scores the transactions inside the window, buckets them,
// builds every trend series and runs the requested correlations.
func (f *Facade) ComputeInsights(ctx context.Context, req Request) (Bundle, error) {
	if err := req.Window.Validate(); err != nil {
		return Bundle{}, err
	}
	if _, err := aggregate.GetBucketer(req.Policy); err != nil {
		return Bundle{}, core.NewInputError("compute insights", "%v", err)
	}

	inWindow := make([]core.Transaction, 0, len(req.Transactions))
	for _, tx := range req.Transactions {
		if req.Window.Contains(tx.Date) {
			inWindow = append(inWindow, tx)
		}
	}

	scored, warnings, err := f.classifier.ScoreAll(ctx, inWindow)
	if err != nil {
		return Bundle{}, fmt.Errorf("compute insights: %w", err)
	}
	summaries, err := aggregate.AggregateWith(scored, req.Policy, req.Options)
	if err != nil {
		return Bundle{}, err
	}

	bundle := Bundle{
		CatalogVersion: f.CatalogVersion(),
		Policy:         req.Policy,
		Window:         req.Window,
		Scored:         scored,
		Warnings:       warnings,
		Summaries:      summaries,
		AccountTotal:   accountTotal(req.Accounts),
		Correlations:   []core.CorrelationInsight{},
	}

	for _, m := range trend.Metrics() {
		if m == trend.NetWorth {
			opening := bundle.AccountTotal.Sub(netSince(req.Transactions, req.Window.From, req.Options.IncludeFailed))
			bundle.Series = append(bundle.Series, trend.BuildNetWorth(summaries, opening))
			continue
		}
		s, err := trend.BuildSeries(summaries, m)
		if err != nil {
			return Bundle{}, err
		}
		bundle.Series = append(bundle.Series, s)
	}

	bundle.Auxiliary = make([]core.HistoricalSeries, 0, len(req.Auxiliary))
	for _, aux := range req.Auxiliary {
		samples := make([]core.Sample, 0, len(aux.Samples))
		for _, s := range aux.Samples {
			if req.Window.Contains(s.Date) {
				samples = append(samples, s)
			}
		}
		s, err := aggregate.Samples(aux.Name, samples, req.Policy, aux.Reducer)
		if err != nil {
			return Bundle{}, err
		}
		bundle.Auxiliary = append(bundle.Auxiliary, s)
	}

	for _, cr := range req.Correlations {
		insight, err := bundle.Correlate(cr)
		if err != nil {
			return Bundle{}, err
		}
		bundle.Correlations = append(bundle.Correlations, insight)
	}

	return bundle, nil
}

func accountTotal(accounts []core.Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}

// netSince sums the money moved on or after from. Subtracting it from the
// current balance gives the balance the net worth series opens with, so its
// last point matches today's balance when no later transactions exist.
func netSince(txs []core.Transaction, from core.Date, includeFailed bool) decimal.Decimal {
	net := decimal.Zero
	for _, tx := range txs {
		if tx.Status == core.StatusFailed && !includeFailed {
			continue
		}
		if !from.IsZero() && tx.Date.Before(from.Time) {
			continue
		}
		net = net.Add(tx.Amount)
	}
	return net
}
