// Package classifier turns transactions into ScoreTriples using a rule
// catalog. Classification is a pure function of (transaction, catalog) and
// safe for concurrent use.
package classifier

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"lifescore/internal/core"
	"lifescore/internal/rules"
)

// chunkSize is the number of transactions one goroutine scores in ScoreAll.
const chunkSize = 512

// Classifier scores transactions against one catalog.
type Classifier struct {
	catalog *rules.Catalog
}

// New returns a classifier bound to catalog. A nil catalog selects the
// built-in default.
func New(catalog *rules.Catalog) *Classifier {
	if catalog == nil {
		catalog = rules.Default()
	}
	return &Classifier{catalog: catalog}
}

// Catalog returns the catalog the classifier scores with.
func (c *Classifier) Catalog() *rules.Catalog { return c.catalog }

// Classify scores one transaction. Each dimension is computed on its own:
//
//  1. start from the baseline;
//  2. a category override replaces the baseline and skips additive rules;
//  3. otherwise every matching additive rule adds its delta, in order;
//  4. the highest crossed magnitude tier is subtracted;
//  5. the result is clamped to [0,100].
func (c *Classifier) Classify(tx core.Transaction) core.ScoreTriple {
	return core.ScoreTriple{
		Financial: c.score(rules.Financial, tx),
		Health:    c.score(rules.Health, tx),
		Eco:       c.score(rules.Eco, tx),
	}
}

// Explain is like Classify but also returns the names of the rules that
// fired per dimension, for diagnostics.
func (c *Classifier) Explain(tx core.Transaction) (core.ScoreTriple, map[string][]string) {
	fired := make(map[string][]string, len(rules.Dimensions))
	for _, d := range rules.Dimensions {
		if v, ok := c.catalog.Override(d, tx.Category.Name); ok {
			fired[d.String()] = append(fired[d.String()], fmt.Sprintf("override:%s=%d", tx.Category.Name, v))
		} else {
			for _, r := range c.catalog.Rules(d) {
				if r.Matches(tx) {
					fired[d.String()] = append(fired[d.String()], fmt.Sprintf("%s%+d", r.Name(), r.Delta()))
				}
			}
		}
		if p := c.catalog.Penalty(d, tx.Amount); p > 0 {
			fired[d.String()] = append(fired[d.String()], fmt.Sprintf("magnitude-%d", p))
		}
	}
	return c.Classify(tx), fired
}

// Inspect classifies a transaction and reports a warning when optional
// fields were missing.
func (c *Classifier) Inspect(tx core.Transaction) (core.ScoredTransaction, *core.DegradedInputWarning) {
	scored := core.ScoredTransaction{
		Transaction:    tx,
		Scores:         c.Classify(tx),
		CatalogVersion: c.catalog.Version(),
	}
	if missing := tx.Missing(); len(missing) > 0 {
		return scored, &core.DegradedInputWarning{TransactionID: tx.ID, Missing: missing}
	}
	return scored, nil
}

// ScoreAll classifies a batch. The output keeps the input order; a degraded
// transaction adds a warning but never aborts the batch. The only error is
// context cancellation.
func (c *Classifier) ScoreAll(ctx context.Context, txs []core.Transaction) ([]core.ScoredTransaction, []core.DegradedInputWarning, error) {
	out := make([]core.ScoredTransaction, len(txs))
	warned := make([]*core.DegradedInputWarning, len(txs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(txs); start += chunkSize {
		start := start
		end := min(start+chunkSize, len(txs))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				out[i], warned[i] = c.Inspect(txs[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("score transactions: %w", err)
	}

	var warnings []core.DegradedInputWarning
	for _, w := range warned {
		if w != nil {
			warnings = append(warnings, *w)
		}
	}
	return out, warnings, nil
}

func (c *Classifier) score(d rules.Dimension, tx core.Transaction) int {
	score := rules.Baseline
	if v, ok := c.catalog.Override(d, tx.Category.Name); ok {
		score = v
	} else {
		for _, r := range c.catalog.Rules(d) {
			if r.Matches(tx) {
				score += r.Delta()
			}
		}
	}
	score -= c.catalog.Penalty(d, tx.Amount)
	return core.Clamp(score)
}
