package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lifescore/internal/aggregate"
	"lifescore/internal/core"
	"lifescore/internal/correlation"
	"lifescore/internal/insights"
	"lifescore/internal/log"
	"lifescore/internal/rules"
	"lifescore/internal/services"
	"lifescore/internal/sources/memory"
	"lifescore/internal/trend"
)

// ─── classify ───────────────────────────────────────────────────────────────

func newClassifyCmd(a *app) *cobra.Command {
	var (
		in      services.NewTransaction
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Score one transaction without storing it",
		Example: `  lifescore-cli classify --merchant "Whole Foods" --category Groceries --amount -45.00
  lifescore-cli classify --merchant Shell --amount -60 --date 2025-03-10 --explain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Date == "" {
				in.Date = time.Now().Format("2006-01-02")
			}
			scored, trace, err := a.runtime.Transactions.Classify(in)
			if err != nil {
				return err
			}
			out := map[string]any{
				"scores":          scored.Scores,
				"catalog_version": scored.CatalogVersion,
			}
			if missing := scored.Transaction.Missing(); len(missing) > 0 {
				out["missing"] = missing
			}
			if explain {
				out["trace"] = trace
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Merchant, "merchant", "", "merchant name")
	f.StringVar(&in.Category, "category", "", "category name")
	f.StringVar(&in.Amount, "amount", "", "signed amount, negative for outflows")
	f.StringVar(&in.Date, "date", "", "YYYY-MM-DD, default today")
	f.StringVar(&in.Status, "status", "", "completed, pending or failed")
	f.BoolVar(&explain, "explain", false, "include the rules that fired per dimension")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// ─── insights ───────────────────────────────────────────────────────────────

type windowFlags struct {
	from, to, bucket, account string
	includeFailed             bool
}

func (w *windowFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&w.from, "from", "", "window start, YYYY-MM-DD")
	f.StringVar(&w.to, "to", "", "window end, YYYY-MM-DD")
	f.StringVar(&w.bucket, "bucket", "", "daily, weekly or monthly (default DEFAULT_BUCKET)")
	f.StringVar(&w.account, "account", "", "limit to one account id")
	f.BoolVar(&w.includeFailed, "include-failed", false, "aggregate failed transactions too")
}

func (w *windowFlags) query(a *app) (services.InsightQuery, error) {
	q := services.InsightQuery{AccountID: w.account}
	q.Options.IncludeFailed = w.includeFailed

	bucket := w.bucket
	if bucket == "" {
		bucket = a.runtime.Config.DefaultBucket
	}
	policy, err := aggregate.ParsePolicy(bucket)
	if err != nil {
		return q, err
	}
	q.Policy = policy

	if q.Window.From, err = parseOptionalDate("from", w.from); err != nil {
		return q, err
	}
	if q.Window.To, err = parseOptionalDate("to", w.to); err != nil {
		return q, err
	}
	return q, nil
}

func parseOptionalDate(flag, v string) (core.Date, error) {
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.NewInputError("parse flags", "--%s must be YYYY-MM-DD, got %q", flag, v)
	}
	return d, nil
}

func newInsightsCmd(a *app) *cobra.Command {
	var (
		w      windowFlags
		series string
	)
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Compute period summaries, trends and correlations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := w.query(a)
			if err != nil {
				return err
			}
			selected, err := trend.ParseMetrics(series)
			if err != nil {
				return core.NewInputError("parse flags", "--series: %v", err)
			}
			bundle, err := a.runtime.Insights.Insights(a.ctx(cmd), q)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), bundle.SelectSeries(selected))
		},
	}
	w.register(cmd)
	cmd.Flags().StringVar(&series, "series", "", "comma-separated trend metrics to keep, default all")
	return cmd
}

// ─── correlate ──────────────────────────────────────────────────────────────

func newCorrelateCmd(a *app) *cobra.Command {
	var (
		w       windowFlags
		context string
	)
	cmd := &cobra.Command{
		Use:   "correlate SERIES_A SERIES_B",
		Short: "Read how two series move together",
		Long: `Aligns two series on the query's buckets and reads their covariance.
A series is a trend metric (financial, health, eco, spending, count,
net_worth) or a signal (mindfulness_minutes, caloric_surplus,
hydration_glasses, stress_level).`,
		Example: "  lifescore-cli correlate mindfulness_minutes spending --context mindfulness_spending --bucket weekly",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := w.query(a)
			if err != nil {
				return err
			}
			insight, err := a.runtime.Insights.Correlate(a.ctx(cmd), q, insights.CorrelationRequest{
				Context: correlation.Context(context),
				A:       args[0],
				B:       args[1],
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), insight)
		},
	}
	w.register(cmd)
	cmd.Flags().StringVar(&context, "context", string(correlation.Generic), "message context: "+joinContexts())
	return cmd
}

func joinContexts() string {
	ctxs := correlation.Contexts()
	names := make([]string, len(ctxs))
	for i, c := range ctxs {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// ─── rules ──────────────────────────────────────────────────────────────────

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show the active rule catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), a.runtime.Catalog.Stats())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Validate a TOML rule catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := rules.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: catalog version %d is valid\n", args[0], catalog.Version())
			return nil
		},
	})
	return cmd
}

// ─── seed ───────────────────────────────────────────────────────────────────

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load a JSON fixture into the configured backend",
		Long: `Writes the accounts, transactions, signal samples and preferences of a
fixture into the backend. Samples add to existing daily totals, so seeding
the same file twice doubles them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open seed: %w", err)
			}
			defer f.Close()
			seed, err := memory.ReadSeed(f)
			if err != nil {
				return err
			}
			if err := seed.Apply(a.ctx(cmd), a.runtime.Backend.Store); err != nil {
				return fmt.Errorf("apply seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d accounts and %d transactions\n",
				len(seed.Accounts), len(seed.Transactions))
			return nil
		},
	}
}

// ─── show ───────────────────────────────────────────────────────────────────

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print a stored transaction with its persisted scores",
		Long: `Prints the scores the worker or the rescore loop stored for a
transaction and the catalog version they were computed with. stale is true
when the row is unscored or was scored under another catalog version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := a.runtime.Transactions.Transaction(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			tx := stored.Transaction
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"id":                      tx.ID,
				"merchant":                tx.Merchant,
				"category":                tx.Category.Name,
				"amount":                  tx.Amount,
				"date":                    tx.Date,
				"scores":                  stored.Scores,
				"catalog_version":         stored.CatalogVersion,
				"current_catalog_version": a.runtime.Catalog.Version(),
				"stale":                   stored.Stale,
			})
		},
	}
}

// ─── rescore ────────────────────────────────────────────────────────────────

func newRescoreCmd(a *app) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Score every transaction stored under another catalog version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch < 1 {
				return fmt.Errorf("--batch must be at least 1")
			}
			ctx := a.ctx(cmd)
			p := services.NewRescoreProcessor(a.runtime.Backend.Store, a.runtime.Classifier,
				services.RescoreProcessorConfig{BatchSize: batch}, a.runtime.Logger, nil)
			total := 0
			for {
				n, failed, err := p.ProcessBatch(ctx)
				if err != nil {
					return err
				}
				total += n - failed
				if n < batch || failed > 0 {
					break
				}
			}
			a.runtime.Logger.Info("Rescore finished", log.FieldOperation, log.OpRescore, log.FieldCount, total)
			fmt.Fprintf(cmd.OutOrStdout(), "rescored %d transactions under catalog version %d\n",
				total, a.runtime.Catalog.Version())
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 200, "transactions per batch")
	return cmd
}
