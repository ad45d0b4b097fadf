package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"lifescore/internal/config"
	"lifescore/internal/log"
)

// app carries the runtime between a command's pre-run and its RunE.
type app struct {
	overrides struct {
		backend, db, seed, rules, logLevel string
	}
	runtime *Runtime
}

// NewRootCmd builds the lifescore-cli command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "lifescore-cli",
		Short: "Score transactions and read behavioural insights",
		Long: `lifescore-cli scores transactions on financial, health and eco
dimensions, buckets them over calendar periods and reads how spending moves
with signals such as mindfulness minutes or hydration.

Configuration comes from the environment and .env, the same keys the server
reads. Flags override the data backend for one invocation.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.runtime == nil {
				return nil
			}
			return a.runtime.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.overrides.backend, "backend", "", "data backend: memory or sqlite")
	pf.StringVar(&a.overrides.db, "db", "", "SQLite database path")
	pf.StringVar(&a.overrides.seed, "seed", "", "JSON fixture to load")
	pf.StringVar(&a.overrides.rules, "rules", "", "TOML rule catalog")
	pf.StringVar(&a.overrides.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newClassifyCmd(a),
		newInsightsCmd(a),
		newCorrelateCmd(a),
		newRulesCmd(a),
		newSeedCmd(a),
		newRescoreCmd(a),
		newShowCmd(a),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	LoadEnvFile()
	cfg := config.Load()
	if v := a.overrides.backend; v != "" {
		cfg.DataBackend = v
	}
	if v := a.overrides.db; v != "" {
		cfg.SQLiteDBPath = v
	}
	if v := a.overrides.seed; v != "" {
		cfg.SeedFile = v
	}
	if v := a.overrides.rules; v != "" {
		cfg.RulesFile = v
	}
	switch v := a.overrides.logLevel; {
	case v != "":
		cfg.LogLevel = v
	case cfg.LogLevel == "info":
		// Keep stderr quiet for scripted use.
		cfg.LogLevel = "warn"
	}
	// One-shot commands never publish.
	cfg.AMQPURL = ""

	logger := SetupLogger(cfg, cmd.ErrOrStderr()).WithComponent(log.ComponentCLI)
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt, err := NewRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	a.runtime = rt
	return nil
}

func (a *app) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
