package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/execsim/backtest"
	"github.com/rustyeddy/execsim/config"
	"github.com/rustyeddy/execsim/internal/id"
	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/ledger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest from a config file",
	Long: `Replay every configured account's decision script over the tick dataset.

Accounts run in parallel over the same ticks. Relative paths in the config
are resolved against the config file's directory.

Example:
  execsim run -f run.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "file", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	base := filepath.Dir(runConfigPath)

	log, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	from, to, err := cfg.Data.Range()
	if err != nil {
		return err
	}
	feed, err := backtest.NewCSVTicksFeed(resolve(base, cfg.Data.Ticks), from, to)
	if err != nil {
		return fmt.Errorf("open ticks: %w", err)
	}
	ticks, err := backtest.LoadTicks(feed)
	if err != nil {
		return fmt.Errorf("load ticks: %w", err)
	}
	log.Info("ticks loaded", zap.Int("count", len(ticks)), zap.String("path", cfg.Data.Ticks))

	j, err := openJournal(base, cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	if j != nil {
		defer j.Close()
	}

	runners := make([]*backtest.Runner, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		decisions, err := backtest.LoadDecisions(resolve(base, a.Decisions))
		if err != nil {
			return err
		}
		acct, err := ledger.New(a.ID, a.InitialBalance, ledger.WithIDSource(id.ForAccount(cfg.Execution.IDSeed, a.ID)))
		if err != nil {
			return err
		}
		runners = append(runners, &backtest.Runner{
			Account:   acct,
			Exec:      cfg.Execution.Sim(),
			Decisions: decisions,
			Journal:   j,
			Logger:    log,
			Options:   backtest.RunnerOptions{CloseAtEnd: cfg.Run.CloseAtEnd},
		})
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
	defer stop()

	results, err := backtest.RunAll(ctx, ticks, runners)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		backtest.PrintResult(out, r)
	}

	if cfg.Run.OrgReport != "" {
		var buf bytes.Buffer
		for _, r := range results {
			if err := r.WriteOrg(&buf); err != nil {
				return err
			}
			buf.WriteString("\n")
		}
		path := resolve(base, cfg.Run.OrgReport)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write org report: %w", err)
		}
		fmt.Fprintf(out, "Org Report:    %s\n", path)
	}
	return nil
}

// openJournal returns a nil Journal for type "none".
func openJournal(base string, c config.JournalConfig) (journal.Journal, error) {
	switch c.Type {
	case "csv":
		return journal.NewCSV(resolve(base, c.TradesFile), resolve(base, c.EquityFile))
	case "sqlite":
		return journal.NewSQLite(resolve(base, c.DBPath))
	default:
		return nil, nil
	}
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
