package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/execsim/backtest"
	"github.com/rustyeddy/execsim/config"
	"github.com/rustyeddy/execsim/internal/id"
	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/ledger"
	"github.com/rustyeddy/execsim/sim"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay one decision script without a config file",
	Long: `Stream a tick CSV (time,symbol,price) through a single account.

Example:
  execsim replay --ticks btc.csv --decisions plan.yaml --balance 10000 --fee 0.0004 --db run.db`,
	RunE: runReplay,
}

var (
	replayTicks      string
	replayDecisions  string
	replayAccount    string
	replayBalance    float64
	replaySlippage   float64
	replayFee        float64
	replaySeed       int64
	replayDB         string
	replayCloseAtEnd bool
	replayFrom       string
	replayTo         string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	f := replayCmd.Flags()
	f.StringVar(&replayTicks, "ticks", "", "tick CSV path (required)")
	f.StringVar(&replayDecisions, "decisions", "", "decision script YAML (required)")
	f.StringVar(&replayAccount, "account", "replay", "account id")
	f.Float64Var(&replayBalance, "balance", 10000, "initial balance")
	f.Float64Var(&replaySlippage, "slippage", 0, "slippage percent (0.05 = 0.05%)")
	f.Float64Var(&replayFee, "fee", 0, "fee rate on notional")
	f.Int64Var(&replaySeed, "seed", 1, "trade id seed")
	f.StringVar(&replayDB, "db", "", "SQLite journal path (optional)")
	f.BoolVar(&replayCloseAtEnd, "close-at-end", false, "close open positions after the last tick")
	f.StringVar(&replayFrom, "from", "", "RFC3339 start (inclusive)")
	f.StringVar(&replayTo, "to", "", "RFC3339 end (exclusive)")
	replayCmd.MarkFlagRequired("ticks")
	replayCmd.MarkFlagRequired("decisions")
}

func runReplay(cmd *cobra.Command, args []string) error {
	log, err := newLogger("info", "console")
	if err != nil {
		return err
	}
	defer log.Sync()

	from, to, err := config.DataConfig{From: replayFrom, To: replayTo}.Range()
	if err != nil {
		return err
	}
	decisions, err := backtest.LoadDecisions(replayDecisions)
	if err != nil {
		return err
	}
	feed, err := backtest.NewCSVTicksFeed(replayTicks, from, to)
	if err != nil {
		return fmt.Errorf("open ticks: %w", err)
	}

	acct, err := ledger.New(replayAccount, replayBalance, ledger.WithIDSource(id.ForAccount(replaySeed, replayAccount)))
	if err != nil {
		feed.Close()
		return err
	}

	r := &backtest.Runner{
		Account:   acct,
		Exec:      sim.Config{SlippagePercent: replaySlippage, FeeRate: replayFee},
		Decisions: decisions,
		Feed:      feed,
		Logger:    log,
		Options:   backtest.RunnerOptions{CloseAtEnd: replayCloseAtEnd},
	}
	if replayDB != "" {
		j, err := journal.NewSQLite(replayDB)
		if err != nil {
			feed.Close()
			return fmt.Errorf("open db: %w", err)
		}
		defer j.Close()
		r.Journal = j
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
	defer stop()

	res, err := r.Run(ctx)
	if err != nil {
		return err
	}
	backtest.PrintResult(cmd.OutOrStdout(), res)
	return nil
}
