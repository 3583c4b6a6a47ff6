package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/execsim/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "execsim",
	Short: "Replay trading decisions against historical prices",
	Long: `execsim is a backtest execution simulator.

It provides tools for:
  - Replaying scripted buy/sell/close decisions over tick data
  - Leveraged positions with per-lot take-profit and stop-loss orders
  - Slippage and fee modelling
  - Journaling fills and equity curves to CSV or SQLite
  - Querying and exporting journals as Org-mode`,
	SilenceUsage: true,
}

var (
	logLevel  string
	logFormat string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json or console)")
}

// newLogger prefers the command line over the supplied defaults.
func newLogger(level, format string) (*zap.Logger, error) {
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	return logging.New(level, format)
}
