package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/execsim/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display journal records from a SQLite database.

Subcommands:
  trade    - Get details of a specific fill by ID
  list     - List an account's fills
  day      - List closing fills on a specific day (UTC)
  summary  - Summarize an account's run

Examples:
  execsim journal trade 01HS2Q6V7X9ABCDEFGHJKMNPQR
  execsim journal list --account SIM-001
  execsim journal day 2024-01-15
  execsim journal summary --account SIM-001 --balance 10000`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific fill",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fills, optionally for one account",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List closing fills on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize an account's fills and equity curve as Org",
	Args:  cobra.NoArgs,
	RunE:  runJournalSummary,
}

var (
	journalDBPath  string
	journalAccount string
	journalBalance float64
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalSummaryCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./execsim.db", "path to SQLite journal DB")
	journalListCmd.Flags().StringVarP(&journalAccount, "account", "a", "", "account id (default all)")
	journalSummaryCmd.Flags().StringVarP(&journalAccount, "account", "a", "", "account id (required)")
	journalSummaryCmd.Flags().Float64Var(&journalBalance, "balance", 0, "initial balance (default: the balance recorded when the run started)")
	journalSummaryCmd.MarkFlagRequired("account")
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	recs, err := j.ListTrades(journalAccount)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	start, end, err := dayBounds(time.UTC, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	trades, err := j.ListTrades(journalAccount)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	equity, err := j.ListEquity(journalAccount)
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}
	if len(trades) == 0 && len(equity) == 0 {
		return fmt.Errorf("no journal entries for account %q", journalAccount)
	}

	balance := journalBalance
	if balance <= 0 {
		balance, err = j.InitialBalance(journalAccount)
		if err != nil {
			return fmt.Errorf("%w (pass --balance)", err)
		}
	}

	s := journal.Summarize(journalAccount, balance, trades, equity)
	return s.WriteOrg(cmd.OutOrStdout())
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
