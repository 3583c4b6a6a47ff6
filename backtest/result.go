package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/ledger"
)

// Result is the outcome of one account's run.
type Result struct {
	journal.Summary

	Ticks     int
	Applied   int // decisions executed, holds included
	Rejected  int
	Unreached int // decisions due after the last tick

	Balance       float64
	FrozenMargin  float64
	Positions     []ledger.Position // still open at the end
	PendingOrders int
}

func PrintResult(w io.Writer, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, " Backtest Result: %s\n", r.AccountID)
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", fmtTime(r.Start))
	fmt.Fprintf(w, "End:           %s\n", fmtTime(r.End))
	fmt.Fprintf(w, "Ticks:         %d\n", r.Ticks)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Decisions")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Applied:       %d\n", r.Applied)
	fmt.Fprintf(w, "Rejected:      %d\n", r.Rejected)
	if r.Unreached > 0 {
		fmt.Fprintf(w, "Unreached:     %d\n", r.Unreached)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Fills:         %d\n", r.Fills)
	fmt.Fprintf(w, "Closes:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate*100)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", r.Balance)
	fmt.Fprintf(w, "Frozen Margin: %.2f\n", r.FrozenMargin)
	fmt.Fprintf(w, "End Equity:    %.2f\n", r.EndEquity)
	fmt.Fprintf(w, "Fees:          %.2f\n", r.Fees)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", r.NetPL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct)

	if r.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", r.ProfitFactor)
	}
	if r.MaxDDPct > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDDPct)
	}

	if len(r.Positions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Open Positions")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, p := range r.Positions {
			fmt.Fprintf(w, "- %s %s %.8f @ %.5f (x%.2f)\n", p.Symbol, p.Side, p.Size, p.EntryPrice, p.Leverage)
		}
		fmt.Fprintf(w, "Pending orders: %d\n", r.PendingOrders)
	}

	fmt.Fprintln(w)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
