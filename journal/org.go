package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block suitable for pasting into a journal.
// Structured facts go in the PROPERTIES drawer; the Review heading is left for notes.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** %s: %s %s %s (%s)", strings.ToUpper(t.Action), t.Symbol, t.Side, orOpen(t.Reason), shortID(t.TradeID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.TradeID))
	b.WriteString(fmt.Sprintf(":ID: %s\n", t.TradeID))
	b.WriteString(fmt.Sprintf(":ACCOUNT: %s\n", t.AccountID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", t.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", t.Side))
	b.WriteString(fmt.Sprintf(":ACTION: %s\n", t.Action))
	b.WriteString(fmt.Sprintf(":SIZE: %.8f\n", t.Size))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.5f\n", t.EntryPrice))
	if t.IsClose() {
		b.WriteString(fmt.Sprintf(":EXIT_PRICE: %.5f\n", t.ExitPrice))
	}
	b.WriteString(fmt.Sprintf(":FEE: %.4f\n", t.Fee))
	b.WriteString(fmt.Sprintf(":OPEN_TIME: %s\n", orgTime(t.OpenTime)))
	b.WriteString(fmt.Sprintf(":TIME: %s\n", orgTime(t.Time)))
	if t.IsClose() {
		b.WriteString(fmt.Sprintf(":REALIZED_PL: %.2f\n", t.RealizedPL))
		b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	}
	if t.OrderID != 0 {
		b.WriteString(fmt.Sprintf(":ORDER_ID: %d\n", t.OrderID))
	}
	b.WriteString(fmt.Sprintf(":TRIGGER: %s\n", t.Trigger))
	b.WriteString(":END:\n")
	if t.Note != "" {
		b.WriteString("\n")
		b.WriteString(t.Note)
		b.WriteString("\n")
	}
	b.WriteString("\n*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// shortID keeps the tail of an id; ULIDs from the same second share their head.
func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}

func orOpen(reason string) string {
	if reason == "" {
		return "entry"
	}
	return reason
}

func orgTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
