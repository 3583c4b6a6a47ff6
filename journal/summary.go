package journal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"
)

// Summary condenses one account's journal into run statistics.
type Summary struct {
	AccountID string
	Start     time.Time
	End       time.Time

	StartBalance float64
	EndBalance   float64
	EndEquity    float64

	Fills  int
	Trades int // closing fills
	Wins   int
	Losses int

	GrossProfit float64
	GrossLoss   float64
	Fees        float64

	// Derived
	NetPL        float64
	ReturnPct    float64
	WinRate      float64 // fraction of closing fills
	ProfitFactor float64
	MaxDDPct     float64
}

// Summarize builds a Summary from an account's fills and equity curve. Both
// slices are expected in time order. Without equity snapshots the end
// balance is derived from the fills.
func Summarize(accountID string, startBalance float64, trades []TradeRecord, equity []EquitySnapshot) Summary {
	s := Summary{AccountID: accountID, StartBalance: startBalance}

	for _, t := range trades {
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		s.Fills++
		s.Fees += t.Fee
		s.span(t.Time)
		if !t.IsClose() {
			continue
		}
		s.Trades++
		switch {
		case t.RealizedPL > 0:
			s.Wins++
			s.GrossProfit += t.RealizedPL
		case t.RealizedPL < 0:
			s.Losses++
			s.GrossLoss += -t.RealizedPL
		}
	}

	s.NetPL = s.GrossProfit - s.GrossLoss - s.Fees
	s.EndBalance = startBalance + s.NetPL
	s.EndEquity = s.EndBalance

	peak := startBalance
	for _, e := range equity {
		if accountID != "" && e.AccountID != accountID {
			continue
		}
		s.span(e.Time)
		s.EndBalance = e.Balance
		s.EndEquity = e.Equity
		if e.Equity > peak {
			peak = e.Equity
		}
		if peak > 0 {
			if dd := (peak - e.Equity) / peak * 100; dd > s.MaxDDPct {
				s.MaxDDPct = dd
			}
		}
	}

	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	if startBalance > 0 {
		s.ReturnPct = (s.EndEquity - startBalance) / startBalance * 100
	}
	return s
}

func (s *Summary) span(t time.Time) {
	if t.IsZero() {
		return
	}
	if s.Start.IsZero() || t.Before(s.Start) {
		s.Start = t
	}
	if t.After(s.End) {
		s.End = t
	}
}

var summaryOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"day": func(t time.Time) string {
		if t.IsZero() {
			return "(none)"
		}
		return t.UTC().Format("2006-01-02")
	},
}

var summaryOrg = template.Must(template.New("summary").Funcs(summaryOrgFuncs).Parse(SummaryOrgTemplate))

// WriteOrg renders the summary as an Org-mode heading.
func (s Summary) WriteOrg(w io.Writer) error {
	buf := new(bytes.Buffer)
	if err := summaryOrg.Execute(buf, s); err != nil {
		return fmt.Errorf("summary org: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (s Summary) WriteOrgFile(path string) error {
	buf := new(bytes.Buffer)
	if err := s.WriteOrg(buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

const SummaryOrgTemplate = `* RUN: {{.AccountID}}
:PROPERTIES:
:ACCOUNT:     {{.AccountID}}
:START_DATE:  {{day .Start}}
:END_DATE:    {{day .End}}
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:END_EQUITY:  {{printf "%.2f" .EndEquity}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:FEES:        {{printf "%.2f" .Fees}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:FILLS:       {{.Fills}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" (mul100 .WinRate)}}
:PROFIT_FAC:  {{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(no losses){{end}}
:END:

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDDPct}}%*
- Win Rate:         *{{printf "%.2f" (mul100 .WinRate)}}%*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
`
