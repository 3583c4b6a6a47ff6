package backtest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/execsim/sim"
)

// ScheduledDecision is a decision that becomes due at Time.
type ScheduledDecision struct {
	Time     time.Time
	Trigger  sim.TriggerType
	Decision sim.Decision
}

// decisionRow is one entry of a YAML decision script:
//
//   - time: 2024-01-01T09:00:00Z
//     operation: buy
//     symbol: BTC
//     portion: 0.5
//     leverage: 10
//     take_profit: 105000
//     stop_loss: 97000
//     reason: breakout
type decisionRow struct {
	Time       time.Time `yaml:"time"`
	Operation  string    `yaml:"operation"`
	Symbol     string    `yaml:"symbol"`
	Portion    float64   `yaml:"portion"`
	Leverage   float64   `yaml:"leverage"`
	TakeProfit *float64  `yaml:"take_profit"`
	StopLoss   *float64  `yaml:"stop_loss"`
	Reason     string    `yaml:"reason"`
	Trigger    string    `yaml:"trigger"`
}

// LoadDecisions reads a decision script from path.
func LoadDecisions(path string) ([]ScheduledDecision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	defer f.Close()

	out, err := ParseDecisions(f)
	if err != nil {
		return nil, fmt.Errorf("load decisions %s: %w", path, err)
	}
	return out, nil
}

// ParseDecisions decodes a YAML list of decisions and returns them sorted by
// time. Entries sharing a timestamp keep their script order. Leverage
// defaults to 1 for buy and sell. Only the shape of each entry is checked
// here; sizing and price fields are validated when the decision executes.
func ParseDecisions(r io.Reader) ([]ScheduledDecision, error) {
	var rows []decisionRow
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse decisions: %w", err)
	}

	out := make([]ScheduledDecision, 0, len(rows))
	for i, row := range rows {
		sd, err := row.scheduled()
		if err != nil {
			return nil, fmt.Errorf("decisions[%d]: %w", i, err)
		}
		out = append(out, sd)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out, nil
}

func (row decisionRow) scheduled() (ScheduledDecision, error) {
	if row.Time.IsZero() {
		return ScheduledDecision{}, fmt.Errorf("time is required")
	}
	op, err := sim.ParseOperation(row.Operation)
	if err != nil {
		return ScheduledDecision{}, err
	}

	trigger := sim.TriggerScheduled
	switch sim.TriggerType(row.Trigger) {
	case "", sim.TriggerScheduled:
	case sim.TriggerSignal:
		trigger = sim.TriggerSignal
	default:
		return ScheduledDecision{}, fmt.Errorf("unknown trigger %q", row.Trigger)
	}

	leverage := row.Leverage
	if leverage == 0 && (op == sim.Buy || op == sim.Sell) {
		leverage = 1
	}

	d := sim.Decision{
		Operation:  op,
		Symbol:     strings.TrimSpace(row.Symbol),
		Portion:    row.Portion,
		Leverage:   leverage,
		TakeProfit: row.TakeProfit,
		StopLoss:   row.StopLoss,
		Reason:     row.Reason,
	}
	return ScheduledDecision{Time: row.Time, Trigger: trigger, Decision: d}, nil
}
