package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrOutOfOrder = errors.New("tick timestamps must be non-decreasing")

// Tick is one mark price observation.
type Tick struct {
	Time   time.Time
	Symbol string
	Price  float64
}

// TickFeed yields ticks one at a time.
// Implementations should be deterministic and return (ok=false, err=nil) at EOF.
type TickFeed interface {
	Next() (t Tick, ok bool, err error)
	Close() error
}

// CSVTicksFeed reads canonical tick CSV rows:
//
//	time,symbol,price
//
// where time is RFC3339 or RFC3339Nano.
//
// It optionally filters ticks to [From, To) if provided.
// Header row ("time,...") is allowed.
// Empty/short rows are skipped.
type CSVTicksFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	sawFirst bool
}

func NewCSVTicksFeed(path string, from, to time.Time) (*CSVTicksFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	return &CSVTicksFeed{f: f, r: r, from: from, to: to}, nil
}

func (f *CSVTicksFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVTicksFeed) Next() (Tick, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return Tick{}, false, nil
		}
		if err != nil {
			return Tick{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		t, ok, err := parseTickRow(row)
		if err != nil {
			line, _ := f.r.FieldPos(0)
			return Tick{}, false, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		if !inRange(t.Time, f.from, f.to) {
			continue
		}
		return t, true, nil
	}
}

func parseTickRow(row []string) (Tick, bool, error) {
	// Need at least: time,symbol,price
	if len(row) < 3 {
		return Tick{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return Tick{}, false, nil
	}
	// RFC3339Nano also accepts times without fractional seconds.
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Tick{}, false, fmt.Errorf("bad time %q: %w", ts, err)
	}

	sym := strings.TrimSpace(row[1])
	if sym == "" {
		return Tick{}, false, nil
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return Tick{}, false, fmt.Errorf("bad price %q: %w", row[2], err)
	}
	if !(price > 0) {
		return Tick{}, false, fmt.Errorf("bad price %q: must be positive", row[2])
	}

	return Tick{Time: t, Symbol: sym, Price: price}, true, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// SliceFeed replays an in-memory tick slice. Several SliceFeeds may share
// one slice; none of them modify it.
type SliceFeed struct {
	ticks []Tick
	i     int
}

func NewSliceFeed(ticks []Tick) *SliceFeed {
	return &SliceFeed{ticks: ticks}
}

func (s *SliceFeed) Next() (Tick, bool, error) {
	if s.i >= len(s.ticks) {
		return Tick{}, false, nil
	}
	t := s.ticks[s.i]
	s.i++
	return t, true, nil
}

func (s *SliceFeed) Close() error { return nil }

// LoadTicks drains and closes feed, checking timestamp order.
func LoadTicks(feed TickFeed) ([]Tick, error) {
	defer feed.Close()

	var (
		out  []Tick
		last time.Time
	)
	for {
		t, ok, err := feed.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if t.Time.Before(last) {
			return nil, fmt.Errorf("%w: %s %s after %s", ErrOutOfOrder, t.Symbol,
				t.Time.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
		}
		last = t.Time
		out = append(out, t)
	}
}
