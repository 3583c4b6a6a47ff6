package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunAll replays every runner over the same ticks concurrently, one
// goroutine per account. Runners must not share an Account. A runner's Feed
// is closed and replaced with a reader over ticks, which is never modified.
//
// The first failure cancels the others; results are returned in runner order.
func RunAll(ctx context.Context, ticks []Tick, runners []*Runner) ([]Result, error) {
	seen := make(map[string]bool, len(runners))
	for i, r := range runners {
		if r == nil || r.Account == nil {
			return nil, fmt.Errorf("backtest: runner %d has no account", i)
		}
		if seen[r.Account.ID()] {
			return nil, fmt.Errorf("backtest: account %q appears twice", r.Account.ID())
		}
		seen[r.Account.ID()] = true
	}
	for _, r := range runners {
		if r.Feed != nil {
			if err := r.Feed.Close(); err != nil {
				return nil, fmt.Errorf("backtest: close feed for %s: %w", r.Account.ID(), err)
			}
		}
		r.Feed = NewSliceFeed(ticks)
	}

	results := make([]Result, len(runners))
	g, ctx := errgroup.WithContext(ctx)
	for i, r := range runners {
		i, r := i, r
		g.Go(func() error {
			res, err := r.Run(ctx)
			if err != nil {
				return fmt.Errorf("account %s: %w", r.Account.ID(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
