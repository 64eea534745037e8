// Package pipeline holds the batch jobs that keep markets, transactions,
// summaries and interest profiles current, plus the orchestrator and cron
// scheduler that run them.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Stats counts what one job run did. Jobs fill the fields that apply.
type Stats struct {
	Processed int
	Updated   int
	Skipped   int
	Failed    int
}

func (s Stats) attrs() []any {
	return []any{
		slog.Int("processed", s.Processed),
		slog.Int("updated", s.Updated),
		slog.Int("skipped", s.Skipped),
		slog.Int("failed", s.Failed),
	}
}

// counter is a Stats safe for concurrent use by fan-out workers.
type counter struct {
	mu sync.Mutex
	s  Stats
}

func (c *counter) add(fn func(s *Stats)) {
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

func (c *counter) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// walletLister pages through distinct wallet addresses.
type walletLister func(ctx context.Context, opts domain.ListOpts) ([]string, error)

// allWallets collects every wallet from list, pageSize at a time.
func allWallets(ctx context.Context, list walletLister, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	var out []string
	for offset := 0; ; offset += pageSize {
		page, err := list(ctx, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return out, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// forEachWallet runs fn for every wallet with at most workers in flight. fn
// handles its own per-wallet failures; only context cancellation stops the
// fan-out.
func forEachWallet(ctx context.Context, workers int, wallets []string, fn func(ctx context.Context, wallet string)) error {
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, w := range wallets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
