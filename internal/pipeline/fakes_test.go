package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func page[T any](items []T, limit, offset int) domain.Page[T] {
	if offset >= len(items) {
		return domain.Page[T]{}
	}
	end := min(offset+limit, len(items))
	return domain.Page[T]{Items: items[offset:end], HasMore: end < len(items)}
}

// fakeTradingData serves canned provider responses.
type fakeTradingData struct {
	mu           sync.Mutex
	walletOrders map[string][]domain.TradingOrder
	marketOrders map[string][]domain.TradingOrder
	activity     map[string][]domain.TradingActivity
	markets      map[string]domain.Market
	failWallets  map[string]bool
	marketsErr   error
	marketCalls  int
}

func newFakeTradingData() *fakeTradingData {
	return &fakeTradingData{
		walletOrders: make(map[string][]domain.TradingOrder),
		marketOrders: make(map[string][]domain.TradingOrder),
		activity:     make(map[string][]domain.TradingActivity),
		markets:      make(map[string]domain.Market),
		failWallets:  make(map[string]bool),
	}
}

func (f *fakeTradingData) OrdersForMarket(_ context.Context, slug string, limit, offset int) (domain.Page[domain.TradingOrder], error) {
	return page(f.marketOrders[slug], limit, offset), nil
}

func (f *fakeTradingData) OrdersForWallet(_ context.Context, wallet string, limit, offset int) (domain.Page[domain.TradingOrder], error) {
	if f.failWallets[wallet] {
		return domain.Page[domain.TradingOrder]{}, domain.ErrUpstreamUnavailable
	}
	return page(f.walletOrders[wallet], limit, offset), nil
}

func (f *fakeTradingData) ActivityForWallet(_ context.Context, wallet string, limit, offset int) (domain.Page[domain.TradingActivity], error) {
	return page(f.activity[wallet], limit, offset), nil
}

func (f *fakeTradingData) Markets(_ context.Context, q domain.MarketQuery) (domain.Page[domain.Market], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketCalls++
	if f.marketsErr != nil {
		return domain.Page[domain.Market]{}, f.marketsErr
	}
	var out []domain.Market
	for _, s := range q.Slugs {
		if m, ok := f.markets[s]; ok {
			out = append(out, m)
		}
	}
	return domain.Page[domain.Market]{Items: out}, nil
}

// fakeEmbedder returns a fixed vector per text.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

// recordingArchiver keeps the last snapshot.
type recordingArchiver struct {
	runID    string
	profiles []domain.InterestProfile
	err      error
}

func (a *recordingArchiver) ArchiveProfiles(_ context.Context, runID string, profiles []domain.InterestProfile) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.runID = runID
	a.profiles = profiles
	return "profiles/" + runID + ".jsonl.gz", nil
}

// scriptedJob records its runs into a shared log.
type scriptedJob struct {
	name string
	log  *[]string
	err  error
}

func (j scriptedJob) Run(context.Context) (Stats, error) {
	*j.log = append(*j.log, j.name)
	return Stats{Processed: 1}, j.err
}

var errBoom = errors.New("boom")
