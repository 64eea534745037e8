package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

type summaryKey struct{ wallet, slug string }

// MarketSummaryStore is an in-memory implementation of
// domain.MarketSummaryStore.
type MarketSummaryStore struct {
	mu   sync.RWMutex
	data map[summaryKey]domain.MarketSummary
}

// NewMarketSummaryStore creates an empty summary store.
func NewMarketSummaryStore() *MarketSummaryStore {
	return &MarketSummaryStore{data: make(map[summaryKey]domain.MarketSummary)}
}

var _ domain.MarketSummaryStore = (*MarketSummaryStore)(nil)

func copySummary(s domain.MarketSummary) domain.MarketSummary {
	if s.PnL != nil {
		v := *s.PnL
		s.PnL = &v
	}
	return s
}

// Get returns one summary or domain.ErrNotFound.
func (s *MarketSummaryStore) Get(_ context.Context, wallet, marketSlug string) (domain.MarketSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sm, ok := s.data[summaryKey{domain.NormalizeWallet(wallet), marketSlug}]
	if !ok {
		return domain.MarketSummary{}, domain.ErrNotFound
	}
	return copySummary(sm), nil
}

// ListByWallet returns the wallet's summaries ordered by market slug.
func (s *MarketSummaryStore) ListByWallet(_ context.Context, wallet string) ([]domain.MarketSummary, error) {
	wallet = domain.NormalizeWallet(wallet)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MarketSummary, 0)
	for k, sm := range s.data {
		if k.wallet == wallet {
			out = append(out, copySummary(sm))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketSlug < out[j].MarketSlug })
	return out, nil
}

// Put stores a summary verbatim, PnL fields included. Tests use it to seed
// state.
func (s *MarketSummaryStore) Put(sm domain.MarketSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm.WalletAddress = domain.NormalizeWallet(sm.WalletAddress)
	s.data[summaryKey{sm.WalletAddress, sm.MarketSlug}] = copySummary(sm)
}

// UpsertActivity writes activity columns and keeps any recorded PnL.
func (s *MarketSummaryStore) UpsertActivity(_ context.Context, summaries []domain.MarketSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, sm := range summaries {
		sm.WalletAddress = domain.NormalizeWallet(sm.WalletAddress)
		k := summaryKey{sm.WalletAddress, sm.MarketSlug}
		if prev, ok := s.data[k]; ok {
			sm.PnL = prev.PnL
			sm.IsFinalized = prev.IsFinalized
			sm.WinningSideHeld = prev.WinningSideHeld
		} else {
			sm.PnL = nil
			sm.IsFinalized = false
			sm.WinningSideHeld = false
		}
		sm.UpdatedAt = now
		s.data[k] = copySummary(sm)
	}
	return nil
}

// SetPnL records a realized PnL on an existing summary.
func (s *MarketSummaryStore) SetPnL(_ context.Context, wallet, marketSlug string, pnl float64, winningSideHeld bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := summaryKey{domain.NormalizeWallet(wallet), marketSlug}
	sm, ok := s.data[k]
	if !ok {
		return domain.ErrNotFound
	}
	sm.PnL = &pnl
	sm.IsFinalized = true
	sm.WinningSideHeld = winningSideHeld
	sm.UpdatedAt = time.Now().UTC()
	s.data[k] = sm
	return nil
}

// ListWallets returns distinct wallets with summaries in ascending order.
func (s *MarketSummaryStore) ListWallets(_ context.Context, opts domain.ListOpts) ([]string, error) {
	s.mu.RLock()
	set := make(map[string]struct{})
	for k := range s.data {
		set[k.wallet] = struct{}{}
	}
	s.mu.RUnlock()
	return paginate(sortedKeys(set), opts.Offset, opts.Limit), nil
}

// CategorySummaryStore is an in-memory implementation of
// domain.CategorySummaryStore.
type CategorySummaryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.CategorySummary // wallet -> category -> row
}

// NewCategorySummaryStore creates an empty category store.
func NewCategorySummaryStore() *CategorySummaryStore {
	return &CategorySummaryStore{data: make(map[string]map[string]domain.CategorySummary)}
}

var _ domain.CategorySummaryStore = (*CategorySummaryStore)(nil)

// ListByWallet returns the wallet's categories ordered by name.
func (s *CategorySummaryStore) ListByWallet(_ context.Context, wallet string) ([]domain.CategorySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.data[domain.NormalizeWallet(wallet)]
	out := make([]domain.CategorySummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Replace upserts rows and drops categories absent from rows.
func (s *CategorySummaryStore) Replace(_ context.Context, wallet string, rows []domain.CategorySummary) error {
	wallet = domain.NormalizeWallet(wallet)
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]domain.CategorySummary, len(rows))
	for _, r := range rows {
		r.WalletAddress = wallet
		next[r.Category] = r
	}
	if len(next) == 0 {
		delete(s.data, wallet)
		return nil
	}
	s.data[wallet] = next
	return nil
}

// ProfileStore is an in-memory implementation of domain.ProfileStore.
type ProfileStore struct {
	mu   sync.RWMutex
	data map[string]domain.InterestProfile
}

// NewProfileStore creates an empty profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{data: make(map[string]domain.InterestProfile)}
}

var _ domain.ProfileStore = (*ProfileStore)(nil)

// Get returns the wallet's profile or domain.ErrNotFound.
func (s *ProfileStore) Get(_ context.Context, wallet string) (domain.InterestProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[domain.NormalizeWallet(wallet)]
	if !ok {
		return domain.InterestProfile{}, domain.ErrNotFound
	}
	p.Vector = append([]float64(nil), p.Vector...)
	return p, nil
}

// Upsert replaces the wallet's profile.
func (s *ProfileStore) Upsert(_ context.Context, p domain.InterestProfile) error {
	if p.WalletAddress == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.WalletAddress = domain.NormalizeWallet(p.WalletAddress)
	p.Vector = append([]float64(nil), p.Vector...)
	s.data[p.WalletAddress] = p
	return nil
}
