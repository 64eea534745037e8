// Package memory provides in-memory implementations of the domain stores.
// They back the service tests and keep the same semantics as the postgres
// stores: copies in, copies out, natural-key upserts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

// MarketStore is an in-memory implementation of domain.MarketStore.
type MarketStore struct {
	mu   sync.RWMutex
	data map[string]domain.Market // keyed by slug
}

// NewMarketStore creates an empty market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{data: make(map[string]domain.Market)}
}

var _ domain.MarketStore = (*MarketStore)(nil)

func copyMarket(m domain.Market) domain.Market {
	m.Tags = append([]string(nil), m.Tags...)
	if !m.Embedding.IsZero() {
		m.Embedding = vector.Encode(vector.Decode(m.Embedding))
	}
	if m.Cluster != nil {
		c := *m.Cluster
		m.Cluster = &c
	}
	return m
}

// Upsert inserts or updates a market. A closed market never reverts to open
// and an existing embedding survives an update that carries none.
func (s *MarketStore) Upsert(_ context.Context, m domain.Market) error {
	if m.Slug == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(m)
	return nil
}

func (s *MarketStore) upsertLocked(m domain.Market) {
	now := time.Now().UTC()
	m = copyMarket(m)
	if prev, ok := s.data[m.Slug]; ok {
		if prev.Status == domain.MarketStatusClosed {
			m.Status = domain.MarketStatusClosed
			if m.WinningSide == "" {
				m.WinningSide = prev.WinningSide
			}
		}
		if m.Embedding.IsZero() {
			m.Embedding = prev.Embedding
		}
		if m.Title == "" {
			m.Title = prev.Title
		}
		if m.Category == "" {
			m.Category = prev.Category
		}
		if m.Cluster == nil {
			m.Cluster = prev.Cluster
		}
		m.CreatedAt = prev.CreatedAt
	} else {
		m.CreatedAt = now
	}
	if m.Status == "" {
		m.Status = domain.MarketStatusOpen
	}
	m.UpdatedAt = now
	s.data[m.Slug] = m
}

// UpsertBatch upserts every market.
func (s *MarketStore) UpsertBatch(_ context.Context, markets []domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		if m.Slug == "" {
			return domain.ErrInvalidInput
		}
		s.upsertLocked(m)
	}
	return nil
}

// GetBySlug returns the market or domain.ErrNotFound.
func (s *MarketStore) GetBySlug(_ context.Context, slug string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[slug]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return copyMarket(m), nil
}

// ListBySlugs returns the known markets among slugs, in slug order.
func (s *MarketStore) ListBySlugs(_ context.Context, slugs []string) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(slugs))
	out := make([]domain.Market, 0, len(slugs))
	for _, slug := range slugs {
		if seen[slug] {
			continue
		}
		seen[slug] = true
		if m, ok := s.data[slug]; ok {
			out = append(out, copyMarket(m))
		}
	}
	return out, nil
}

func (s *MarketStore) sorted() []domain.Market {
	out := make([]domain.Market, 0, len(s.data))
	for _, m := range s.data {
		out = append(out, copyMarket(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// ListOpenByVolume returns open markets by descending volume, slug ascending
// on ties.
func (s *MarketStore) ListOpenByVolume(_ context.Context, limit int) ([]domain.Market, error) {
	s.mu.RLock()
	all := s.sorted()
	s.mu.RUnlock()

	out := all[:0]
	for _, m := range all {
		if m.Status == domain.MarketStatusOpen {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VolumeTotal > out[j].VolumeTotal })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// List returns markets matching filter ordered by slug.
func (s *MarketStore) List(_ context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	s.mu.RLock()
	all := s.sorted()
	s.mu.RUnlock()

	out := all[:0]
	for _, m := range all {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		switch f.Embedding {
		case domain.EmbeddingPresent:
			if !m.HasEmbedding() {
				continue
			}
		case domain.EmbeddingMissing:
			if m.HasEmbedding() {
				continue
			}
		}
		out = append(out, m)
	}
	return paginate(out, f.Offset, f.Limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// SetEmbedding stores an embedding, creating a bare market when needed.
func (s *MarketStore) SetEmbedding(_ context.Context, slug, title string, embedding []float64) error {
	if slug == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data[slug]
	if !ok {
		m = domain.Market{Slug: slug, Title: title, Status: domain.MarketStatusOpen, CreatedAt: time.Now().UTC()}
	}
	if m.Title == "" {
		m.Title = title
	}
	m.Embedding = vector.Encode(embedding)
	m.UpdatedAt = time.Now().UTC()
	s.data[slug] = m
	return nil
}

// SetCategory overwrites a market's category.
func (s *MarketStore) SetCategory(_ context.Context, slug, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data[slug]
	if !ok {
		return domain.ErrNotFound
	}
	m.Category = category
	m.UpdatedAt = time.Now().UTC()
	s.data[slug] = m
	return nil
}

// SetClusters records cluster assignments. Unknown slugs are ignored.
func (s *MarketStore) SetClusters(_ context.Context, assignments []domain.ClusterAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range assignments {
		m, ok := s.data[a.MarketSlug]
		if !ok {
			continue
		}
		c := a.Cluster
		m.Cluster = &c
		s.data[a.MarketSlug] = m
	}
	return nil
}

// MatchMarkets scans every embedded market and returns the top count above
// threshold.
func (s *MarketStore) MatchMarkets(_ context.Context, query []float64, threshold float64, count int) ([]domain.MarketMatch, error) {
	s.mu.RLock()
	all := s.sorted()
	s.mu.RUnlock()

	byID := make(map[string]domain.Market, len(all))
	candidates := make([]vector.Candidate, 0, len(all))
	for _, m := range all {
		v := m.EmbeddingVector()
		if len(v) != len(query) {
			continue
		}
		byID[m.Slug] = m
		candidates = append(candidates, vector.Candidate{ID: m.Slug, Vector: v})
	}

	top, err := vector.TopK(query, candidates, threshold, count)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MarketMatch, 0, len(top))
	for _, t := range top {
		out = append(out, domain.MarketMatch{Market: byID[t.ID], Similarity: t.Score})
	}
	return out, nil
}
