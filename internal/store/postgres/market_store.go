package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

// upsertMarketSQL never moves a closed market back to open and never drops a
// stored embedding, category or cluster for an update that carries none.
const upsertMarketSQL = `
	INSERT INTO markets (
		market_slug, title, condition_id, category, tags,
		status, volume_total, embedding, winning_side,
		side_a_id, side_b_id, start_time, end_time, completed_time,
		image_url, cluster, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12, $13, $14,
		$15, $16, NOW(), NOW()
	)
	ON CONFLICT (market_slug) DO UPDATE SET
		title          = COALESCE(NULLIF(EXCLUDED.title, ''), markets.title),
		condition_id   = COALESCE(NULLIF(EXCLUDED.condition_id, ''), markets.condition_id),
		category       = COALESCE(NULLIF(EXCLUDED.category, ''), markets.category),
		tags           = EXCLUDED.tags,
		status         = CASE WHEN markets.status = 'closed' THEN 'closed' ELSE EXCLUDED.status END,
		volume_total   = EXCLUDED.volume_total,
		embedding      = COALESCE(EXCLUDED.embedding, markets.embedding),
		winning_side   = CASE
		                   WHEN markets.status = 'closed' AND EXCLUDED.winning_side = '' THEN markets.winning_side
		                   ELSE EXCLUDED.winning_side
		                 END,
		side_a_id      = COALESCE(NULLIF(EXCLUDED.side_a_id, ''), markets.side_a_id),
		side_b_id      = COALESCE(NULLIF(EXCLUDED.side_b_id, ''), markets.side_b_id),
		start_time     = COALESCE(EXCLUDED.start_time, markets.start_time),
		end_time       = COALESCE(EXCLUDED.end_time, markets.end_time),
		completed_time = COALESCE(EXCLUDED.completed_time, markets.completed_time),
		image_url      = COALESCE(NULLIF(EXCLUDED.image_url, ''), markets.image_url),
		cluster        = COALESCE(EXCLUDED.cluster, markets.cluster),
		updated_at     = NOW()`

func upsertArgs(m domain.Market) []any {
	status := m.Status
	if status == "" {
		status = domain.MarketStatusOpen
	}
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		m.Slug, m.Title, m.ConditionID, m.Category, tags,
		string(status), m.VolumeTotal, embeddingText(m.Embedding), m.WinningSide,
		m.SideAID, m.SideBID, m.StartTime, m.EndTime, m.CompletedTime,
		m.ImageURL, m.Cluster,
	}
}

// embeddingText renders a stored embedding for the TEXT column; nil means
// no embedding.
func embeddingText(s vector.Stored) *string {
	if s.IsZero() {
		return nil
	}
	v := vector.Decode(s)
	if len(v) == 0 {
		return nil
	}
	t := vector.Format(v)
	return &t
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	if m.Slug == "" {
		return domain.ErrInvalidInput
	}
	if _, err := s.pool.Exec(ctx, upsertMarketSQL, upsertArgs(m)...); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.Slug, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple markets in a single batch operation.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		if m.Slug == "" {
			return domain.ErrInvalidInput
		}
		batch.Queue(upsertMarketSQL, upsertArgs(m)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

const marketCols = `market_slug, title, condition_id, category, tags,
	status, volume_total, embedding, winning_side,
	side_a_id, side_b_id, start_time, end_time, completed_time,
	image_url, cluster, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	var embedding *string
	err := row.Scan(
		&m.Slug, &m.Title, &m.ConditionID, &m.Category, &m.Tags,
		&status, &m.VolumeTotal, &embedding, &m.WinningSide,
		&m.SideAID, &m.SideBID, &m.StartTime, &m.EndTime, &m.CompletedTime,
		&m.ImageURL, &m.Cluster, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	if embedding != nil {
		m.Embedding = vector.FromText(*embedding)
	}
	return m, nil
}

func (s *MarketStore) query(ctx context.Context, op, sql string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	markets := make([]domain.Market, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", op, err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return markets, nil
}

// GetBySlug retrieves a market by its URL slug.
func (s *MarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE market_slug = $1`, slug)
	m, err := scanMarket(row)
	if err != nil {
		if notFound(err) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by slug %s: %w", slug, err)
	}
	return m, nil
}

// ListBySlugs returns the known markets among slugs, in the order the slugs
// were given. Unknown slugs are skipped.
func (s *MarketStore) ListBySlugs(ctx context.Context, slugs []string) ([]domain.Market, error) {
	if len(slugs) == 0 {
		return []domain.Market{}, nil
	}
	found, err := s.query(ctx, "list markets by slugs",
		`SELECT `+marketCols+` FROM markets WHERE market_slug = ANY($1)`, slugs)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]domain.Market, len(found))
	for _, m := range found {
		bySlug[m.Slug] = m
	}
	out := make([]domain.Market, 0, len(found))
	seen := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		if m, ok := bySlug[slug]; ok && !seen[slug] {
			seen[slug] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// ListOpenByVolume returns open markets by descending volume, slug ascending
// on ties.
func (s *MarketStore) ListOpenByVolume(ctx context.Context, limit int) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = 'open'
		ORDER BY volume_total DESC, market_slug ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.query(ctx, "list open markets", query, args...)
}

// List returns markets matching filter ordered by slug.
func (s *MarketStore) List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	var where []string
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(f.Status))
		argIdx++
	}
	switch f.Embedding {
	case domain.EmbeddingPresent:
		where = append(where, "embedding IS NOT NULL AND embedding <> '[]'")
	case domain.EmbeddingMissing:
		where = append(where, "(embedding IS NULL OR embedding = '[]')")
	}

	query := `SELECT ` + marketCols + ` FROM markets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY market_slug ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}
	return s.query(ctx, "list markets", query, args...)
}

// SetEmbedding stores an embedding, creating a bare open market when the slug
// is unknown.
func (s *MarketStore) SetEmbedding(ctx context.Context, slug, title string, embedding []float64) error {
	if slug == "" {
		return domain.ErrInvalidInput
	}
	const query = `
		INSERT INTO markets (market_slug, title, embedding, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'open', NOW(), NOW())
		ON CONFLICT (market_slug) DO UPDATE SET
			embedding  = EXCLUDED.embedding,
			title      = COALESCE(NULLIF(markets.title, ''), EXCLUDED.title),
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, slug, title, vector.Format(embedding)); err != nil {
		return fmt.Errorf("postgres: set embedding %s: %w", slug, err)
	}
	return nil
}

// SetCategory overwrites a market's category.
func (s *MarketStore) SetCategory(ctx context.Context, slug, category string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET category = $2, updated_at = NOW() WHERE market_slug = $1`, slug, category)
	if err != nil {
		return fmt.Errorf("postgres: set category %s: %w", slug, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetClusters records cluster assignments in one batch. Unknown slugs are
// ignored.
func (s *MarketStore) SetClusters(ctx context.Context, assignments []domain.ClusterAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range assignments {
		batch.Queue(`UPDATE markets SET cluster = $2, cluster_label = $3, updated_at = NOW() WHERE market_slug = $1`,
			a.MarketSlug, a.Cluster, a.Label)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range assignments {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: set cluster batch item %d: %w", i, err)
		}
	}
	return nil
}

// MatchMarkets scans every embedded market and returns the best count whose
// cosine similarity to query exceeds threshold. Markets whose embedding has a
// different dimension are skipped.
func (s *MarketStore) MatchMarkets(ctx context.Context, query []float64, threshold float64, count int) ([]domain.MarketMatch, error) {
	markets, err := s.query(ctx, "match markets",
		`SELECT `+marketCols+` FROM markets WHERE embedding IS NOT NULL ORDER BY market_slug ASC`)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Market, len(markets))
	candidates := make([]vector.Candidate, 0, len(markets))
	for _, m := range markets {
		v := m.EmbeddingVector()
		if len(v) != len(query) {
			continue
		}
		byID[m.Slug] = m
		candidates = append(candidates, vector.Candidate{ID: m.Slug, Vector: v})
	}

	top, err := vector.TopK(query, candidates, threshold, count)
	if err != nil {
		return nil, fmt.Errorf("postgres: match markets: %w", err)
	}
	out := make([]domain.MarketMatch, 0, len(top))
	for _, t := range top {
		out = append(out, domain.MarketMatch{Market: byID[t.ID], Similarity: t.Score})
	}
	return out, nil
}
