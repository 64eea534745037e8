package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

// ProfileStore implements domain.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new ProfileStore backed by the given pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

var _ domain.ProfileStore = (*ProfileStore)(nil)

// Get returns the wallet's interest profile or domain.ErrNotFound.
func (s *ProfileStore) Get(ctx context.Context, wallet string) (domain.InterestProfile, error) {
	var p domain.InterestProfile
	var text string
	err := s.pool.QueryRow(ctx,
		`SELECT wallet_address, interest_vector, last_updated FROM wallet_interest_profiles WHERE wallet_address = $1`,
		domain.NormalizeWallet(wallet),
	).Scan(&p.WalletAddress, &text, &p.LastUpdated)
	if err != nil {
		if notFound(err) {
			return domain.InterestProfile{}, domain.ErrNotFound
		}
		return domain.InterestProfile{}, fmt.Errorf("postgres: get profile %s: %w", wallet, err)
	}
	p.Vector = vector.Decode(vector.FromText(text))
	return p, nil
}

// Upsert replaces the wallet's interest profile.
func (s *ProfileStore) Upsert(ctx context.Context, p domain.InterestProfile) error {
	if p.WalletAddress == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_interest_profiles (wallet_address, interest_vector, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO UPDATE SET
			interest_vector = EXCLUDED.interest_vector,
			last_updated    = EXCLUDED.last_updated`,
		domain.NormalizeWallet(p.WalletAddress), vector.Format(p.Vector), lastUpdated(p))
	if err != nil {
		return fmt.Errorf("postgres: upsert profile %s: %w", p.WalletAddress, err)
	}
	return nil
}

func lastUpdated(p domain.InterestProfile) time.Time {
	if p.LastUpdated.IsZero() {
		return time.Now().UTC()
	}
	return p.LastUpdated.UTC()
}
