package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/profile"
)

// ProfileGenerator builds and stores one wallet's interest profile.
type ProfileGenerator interface {
	Generate(ctx context.Context, wallet string) (domain.InterestProfile, profile.Result, error)
}

// ProfileJob regenerates the interest profile of every wallet with market
// summaries and archives the run's profiles as one snapshot.
type ProfileJob struct {
	summaries domain.MarketSummaryStore
	generator ProfileGenerator
	archiver  domain.ProfileArchiver // optional
	workers   int
	pageSize  int
	logger    *slog.Logger
	newRunID  func() string
}

// NewProfileJob creates a ProfileJob. archiver may be nil.
func NewProfileJob(summaries domain.MarketSummaryStore, generator ProfileGenerator, archiver domain.ProfileArchiver, workers, pageSize int, logger *slog.Logger) *ProfileJob {
	return &ProfileJob{
		summaries: summaries,
		generator: generator,
		archiver:  archiver,
		workers:   workers,
		pageSize:  pageSize,
		logger:    logger.With(slog.String("component", "profile_job")),
		newRunID:  func() string { return uuid.New().String() },
	}
}

// Run builds every profile. Wallets with no embedded market are counted in
// Skipped. An archive failure is logged and does not fail the run.
func (j *ProfileJob) Run(ctx context.Context) (Stats, error) {
	runID := j.newRunID()
	wallets, err := allWallets(ctx, j.summaries.ListWallets, j.pageSize)
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: list wallets: %w", err)
	}

	var (
		c        counter
		mu       sync.Mutex
		profiles []domain.InterestProfile
	)
	err = forEachWallet(ctx, j.workers, wallets, func(ctx context.Context, wallet string) {
		p, _, err := j.generator.Generate(ctx, wallet)
		switch {
		case errors.Is(err, domain.ErrNoProfile):
			c.add(func(s *Stats) { s.Processed++; s.Skipped++ })
		case err != nil:
			c.add(func(s *Stats) { s.Processed++; s.Failed++ })
			j.logger.WarnContext(ctx, "profiles: wallet failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		default:
			c.add(func(s *Stats) { s.Processed++; s.Updated++ })
			mu.Lock()
			profiles = append(profiles, p)
			mu.Unlock()
		}
	})
	if err != nil {
		return c.snapshot(), err
	}

	if j.archiver != nil {
		sort.Slice(profiles, func(a, b int) bool { return profiles[a].WalletAddress < profiles[b].WalletAddress })
		key, err := j.archiver.ArchiveProfiles(ctx, runID, profiles)
		if err != nil {
			j.logger.WarnContext(ctx, "profiles: archive failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		} else {
			j.logger.InfoContext(ctx, "profiles: snapshot archived",
				slog.String("run_id", runID),
				slog.String("key", key),
				slog.Int("profiles", len(profiles)),
			)
		}
	}
	return c.snapshot(), nil
}
