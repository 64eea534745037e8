package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/polyrec/internal/blob/s3"
	"github.com/alanyoungcy/polyrec/internal/cache/redis"
	"github.com/alanyoungcy/polyrec/internal/config"
	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/notify"
	"github.com/alanyoungcy/polyrec/internal/platform/dome"
	"github.com/alanyoungcy/polyrec/internal/platform/embedding"
	"github.com/alanyoungcy/polyrec/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Markets      domain.MarketStore
	Transactions domain.TransactionStore
	Summaries    domain.MarketSummaryStore
	Categories   domain.CategorySummaryStore
	Profiles     domain.ProfileStore
	JobRuns      domain.JobRunStore

	// Caches, nil when redis is disabled
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter

	// Blob storage, nil when s3 is disabled
	Archiver domain.ProfileArchiver

	// Providers
	TradingData domain.TradingData
	Embedder    domain.Embedder

	// Notifier sends job alerts, nil when no channel is configured
	Notifier *notify.Notifier

	// Checks pings each connected backend for the health endpoint.
	Checks map[string]func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]func(ctx context.Context) error)}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Checks["postgres"] = pgClient.Ping

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Transactions = postgres.NewTransactionStore(pool)
	deps.Summaries = postgres.NewMarketSummaryStore(pool)
	deps.Categories = postgres.NewCategorySummaryStore(pool)
	deps.Profiles = postgres.NewProfileStore(pool)
	deps.JobRuns = postgres.NewJobRunStore(pool)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient.Ping

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.MarketTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Checks["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewProfileArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
	}

	// --- Providers ---
	deps.TradingData = dome.NewClient(dome.Config{
		BaseURL:          cfg.Dome.BaseURL,
		APIKey:           cfg.Dome.APIKey,
		RequestInterval:  cfg.Dome.RequestInterval.Duration,
		RateLimitBackoff: cfg.Dome.RateLimitBackoff.Duration,
		Timeout:          cfg.Dome.Timeout.Duration,
	}, logger)

	deps.Embedder = embedding.NewClient(embedding.Config{
		Endpoint:    cfg.Embedding.Endpoint,
		Project:     cfg.Embedding.Project,
		Location:    cfg.Embedding.Location,
		Model:       cfg.Embedding.Model,
		AccessToken: cfg.Embedding.AccessToken,
		Dimensions:  cfg.Embedding.Dimensions,
		TaskType:    cfg.Embedding.TaskType,
		BatchSize:   cfg.Embedding.BatchSize,
		Timeout:     cfg.Embedding.Timeout.Duration,
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
