package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYREC_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYREC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "POLYREC_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "POLYREC_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POLYREC_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POLYREC_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "POLYREC_DATABASE_USER")
	setStr(&cfg.Database.Password, "POLYREC_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POLYREC_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "POLYREC_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POLYREC_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POLYREC_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYREC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYREC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYREC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYREC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYREC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYREC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYREC_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.MarketTTL, "POLYREC_REDIS_MARKET_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYREC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYREC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYREC_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYREC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYREC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYREC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYREC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYREC_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "POLYREC_S3_PREFIX")

	// ── Dome ──
	setStr(&cfg.Dome.BaseURL, "POLYREC_DOME_BASE_URL")
	setStr(&cfg.Dome.APIKey, "POLYREC_DOME_API_KEY")
	setStr(&cfg.Dome.APIKey, "DOME_API_KEY") // compatibility alias
	setDuration(&cfg.Dome.RequestInterval, "POLYREC_DOME_REQUEST_INTERVAL")
	setDuration(&cfg.Dome.RateLimitBackoff, "POLYREC_DOME_RATE_LIMIT_BACKOFF")
	setInt(&cfg.Dome.PageSize, "POLYREC_DOME_PAGE_SIZE")
	setInt(&cfg.Dome.MaxResults, "POLYREC_DOME_MAX_RESULTS")
	setDuration(&cfg.Dome.Timeout, "POLYREC_DOME_TIMEOUT")

	// ── Embedding ──
	setStr(&cfg.Embedding.Endpoint, "POLYREC_EMBEDDING_ENDPOINT")
	setStr(&cfg.Embedding.Project, "POLYREC_EMBEDDING_PROJECT")
	setStr(&cfg.Embedding.Project, "GOOGLE_PROJECT_ID") // compatibility alias
	setStr(&cfg.Embedding.Location, "POLYREC_EMBEDDING_LOCATION")
	setStr(&cfg.Embedding.Model, "POLYREC_EMBEDDING_MODEL")
	setStr(&cfg.Embedding.AccessToken, "POLYREC_EMBEDDING_ACCESS_TOKEN")
	setInt(&cfg.Embedding.Dimensions, "POLYREC_EMBEDDING_DIMENSIONS")
	setStr(&cfg.Embedding.TaskType, "POLYREC_EMBEDDING_TASK_TYPE")
	setInt(&cfg.Embedding.BatchSize, "POLYREC_EMBEDDING_BATCH_SIZE")
	setDuration(&cfg.Embedding.Timeout, "POLYREC_EMBEDDING_TIMEOUT")

	// ── Ranker ──
	setFloat64(&cfg.Ranker.MatchThreshold, "POLYREC_RANKER_MATCH_THRESHOLD")
	setInt(&cfg.Ranker.ProfileTopMatches, "POLYREC_RANKER_PROFILE_TOP_MATCHES")
	setInt(&cfg.Ranker.DefaultLimit, "POLYREC_RANKER_DEFAULT_LIMIT")
	setInt(&cfg.Ranker.MaxLimit, "POLYREC_RANKER_MAX_LIMIT")
	setInt(&cfg.Ranker.CandidatePool, "POLYREC_RANKER_CANDIDATE_POOL")
	setInt(&cfg.Ranker.BackgroundWorkers, "POLYREC_RANKER_BACKGROUND_WORKERS")
	setDuration(&cfg.Ranker.BackgroundTimeout, "POLYREC_RANKER_BACKGROUND_TIMEOUT")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.Workers, "POLYREC_PIPELINE_WORKERS")
	setStringSlice(&cfg.Pipeline.Wallets, "POLYREC_PIPELINE_WALLETS")
	setStringSlice(&cfg.Pipeline.SeedMarkets, "POLYREC_PIPELINE_SEED_MARKETS")
	setInt(&cfg.Pipeline.MaxOrdersPerWallet, "POLYREC_PIPELINE_MAX_ORDERS_PER_WALLET")
	setInt(&cfg.Pipeline.InsertBatchSize, "POLYREC_PIPELINE_INSERT_BATCH_SIZE")
	setInt(&cfg.Pipeline.SummaryPageSize, "POLYREC_PIPELINE_SUMMARY_PAGE_SIZE")
	setInt(&cfg.Pipeline.ClusterK, "POLYREC_PIPELINE_CLUSTER_K")
	setInt(&cfg.Pipeline.ClusterIterations, "POLYREC_PIPELINE_CLUSTER_ITERATIONS")
	setUint64(&cfg.Pipeline.ClusterSeed, "POLYREC_PIPELINE_CLUSTER_SEED")
	setStr(&cfg.Pipeline.Schedule, "POLYREC_PIPELINE_SCHEDULE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYREC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYREC_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setStringSlice(&cfg.Server.CORSOrigins, "POLYREC_SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.APIKeys, "POLYREC_SERVER_API_KEYS")
	setInt(&cfg.Server.PartnerRateLimit, "POLYREC_SERVER_PARTNER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYREC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYREC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYREC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYREC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYREC_MODE")
	setStr(&cfg.LogLevel, "POLYREC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
