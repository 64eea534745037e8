// Package config defines the top-level configuration for the recommendation
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYREC_* environment variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Dome      DomeConfig      `toml:"dome"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Ranker    RankerConfig    `toml:"ranker"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	MarketTTL  duration `toml:"market_ttl"`
}

// S3Config holds S3-compatible object storage parameters used for profile
// snapshots.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// DomeConfig holds the trading-data API parameters.
type DomeConfig struct {
	BaseURL          string   `toml:"base_url"`
	APIKey           string   `toml:"api_key"`
	RequestInterval  duration `toml:"request_interval"`
	RateLimitBackoff duration `toml:"rate_limit_backoff"`
	PageSize         int      `toml:"page_size"`
	MaxResults       int      `toml:"max_results"`
	Timeout          duration `toml:"timeout"`
}

// EmbeddingConfig holds the embedding provider parameters.
type EmbeddingConfig struct {
	Endpoint    string   `toml:"endpoint"`
	Project     string   `toml:"project"`
	Location    string   `toml:"location"`
	Model       string   `toml:"model"`
	AccessToken string   `toml:"access_token"`
	Dimensions  int      `toml:"dimensions"`
	TaskType    string   `toml:"task_type"`
	BatchSize   int      `toml:"batch_size"`
	Timeout     duration `toml:"timeout"`
}

// RankerConfig holds recommendation parameters.
type RankerConfig struct {
	MatchThreshold    float64  `toml:"match_threshold"`
	ProfileTopMatches int      `toml:"profile_top_matches"`
	DefaultLimit      int      `toml:"default_limit"`
	MaxLimit          int      `toml:"max_limit"`
	CandidatePool     int      `toml:"candidate_pool"`
	BackgroundWorkers int      `toml:"background_workers"`
	BackgroundTimeout duration `toml:"background_timeout"`
}

// PipelineConfig holds batch job parameters.
type PipelineConfig struct {
	Workers            int      `toml:"workers"`
	Wallets            []string `toml:"wallets"`
	SeedMarkets        []string `toml:"seed_markets"`
	MaxOrdersPerWallet int      `toml:"max_orders_per_wallet"`
	InsertBatchSize    int      `toml:"insert_batch_size"`
	SummaryPageSize    int      `toml:"summary_page_size"`
	ClusterK           int      `toml:"cluster_k"`
	ClusterIterations  int      `toml:"cluster_iterations"`
	ClusterSeed        uint64   `toml:"cluster_seed"`
	Schedule           string   `toml:"schedule"`
}

// NotifyConfig holds the pipeline alert channels. A channel without
// credentials is disabled.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"` // job_failed, job_succeeded; empty means all
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKeys guard the partner ranking endpoint. Empty disables the check.
	APIKeys []string `toml:"api_keys"`
	// PartnerRateLimit is requests per minute per API key.
	PartnerRateLimit int `toml:"partner_rate_limit"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			MarketTTL:  duration{5 * time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyrec-data",
			ForcePathStyle: true,
			Prefix:         "profiles",
		},
		Dome: DomeConfig{
			BaseURL:          "https://api.domeapi.io/v1",
			RequestInterval:  duration{1100 * time.Millisecond},
			RateLimitBackoff: duration{2 * time.Second},
			PageSize:         100,
			MaxResults:       1000,
			Timeout:          duration{30 * time.Second},
		},
		Embedding: EmbeddingConfig{
			Location:   "us-central1",
			Model:      "text-embedding-004",
			Dimensions: 768,
			TaskType:   "RETRIEVAL_DOCUMENT",
			BatchSize:  5,
			Timeout:    duration{30 * time.Second},
		},
		Ranker: RankerConfig{
			MatchThreshold:    0.1,
			ProfileTopMatches: 5,
			DefaultLimit:      10,
			MaxLimit:          100,
			CandidatePool:     500,
			BackgroundWorkers: 4,
			BackgroundTimeout: duration{30 * time.Second},
		},
		Pipeline: PipelineConfig{
			Workers:            4,
			MaxOrdersPerWallet: 500,
			InsertBatchSize:    100,
			SummaryPageSize:    1000,
			ClusterK:           12,
			ClusterIterations:  10,
			ClusterSeed:        1,
			Schedule:           "0 0 */6 * * *",
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             4002,
			CORSOrigins:      []string{"http://localhost:3000"},
			PartnerRateLimit: 60,
		},
		Notify: NotifyConfig{
			Events: []string{"job_failed"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":     true,
	"backfill":   true,
	"refresh":    true,
	"summaries":  true,
	"pnl":        true,
	"categories": true,
	"embeddings": true,
	"profiles":   true,
	"cluster":    true,
	"pipeline":   true,
	"scheduler":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// needsEmbedder reports whether mode calls the embedding provider.
var validNotifyEvents = map[string]bool{
	"job_failed":    true,
	"job_succeeded": true,
}

func needsEmbedder(mode string) bool {
	switch mode {
	case "server", "embeddings", "pipeline", "scheduler":
		return true
	}
	return false
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	// Mode
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, backfill, refresh, summaries, pnl, categories, embeddings, profiles, cluster, pipeline, scheduler)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Dome
	if c.Dome.BaseURL == "" {
		errs = append(errs, "dome: base_url must not be empty")
	}
	if c.Dome.PageSize < 1 {
		errs = append(errs, "dome: page_size must be >= 1")
	}
	if mode == "backfill" && c.Dome.APIKey == "" {
		errs = append(errs, "dome: api_key is required for mode backfill")
	}

	// Embedding
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, "embedding: dimensions must be >= 1")
	}
	if c.Embedding.BatchSize < 1 {
		errs = append(errs, "embedding: batch_size must be >= 1")
	}
	if needsEmbedder(mode) && c.Embedding.Project == "" && c.Embedding.Endpoint == "" {
		errs = append(errs, "embedding: project (or endpoint) is required for mode "+c.Mode)
	}

	// Ranker
	if c.Ranker.MatchThreshold < -1 || c.Ranker.MatchThreshold > 1 {
		errs = append(errs, fmt.Sprintf("ranker: match_threshold must be within [-1, 1], got %g", c.Ranker.MatchThreshold))
	}
	if c.Ranker.DefaultLimit < 1 {
		errs = append(errs, "ranker: default_limit must be >= 1")
	}
	if c.Ranker.MaxLimit < c.Ranker.DefaultLimit {
		errs = append(errs, "ranker: max_limit must be >= default_limit")
	}

	// Pipeline
	if c.Pipeline.Workers < 1 {
		errs = append(errs, "pipeline: workers must be >= 1")
	}
	if c.Pipeline.ClusterK < 1 {
		errs = append(errs, "pipeline: cluster_k must be >= 1")
	}
	if mode == "scheduler" {
		if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Pipeline.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("pipeline: invalid schedule %q: %v", c.Pipeline.Schedule, err))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if c.Server.PartnerRateLimit < 0 {
		errs = append(errs, "server: partner_rate_limit must be >= 0")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !validNotifyEvents[strings.TrimSpace(e)] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: job_failed, job_succeeded)", e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
