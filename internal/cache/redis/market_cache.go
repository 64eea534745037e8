package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

// DefaultMarketTTL applies when NewMarketCache is given a non-positive TTL.
const DefaultMarketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes holding a
// JSON-serialized market.
//
// Key schema:
//
//	{prefix}market:{slug} - hash with field "data" containing JSON
type MarketCache struct {
	client *Client
	rdb    *redis.Client
	ttl    time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{client: c, rdb: c.Underlying(), ttl: ttl}
}

func (mc *MarketCache) marketKey(slug string) string { return mc.client.Key("market", slug) }

// cachedMarket is the JSON layout of a cached market.
type cachedMarket struct {
	Slug          string        `json:"market_slug"`
	Title         string        `json:"title"`
	ConditionID   string        `json:"condition_id,omitempty"`
	Category      string        `json:"category,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	Status        string        `json:"status"`
	VolumeTotal   float64       `json:"volume_total"`
	Embedding     vector.Stored `json:"embedding"`
	WinningSide   string        `json:"winning_side,omitempty"`
	SideAID       string        `json:"side_a_id,omitempty"`
	SideBID       string        `json:"side_b_id,omitempty"`
	StartTime     *time.Time    `json:"start_time,omitempty"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	CompletedTime *time.Time    `json:"completed_time,omitempty"`
	ImageURL      string        `json:"image_url,omitempty"`
	Cluster       *int          `json:"cluster,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func toCached(m domain.Market) cachedMarket {
	return cachedMarket{
		Slug: m.Slug, Title: m.Title, ConditionID: m.ConditionID, Category: m.Category,
		Tags: m.Tags, Status: string(m.Status), VolumeTotal: m.VolumeTotal, Embedding: m.Embedding,
		WinningSide: m.WinningSide, SideAID: m.SideAID, SideBID: m.SideBID,
		StartTime: m.StartTime, EndTime: m.EndTime, CompletedTime: m.CompletedTime,
		ImageURL: m.ImageURL, Cluster: m.Cluster, UpdatedAt: m.UpdatedAt,
	}
}

func (c cachedMarket) toDomain() domain.Market {
	return domain.Market{
		Slug: c.Slug, Title: c.Title, ConditionID: c.ConditionID, Category: c.Category,
		Tags: c.Tags, Status: domain.MarketStatus(c.Status), VolumeTotal: c.VolumeTotal, Embedding: c.Embedding,
		WinningSide: c.WinningSide, SideAID: c.SideAID, SideBID: c.SideBID,
		StartTime: c.StartTime, EndTime: c.EndTime, CompletedTime: c.CompletedTime,
		ImageURL: c.ImageURL, Cluster: c.Cluster, UpdatedAt: c.UpdatedAt,
	}
}

// Set stores a market with the cache TTL.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(toCached(market))
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Slug, err)
	}

	key := mc.marketKey(market.Slug)
	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.Slug, err)
	}
	return nil
}

// Get retrieves a market by slug. It returns domain.ErrNotFound when the key
// does not exist.
func (mc *MarketCache) Get(ctx context.Context, slug string) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, mc.marketKey(slug), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", slug, err)
	}

	var cm cachedMarket
	if err := json.Unmarshal(data, &cm); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", slug, err)
	}
	return cm.toDomain(), nil
}

// Invalidate removes a market from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, slug string) error {
	if err := mc.rdb.Del(ctx, mc.marketKey(slug)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", slug, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
