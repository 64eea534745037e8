// Package dome is the REST client for the Dome trading-data API, which serves
// Polymarket orders, wallet activity and market metadata.
package dome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	// RequestInterval is the minimum spacing between requests.
	RequestInterval time.Duration
	// RateLimitBackoff is how long to wait before retrying a rate-limited
	// request. A request is retried once.
	RateLimitBackoff time.Duration
	Timeout          time.Duration
}

// Client implements domain.TradingData over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    time.Duration
	logger     *slog.Logger
}

var _ domain.TradingData = (*Client)(nil)

// NewClient creates a Dome API client.
//
// cfg.BaseURL is the API root, e.g. "https://api.domeapi.io/v1".
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 2 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		backoff: cfg.RateLimitBackoff,
		logger:  logger.With(slog.String("component", "dome")),
	}
}

// OrdersForMarket returns one page of filled orders in a market.
func (c *Client) OrdersForMarket(ctx context.Context, marketSlug string, limit, offset int) (domain.Page[domain.TradingOrder], error) {
	params := pageParams(limit, offset)
	params.Set("market_slug", marketSlug)
	page, err := c.orders(ctx, params)
	if err != nil {
		return page, fmt.Errorf("dome: orders for market %s: %w", marketSlug, err)
	}
	return page, nil
}

// OrdersForWallet returns one page of filled orders placed by a wallet.
func (c *Client) OrdersForWallet(ctx context.Context, wallet string, limit, offset int) (domain.Page[domain.TradingOrder], error) {
	params := pageParams(limit, offset)
	params.Set("user", wallet)
	page, err := c.orders(ctx, params)
	if err != nil {
		return page, fmt.Errorf("dome: orders for wallet %s: %w", wallet, err)
	}
	return page, nil
}

func (c *Client) orders(ctx context.Context, params url.Values) (domain.Page[domain.TradingOrder], error) {
	var resp ordersResponse
	if err := c.doGet(ctx, "/polymarket/orders", params, &resp); err != nil {
		return domain.Page[domain.TradingOrder]{}, err
	}
	items := make([]domain.TradingOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		items = append(items, o.toDomain())
	}
	return domain.Page[domain.TradingOrder]{Items: items, HasMore: resp.Pagination.HasMore}, nil
}

// ActivityForWallet returns one page of non-order wallet events.
func (c *Client) ActivityForWallet(ctx context.Context, wallet string, limit, offset int) (domain.Page[domain.TradingActivity], error) {
	params := pageParams(limit, offset)
	params.Set("user", wallet)

	var resp activityResponse
	if err := c.doGet(ctx, "/polymarket/activity", params, &resp); err != nil {
		return domain.Page[domain.TradingActivity]{}, fmt.Errorf("dome: activity for wallet %s: %w", wallet, err)
	}
	items := make([]domain.TradingActivity, 0, len(resp.Activities))
	for _, a := range resp.Activities {
		items = append(items, a.toDomain())
	}
	return domain.Page[domain.TradingActivity]{Items: items, HasMore: resp.Pagination.HasMore}, nil
}

// Markets returns one page of market metadata.
func (c *Client) Markets(ctx context.Context, q domain.MarketQuery) (domain.Page[domain.Market], error) {
	params := pageParams(q.Limit, q.Offset)
	for _, slug := range q.Slugs {
		params.Add("market_slug", slug)
	}
	if q.MinVolume > 0 {
		params.Set("min_volume", strconv.FormatFloat(q.MinVolume, 'f', -1, 64))
	}

	var resp marketsResponse
	if err := c.doGet(ctx, "/polymarket/markets", params, &resp); err != nil {
		return domain.Page[domain.Market]{}, fmt.Errorf("dome: markets: %w", err)
	}
	items := make([]domain.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		if m.MarketSlug == "" {
			continue
		}
		items = append(items, m.toDomain())
	}
	return domain.Page[domain.Market]{Items: items, HasMore: resp.Pagination.HasMore}, nil
}

func pageParams(limit, offset int) url.Values {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	return params
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet performs a paced GET and decodes the JSON body into out. A
// rate-limited or upstream-unavailable request is retried once after the
// configured backoff.
func (c *Client) doGet(ctx context.Context, path string, params url.Values, out any) error {
	err := c.getOnce(ctx, path, params, out)
	if !errors.Is(err, domain.ErrRateLimited) && !errors.Is(err, domain.ErrUpstreamUnavailable) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}

	c.logger.WarnContext(ctx, "dome: request failed, backing off",
		slog.String("path", path),
		slog.Duration("backoff", c.backoff),
		slog.String("error", err.Error()),
	)
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return c.getOnce(ctx, path, params, out)
}

func (c *Client) getOnce(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, truncate(body))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
