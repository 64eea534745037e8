package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, slug string) (domain.Market, error)
	BySlugs(ctx context.Context, slugs []string) ([]domain.Recommendation, error)
}

// RecommendationService produces ranked markets for a wallet.
type RecommendationService interface {
	Recommend(ctx context.Context, wallet string, limit int) ([]domain.Recommendation, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	recs    RecommendationService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given services and logger.
func NewMarketHandler(markets MarketService, recs RecommendationService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		recs:    recs,
		logger:  logHandler(logger, "markets"),
	}
}

type marketResponse struct {
	Slug          string     `json:"market_slug"`
	Title         string     `json:"title"`
	ConditionID   string     `json:"condition_id,omitempty"`
	Category      string     `json:"category"`
	Tags          []string   `json:"tags,omitempty"`
	Status        string     `json:"status"`
	VolumeTotal   float64    `json:"volume_total"`
	WinningSide   string     `json:"winning_side,omitempty"`
	SideAID       string     `json:"side_a_id,omitempty"`
	SideBID       string     `json:"side_b_id,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	CompletedTime *time.Time `json:"completed_time,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	Cluster       *int       `json:"cluster,omitempty"`
	HasEmbedding  bool       `json:"has_embedding"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toMarketResponse(m domain.Market) marketResponse {
	return marketResponse{
		Slug:          m.Slug,
		Title:         m.DisplayTitle(),
		ConditionID:   m.ConditionID,
		Category:      m.DisplayCategory(),
		Tags:          m.Tags,
		Status:        string(m.Status),
		VolumeTotal:   m.VolumeTotal,
		WinningSide:   m.WinningSide,
		SideAID:       m.SideAID,
		SideBID:       m.SideBID,
		StartTime:     m.StartTime,
		EndTime:       m.EndTime,
		CompletedTime: m.CompletedTime,
		ImageURL:      m.ImageURL,
		Cluster:       m.Cluster,
		HasEmbedding:  m.HasEmbedding(),
		UpdatedAt:     m.UpdatedAt,
	}
}

// Recommendations returns ranked markets for a wallet.
// GET /api/markets/recommendations/{wallet}?limit=10
func (h *MarketHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := h.recs.Recommend(r.Context(), pathParam(r, "wallet"), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load recommendations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

// BySlugs returns the requested markets in request order.
// GET /api/markets/by-slugs?slugs=a,b
func (h *MarketHandler) BySlugs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("slugs")
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]any{"markets": []domain.Recommendation{}})
		return
	}

	markets, err := h.markets.BySlugs(r.Context(), strings.Split(raw, ","))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load markets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// GetMarket returns a single market by its slug.
// GET /api/markets/{slug}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	slug := pathParam(r, "slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing market slug")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), slug)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(market))
}
