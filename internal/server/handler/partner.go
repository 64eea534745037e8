package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// MaxPartnerMarkets caps the candidate list of one ranking request.
const MaxPartnerMarkets = 500

// PartnerRanker ranks partner-supplied markets for a wallet.
type PartnerRanker interface {
	RankForPartner(ctx context.Context, wallet string, candidates []domain.PartnerCandidate) (*domain.PartnerRanking, error)
}

// PartnerHandler serves the partner ranking endpoint.
type PartnerHandler struct {
	ranker PartnerRanker
	logger *slog.Logger
}

// NewPartnerHandler creates a PartnerHandler.
func NewPartnerHandler(ranker PartnerRanker, logger *slog.Logger) *PartnerHandler {
	return &PartnerHandler{ranker: ranker, logger: logHandler(logger, "partner")}
}

type rankRequest struct {
	WalletAddress string           `json:"walletAddress"`
	Markets       []map[string]any `json:"markets"`
}

type rankResponse struct {
	WalletAddress   string           `json:"wallet_address"`
	TotalRanked     int              `json:"total_ranked"`
	Recommendations []map[string]any `json:"recommendations"`
}

// Rank scores the submitted markets against the wallet's interest profile.
// Every field a partner sends with a market is echoed back alongside
// relevance_score and match_percentage.
// POST /api/b2b/rank
func (h *PartnerHandler) Rank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates, err := parseCandidates(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ranking, err := h.ranker.RankForPartner(r.Context(), req.WalletAddress, candidates)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to rank markets")
		return
	}

	out := rankResponse{
		WalletAddress:   ranking.WalletAddress,
		TotalRanked:     ranking.TotalRanked,
		Recommendations: make([]map[string]any, 0, len(ranking.Recommendations)),
	}
	for _, rm := range ranking.Recommendations {
		item := make(map[string]any, len(rm.Extra)+4)
		for k, v := range rm.Extra {
			item[k] = v
		}
		item["slug"] = rm.Slug
		item["title"] = rm.Title
		item["relevance_score"] = rm.RelevanceScore
		item["match_percentage"] = rm.MatchPercentage
		out.Recommendations = append(out.Recommendations, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func parseCandidates(req rankRequest) ([]domain.PartnerCandidate, error) {
	if strings.TrimSpace(req.WalletAddress) == "" {
		return nil, fmt.Errorf("walletAddress is required: %w", domain.ErrInvalidInput)
	}
	if len(req.Markets) == 0 {
		return nil, fmt.Errorf("markets must not be empty: %w", domain.ErrInvalidInput)
	}
	if len(req.Markets) > MaxPartnerMarkets {
		return nil, fmt.Errorf("at most %d markets per request: %w", MaxPartnerMarkets, domain.ErrInvalidInput)
	}

	out := make([]domain.PartnerCandidate, 0, len(req.Markets))
	for i, raw := range req.Markets {
		slug, _ := raw["slug"].(string)
		if strings.TrimSpace(slug) == "" {
			return nil, fmt.Errorf("markets[%d]: slug is required: %w", i, domain.ErrInvalidInput)
		}
		title, _ := raw["title"].(string)

		extra := make(map[string]any, len(raw))
		for k, v := range raw {
			if k == "slug" || k == "title" {
				continue
			}
			extra[k] = v
		}
		out = append(out, domain.PartnerCandidate{Slug: slug, Title: title, Extra: extra})
	}
	return out, nil
}
