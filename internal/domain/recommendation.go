package domain

import "time"

// RecommendationSource records why a market was recommended.
type RecommendationSource string

const (
	SourceAIMatch    RecommendationSource = "ai_match"
	SourcePopular    RecommendationSource = "popular"
	SourceBookmarked RecommendationSource = "bookmarked"
)

// Recommendation is one ranked market for a wallet.
type Recommendation struct {
	MarketSlug   string               `json:"market_slug"`
	Title        string               `json:"title"`
	Category     string               `json:"category"`
	VolumeTotal  float64              `json:"volume_total"`
	Status       MarketStatus         `json:"status"`
	Reason       string               `json:"reason"`
	Source       RecommendationSource `json:"source"`
	MatchScore   float64              `json:"match_score"`
	MatchPercent int                  `json:"match_percent"`
	ImageURL     string               `json:"image_url,omitempty"`
	EndTime      *time.Time           `json:"end_time,omitempty"`
}

// PartnerCandidate is a market submitted by a partner for ranking. Extra
// carries any additional fields the partner sent; they are echoed back.
type PartnerCandidate struct {
	Slug  string
	Title string
	Extra map[string]any
}

// RankedMarket is a partner candidate with its relevance to the wallet.
type RankedMarket struct {
	Slug            string
	Title           string
	Extra           map[string]any
	RelevanceScore  float64
	MatchPercentage string
}

// PartnerRanking is the response of a partner ranking request.
type PartnerRanking struct {
	WalletAddress   string
	TotalRanked     int
	Recommendations []RankedMarket
}
