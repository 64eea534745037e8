package domain

import (
	"time"

	"github.com/alanyoungcy/polyrec/internal/vector"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen   MarketStatus = "open"
	MarketStatusClosed MarketStatus = "closed"
)

// Winning side identifiers as recorded on a finalized market.
const (
	SideA = "side_a"
	SideB = "side_b"
)

// UncategorizedCategory is used wherever a market carries no category.
const UncategorizedCategory = "Uncategorized"

// Market is a prediction market keyed by its slug.
type Market struct {
	Slug          string
	Title         string
	ConditionID   string
	Category      string
	Tags          []string
	Status        MarketStatus
	VolumeTotal   float64
	Embedding     vector.Stored
	WinningSide   string
	SideAID       string // outcome token id for side A
	SideBID       string
	StartTime     *time.Time
	EndTime       *time.Time
	CompletedTime *time.Time
	ImageURL      string
	Cluster       *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayTitle falls back to the slug when the title is empty.
func (m Market) DisplayTitle() string {
	if m.Title == "" {
		return m.Slug
	}
	return m.Title
}

// DisplayCategory falls back to UncategorizedCategory.
func (m Market) DisplayCategory() string {
	if m.Category == "" {
		return UncategorizedCategory
	}
	return m.Category
}

// IsFinalized reports whether the outcome is settled: closed with a recorded
// winning side.
func (m Market) IsFinalized() bool {
	return m.Status == MarketStatusClosed && m.WinningSide != ""
}

// WinningTokenID returns the outcome token that settled at $1.
func (m Market) WinningTokenID() string {
	if m.WinningSide == SideA {
		return m.SideAID
	}
	return m.SideBID
}

// EmbeddingVector decodes the stored embedding. An empty slice means the
// market has no embedding yet.
func (m Market) EmbeddingVector() []float64 {
	return vector.Decode(m.Embedding)
}

// HasEmbedding reports whether the market carries a non-empty embedding.
func (m Market) HasEmbedding() bool {
	return len(m.EmbeddingVector()) > 0
}

// MarketMatch is one nearest-neighbour result for a query vector.
type MarketMatch struct {
	Market     Market
	Similarity float64
}

// ClusterAssignment places a market in a semantic cluster.
type ClusterAssignment struct {
	MarketSlug string
	Cluster    int
	Label      string
}
