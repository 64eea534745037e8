package dome

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// flexFloat unmarshals from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// unixTime unmarshals unix seconds sent as a number or a numeric string. Zero
// means absent.
type unixTime int64

func (u *unixTime) UnmarshalJSON(data []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	*u = unixTime(f)
	return nil
}

func (u unixTime) Time() time.Time {
	if u <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(u), 0).UTC()
}

func (u unixTime) Ptr() *time.Time {
	if u <= 0 {
		return nil
	}
	t := u.Time()
	return &t
}

type apiPagination struct {
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

type apiOrder struct {
	TokenID          string    `json:"token_id"`
	Side             string    `json:"side"`
	MarketSlug       string    `json:"market_slug"`
	ConditionID      string    `json:"condition_id"`
	Shares           flexFloat `json:"shares"`
	SharesNormalized flexFloat `json:"shares_normalized"`
	Price            flexFloat `json:"price"`
	TxHash           string    `json:"tx_hash"`
	OrderHash        string    `json:"order_hash"`
	Title            string    `json:"title"`
	Timestamp        unixTime  `json:"timestamp"`
	User             string    `json:"user"`
}

type ordersResponse struct {
	Orders     []apiOrder    `json:"orders"`
	Pagination apiPagination `json:"pagination"`
}

func (o apiOrder) toDomain() domain.TradingOrder {
	shares := float64(o.SharesNormalized)
	if shares == 0 {
		shares = float64(o.Shares)
	}
	return domain.TradingOrder{
		User:             domain.NormalizeWallet(o.User),
		MarketSlug:       o.MarketSlug,
		Title:            o.Title,
		ConditionID:      o.ConditionID,
		TokenID:          o.TokenID,
		Side:             domain.ParseTradeSide(o.Side),
		Price:            float64(o.Price),
		Shares:           float64(o.Shares),
		SharesNormalized: shares,
		TxHash:           o.TxHash,
		OrderHash:        o.OrderHash,
		Timestamp:        o.Timestamp.Time(),
	}
}

type apiActivity struct {
	Side        string    `json:"side"`
	MarketSlug  string    `json:"market_slug"`
	ConditionID string    `json:"condition_id"`
	Shares      flexFloat `json:"shares_normalized"`
	Price       flexFloat `json:"price"`
	TxHash      string    `json:"tx_hash"`
	Timestamp   unixTime  `json:"timestamp"`
	User        string    `json:"user"`
}

type activityResponse struct {
	Activities []apiActivity `json:"activities"`
	Pagination apiPagination `json:"pagination"`
}

func (a apiActivity) toDomain() domain.TradingActivity {
	return domain.TradingActivity{
		User:        domain.NormalizeWallet(a.User),
		Kind:        strings.ToUpper(a.Side),
		MarketSlug:  a.MarketSlug,
		ConditionID: a.ConditionID,
		Shares:      float64(a.Shares),
		Price:       float64(a.Price),
		TxHash:      a.TxHash,
		Timestamp:   a.Timestamp.Time(),
	}
}

type apiSide struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type apiMarket struct {
	MarketSlug    string          `json:"market_slug"`
	Title         string          `json:"title"`
	ConditionID   string          `json:"condition_id"`
	Tags          []string        `json:"tags"`
	Status        string          `json:"status"`
	WinningSide   json.RawMessage `json:"winning_side"`
	SideA         apiSide         `json:"side_a"`
	SideB         apiSide         `json:"side_b"`
	StartTime     unixTime        `json:"start_time"`
	EndTime       unixTime        `json:"end_time"`
	CompletedTime unixTime        `json:"completed_time"`
	VolumeTotal   flexFloat       `json:"volume_total"`
	Image         string          `json:"image"`
}

type marketsResponse struct {
	Markets    []apiMarket   `json:"markets"`
	Pagination apiPagination `json:"pagination"`
}

func (m apiMarket) toDomain() domain.Market {
	status := domain.MarketStatusOpen
	if strings.EqualFold(m.Status, string(domain.MarketStatusClosed)) {
		status = domain.MarketStatusClosed
	}
	return domain.Market{
		Slug:          m.MarketSlug,
		Title:         m.Title,
		ConditionID:   m.ConditionID,
		Tags:          m.Tags,
		Status:        status,
		VolumeTotal:   float64(m.VolumeTotal),
		WinningSide:   m.winningSide(),
		SideAID:       m.SideA.ID,
		SideBID:       m.SideB.ID,
		StartTime:     m.StartTime.Ptr(),
		EndTime:       m.EndTime.Ptr(),
		CompletedTime: m.CompletedTime.Ptr(),
		ImageURL:      m.Image,
	}
}

// winningSide normalizes the provider's winning side, which arrives either as
// a string or as a {id, label} object, to domain.SideA or domain.SideB. The
// result is empty when it cannot be matched to either side.
func (m apiMarket) winningSide() string {
	raw := bytes.TrimSpace(m.WinningSide)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var side apiSide
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		side = apiSide{ID: s, Label: s}
	} else if err := json.Unmarshal(raw, &side); err != nil {
		return ""
	}

	switch {
	case side.ID == domain.SideA, side.Label == domain.SideA:
		return domain.SideA
	case side.ID == domain.SideB, side.Label == domain.SideB:
		return domain.SideB
	case side.ID != "" && side.ID == m.SideA.ID:
		return domain.SideA
	case side.ID != "" && side.ID == m.SideB.ID:
		return domain.SideB
	case side.Label != "" && strings.EqualFold(side.Label, m.SideA.Label):
		return domain.SideA
	case side.Label != "" && strings.EqualFold(side.Label, m.SideB.Label):
		return domain.SideB
	}
	return ""
}
