package polymarket

// markets.go — resolución de metadata de mercado desde el CLOB.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

type rawCLOBMarket struct {
	ConditionID     string         `json:"condition_id"`
	Question        string         `json:"question"`
	MarketSlug      string         `json:"market_slug"`
	Active          bool           `json:"active"`
	Closed          bool           `json:"closed"`
	AcceptingOrders bool           `json:"accepting_orders"`
	EnableOrderBook bool           `json:"enable_order_book"`
	EndDateISO      string         `json:"end_date_iso"`
	Tokens          []rawCLOBToken `json:"tokens"`
}

type rawCLOBToken struct {
	TokenID string      `json:"token_id"`
	Outcome string      `json:"outcome"`
	Price   json.Number `json:"price"`
}

// FetchMarket devuelve la metadata del mercado identificado por su condition ID.
func (c *Client) FetchMarket(ctx context.Context, conditionID string) (domain.MarketMeta, error) {
	url := fmt.Sprintf("%s/markets/%s", c.clobBase, conditionID)

	var raw rawCLOBMarket
	if err := c.get(ctx, c.clobLimiter, url, &raw); err != nil {
		return domain.MarketMeta{}, fmt.Errorf("clob.FetchMarket %s: %w", conditionID, err)
	}

	if len(raw.Tokens) != 2 {
		return domain.MarketMeta{}, fmt.Errorf("clob.FetchMarket %s: expected 2 tokens, got %d", conditionID, len(raw.Tokens))
	}

	meta := domain.MarketMeta{
		ConditionID:     raw.ConditionID,
		Question:        raw.Question,
		Slug:            raw.MarketSlug,
		Active:          raw.Active,
		Closed:          raw.Closed,
		AcceptingOrders: raw.AcceptingOrders,
		EnableOrderBook: raw.EnableOrderBook,
	}
	if raw.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, raw.EndDateISO); err == nil {
			meta.EndDate = t
		}
	}
	for i, rt := range raw.Tokens {
		price, _ := rt.Price.Float64()
		meta.Tokens[i] = domain.MetaToken{
			TokenID: rt.TokenID,
			Outcome: rt.Outcome,
			Price:   price,
		}
	}
	return meta, nil
}
