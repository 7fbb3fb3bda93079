package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

const (
	tradesPerPage  = 500
	tradesMaxPages = 4
)

type rawDataTrade struct {
	ID           string      `json:"transactionHash"`
	ConditionID  string      `json:"conditionId"`
	Asset        string      `json:"asset"`
	Title        string      `json:"title"`
	Slug         string      `json:"slug"`
	Outcome      string      `json:"outcome"`
	OutcomeIndex json.Number `json:"outcomeIndex"`
	Side         string      `json:"side"`
	Price        json.Number `json:"price"`
	Size         json.Number `json:"size"`
	Timestamp    json.Number `json:"timestamp"`
}

// FetchGlobalTrades obtiene los trades más recientes de todo el exchange
// usando la Data API pública, sin filtrar por mercado. Pagina hasta limit
// trades, los más nuevos primero.
func (c *Client) FetchGlobalTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = tradesPerPage
	}

	var all []domain.Trade
	for page := 0; page < tradesMaxPages && len(all) < limit; page++ {
		pageLimit := tradesPerPage
		if remaining := limit - len(all); remaining < pageLimit {
			pageLimit = remaining
		}
		url := fmt.Sprintf("%s/trades?takerOnly=true&limit=%d&offset=%d",
			c.dataBase, pageLimit, page*tradesPerPage)

		var resp []rawDataTrade
		if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
			return nil, fmt.Errorf("data-api.FetchGlobalTrades: %w", err)
		}

		if len(resp) == 0 {
			break
		}

		for _, rt := range resp {
			price, _ := rt.Price.Float64()
			size, _ := rt.Size.Float64()

			all = append(all, domain.Trade{
				ID:           rt.ID,
				ConditionID:  rt.ConditionID,
				TokenID:      rt.Asset,
				Title:        rt.Title,
				Slug:         rt.Slug,
				OutcomeLabel: rt.Outcome,
				Side:         rt.Side,
				Price:        price,
				Size:         size,
				Timestamp:    parseTradeTimestamp(rt.Timestamp),
			})
		}

		slog.Debug("fetched global trades page",
			"page", page,
			"count", len(resp),
			"total", len(all),
		)

		if len(resp) < pageLimit {
			break
		}
	}

	return all, nil
}

func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	// Unix timestamp en segundos o milisegundos
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond))
		}
		return time.Unix(sec, 0)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec)
	}
	// ISO string
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
