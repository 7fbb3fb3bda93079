package domain

import "time"

// MarketMeta es la metadata de un mercado binario resuelta desde el CLOB.
// Cacheable ~60s: los flags de estado cambian despacio comparado con el tape.
type MarketMeta struct {
	ConditionID     string
	Question        string
	Slug            string
	Active          bool
	Closed          bool
	AcceptingOrders bool
	EnableOrderBook bool
	EndDate         time.Time
	Tokens          [2]MetaToken
}

// MetaToken es un token de outcome según la metadata del mercado.
type MetaToken struct {
	TokenID string
	Outcome string  // "Up" | "Down" (o "Yes" | "No" en mercados legacy)
	Price   float64 // precio según metadata; fallback si el tape no trae precio fresco
}

// Tradeable devuelve true si el mercado admite órdenes nuevas.
func (m MarketMeta) Tradeable() bool {
	return m.Active && !m.Closed && m.AcceptingOrders && m.EnableOrderBook
}

// Trade es un trade reciente del tape global de la Data API.
type Trade struct {
	ID           string
	ConditionID  string
	TokenID      string
	Title        string
	Slug         string
	OutcomeLabel string
	Side         string // "BUY" | "SELL"
	Price        float64
	Size         float64
	Timestamp    time.Time
}
