package ports

import (
	"context"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// TradeProvider obtiene trades recientes del tape global de la Data API.
type TradeProvider interface {
	// FetchGlobalTrades devuelve los trades más recientes de todo el
	// exchange (todos los mercados), hasta limit, los más nuevos primero.
	FetchGlobalTrades(ctx context.Context, limit int) ([]domain.Trade, error)
}
