package ports

import (
	"context"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// MarketProvider resuelve la metadata de un mercado binario desde el CLOB.
type MarketProvider interface {
	// FetchMarket devuelve la metadata del mercado identificado por su
	// condition ID: flags de estado, fecha de cierre y los dos tokens.
	FetchMarket(ctx context.Context, conditionID string) (domain.MarketMeta, error)
}
