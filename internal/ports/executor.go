package ports

import "context"

// FillResult describes an immediate-or-cancel order outcome.
type FillResult struct {
	OrderID     string
	FilledSize  float64 // shares actually filled
	FilledPrice float64 // average fill price
	AmountUSD   float64 // notional actually spent/received
}

// OrderExecutor submits immediate-or-cancel (FAK) orders to the Polymarket CLOB.
type OrderExecutor interface {
	// BuyFAK submits a marketable buy for amountUSD notional at limit price.
	// Unfilled remainder is cancelled by the exchange, never rests on the book.
	BuyFAK(ctx context.Context, tokenID string, price, amountUSD float64) (FillResult, error)

	// SellFAK submits a marketable sell for size shares at limit price.
	SellFAK(ctx context.Context, tokenID string, price, size float64) (FillResult, error)

	// GetBalance returns the available USDC.e balance for the wallet.
	GetBalance(ctx context.Context) (float64, error)

	// TokenBalance returns the on-chain ERC-1155 balance (in shares) for a token.
	// Ground truth for residual exposure: if > 0, a buy filled regardless of
	// what the order API reported.
	TokenBalance(ctx context.Context, tokenID string) (float64, error)
}
