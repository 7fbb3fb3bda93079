package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

func pairSignal(priceA, priceB float64) domain.Signal {
	s := domain.Signal{
		Outcomes: [2]domain.Outcome{
			{TokenID: "tok-up", Label: "Up", Price: priceA},
			{TokenID: "tok-down", Label: "Down", Price: priceB},
		},
		PairSum: priceA + priceB,
	}
	s.Edge = 1.0 - s.PairSum
	return s
}

func TestAllocator_RunBudget(t *testing.T) {
	a := New(Config{WalletUsagePercent: 50})

	assert.Equal(t, 250.0, a.RunBudget(500))
	assert.Equal(t, 0.0, a.RunBudget(0))
	assert.Equal(t, 0.0, a.RunBudget(-10))
}

func TestAllocator_Allocate_EqualShares(t *testing.T) {
	a := New(Config{PairChunkUSD: 10, MinLegUSD: 1})
	sig := pairSignal(0.55, 0.42) // pairSum 0.97

	alloc, reason := a.Allocate(sig, 100)

	require.Empty(t, reason)
	// shares = 10 / 0.97; las dos piernas compran las mismas shares
	assert.InDelta(t, 10.309, alloc.Shares, 0.001)
	assert.InDelta(t, alloc.Shares*0.55, alloc.LegAUSD, 1e-9)
	assert.InDelta(t, alloc.Shares*0.42, alloc.LegBUSD, 1e-9)
	assert.InDelta(t, 10.0, alloc.TotalUSD, 1e-9)
}

func TestAllocator_Allocate_CappedByRemaining(t *testing.T) {
	a := New(Config{PairChunkUSD: 10, MinLegUSD: 1})
	sig := pairSignal(0.50, 0.48)

	alloc, reason := a.Allocate(sig, 6)

	require.Empty(t, reason)
	assert.InDelta(t, 6.0, alloc.TotalUSD, 1e-9)
}

func TestAllocator_Allocate_BudgetExhausted(t *testing.T) {
	a := New(Config{PairChunkUSD: 10, MinLegUSD: 1})
	sig := pairSignal(0.50, 0.48)

	_, reason := a.Allocate(sig, 0)
	assert.Equal(t, domain.RejectBudgetExhausted, reason)
}

func TestAllocator_Allocate_FloorToExchangeMin(t *testing.T) {
	// Par muy sesgado: con chunk $3 la pierna barata queda en ~$0.16,
	// por debajo del mínimo del exchange.
	sig := pairSignal(0.92, 0.05)

	// Sin floor: rechazo directo
	strict := New(Config{PairChunkUSD: 3, MinLegUSD: 1})
	_, reason := strict.Allocate(sig, 100)
	assert.Equal(t, domain.RejectBelowExchMin, reason)

	// Con floor: el chunk se escala hasta que la pierna corta llega a $1
	floored := New(Config{PairChunkUSD: 3, MinLegUSD: 1, FloorToExchangeMin: true})
	alloc, reason := floored.Allocate(sig, 100)
	require.Empty(t, reason)
	assert.InDelta(t, ExchangeMinOrderUSD, alloc.LegBUSD, 1e-9)
	assert.Greater(t, alloc.LegAUSD, alloc.LegBUSD)
	// Las shares siguen igualadas tras rederivar
	assert.InDelta(t, alloc.LegAUSD/0.92, alloc.LegBUSD/0.05, 1e-6)
}

func TestAllocator_Allocate_FlooredChunkExceedsRemaining(t *testing.T) {
	sig := pairSignal(0.92, 0.05)
	a := New(Config{PairChunkUSD: 3, MinLegUSD: 1, FloorToExchangeMin: true})

	// El chunk escalado (~$19.4) no cabe en $10 restantes
	_, reason := a.Allocate(sig, 10)
	assert.Equal(t, domain.RejectBudgetExhausted, reason)
}

func TestAllocator_Allocate_LegTooSmall(t *testing.T) {
	// MinLegUSD propio por encima del mínimo del exchange
	a := New(Config{PairChunkUSD: 4, MinLegUSD: 2})
	sig := pairSignal(0.60, 0.38)

	_, reason := a.Allocate(sig, 100)
	assert.Equal(t, domain.RejectLegTooSmall, reason)
}
