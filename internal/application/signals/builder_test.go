package signals

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// mockTape implementa ports.TradeProvider.
type mockTape struct {
	trades []domain.Trade
	err    error
}

func (m *mockTape) FetchGlobalTrades(_ context.Context, _ int) ([]domain.Trade, error) {
	return m.trades, m.err
}

// mockMarkets implementa ports.MarketProvider contando las llamadas.
type mockMarkets struct {
	metas map[string]domain.MarketMeta
	errs  map[string]error
	calls atomic.Int64
}

func (m *mockMarkets) FetchMarket(_ context.Context, conditionID string) (domain.MarketMeta, error) {
	m.calls.Add(1)
	if err, ok := m.errs[conditionID]; ok {
		return domain.MarketMeta{}, err
	}
	meta, ok := m.metas[conditionID]
	if !ok {
		return domain.MarketMeta{}, errors.New("not found")
	}
	return meta, nil
}

var testNow = time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)

func upDownMeta(conditionID string, priceUp, priceDown float64) domain.MarketMeta {
	return domain.MarketMeta{
		ConditionID:     conditionID,
		Active:          true,
		AcceptingOrders: true,
		EnableOrderBook: true,
		Tokens: [2]domain.MetaToken{
			{TokenID: conditionID + "-up", Outcome: "Up", Price: priceUp},
			{TokenID: conditionID + "-down", Outcome: "Down", Price: priceDown},
		},
	}
}

func tapeTrade(conditionID, token, slug string, price float64, age time.Duration) domain.Trade {
	return domain.Trade{
		ID:          conditionID + token,
		ConditionID: conditionID,
		TokenID:     conditionID + "-" + token,
		Slug:        slug,
		Side:        "BUY",
		Price:       price,
		Size:        10,
		Timestamp:   testNow.Add(-age),
	}
}

func testConfig() Config {
	return Config{
		Lookback:      90 * time.Second,
		MaxCandidates: 20,
		Workers:       2,
		CoinEnabled:   func(domain.Coin) bool { return true },
		CadenceEnabled: func(c domain.Cadence) bool {
			return c != domain.CadenceOther
		},
	}
}

func TestBuilder_Build_PairFromTape(t *testing.T) {
	tape := &mockTape{trades: []domain.Trade{
		tapeTrade("0xbtc", "up", "bitcoin-up-or-down-5m-1765985400", 0.54, 10*time.Second),
		tapeTrade("0xbtc", "down", "bitcoin-up-or-down-5m-1765985400", 0.43, 5*time.Second),
	}}
	markets := &mockMarkets{metas: map[string]domain.MarketMeta{
		"0xbtc": upDownMeta("0xbtc", 0.55, 0.44),
	}}

	b := NewWithClock(testConfig(), tape, markets, func() time.Time { return testNow })
	res, err := b.Build(context.Background())

	require.NoError(t, err)
	require.Len(t, res.Signals, 1)

	sig := res.Signals[0]
	assert.Equal(t, domain.CoinBTC, sig.Coin)
	assert.Equal(t, domain.Cadence5m, sig.Cadence)
	// Los precios del tape mandan sobre los de la metadata
	assert.InDelta(t, 0.54, sig.Outcomes[0].Price, 1e-9)
	assert.InDelta(t, 0.43, sig.Outcomes[1].Price, 1e-9)
	assert.InDelta(t, 0.97, sig.PairSum, 1e-9)
	assert.InDelta(t, 0.03, sig.Edge, 1e-9)
	// El timestamp de la señal es el del trade más reciente
	assert.Equal(t, testNow.Add(-5*time.Second), sig.LatestTimestamp)
}

func TestBuilder_Build_MetadataPriceFallback(t *testing.T) {
	// Solo la pierna Up aparece en el tape; Down usa el precio de metadata
	tape := &mockTape{trades: []domain.Trade{
		tapeTrade("0xbtc", "up", "bitcoin-up-or-down-5m-1765985400", 0.50, 10*time.Second),
	}}
	markets := &mockMarkets{metas: map[string]domain.MarketMeta{
		"0xbtc": upDownMeta("0xbtc", 0.52, 0.46),
	}}

	b := NewWithClock(testConfig(), tape, markets, func() time.Time { return testNow })
	res, err := b.Build(context.Background())

	require.NoError(t, err)
	require.Len(t, res.Signals, 1)
	assert.InDelta(t, 0.50, res.Signals[0].Outcomes[0].Price, 1e-9)
	assert.InDelta(t, 0.46, res.Signals[0].Outcomes[1].Price, 1e-9)
}

func TestBuilder_Build_RejectionHistogram(t *testing.T) {
	tape := &mockTape{trades: []domain.Trade{
		tapeTrade("0xclosed", "up", "bitcoin-up-or-down-5m-1", 0.50, 10*time.Second),
		tapeTrade("0xother", "up", "will-it-rain-tomorrow", 0.50, 10*time.Second),
		tapeTrade("0xsum", "up", "ethereum-up-or-down-15m-2", 0.50, 10*time.Second),
		tapeTrade("0xerr", "up", "bitcoin-up-or-down-5m-3", 0.50, 10*time.Second),
	}}

	closed := upDownMeta("0xclosed", 0.50, 0.48)
	closed.Closed = true
	// La pierna Down no aparece en el tape y su precio de metadata es
	// inválido: resolución de token fallida
	badSum := upDownMeta("0xsum", 0.50, 0.0)

	markets := &mockMarkets{
		metas: map[string]domain.MarketMeta{
			"0xclosed": closed,
			"0xsum":    badSum,
		},
		errs: map[string]error{"0xerr": errors.New("boom")},
	}

	b := NewWithClock(testConfig(), tape, markets, func() time.Time { return testNow })
	res, err := b.Build(context.Background())

	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Equal(t, 1, res.Rejections[domain.RejectClosed])
	assert.Equal(t, 1, res.Rejections[domain.RejectUnclassified])
	assert.Equal(t, 1, res.Rejections[domain.RejectTokenResolution])
	assert.Equal(t, 1, res.Rejections[domain.RejectMetadataError])
	assert.Equal(t, 4, res.TradesInspected)
}

func TestBuilder_Build_StaleTradesIgnored(t *testing.T) {
	tape := &mockTape{trades: []domain.Trade{
		tapeTrade("0xbtc", "up", "bitcoin-up-or-down-5m-1", 0.50, 5*time.Minute),
	}}
	markets := &mockMarkets{metas: map[string]domain.MarketMeta{}}

	b := NewWithClock(testConfig(), tape, markets, func() time.Time { return testNow })
	res, err := b.Build(context.Background())

	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Zero(t, markets.calls.Load(), "stale markets should never hit the CLOB")
}

func TestBuilder_Build_DeterministicOrder(t *testing.T) {
	tape := &mockTape{trades: []domain.Trade{
		tapeTrade("0xa", "up", "bitcoin-up-or-down-5m-1", 0.50, 10*time.Second),
		tapeTrade("0xb", "up", "ethereum-up-or-down-5m-2", 0.50, 10*time.Second),
		tapeTrade("0xc", "up", "bitcoin-up-or-down-15m-3", 0.50, 10*time.Second),
	}}
	markets := &mockMarkets{metas: map[string]domain.MarketMeta{
		"0xa": upDownMeta("0xa", 0.50, 0.48), // edge 0.02
		"0xb": upDownMeta("0xb", 0.50, 0.45), // edge 0.05
		"0xc": upDownMeta("0xc", 0.50, 0.47), // edge 0.03
	}}

	b := NewWithClock(testConfig(), tape, markets, func() time.Time { return testNow })

	for i := 0; i < 5; i++ {
		res, err := b.Build(context.Background())
		require.NoError(t, err)
		require.Len(t, res.Signals, 3, "iteration %d", i)
		assert.Equal(t, "0xb", res.Signals[0].ConditionID)
		assert.Equal(t, "0xc", res.Signals[1].ConditionID)
		assert.Equal(t, "0xa", res.Signals[2].ConditionID)
	}
}

func TestBuilder_Build_MaxCandidatesCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCandidates = 2

	var trades []domain.Trade
	metas := make(map[string]domain.MarketMeta)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("0x%d", i)
		trades = append(trades, tapeTrade(id, "up", fmt.Sprintf("bitcoin-up-or-down-5m-%d", i), 0.50, time.Duration(i)*time.Second))
		metas[id] = upDownMeta(id, 0.50, 0.48)
	}

	markets := &mockMarkets{metas: metas}
	b := NewWithClock(cfg, &mockTape{trades: trades}, markets, func() time.Time { return testNow })

	res, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Signals, 2)
	assert.EqualValues(t, 2, markets.calls.Load())
}

func TestMetaCache_TTLAndNegativeEntries(t *testing.T) {
	now := testNow
	cache := newMetaCache(func() time.Time { return now })

	cache.put("0xa", upDownMeta("0xa", 0.5, 0.48))
	cache.putNegative("0xbad")

	meta, neg, hit := cache.get("0xa")
	require.True(t, hit)
	assert.False(t, neg)
	assert.Equal(t, "0xa", meta.ConditionID)

	_, neg, hit = cache.get("0xbad")
	require.True(t, hit)
	assert.True(t, neg)

	// Tras el TTL las dos entradas expiran
	now = now.Add(metaTTL + time.Second)
	_, _, hit = cache.get("0xa")
	assert.False(t, hit)
	_, _, hit = cache.get("0xbad")
	assert.False(t, hit)
}

func TestBuilder_Build_NegativeCacheSkipsRefetch(t *testing.T) {
	tape := &mockTape{trades: []domain.Trade{
		tapeTrade("0xerr", "up", "bitcoin-up-or-down-5m-1", 0.50, 10*time.Second),
	}}
	markets := &mockMarkets{errs: map[string]error{"0xerr": errors.New("boom")}}

	b := NewWithClock(testConfig(), tape, markets, func() time.Time { return testNow })

	for i := 0; i < 3; i++ {
		res, err := b.Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Rejections[domain.RejectMetadataError])
	}
	// Una sola llamada real; los builds siguientes golpean la entrada negativa
	assert.EqualValues(t, 1, markets.calls.Load())
}
