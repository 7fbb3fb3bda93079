package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/application/budget"
	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/ports"
)

// step es la respuesta programada de una llamada al stubTrader.
type step struct {
	fill ports.FillResult
	err  error
}

// stubTrader implementa ports.OrderExecutor con respuestas programadas por token.
type stubTrader struct {
	buys      map[string][]step
	sells     map[string][]step
	buyCalls  map[string]int
	sellCalls map[string]int
	sellSizes map[string][]float64
	sellPrice map[string][]float64
}

func newStubTrader() *stubTrader {
	return &stubTrader{
		buys:      make(map[string][]step),
		sells:     make(map[string][]step),
		buyCalls:  make(map[string]int),
		sellCalls: make(map[string]int),
		sellSizes: make(map[string][]float64),
		sellPrice: make(map[string][]float64),
	}
}

func (s *stubTrader) pop(m map[string][]step, tokenID string) step {
	q := m[tokenID]
	if len(q) == 0 {
		return step{err: errors.New("unexpected call for " + tokenID)}
	}
	head := q[0]
	m[tokenID] = q[1:]
	return head
}

func (s *stubTrader) BuyFAK(_ context.Context, tokenID string, _, _ float64) (ports.FillResult, error) {
	s.buyCalls[tokenID]++
	st := s.pop(s.buys, tokenID)
	return st.fill, st.err
}

func (s *stubTrader) SellFAK(_ context.Context, tokenID string, price, size float64) (ports.FillResult, error) {
	s.sellCalls[tokenID]++
	s.sellSizes[tokenID] = append(s.sellSizes[tokenID], size)
	s.sellPrice[tokenID] = append(s.sellPrice[tokenID], price)
	st := s.pop(s.sells, tokenID)
	return st.fill, st.err
}

func (s *stubTrader) GetBalance(context.Context) (float64, error) { return 1000, nil }

func (s *stubTrader) TokenBalance(context.Context, string) (float64, error) { return 0, nil }

func testSignal() domain.Signal {
	s := domain.Signal{
		ConditionID: "0xbtc",
		Slug:        "bitcoin-up-or-down-5m-1765985400",
		Coin:        domain.CoinBTC,
		Cadence:     domain.Cadence5m,
		Outcomes: [2]domain.Outcome{
			{TokenID: "tok-up", Label: "Up", Price: 0.54},
			{TokenID: "tok-down", Label: "Down", Price: 0.43},
		},
		PairSum:         0.97,
		LatestTimestamp: time.Unix(1_765_985_400, 0),
	}
	s.Edge = 1.0 - s.PairSum
	return s
}

func testAlloc() budget.Allocation {
	return budget.Allocation{Shares: 10, LegAUSD: 5.4, LegBUSD: 4.3, TotalUSD: 9.7}
}

func newTestMachine(cfg Config, trader ports.OrderExecutor) *Machine {
	m := New(cfg, trader)
	m.sleep = func(context.Context, time.Duration) {} // sin esperas en tests
	return m
}

func fillOf(size, usd float64) step {
	return step{fill: ports.FillResult{OrderID: "ord", FilledSize: size, AmountUSD: usd}}
}

var noFill = step{fill: ports.FillResult{}}

func TestSession_Execute_Paper(t *testing.T) {
	m := newTestMachine(Config{Paper: true}, nil)

	out := m.NewSession().Execute(context.Background(), testSignal(), testAlloc())

	assert.Equal(t, domain.StatusPaperFilled, out.Status)
	assert.InDelta(t, 9.7, out.PairNotional(), 1e-9)
}

func TestSession_Execute_BothLegsFilled(t *testing.T) {
	trader := newStubTrader()
	trader.buys["tok-up"] = []step{fillOf(10, 5.4)}
	trader.buys["tok-down"] = []step{fillOf(10, 4.3)}

	m := newTestMachine(Config{}, trader)
	out := m.NewSession().Execute(context.Background(), testSignal(), testAlloc())

	assert.Equal(t, domain.StatusLiveBothFilled, out.Status)
	assert.InDelta(t, 5.4, out.LegANotional, 1e-9)
	assert.InDelta(t, 4.3, out.LegBNotional, 1e-9)
	assert.Equal(t, 1, trader.buyCalls["tok-down"])
}

func TestSession_Execute_LegAFails_NoExposure(t *testing.T) {
	trader := newStubTrader()
	trader.buys["tok-up"] = []step{noFill}

	m := newTestMachine(Config{}, trader)
	out := m.NewSession().Execute(context.Background(), testSignal(), testAlloc())

	assert.Equal(t, domain.StatusRejected, out.Status)
	assert.Equal(t, domain.RejectLegAFailed, out.Reason)
	// la pierna B nunca se intenta y no hay ningún sell
	assert.Zero(t, trader.buyCalls["tok-down"])
	assert.Zero(t, trader.sellCalls["tok-up"])
}

func TestSession_Execute_RetryRecovers(t *testing.T) {
	trader := newStubTrader()
	trader.buys["tok-up"] = []step{fillOf(10, 5.4)}
	trader.buys["tok-down"] = []step{noFill, fillOf(10, 4.3)}

	m := newTestMachine(Config{RetryAttempts: 2}, trader)
	out := m.NewSession().Execute(context.Background(), testSignal(), testAlloc())

	assert.Equal(t, domain.StatusRetryRecovered, out.Status)
	assert.Equal(t, 2, trader.buyCalls["tok-down"])
	assert.InDelta(t, 9.7, out.PairNotional(), 1e-9)
}

func TestSession_Execute_DefaultSingleRetryThenUnwind(t *testing.T) {
	trader := newStubTrader()
	trader.buys["tok-up"] = []step{fillOf(10, 5.4)}
	trader.buys["tok-down"] = []step{noFill, noFill}
	trader.sells["tok-up"] = []step{fillOf(10, 5.0)}

	m := newTestMachine(Config{}, trader)
	out := m.NewSession().Execute(context.Background(), testSignal(), testAlloc())

	assert.Equal(t, domain.StatusUnwound, out.Status)
	// intento inicial más un único retry, después un solo unwind
	assert.Equal(t, 2, trader.buyCalls["tok-down"])
	assert.Equal(t, 1, trader.sellCalls["tok-up"])
}

func TestSession_Execute_UnwindAfterRetriesExhausted(t *testing.T) {
	trader := newStubTrader()
	trader.buys["tok-up"] = []step{fillOf(10, 5.4)}
	trader.buys["tok-down"] = []step{noFill, noFill, noFill}
	trader.sells["tok-up"] = []step{fillOf(9.8, 5.0)}

	m := newTestMachine(Config{
		RetryAttempts:            2,
		UnwindSlippageCents:      3,
		UnwindShareBufferPercent: 2,
	}, trader)
	out := m.NewSession().Execute(context.Background(), testSignal(), testAlloc())

	assert.Equal(t, domain.StatusUnwound, out.Status)
	assert.Equal(t, 3, trader.buyCalls["tok-down"])
	require.Len(t, trader.sellSizes["tok-up"], 1)
	// shares × (1 - buffer) al precio de compra menos el slippage
	assert.InDelta(t, 10*0.98, trader.sellSizes["tok-up"][0], 1e-9)
	assert.InDelta(t, 0.54-0.03, trader.sellPrice["tok-up"][0], 1e-9)
	// un unwind no consume la key de la señal
	assert.False(t, out.Status.Processed())
}

func TestSession_Execute_UnwindFlooredToMinViableSize(t *testing.T) {
	trader := newStubTrader()
	// Fill diminuto: con el buffer, el sell quedaría por debajo del notional
	// mínimo del CLOB y el exchange lo rechazaría.
	trader.buys["tok-up"] = []step{fillOf(1.5, 0.81)}
	trader.buys["tok-down"] = []step{noFill, noFill}
	trader.sells["tok-up"] = []step{fillOf(1.5, 0.76)}

	m := newTestMachine(Config{
		UnwindSlippageCents:      3,
		UnwindShareBufferPercent: 2,
	}, trader)
	out := m.NewSession().Execute(context.Background(), testSignal(), testAlloc())

	assert.Equal(t, domain.StatusUnwound, out.Status)
	require.Len(t, trader.sellSizes["tok-up"], 1)
	// 1.5 × 0.98 = 1.47 shares a $0.51 son $0.75 de notional: por debajo del
	// mínimo de $1, así que se vende la posición completa.
	assert.InDelta(t, 1.5, trader.sellSizes["tok-up"][0], 1e-9)
	assert.InDelta(t, 0.51, trader.sellPrice["tok-up"][0], 1e-9)
}

func TestSession_Execute_UnresolvedImbalance_TripsBreaker(t *testing.T) {
	trader := newStubTrader()
	// Dos señales: ambas compran la pierna A, fallan la B y el unwind
	trader.buys["tok-up"] = []step{fillOf(10, 5.4), fillOf(10, 5.4)}
	trader.buys["tok-down"] = []step{noFill, noFill, noFill, noFill, noFill, noFill}
	trader.sells["tok-up"] = []step{{err: errors.New("sell rejected")}, {err: errors.New("sell rejected")}}

	m := newTestMachine(Config{RetryAttempts: 2, MaxUnresolvedPerRun: 2}, trader)
	session := m.NewSession()

	out1 := session.Execute(context.Background(), testSignal(), testAlloc())
	assert.Equal(t, domain.StatusUnresolvedImbalance, out1.Status)
	assert.Equal(t, "tok-up", out1.ResidualTokenID)
	assert.False(t, session.Tripped())

	out2 := session.Execute(context.Background(), testSignal(), testAlloc())
	assert.Equal(t, domain.StatusUnresolvedImbalance, out2.Status)
	assert.True(t, session.Tripped())

	latch := session.BuildLatch(time.Unix(1_765_985_500, 0))
	require.NotNil(t, latch)
	assert.True(t, latch.Active)
	assert.Len(t, latch.UnresolvedAssets, 2)
}

func TestSession_Execute_PartialUnwindStillUnresolved(t *testing.T) {
	trader := newStubTrader()
	trader.buys["tok-up"] = []step{fillOf(10, 5.4)}
	trader.buys["tok-down"] = []step{noFill, noFill, noFill}
	// El sell solo cruza la mitad: queda residual
	trader.sells["tok-up"] = []step{fillOf(5, 2.5)}

	m := newTestMachine(Config{RetryAttempts: 2, UnwindShareBufferPercent: 2}, trader)
	out := m.NewSession().Execute(context.Background(), testSignal(), testAlloc())

	assert.Equal(t, domain.StatusUnresolvedImbalance, out.Status)
}

func TestSession_BuildLatch_NilWhenNotTripped(t *testing.T) {
	m := newTestMachine(Config{Paper: true}, nil)
	assert.Nil(t, m.NewSession().BuildLatch(time.Now()))
}
