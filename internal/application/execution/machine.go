package execution

// machine.go — per-signal execution ladder.
//
// Every live pair walks the same ladder, one rung at a time:
//
//   1. buy leg A (FAK)           → no fill: reject, zero exposure
//   2. buy leg B (FAK)           → filled: both legs on, done
//   3. retry leg B               → filled late: recovered
//   4. unwind leg A (FAK sell)   → sold: flat again, small slippage loss
//   5. nothing worked            → unresolved imbalance, count it
//
// The ladder only ever moves down. Once enough pairs in one run end at rung 5
// the session trips and a safety latch blocks all future live runs until the
// residual tokens are sold off.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/pairbot/internal/application/budget"
	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/ports"
)

const (
	defaultRetryAttempts = 1
	defaultRetryDelay    = 500 * time.Millisecond

	// minSellPrice is the lowest limit price the CLOB accepts.
	minSellPrice = 0.01
)

// Config contains the execution tuning knobs.
type Config struct {
	Paper bool // simulate fills instead of hitting the CLOB

	RetryAttempts int           // extra leg-B attempts after the first
	RetryDelay    time.Duration // pause between leg-B attempts

	UnwindSlippageCents      float64 // price concession when selling leg A back
	UnwindShareBufferPercent float64 // shares held back from the unwind sell
	MaxUnresolvedPerRun      int     // circuit breaker threshold
}

// Machine executes admitted signals against the CLOB (or simulates them).
type Machine struct {
	cfg    Config
	trader ports.OrderExecutor
	sleep  func(ctx context.Context, d time.Duration)
}

// New creates a Machine. trader may be nil in paper mode.
func New(cfg Config, trader ports.OrderExecutor) *Machine {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxUnresolvedPerRun <= 0 {
		cfg.MaxUnresolvedPerRun = 2
	}
	return &Machine{
		cfg:    cfg,
		trader: trader,
		sleep:  sleepCtx,
	}
}

// Session tracks circuit breaker state across one run. Not safe for
// concurrent use; the coordinator executes signals sequentially.
type Session struct {
	m                *Machine
	unresolvedAssets []string
}

// NewSession starts a fresh session for one run.
func (m *Machine) NewSession() *Session {
	return &Session{m: m}
}

// Tripped reports whether the circuit breaker threshold was hit.
func (s *Session) Tripped() bool {
	return len(s.unresolvedAssets) >= s.m.cfg.MaxUnresolvedPerRun
}

// BuildLatch materializes the safety latch after a tripped session.
// Returns nil when the session did not trip.
func (s *Session) BuildLatch(now time.Time) *domain.SafetyLatch {
	if !s.Tripped() {
		return nil
	}
	assets := make([]string, len(s.unresolvedAssets))
	copy(assets, s.unresolvedAssets)
	return &domain.SafetyLatch{
		Active:           true,
		Reason:           fmt.Sprintf("%d unresolved imbalances in one run", len(assets)),
		TriggeredAt:      now,
		UnresolvedAssets: assets,
	}
}

// Execute walks one signal through the ladder and returns its terminal outcome.
func (s *Session) Execute(ctx context.Context, sig domain.Signal, alloc budget.Allocation) domain.SignalOutcome {
	if s.m.cfg.Paper {
		return domain.SignalOutcome{
			Signal:       sig,
			Status:       domain.StatusPaperFilled,
			LegANotional: alloc.LegAUSD,
			LegBNotional: alloc.LegBUSD,
		}
	}
	return s.executeLive(ctx, sig, alloc)
}

func (s *Session) executeLive(ctx context.Context, sig domain.Signal, alloc budget.Allocation) domain.SignalOutcome {
	legA, legB := sig.Outcomes[0], sig.Outcomes[1]

	// Rung 1: leg A. A miss here leaves us flat, so it is just a rejection.
	fillA, err := s.m.trader.BuyFAK(ctx, legA.TokenID, legA.Price, alloc.LegAUSD)
	if err != nil || fillA.FilledSize <= 0 {
		if err != nil {
			slog.Warn("leg A buy failed", "market", sig.Slug, "err", err)
		} else {
			slog.Info("leg A missed (no fill)", "market", sig.Slug, "price", legA.Price)
		}
		return domain.SignalOutcome{Signal: sig, Status: domain.StatusRejected, Reason: domain.RejectLegAFailed}
	}

	// Rungs 2-3: leg B, first attempt plus retries. From here on we carry
	// one-sided exposure and every exit path has to deal with it.
	var fillB ports.FillResult
	for attempt := 0; attempt <= s.m.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			s.m.sleep(ctx, s.m.cfg.RetryDelay)
		}
		fillB, err = s.m.trader.BuyFAK(ctx, legB.TokenID, legB.Price, alloc.LegBUSD)
		if err == nil && fillB.FilledSize > 0 {
			status := domain.StatusLiveBothFilled
			if attempt > 0 {
				status = domain.StatusRetryRecovered
				slog.Info("leg B recovered on retry", "market", sig.Slug, "attempt", attempt)
			}
			return domain.SignalOutcome{
				Signal:       sig,
				Status:       status,
				LegANotional: fillA.AmountUSD,
				LegBNotional: fillB.AmountUSD,
			}
		}
		if err != nil {
			slog.Warn("leg B buy failed", "market", sig.Slug, "attempt", attempt, "err", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Rung 4: unwind leg A. Sell slightly fewer shares than we bought
	// (exchange rounding can leave the reported fill above what is actually
	// spendable) at a price concession so the FAK crosses.
	sellSize := fillA.FilledSize * (1 - s.m.cfg.UnwindShareBufferPercent/100)
	sellPrice := legA.Price - s.m.cfg.UnwindSlippageCents/100
	if sellPrice < minSellPrice {
		sellPrice = minSellPrice
	}
	// El CLOB rechaza órdenes por debajo de su notional mínimo. Si el tamaño
	// con buffer queda corto, vender lo viable, acotado por lo que tenemos.
	if minViable := budget.ExchangeMinOrderUSD / sellPrice; sellSize < minViable {
		sellSize = math.Min(minViable, fillA.FilledSize)
	}

	sold, err := s.m.trader.SellFAK(ctx, legA.TokenID, sellPrice, sellSize)
	if err == nil && sold.FilledSize >= sellSize*0.99 {
		slog.Info("leg A unwound",
			"market", sig.Slug,
			"shares", fmt.Sprintf("%.2f", sold.FilledSize),
			"recovered", fmt.Sprintf("$%.2f", sold.AmountUSD),
		)
		return domain.SignalOutcome{Signal: sig, Status: domain.StatusUnwound}
	}
	if err != nil {
		slog.Error("unwind sell failed", "market", sig.Slug, "err", err)
	}

	// Rung 5: stuck with one-sided exposure.
	s.unresolvedAssets = append(s.unresolvedAssets, legA.TokenID)
	slog.Error("unresolved imbalance",
		"market", sig.Slug,
		"token", legA.TokenID,
		"count", len(s.unresolvedAssets),
		"threshold", s.m.cfg.MaxUnresolvedPerRun,
	)
	return domain.SignalOutcome{
		Signal:          sig,
		Status:          domain.StatusUnresolvedImbalance,
		ResidualTokenID: legA.TokenID,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
