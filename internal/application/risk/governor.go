package risk

// governor.go — daily caps, drawdown stop and safety latch handling.
//
// The governor gates every live run. It never gates paper runs: paper mode
// spends nothing, so the only live-mode concerns here are how much real
// notional went out today, how far the wallet has fallen since the UTC day
// started, and whether a previous run left one-sided exposure behind.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/ports"
)

const (
	// latchAlertCooldown throttles repeated "still latched" alerts.
	latchAlertCooldown = 15 * time.Minute

	// dustShares below this are treated as already resolved.
	dustShares = 0.01

	// floorSellPrice is the price used when dumping residual tokens: take
	// whatever bid exists, the position should not be held at all.
	floorSellPrice = 0.01
)

// Config contains the governor limits. A cap set to zero is disabled.
type Config struct {
	MaxDailyLiveNotionalUSD float64
	MaxDailyLiveRuns        int
	MaxDailyDrawdownUSD     float64

	UnwindShareBufferPercent float64
}

// Governor enforces the live-mode risk limits.
type Governor struct {
	cfg    Config
	trader ports.OrderExecutor
	alerts ports.AlertSink
	now    func() time.Time
}

// New creates a Governor. trader may be nil when live mode is disabled.
func New(cfg Config, trader ports.OrderExecutor, alerts ports.AlertSink) *Governor {
	return NewWithClock(cfg, trader, alerts, time.Now)
}

// NewWithClock creates a Governor with an injected clock, for tests.
func NewWithClock(cfg Config, trader ports.OrderExecutor, alerts ports.AlertSink, now func() time.Time) *Governor {
	return &Governor{cfg: cfg, trader: trader, alerts: alerts, now: now}
}

// Rollover makes sure state.Daily covers the current UTC day, resetting
// counters and capturing the day-start balance when the day changes.
func (g *Governor) Rollover(state *domain.RunState, balance float64) {
	day := domain.UTCDayKey(g.now())
	if state.Daily != nil && state.Daily.DayKey == day {
		return
	}
	state.Daily = &domain.DailyRiskState{
		DayKey:          day,
		DayStartBalance: balance,
		UpdatedAt:       g.now(),
	}
	slog.Info("daily risk state rolled over", "day", day, "start_balance", fmt.Sprintf("$%.2f", balance))
}

// AllowLive decides whether a live run may execute. When a limit blocks the
// run it alerts once per activation (latch alerts repeat on a cooldown).
func (g *Governor) AllowLive(ctx context.Context, state *domain.RunState, balance float64) (bool, string) {
	if state.Latch != nil && state.Latch.Active {
		if g.now().Sub(state.Latch.LastAlertAt) >= latchAlertCooldown {
			state.Latch.LastAlertAt = g.now()
			g.alert(ctx, "safety latch active",
				fmt.Sprintf("live trading blocked since %s: %s (%d residual tokens)",
					state.Latch.TriggeredAt.UTC().Format(time.RFC3339),
					state.Latch.Reason, len(state.Latch.UnresolvedAssets)))
		}
		return false, "safety latch active"
	}

	d := state.Daily
	if d == nil {
		return true, ""
	}

	if g.cfg.MaxDailyLiveNotionalUSD > 0 && d.LiveNotional >= g.cfg.MaxDailyLiveNotionalUSD {
		if !d.NotionalAlertSent {
			d.NotionalAlertSent = true
			g.alert(ctx, "daily notional cap reached",
				fmt.Sprintf("$%.2f of $%.2f spent today, live runs paused until UTC midnight",
					d.LiveNotional, g.cfg.MaxDailyLiveNotionalUSD))
		}
		return false, "daily notional cap reached"
	}

	if g.cfg.MaxDailyLiveRuns > 0 && d.LiveRuns >= g.cfg.MaxDailyLiveRuns {
		return false, "daily live run cap reached"
	}

	if dd := d.Drawdown(balance); g.cfg.MaxDailyDrawdownUSD > 0 && dd >= g.cfg.MaxDailyDrawdownUSD {
		if !d.DrawdownAlertSent {
			d.DrawdownAlertSent = true
			g.alert(ctx, "daily drawdown stop hit",
				fmt.Sprintf("down $%.2f since day start (limit $%.2f), live runs paused until UTC midnight",
					dd, g.cfg.MaxDailyDrawdownUSD))
		}
		return false, "daily drawdown stop hit"
	}

	return true, ""
}

// RecordLiveRun accumulates a finished live run into the daily counters.
func (g *Governor) RecordLiveRun(state *domain.RunState, notional float64) {
	if state.Daily == nil {
		return
	}
	state.Daily.LiveRuns++
	state.Daily.LiveNotional += notional
	state.Daily.UpdatedAt = g.now()
}

// TryResolveLatch attempts to clear the latch by selling residual tokens
// down to dust. Called at the start of every run while latched. Returns true
// when the latch was fully cleared.
func (g *Governor) TryResolveLatch(ctx context.Context, state *domain.RunState) bool {
	latch := state.Latch
	if latch == nil || !latch.Active {
		return false
	}
	if g.trader == nil {
		return false
	}

	latch.Attempts++
	latch.LastAttemptAt = g.now()

	for _, tokenID := range append([]string(nil), latch.UnresolvedAssets...) {
		bal, err := g.trader.TokenBalance(ctx, tokenID)
		if err != nil {
			slog.Warn("latch: token balance check failed", "token", tokenID, "err", err)
			continue
		}
		if bal <= dustShares {
			latch.RemoveAsset(tokenID)
			slog.Info("latch: residual already gone", "token", tokenID)
			continue
		}

		sellSize := bal * (1 - g.cfg.UnwindShareBufferPercent/100)
		sold, err := g.trader.SellFAK(ctx, tokenID, floorSellPrice, sellSize)
		if err != nil {
			slog.Warn("latch: sell-down failed", "token", tokenID, "err", err)
			continue
		}

		remaining, err := g.trader.TokenBalance(ctx, tokenID)
		if err == nil && remaining <= dustShares {
			latch.RemoveAsset(tokenID)
			slog.Info("latch: residual sold off",
				"token", tokenID,
				"shares", fmt.Sprintf("%.2f", sold.FilledSize),
				"recovered", fmt.Sprintf("$%.2f", sold.AmountUSD),
			)
		}
	}

	if len(latch.UnresolvedAssets) == 0 {
		state.Latch = nil
		g.alert(ctx, "safety latch cleared",
			fmt.Sprintf("all residual tokens resolved after %d attempts, live trading re-enabled", latch.Attempts))
		return true
	}
	return false
}

// ResetLatch force-clears the latch without touching positions. Only wired
// to the explicit operator flag.
func (g *Governor) ResetLatch(state *domain.RunState) {
	if state.Latch == nil {
		return
	}
	slog.Warn("safety latch manually reset",
		"residual_tokens", len(state.Latch.UnresolvedAssets),
		"active_since", state.Latch.TriggeredAt.UTC().Format(time.RFC3339),
	)
	state.Latch = nil
}

// alert sends fire-and-forget; sink failures only warn.
func (g *Governor) alert(ctx context.Context, subject, body string) {
	if g.alerts == nil {
		return
	}
	if err := g.alerts.Alert(ctx, subject, body); err != nil {
		slog.Warn("alert sink failed", "subject", subject, "err", err)
	}
}
