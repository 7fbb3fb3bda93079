package runner

// coordinator.go — orquestación de un run completo.
//
// Un run es: lock → cargar estado → construir señales → admitir → ejecutar →
// contabilizar → persistir estado → notificar → soltar lock. El lock vive en
// el KV store con TTL, así que varias instancias del bot pueden apuntar al
// mismo directorio sin pisarse: solo una gana cada run y un proceso muerto
// no deja el lock cogido para siempre.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/pairbot/internal/application/budget"
	"github.com/alejandrodnm/pairbot/internal/application/execution"
	"github.com/alejandrodnm/pairbot/internal/application/risk"
	"github.com/alejandrodnm/pairbot/internal/application/signals"
	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/ports"
)

const (
	stateKey    = "pairbot:state"
	lockKey     = "pairbot:run-lock"
	overrideKey = "pairbot:config-override"

	// lockTTL cubre el run más lento imaginable; si el proceso muere con el
	// lock cogido, Badger lo expira solo.
	lockTTL = 120 * time.Second
)

// Config contiene la configuración del coordinador.
type Config struct {
	Mode             string // off | paper | live
	PollInterval     time.Duration
	MaxSignalsPerRun int
	PaperBalanceUSD  float64

	// MinEdgeFor devuelve el umbral de edge en centavos para una cadencia.
	MinEdgeFor func(domain.Cadence) float64
}

// Overrides son los ajustes de estrategia tunables en runtime: un operador
// (o un dashboard) escribe el JSON bajo overrideKey en el KV store y el
// siguiente run lo aplica, sin reiniciar el proceso. Campos en cero se
// ignoran y el YAML sigue mandando.
type Overrides struct {
	Mode             string  `json:"mode,omitempty"`
	MinEdgeCents     float64 `json:"minEdgeCents,omitempty"`
	MaxSignalsPerRun int     `json:"maxSignalsPerRun,omitempty"`
}

// Coordinator es el orquestador principal del loop de runs.
type Coordinator struct {
	cfg      Config
	builder  *signals.Builder
	alloc    *budget.Allocator
	machine  *execution.Machine
	governor *risk.Governor
	kv       ports.KeyValue
	notifier ports.Notifier
	archive  ports.RunArchive
	trader   ports.OrderExecutor
	now      func() time.Time
}

// New crea un Coordinator con todas las dependencias inyectadas.
// trader y archive pueden ser nil (modo paper sin historial).
func New(
	cfg Config,
	builder *signals.Builder,
	alloc *budget.Allocator,
	machine *execution.Machine,
	governor *risk.Governor,
	kv ports.KeyValue,
	notifier ports.Notifier,
	archive ports.RunArchive,
	trader ports.OrderExecutor,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		builder:  builder,
		alloc:    alloc,
		machine:  machine,
		governor: governor,
		kv:       kv,
		notifier: notifier,
		archive:  archive,
		trader:   trader,
		now:      time.Now,
	}
}

// Run ejecuta el loop de runs hasta que el contexto se cancele.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("coordinator starting",
		"mode", c.cfg.Mode,
		"interval", c.cfg.PollInterval,
		"max_signals", c.cfg.MaxSignalsPerRun,
	)

	if err := c.RunOnce(ctx); err != nil {
		slog.Error("run failed", "err", err)
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("coordinator stopped")
			return nil
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				slog.Error("run failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta exactamente un run. Si otra instancia tiene el lock,
// el run se salta sin error.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()

	acquired, err := c.kv.SetIfAbsent(ctx, lockKey, []byte(runID), lockTTL)
	if err != nil {
		return fmt.Errorf("runner.RunOnce: acquire lock: %w", err)
	}
	if !acquired {
		slog.Debug("run lock held by another instance, skipping")
		return nil
	}
	// El lock se suelta en TODOS los caminos de salida; solo lo borramos si
	// sigue siendo nuestro (el TTL pudo habérselo dado a otro).
	defer c.releaseLock(runID)

	return c.run(ctx, runID)
}

// ResetLatch borra el latch de seguridad a mano (flag de operador).
func (c *Coordinator) ResetLatch(ctx context.Context) error {
	state, err := c.loadState(ctx)
	if err != nil {
		return fmt.Errorf("runner.ResetLatch: %w", err)
	}
	if state.Latch == nil {
		slog.Info("no safety latch to reset")
		return nil
	}
	c.governor.ResetLatch(state)
	if err := c.saveState(ctx, state); err != nil {
		return fmt.Errorf("runner.ResetLatch: %w", err)
	}
	return nil
}

// run es el cuerpo del run, con el lock ya cogido.
func (c *Coordinator) run(ctx context.Context, runID string) error {
	start := c.now()
	eff := c.effective(ctx)
	diag := domain.NewDiagnostics(runID, eff.Mode, start)

	state, err := c.loadState(ctx)
	if err != nil {
		return fmt.Errorf("runner.run: load state: %w", err)
	}

	outcomes, err := c.pipeline(ctx, eff, state, diag)
	if err != nil {
		diag.AppendError(err.Error())
	}

	diag.FinishedAt = c.now()
	if state.Latch != nil && state.Latch.Active {
		diag.LatchActive = true
		diag.ResidualAssets = append([]string(nil), state.Latch.UnresolvedAssets...)
	}
	state.LastDiagnostics = diag

	if saveErr := c.saveState(ctx, state); saveErr != nil {
		// Estado no persistido: el watermark no avanzó, el siguiente run
		// re-evaluará las mismas keys. Mejor duplicar evaluación que perder
		// el latch.
		slog.Error("state save failed", "err", saveErr)
		if err == nil {
			err = saveErr
		}
	}

	if c.notifier != nil {
		if nErr := c.notifier.Notify(ctx, diag, outcomes); nErr != nil {
			slog.Warn("notifier error", "err", nErr)
		}
	}
	if c.archive != nil {
		if aErr := c.archive.SaveRun(ctx, diag); aErr != nil {
			slog.Warn("archive error", "err", aErr)
		}
	}

	slog.Info("run complete",
		"run_id", runID[:8],
		"mode", eff.Mode,
		"signals", diag.SignalsBuilt,
		"eligible", diag.Eligible,
		"executed", diag.Executed,
		"budget_used", fmt.Sprintf("$%.2f", diag.BudgetUsed),
		"duration", c.now().Sub(start).Round(time.Millisecond),
	)
	return err
}

// pipeline construye, admite y ejecuta las señales del run.
func (c *Coordinator) pipeline(ctx context.Context, eff Config, state *domain.RunState, diag *domain.Diagnostics) ([]domain.SignalOutcome, error) {
	if eff.Mode == "off" {
		return nil, nil
	}

	live := eff.Mode == "live"

	balance := eff.PaperBalanceUSD
	if live {
		var err error
		balance, err = c.trader.GetBalance(ctx)
		if err != nil {
			return nil, fmt.Errorf("get balance: %w", err)
		}
	}

	c.governor.Rollover(state, balance)

	if live && state.Latch != nil && state.Latch.Active {
		c.governor.TryResolveLatch(ctx, state)
	}
	if live {
		if ok, reason := c.governor.AllowLive(ctx, state, balance); !ok {
			slog.Warn("live run blocked", "reason", reason)
			diag.AppendError("live blocked: " + reason)
			return nil, nil
		}
	}

	diag.BudgetCap = c.alloc.RunBudget(balance)
	if live && diag.BudgetCap < 2*budget.ExchangeMinOrderUSD {
		slog.Warn("live run blocked, budget below two exchange minimums",
			"cap", fmt.Sprintf("$%.2f", diag.BudgetCap))
		diag.AppendError("live blocked: run budget below two exchange minimums")
		return nil, nil
	}

	built, err := c.builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	diag.TradesInspected = built.TradesInspected
	for reason, n := range built.Rejections {
		diag.Rejections[reason] += n
	}
	for _, sig := range built.Signals {
		diag.CountSignal(sig)
	}

	remaining := diag.BudgetCap

	session := c.machine.NewSession()
	outcomes := make([]domain.SignalOutcome, 0, eff.MaxSignalsPerRun)

	// La frescura y la de-duplicación se juzgan contra el estado con el que
	// arrancó el run: ejecutar una señal avanza el watermark, y eso no puede
	// volver stale a las señales de menor edge que venían detrás en la misma
	// pasada.
	startState := *state

	for _, sig := range built.Signals {
		if diag.Executed >= eff.MaxSignalsPerRun {
			break
		}
		if session.Tripped() {
			break
		}
		if remaining <= 0 {
			break
		}

		// Admisión: edge, frescura, de-duplicación, presupuesto.
		if sig.EdgeCents() < eff.MinEdgeFor(sig.Cadence) {
			diag.Reject(domain.RejectLowEdge)
			continue
		}
		if !startState.Eligible(sig) {
			if startState.Seen(sig.Key()) {
				diag.Reject(domain.RejectDuplicate)
			} else {
				diag.Reject(domain.RejectStale)
			}
			continue
		}
		diag.Eligible++

		alloc, reason := c.alloc.Allocate(sig, remaining)
		if reason != "" {
			// Presupuesto agotado incluido: la señal se salta y el run sigue.
			// Un par sesgado puede pedir un chunk escalado que no cabe mientras
			// que una señal menos sesgada todavía entra en lo que queda.
			diag.Reject(reason)
			continue
		}

		outcome := session.Execute(ctx, sig, alloc)
		outcomes = append(outcomes, outcome)
		diag.RecordOutcome(outcome)

		// El watermark SOLO avanza con keys realmente consumidas; fallos y
		// unwinds dejan la señal re-evaluable en el siguiente run.
		if outcome.Status.Processed() {
			state.MarkProcessed(sig.Key(), sig.LatestTimestamp)
			remaining -= outcome.PairNotional()
		}

		if ctx.Err() != nil {
			break
		}
	}

	if latch := session.BuildLatch(c.now()); latch != nil {
		state.Latch = latch
		slog.Error("circuit breaker tripped, safety latch armed",
			"unresolved", len(latch.UnresolvedAssets))
	}

	if live && diag.Executed > 0 {
		c.governor.RecordLiveRun(state, diag.BudgetUsed)
	}

	return outcomes, nil
}

// effective aplica los overrides del KV store sobre la configuración de
// arranque. Un override a "live" solo se honra si el proceso arrancó con
// trading client; escalar a live sin signer no tiene sentido.
func (c *Coordinator) effective(ctx context.Context) Config {
	eff := c.cfg

	ov, ok := c.loadOverrides(ctx)
	if !ok {
		return eff
	}

	if ov.Mode != "" && ov.Mode != eff.Mode {
		if ov.Mode == "live" && c.trader == nil {
			slog.Warn("override to live ignored, process started without trading client")
		} else {
			slog.Info("mode overridden from kv store", "from", eff.Mode, "to", ov.Mode)
			eff.Mode = ov.Mode
		}
	}
	if ov.MaxSignalsPerRun > 0 {
		eff.MaxSignalsPerRun = ov.MaxSignalsPerRun
	}
	if ov.MinEdgeCents > 0 {
		base := eff.MinEdgeFor
		eff.MinEdgeFor = func(cad domain.Cadence) float64 {
			// El override sube el suelo global; los umbrales per-cadence más
			// estrictos se respetan.
			if v := base(cad); v > ov.MinEdgeCents {
				return v
			}
			return ov.MinEdgeCents
		}
	}
	return eff
}

// loadOverrides lee los overrides del KV store. Ausencia o JSON corrupto
// degradan a "sin overrides".
func (c *Coordinator) loadOverrides(ctx context.Context) (Overrides, bool) {
	raw, err := c.kv.Get(ctx, overrideKey)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return Overrides{}, false
	}
	if err != nil {
		slog.Warn("config override read failed", "err", err)
		return Overrides{}, false
	}
	var ov Overrides
	if err := json.Unmarshal(raw, &ov); err != nil {
		slog.Warn("config override has invalid JSON, ignoring", "err", err)
		return Overrides{}, false
	}
	return ov, true
}

// loadState carga el RunState del KV store; uno nuevo si no existe.
func (c *Coordinator) loadState(ctx context.Context) (*domain.RunState, error) {
	raw, err := c.kv.Get(ctx, stateKey)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return &domain.RunState{}, nil
	}
	if err != nil {
		return nil, err
	}
	var state domain.RunState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// saveState persiste el RunState en el KV store.
func (c *Coordinator) saveState(ctx context.Context, state *domain.RunState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return c.kv.Set(ctx, stateKey, raw)
}

// releaseLock borra el lock si todavía es nuestro.
func (c *Coordinator) releaseLock(runID string) {
	// Contexto propio: el lock debe soltarse aunque el run se cancelara.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := c.kv.Get(ctx, lockKey)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return // expiró solo
	}
	if err != nil {
		slog.Warn("lock release: read failed", "err", err)
		return
	}
	if string(raw) != runID {
		slog.Warn("lock release: lock re-acquired by another instance")
		return
	}
	if err := c.kv.Delete(ctx, lockKey); err != nil {
		slog.Warn("lock release: delete failed", "err", err)
	}
}
