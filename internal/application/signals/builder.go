package signals

// builder.go — construcción de señales desde el tape global de trades.
//
// El pipeline por run: fetch del tape → agrupar por mercado → clasificar
// (coin, cadence) → resolver metadata concurrentemente → validar precios y
// pairSum → ordenar por edge. Cada mercado descartado alimenta el histograma
// de razones; las señales nunca se persisten, se recalculan frescas cada run.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/ports"
)

// Config contiene la configuración del builder.
type Config struct {
	Lookback      time.Duration // ventana de frescura del tape
	MaxCandidates int           // mercados distintos a resolver por run
	TradeLimit    int           // trades a pedir al tape
	Workers       int           // goroutines de resolución (0 = NumCPU*2)

	CoinEnabled    func(domain.Coin) bool
	CadenceEnabled func(domain.Cadence) bool
}

// Builder convierte el tape de trades en señales de par tradeables.
type Builder struct {
	cfg     Config
	tape    ports.TradeProvider
	markets ports.MarketProvider
	cache   *metaCache
	now     func() time.Time
}

// Result es el resultado de un build: señales ordenadas por edge y el
// histograma de mercados descartados.
type Result struct {
	Signals         []domain.Signal
	TradesInspected int
	Rejections      map[domain.RejectReason]int
}

// New crea un Builder con las dependencias inyectadas.
func New(cfg Config, tape ports.TradeProvider, markets ports.MarketProvider) *Builder {
	return NewWithClock(cfg, tape, markets, time.Now)
}

// NewWithClock crea un Builder con reloj inyectado, para tests.
func NewWithClock(cfg Config, tape ports.TradeProvider, markets ports.MarketProvider, now func() time.Time) *Builder {
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = 500
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 20
	}
	return &Builder{
		cfg:     cfg,
		tape:    tape,
		markets: markets,
		cache:   newMetaCache(now),
		now:     now,
	}
}

// candidate agrupa la actividad reciente de un mercado en el tape.
type candidate struct {
	conditionID string
	title       string
	slug        string
	coin        domain.Coin
	cadence     domain.Cadence
	latestTS    time.Time
	// último precio visto por token en el tape (el más reciente gana)
	lastPrice map[string]float64
	lastSeen  map[string]time.Time
}

// Build ejecuta un ciclo completo de construcción de señales.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	res := Result{Rejections: make(map[domain.RejectReason]int)}

	trades, err := b.tape.FetchGlobalTrades(ctx, b.cfg.TradeLimit)
	if err != nil {
		return res, fmt.Errorf("signals.Build: fetch tape: %w", err)
	}
	res.TradesInspected = len(trades)

	candidates := b.collect(trades, &res)
	if len(candidates) == 0 {
		return res, nil
	}

	res.Signals = b.resolveConcurrent(ctx, candidates, &res)

	// Orden determinista: edge desc, luego timestamp desc, luego conditionID.
	sort.Slice(res.Signals, func(i, j int) bool {
		a, c := res.Signals[i], res.Signals[j]
		if a.Edge != c.Edge {
			return a.Edge > c.Edge
		}
		if !a.LatestTimestamp.Equal(c.LatestTimestamp) {
			return a.LatestTimestamp.After(c.LatestTimestamp)
		}
		return a.ConditionID < c.ConditionID
	})

	slog.Debug("signal build complete",
		"trades", res.TradesInspected,
		"candidates", len(candidates),
		"signals", len(res.Signals),
	)
	return res, nil
}

// collect agrupa el tape por mercado, clasifica y aplica los filtros de
// universo. Devuelve como máximo MaxCandidates mercados, los más activos
// recientemente primero.
func (b *Builder) collect(trades []domain.Trade, res *Result) []*candidate {
	cutoff := b.now().Add(-b.cfg.Lookback)
	byCondition := make(map[string]*candidate)

	for _, t := range trades {
		// Trades viejos no forman candidatos; el watermark del RunState se
		// encarga de la de-duplicación entre runs, esto es solo frescura.
		if t.Timestamp.Before(cutoff) {
			continue
		}
		if t.ConditionID == "" || t.TokenID == "" {
			continue
		}

		c, ok := byCondition[t.ConditionID]
		if !ok {
			c = &candidate{
				conditionID: t.ConditionID,
				title:       t.Title,
				slug:        t.Slug,
				lastPrice:   make(map[string]float64),
				lastSeen:    make(map[string]time.Time),
			}
			byCondition[t.ConditionID] = c
		}
		if t.Timestamp.After(c.latestTS) {
			c.latestTS = t.Timestamp
		}
		if t.Timestamp.After(c.lastSeen[t.TokenID]) {
			c.lastSeen[t.TokenID] = t.Timestamp
			c.lastPrice[t.TokenID] = t.Price
		}
	}

	var out []*candidate
	for _, c := range byCondition {
		coin, ok := domain.ClassifyCoin(c.title, c.slug)
		if !ok {
			res.Rejections[domain.RejectUnclassified]++
			continue
		}
		c.coin = coin
		c.cadence = domain.ClassifyCadence(c.slug)

		if b.cfg.CoinEnabled != nil && !b.cfg.CoinEnabled(c.coin) {
			res.Rejections[domain.RejectCoinDisabled]++
			continue
		}
		if b.cfg.CadenceEnabled != nil && !b.cfg.CadenceEnabled(c.cadence) {
			res.Rejections[domain.RejectCadenceDisabled]++
			continue
		}
		out = append(out, c)
	}

	// Los más activos primero; el cap limita cuántos mercados resolvemos
	// contra el CLOB por run.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].latestTS.Equal(out[j].latestTS) {
			return out[i].latestTS.After(out[j].latestTS)
		}
		return out[i].conditionID < out[j].conditionID
	})
	if len(out) > b.cfg.MaxCandidates {
		out = out[:b.cfg.MaxCandidates]
	}
	return out
}

// resolveConcurrent resuelve metadata y construye señales con un worker pool.
// El rate limiter del client controla el ritmo contra el CLOB.
func (b *Builder) resolveConcurrent(ctx context.Context, candidates []*candidate, res *Result) []domain.Signal {
	workers := b.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	type outcome struct {
		signal domain.Signal
		reason domain.RejectReason
		ok     bool
	}

	workCh := make(chan *candidate, len(candidates))
	resultCh := make(chan outcome, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range workCh {
				sig, reason, err := b.resolve(ctx, c)
				if err != nil {
					slog.Debug("resolve failed", "condition_id", c.conditionID, "err", err)
					resultCh <- outcome{reason: domain.RejectMetadataError}
					continue
				}
				if reason != "" {
					resultCh <- outcome{reason: reason}
					continue
				}
				resultCh <- outcome{signal: sig, ok: true}
			}
		}()
	}

	for _, c := range candidates {
		workCh <- c
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	signals := make([]domain.Signal, 0, len(candidates))
	for o := range resultCh {
		if o.ok {
			signals = append(signals, o.signal)
		} else {
			res.Rejections[o.reason]++
		}
	}
	return signals
}

// resolve construye la señal de un candidato, o devuelve la razón de descarte.
func (b *Builder) resolve(ctx context.Context, c *candidate) (domain.Signal, domain.RejectReason, error) {
	meta, negative, hit := b.cache.get(c.conditionID)
	if hit && negative {
		return domain.Signal{}, domain.RejectMetadataError, nil
	}
	if !hit {
		var err error
		meta, err = b.markets.FetchMarket(ctx, c.conditionID)
		if err != nil {
			b.cache.putNegative(c.conditionID)
			return domain.Signal{}, "", err
		}
		b.cache.put(c.conditionID, meta)
	}

	if !meta.Tradeable() {
		// El switch solo atribuye la razón; el gate es Tradeable.
		switch {
		case meta.Closed:
			return domain.Signal{}, domain.RejectClosed, nil
		case !meta.Active:
			return domain.Signal{}, domain.RejectInactive, nil
		case !meta.AcceptingOrders:
			return domain.Signal{}, domain.RejectNotAccepting, nil
		default:
			return domain.Signal{}, domain.RejectNoOrderbook, nil
		}
	}

	var outcomes [2]domain.Outcome
	for i, tok := range meta.Tokens {
		if tok.TokenID == "" {
			return domain.Signal{}, domain.RejectTokenResolution, nil
		}
		// Precio del tape si lo vimos; si no, el de la metadata.
		price, seen := c.lastPrice[tok.TokenID], !c.lastSeen[tok.TokenID].IsZero()
		ts := c.lastSeen[tok.TokenID]
		if !seen {
			price = tok.Price
			ts = c.latestTS
		}
		if !domain.ValidPrice(price) {
			return domain.Signal{}, domain.RejectTokenResolution, nil
		}
		outcomes[i] = domain.Outcome{
			TokenID:   tok.TokenID,
			Label:     tok.Outcome,
			Price:     price,
			Timestamp: ts,
		}
	}

	sig := domain.Signal{
		ConditionID:     c.conditionID,
		Title:           c.title,
		Slug:            c.slug,
		Coin:            c.coin,
		Cadence:         c.cadence,
		LatestTimestamp: c.latestTS,
		Outcomes:        outcomes,
		PairSum:         outcomes[0].Price + outcomes[1].Price,
	}
	sig.Edge = 1.0 - sig.PairSum

	if !sig.ValidPairSum() {
		return domain.Signal{}, domain.RejectPairSumRange, nil
	}
	return sig, "", nil
}
