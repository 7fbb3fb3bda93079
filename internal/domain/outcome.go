package domain

// ExecStatus es el estado terminal de una señal tras pasar por la máquina
// de ejecución. El coordinador lo consume de forma uniforme para contabilidad
// de presupuesto y diagnósticos.
type ExecStatus int

const (
	StatusRejected ExecStatus = iota
	StatusPaperFilled
	StatusLiveBothFilled
	StatusRetryRecovered
	StatusUnwound
	StatusUnresolvedImbalance
)

func (s ExecStatus) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusPaperFilled:
		return "paper_filled"
	case StatusLiveBothFilled:
		return "live_both_filled"
	case StatusRetryRecovered:
		return "retry_recovered"
	case StatusUnwound:
		return "unwound"
	case StatusUnresolvedImbalance:
		return "unresolved_imbalance"
	default:
		return "unknown"
	}
}

// Executed devuelve true si la señal consumió presupuesto (ambas piernas
// compradas, en papel o en vivo).
func (s ExecStatus) Executed() bool {
	switch s {
	case StatusPaperFilled, StatusLiveBothFilled, StatusRetryRecovered:
		return true
	}
	return false
}

// Processed devuelve true si la key de la señal debe marcarse consumida
// y el watermark puede avanzar. Los fallos nunca marcan la key.
func (s ExecStatus) Processed() bool {
	return s.Executed()
}

// RejectReason etiqueta por qué se descartó una señal o un mercado.
// Las keys son estables: alimentan el histograma de diagnósticos.
type RejectReason string

const (
	RejectLowEdge         RejectReason = "low_edge"
	RejectStale           RejectReason = "stale"
	RejectDuplicate       RejectReason = "duplicate"
	RejectBudgetExhausted RejectReason = "budget_exhausted"
	RejectLegTooSmall     RejectReason = "leg_too_small"
	RejectBelowExchMin    RejectReason = "below_exchange_min"
	RejectPairSumRange    RejectReason = "pair_sum_range"
	RejectLegAFailed      RejectReason = "leg_a_failed"
	RejectClosed          RejectReason = "closed"
	RejectInactive        RejectReason = "inactive"
	RejectNotAccepting    RejectReason = "not_accepting"
	RejectNoOrderbook     RejectReason = "no_orderbook"
	RejectUnclassified    RejectReason = "unclassified"
	RejectCoinDisabled    RejectReason = "coin_disabled"
	RejectCadenceDisabled RejectReason = "cadence_disabled"
	RejectTokenResolution RejectReason = "token_resolution"
	RejectMetadataError   RejectReason = "metadata_error"
)

// SignalOutcome es el resultado de ejecutar (o rechazar) una señal.
type SignalOutcome struct {
	Signal Signal
	Status ExecStatus
	Reason RejectReason // solo con StatusRejected

	// Notional por pierna en USD (simulado o real).
	LegANotional float64
	LegBNotional float64

	// ResidualTokenID queda relleno solo en StatusUnresolvedImbalance:
	// la pierna A comprada cuyo unwind falló.
	ResidualTokenID string
}

// PairNotional devuelve el notional total del par.
func (o SignalOutcome) PairNotional() float64 {
	return o.LegANotional + o.LegBNotional
}
