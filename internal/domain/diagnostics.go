package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// maxErrorSummaryLen acota el resumen de errores que viaja en diagnósticos.
const maxErrorSummaryLen = 500

// Diagnostics es el snapshot de un run completo: lo que se miró, lo que se
// descartó y por qué, y lo que se ejecutó. Se persiste con el RunState para
// que un dashboard externo pueda leerlo sin hablar con el bot.
type Diagnostics struct {
	RunID      string    `json:"runId"`
	Mode       string    `json:"mode"` // "off" | "paper" | "live"
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	TradesInspected int `json:"tradesInspected"`
	SignalsBuilt    int `json:"signalsBuilt"`
	Eligible        int `json:"eligible"`
	Admitted        int `json:"admitted"`
	Executed        int `json:"executed"`
	Recovered       int `json:"recovered"`
	Unwound         int `json:"unwound"`
	Unresolved      int `json:"unresolved"`

	// Rejections es el histograma de descartes por razón.
	Rejections map[RejectReason]int `json:"rejections,omitempty"`

	// ByCoin y ByCadence desglosan las señales construidas.
	ByCoin    map[Coin]int    `json:"byCoin,omitempty"`
	ByCadence map[Cadence]int `json:"byCadence,omitempty"`

	BudgetCap  float64 `json:"budgetCap"`
	BudgetUsed float64 `json:"budgetUsed"`

	LatchActive bool `json:"latchActive"`

	// ResidualAssets son los tokens con exposición de una sola pierna que
	// quedaron vivos al terminar el run.
	ResidualAssets []string `json:"residualAssets,omitempty"`

	// ErrorSummary concatena los primeros errores del run, acotado a
	// maxErrorSummaryLen para no inflar el estado persistido.
	ErrorSummary string `json:"errorSummary,omitempty"`
}

// NewDiagnostics crea un snapshot vacío con los mapas inicializados.
func NewDiagnostics(runID, mode string, startedAt time.Time) *Diagnostics {
	return &Diagnostics{
		RunID:      runID,
		Mode:       mode,
		StartedAt:  startedAt,
		Rejections: make(map[RejectReason]int),
		ByCoin:     make(map[Coin]int),
		ByCadence:  make(map[Cadence]int),
	}
}

// Reject incrementa el histograma de descartes.
func (d *Diagnostics) Reject(reason RejectReason) {
	if d.Rejections == nil {
		d.Rejections = make(map[RejectReason]int)
	}
	d.Rejections[reason]++
}

// CountSignal registra una señal construida en los desgloses por coin y cadence.
func (d *Diagnostics) CountSignal(s Signal) {
	d.SignalsBuilt++
	if d.ByCoin == nil {
		d.ByCoin = make(map[Coin]int)
	}
	if d.ByCadence == nil {
		d.ByCadence = make(map[Cadence]int)
	}
	d.ByCoin[s.Coin]++
	d.ByCadence[s.Cadence]++
}

// RecordOutcome contabiliza un resultado terminal en los contadores del run.
func (d *Diagnostics) RecordOutcome(o SignalOutcome) {
	switch o.Status {
	case StatusRejected:
		d.Reject(o.Reason)
	case StatusPaperFilled, StatusLiveBothFilled:
		d.Executed++
		d.BudgetUsed += o.PairNotional()
	case StatusRetryRecovered:
		d.Executed++
		d.Recovered++
		d.BudgetUsed += o.PairNotional()
	case StatusUnwound:
		d.Unwound++
	case StatusUnresolvedImbalance:
		d.Unresolved++
	}
}

// AppendError acumula un error en el resumen, respetando el tope de longitud.
func (d *Diagnostics) AppendError(msg string) {
	if msg == "" || len(d.ErrorSummary) >= maxErrorSummaryLen {
		return
	}
	if d.ErrorSummary != "" {
		d.ErrorSummary += "; "
	}
	d.ErrorSummary += msg
	if len(d.ErrorSummary) > maxErrorSummaryLen {
		d.ErrorSummary = d.ErrorSummary[:maxErrorSummaryLen]
	}
}

// RejectionSummary devuelve el histograma como "reason=N" ordenado por key,
// pensado para una línea de log.
func (d *Diagnostics) RejectionSummary() string {
	if len(d.Rejections) == 0 {
		return ""
	}
	keys := make([]string, 0, len(d.Rejections))
	for k := range d.Rejections {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Itoa(d.Rejections[RejectReason(k)]))
	}
	return strings.Join(parts, " ")
}
