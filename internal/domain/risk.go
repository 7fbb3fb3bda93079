package domain

import "time"

// SafetyLatch bloquea todo run live futuro mientras exista exposición
// residual de una sola pierna. Solo lo crea la máquina de ejecución al
// dispararse el circuit breaker; se limpia con la resolución completa de
// los activos residuales o con un reset externo explícito.
type SafetyLatch struct {
	Active           bool      `json:"active"`
	Reason           string    `json:"reason"`
	TriggeredAt      time.Time `json:"triggeredAt"`
	UnresolvedAssets []string  `json:"unresolvedAssets"`
	Attempts         int       `json:"attempts"`
	LastAttemptAt    time.Time `json:"lastAttemptAt,omitempty"`
	LastAlertAt      time.Time `json:"lastAlertAt,omitempty"`
}

// RemoveAsset quita un activo resuelto del latch. Devuelve true si ya no
// queda ninguno (el latch puede limpiarse).
func (l *SafetyLatch) RemoveAsset(tokenID string) bool {
	out := l.UnresolvedAssets[:0]
	for _, a := range l.UnresolvedAssets {
		if a != tokenID {
			out = append(out, a)
		}
	}
	l.UnresolvedAssets = out
	return len(l.UnresolvedAssets) == 0
}

// DailyRiskState acumula la actividad live del día UTC en curso.
// Se resetea cuando cambia DayKey, capturando el balance de inicio de día.
type DailyRiskState struct {
	DayKey            string    `json:"dayKey"` // "2026-08-24"
	DayStartBalance   float64   `json:"dayStartBalance"`
	LiveNotional      float64   `json:"liveNotional"`
	LiveRuns          int       `json:"liveRuns"`
	NotionalAlertSent bool      `json:"notionalAlertSent"`
	DrawdownAlertSent bool      `json:"drawdownAlertSent"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// UTCDayKey devuelve la key de día calendario UTC para t.
func UTCDayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Drawdown devuelve la caída respecto al balance de inicio de día (>= 0).
func (d *DailyRiskState) Drawdown(currentBalance float64) float64 {
	dd := d.DayStartBalance - currentBalance
	if dd < 0 {
		return 0
	}
	return dd
}
