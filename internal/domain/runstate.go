package domain

import "time"

// MaxProcessedKeys acota el set de keys procesadas dentro de un RunState.
// Con mercados de 5m/15m el set rota rápido; 5000 cubre varios días.
const MaxProcessedKeys = 5000

// RunState es el estado persistente entre runs: watermark monotónico,
// set acotado de keys procesadas, latch de seguridad y estado de riesgo diario.
type RunState struct {
	// LastTimestamp es el watermark: señales con timestamp <= watermark
	// se consideran ya tratadas. Solo avanza con keys realmente procesadas.
	LastTimestamp int64 `json:"lastTimestamp"`

	// ProcessedKeys en orden de inserción (la más antigua primero).
	ProcessedKeys []string `json:"processedKeys"`

	Latch *SafetyLatch    `json:"safetyLatch,omitempty"`
	Daily *DailyRiskState `json:"dailyRisk,omitempty"`

	// LastDiagnostics es el snapshot del último run (para el dashboard externo).
	LastDiagnostics *Diagnostics `json:"lastDiagnostics,omitempty"`
}

// Watermark devuelve el watermark como time.Time.
func (rs *RunState) Watermark() time.Time {
	if rs.LastTimestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(rs.LastTimestamp, 0).UTC()
}

// Seen devuelve true si la key ya fue procesada durante la vida de este RunState.
func (rs *RunState) Seen(key string) bool {
	for _, k := range rs.ProcessedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// MarkProcessed registra la key como consumida y avanza el watermark si el
// timestamp lo supera. El set se acota a MaxProcessedKeys expulsando las
// inserciones más antiguas.
func (rs *RunState) MarkProcessed(key string, ts time.Time) {
	if !rs.Seen(key) {
		rs.ProcessedKeys = append(rs.ProcessedKeys, key)
		if len(rs.ProcessedKeys) > MaxProcessedKeys {
			rs.ProcessedKeys = rs.ProcessedKeys[len(rs.ProcessedKeys)-MaxProcessedKeys:]
		}
	}
	if unix := ts.Unix(); unix > rs.LastTimestamp {
		rs.LastTimestamp = unix
	}
}

// Eligible devuelve true si la señal es nueva: timestamp por encima del
// watermark y key no vista.
func (rs *RunState) Eligible(s Signal) bool {
	if s.LatestTimestamp.Unix() <= rs.LastTimestamp {
		return false
	}
	return !rs.Seen(s.Key())
}
