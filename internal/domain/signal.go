package domain

import (
	"fmt"
	"time"
)

// Coin identifica el activo subyacente del mercado up/down.
type Coin string

const (
	CoinBTC Coin = "BTC"
	CoinETH Coin = "ETH"
)

// Cadence es la duración del mercado up/down.
type Cadence string

const (
	Cadence5m     Cadence = "5m"
	Cadence15m    Cadence = "15m"
	CadenceHourly Cadence = "hourly"
	CadenceOther  Cadence = "other"
)

// Outcome es uno de los dos lados del par (Up/Down).
type Outcome struct {
	TokenID   string
	Label     string  // "Up" | "Down"
	Price     float64 // último precio observado, en (0, 1) exclusivo
	Timestamp time.Time
}

// Signal es un par tradeable detectado en el tape de trades recientes.
// Se recalcula fresco en cada run; nunca se persiste.
type Signal struct {
	ConditionID     string
	Title           string
	Slug            string
	Coin            Coin
	Cadence         Cadence
	LatestTimestamp time.Time
	Outcomes        [2]Outcome

	PairSum float64 // precio A + precio B
	Edge    float64 // 1.0 - PairSum (positivo = el par cuesta menos que su redención)
}

// Key identifica el signal para de-duplicación: un (conditionId, timestamp)
// se procesa como máximo una vez durante la vida de un RunState.
func (s Signal) Key() string {
	return fmt.Sprintf("%s:%d", s.ConditionID, s.LatestTimestamp.Unix())
}

// EdgeCents devuelve el edge en centavos (2¢ = pairSum 0.98).
func (s Signal) EdgeCents() float64 {
	return s.Edge * 100
}

// ValidPairSum comprueba el invariante pairSum ∈ (0, 2) de un par admisible.
func (s Signal) ValidPairSum() bool {
	return s.PairSum > 0 && s.PairSum < 2
}

// ValidPrice comprueba que un precio de outcome esté en (0, 1) exclusivo.
func ValidPrice(p float64) bool {
	return p > 0 && p < 1
}
