package budget

// allocator.go — dimensionado de capital por run y por par.
//
// El presupuesto del run es un porcentaje del balance de la wallet; cada par
// admitido recibe un chunk fijo (o lo que quede). Dentro del chunk, ambas
// piernas compran el MISMO número de shares: un set de shares Up+Down cuesta
// pairSum y redime exactamente $1, así que igualar shares es lo que captura
// el edge completo.

import (
	"math"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// ExchangeMinOrderUSD es el notional mínimo que acepta el CLOB por orden.
const ExchangeMinOrderUSD = 1.0

// legTolerance absorbe el error de redondeo de float64 al rederivar piernas:
// una pierna escalada exactamente al mínimo puede quedar en 0.999999...
const legTolerance = 1e-9

// Config contiene la configuración del allocator.
type Config struct {
	WalletUsagePercent float64 // % del balance usable por run
	PairChunkUSD       float64 // notional objetivo por par
	MinLegUSD          float64 // pierna mínima aceptable (propia, >= exchange min)
	FloorToExchangeMin bool    // escala el chunk hacia arriba si una pierna queda corta
}

// Allocation es el dimensionado final de un par.
type Allocation struct {
	Shares   float64 // shares por pierna (iguales en ambas)
	LegAUSD  float64 // notional de Outcomes[0]
	LegBUSD  float64 // notional de Outcomes[1]
	TotalUSD float64
}

// Allocator reparte el presupuesto del run entre señales.
type Allocator struct {
	cfg Config
}

// New crea un Allocator.
func New(cfg Config) *Allocator {
	return &Allocator{cfg: cfg}
}

// RunBudget devuelve el presupuesto total del run dado el balance actual.
func (a *Allocator) RunBudget(balance float64) float64 {
	if balance <= 0 {
		return 0
	}
	return balance * a.cfg.WalletUsagePercent / 100
}

// Allocate dimensiona un par contra el presupuesto restante. Devuelve la
// razón de rechazo si el par no cabe o las piernas quedan demasiado pequeñas.
func (a *Allocator) Allocate(sig domain.Signal, remaining float64) (Allocation, domain.RejectReason) {
	chunk := a.cfg.PairChunkUSD
	if remaining < chunk {
		chunk = remaining
	}
	if chunk <= 0 {
		return Allocation{}, domain.RejectBudgetExhausted
	}

	alloc := a.size(sig, chunk)

	minLeg := math.Min(alloc.LegAUSD, alloc.LegBUSD)
	if minLeg < ExchangeMinOrderUSD-legTolerance {
		if !a.cfg.FloorToExchangeMin {
			return Allocation{}, domain.RejectBelowExchMin
		}
		// Escalar el chunk hasta que la pierna corta llegue al mínimo del
		// exchange, y rederivar. Si el chunk escalado ya no cabe en el
		// presupuesto restante, el par no se puede tomar.
		scaled := chunk * ExchangeMinOrderUSD / minLeg
		if scaled > remaining {
			return Allocation{}, domain.RejectBudgetExhausted
		}
		alloc = a.size(sig, scaled)
	}

	if math.Min(alloc.LegAUSD, alloc.LegBUSD) < a.cfg.MinLegUSD-legTolerance {
		return Allocation{}, domain.RejectLegTooSmall
	}
	return alloc, ""
}

// size reparte chunk USD en shares iguales a precios de la señal.
func (a *Allocator) size(sig domain.Signal, chunk float64) Allocation {
	shares := chunk / sig.PairSum
	legA := shares * sig.Outcomes[0].Price
	legB := shares * sig.Outcomes[1].Price
	return Allocation{
		Shares:   shares,
		LegAUSD:  legA,
		LegBUSD:  legB,
		TotalUSD: legA + legB,
	}
}
