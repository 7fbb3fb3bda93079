package domain

import (
	"regexp"
	"strings"
)

// classify.go — heurísticas de clasificación (coin, cadence) por título/slug.
//
// Los mercados up/down de Polymarket siguen convenciones de naming estables:
//   bitcoin-up-or-down-5m-1765985400       → BTC, 5m
//   ethereum-up-or-down-15m-1765985400     → ETH, 15m
//   bitcoin-up-or-down-august-24-3pm-et    → BTC, hourly
// Cualquier otro patrón cae en CadenceOther.

// hourlySlugPattern reconoce el marcador horario "3pm-et" / "11am-et".
var hourlySlugPattern = regexp.MustCompile(`\b\d{1,2}(am|pm)-et\b`)

// ClassifyCoin detecta el activo del mercado por keywords en slug o título.
// Devuelve ("", false) si no se reconoce ningún activo.
func ClassifyCoin(title, slug string) (Coin, bool) {
	haystack := strings.ToLower(slug + " " + title)
	switch {
	case strings.Contains(haystack, "bitcoin") || containsWord(haystack, "btc"):
		return CoinBTC, true
	case strings.Contains(haystack, "ethereum") || containsWord(haystack, "eth"):
		return CoinETH, true
	}
	return "", false
}

// ClassifyCadence detecta la cadencia del mercado:
// marcadores "5m"/"15m" en el slug, patrón horario "Xpm-et", o "other".
func ClassifyCadence(slug string) Cadence {
	s := strings.ToLower(slug)
	switch {
	// "-15m-" debe comprobarse antes que "-5m-" (el sufijo colisiona)
	case strings.Contains(s, "-15m-") || strings.HasSuffix(s, "-15m"):
		return Cadence15m
	case strings.Contains(s, "-5m-") || strings.HasSuffix(s, "-5m"):
		return Cadence5m
	case hourlySlugPattern.MatchString(s):
		return CadenceHourly
	}
	return CadenceOther
}

// containsWord busca w como palabra separada por '-', espacio o borde de string.
// Evita falsos positivos tipo "ethereal" conteniendo "eth".
func containsWord(haystack, w string) bool {
	for i := 0; i+len(w) <= len(haystack); i++ {
		j := strings.Index(haystack[i:], w)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(w)
		leftOK := start == 0 || haystack[start-1] == '-' || haystack[start-1] == ' ' || haystack[start-1] == '/'
		rightOK := end == len(haystack) || haystack[end] == '-' || haystack[end] == ' ' || haystack[end] == '/'
		if leftOK && rightOK {
			return true
		}
		i = start
	}
	return false
}
