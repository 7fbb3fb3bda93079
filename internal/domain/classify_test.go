package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCoin(t *testing.T) {
	tests := []struct {
		name  string
		title string
		slug  string
		want  Coin
		ok    bool
	}{
		{"bitcoin slug", "", "bitcoin-up-or-down-5m-1765985400", CoinBTC, true},
		{"ethereum slug", "", "ethereum-up-or-down-15m-1765985400", CoinETH, true},
		{"btc word in title", "BTC Up or Down", "up-or-down-5m", CoinBTC, true},
		{"eth word in slug", "", "eth-up-or-down-august-24-3pm-et", CoinETH, true},
		{"eth as substring does not match", "Ethereal Collection", "ethereal-collection", "", false},
		{"unrelated market", "Will it rain tomorrow?", "will-it-rain", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coin, ok := ClassifyCoin(tt.title, tt.slug)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, coin)
			}
		})
	}
}

func TestClassifyCadence(t *testing.T) {
	tests := []struct {
		slug string
		want Cadence
	}{
		{"bitcoin-up-or-down-5m-1765985400", Cadence5m},
		{"bitcoin-up-or-down-15m-1765985400", Cadence15m},
		{"ethereum-up-or-down-15m", Cadence15m},
		{"bitcoin-up-or-down-august-24-3pm-et", CadenceHourly},
		{"ethereum-up-or-down-august-24-11am-et", CadenceHourly},
		{"bitcoin-above-100k-on-december-31", CadenceOther},
		{"", CadenceOther},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCadence(tt.slug))
		})
	}
}

func TestClassifyCadence_15mNotMistakenFor5m(t *testing.T) {
	// "-15m-" contiene "5m" como substring; el orden de comprobación importa
	assert.Equal(t, Cadence15m, ClassifyCadence("bitcoin-up-or-down-15m-1765985400"))
}
