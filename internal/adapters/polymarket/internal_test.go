package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTradeTimestamp(t *testing.T) {
	// segundos
	ts := parseTradeTimestamp(json.Number("1765985400"))
	assert.Equal(t, int64(1765985400), ts.Unix())

	// milisegundos
	ts = parseTradeTimestamp(json.Number("1765985400123"))
	assert.Equal(t, int64(1765985400), ts.Unix())

	// ISO
	ts = parseTradeTimestamp(json.Number("2026-08-24T15:00:00Z"))
	assert.Equal(t, 2026, ts.Year())

	// basura
	assert.True(t, parseTradeTimestamp(json.Number("garbage")).IsZero())
}

func TestDetectPricePrecision(t *testing.T) {
	assert.Equal(t, int64(100), detectPricePrecision(0.60))
	assert.Equal(t, int64(1000), detectPricePrecision(0.673))
	assert.Equal(t, int64(10000), detectPricePrecision(0.6731))
}
