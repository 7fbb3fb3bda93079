package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/adapters/notify"
	"github.com/alejandrodnm/pairbot/internal/domain"
)

func sampleRun() (*domain.Diagnostics, []domain.SignalOutcome) {
	diag := domain.NewDiagnostics("a1b2c3d4-run", "paper", time.Now())
	diag.TradesInspected = 120
	diag.SignalsBuilt = 2
	diag.Eligible = 1
	diag.Executed = 1
	diag.BudgetCap = 500
	diag.BudgetUsed = 9.7
	diag.Reject(domain.RejectLowEdge)

	sig := domain.Signal{
		ConditionID: "0xbtc",
		Slug:        "bitcoin-up-or-down-5m-1765985400",
		Coin:        domain.CoinBTC,
		Cadence:     domain.Cadence5m,
		PairSum:     0.97,
		Edge:        0.03,
	}
	outcomes := []domain.SignalOutcome{{
		Signal:       sig,
		Status:       domain.StatusPaperFilled,
		LegANotional: 5.4,
		LegBNotional: 4.3,
	}}
	return diag, outcomes
}

func TestConsole_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	diag, outcomes := sampleRun()
	require.NoError(t, c.Notify(context.Background(), diag, outcomes))

	out := buf.String()
	assert.Contains(t, out, "paper run")
	assert.Contains(t, out, "1 executed")
	assert.Contains(t, out, "$9.70/$500.00")
	assert.Contains(t, out, "BTC/5m")
	// El slug no cabe entero: el recorte conserva el final, que es donde
	// vive el timestamp del mercado.
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "1765985400")
	assert.NotContains(t, out, "LATCHED")
}

func TestConsole_CompactShowsLatch(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	diag, outcomes := sampleRun()
	diag.LatchActive = true
	require.NoError(t, c.Notify(context.Background(), diag, outcomes))

	assert.Contains(t, buf.String(), "[LATCHED]")
}

func TestConsole_FullTable(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	diag, outcomes := sampleRun()
	require.NoError(t, c.Notify(context.Background(), diag, outcomes))

	out := buf.String()
	assert.Contains(t, out, "a1b2c3d4")
	assert.Contains(t, out, "0.970")
	assert.Contains(t, out, "rejected: low_edge=1")
}

func TestWebhook_PostsPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	w := notify.NewWebhook(srv.URL)
	require.NoError(t, w.Alert(context.Background(), "safety latch armed", "2 residuals"))

	assert.Equal(t, "*safety latch armed*\n2 residuals", got["text"])
}

func TestWebhook_EmptyURLIsLogOnly(t *testing.T) {
	w := notify.NewWebhook("")
	assert.NoError(t, w.Alert(context.Background(), "subject", "body"))
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := notify.NewWebhook(srv.URL)
	assert.ErrorContains(t, w.Alert(context.Background(), "s", "b"), "status 502")
}
