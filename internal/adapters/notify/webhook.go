package notify

// webhook.go — alertas operativas vía webhook JSON genérico.
//
// Fire-and-forget: un webhook caído degrada a un warn en el log, nunca
// interrumpe el run. Compatible con Slack/Discord vía campo "text".

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Webhook implementa ports.AlertSink contra un endpoint HTTP JSON.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook crea un sink de alertas. Con url vacío, las alertas solo
// se loguean.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Alert envía la alerta al webhook configurado.
func (w *Webhook) Alert(ctx context.Context, subject, body string) error {
	slog.Warn("alert", "subject", subject, "body", body)

	if w.url == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s*\n%s", subject, body),
	})
	if err != nil {
		return fmt.Errorf("notify.Alert: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify.Alert: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify.Alert: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify.Alert: webhook status %d", resp.StatusCode)
	}
	return nil
}
