package ports

import (
	"context"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Notifier presenta el resultado de un run al usuario.
type Notifier interface {
	// Notify muestra el snapshot del run y las señales ejecutadas.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, diag *domain.Diagnostics, outcomes []domain.SignalOutcome) error
}

// AlertSink envía alertas operativas (latch activo, caps diarios, drawdown).
// Las implementaciones deben ser fire-and-forget: un fallo del sink nunca
// interrumpe el run.
type AlertSink interface {
	Alert(ctx context.Context, subject, body string) error
}
