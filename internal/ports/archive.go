package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// RunArchive persiste el historial de runs para análisis posterior.
type RunArchive interface {
	// SaveRun persiste el snapshot de diagnósticos de un run terminado.
	SaveRun(ctx context.Context, diag *domain.Diagnostics) error

	// GetRuns devuelve los runs registrados en el rango de tiempo dado.
	GetRuns(ctx context.Context, from, to time.Time) ([]*domain.Diagnostics, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
