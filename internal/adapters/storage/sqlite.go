package storage

// sqlite.go — historial de runs en SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - `runs`: UNA fila por run terminado, con las columnas que un dashboard
//     quiere filtrar (modo, ejecutados, presupuesto) y el snapshot completo
//     de diagnósticos como JSON en `payload`.
//   - Prune automático al arrancar: runs > 30d se borran. Con un run cada
//     15s eso acota la tabla a ~170k filas.
//   - Un único writer: el coordinador serializa los runs, así que no hace
//     falta coordinación extra sobre la conexión.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    mode        TEXT     NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    signals     INTEGER  NOT NULL DEFAULT 0,
    executed    INTEGER  NOT NULL DEFAULT 0,
    unresolved  INTEGER  NOT NULL DEFAULT 0,
    budget_used REAL     NOT NULL DEFAULT 0,
    payload     TEXT     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_mode    ON runs(mode);
`

// retentionRuns acota el historial: runs más viejos se borran al arrancar.
const retentionRuns = 30 * 24 * time.Hour

// SQLiteArchive implementa ports.RunArchive usando SQLite.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive abre (o crea) la base de datos, aplica el schema y poda
// los runs fuera de retención.
func NewSQLiteArchive(ctx context.Context, dsn string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteArchive: open %q: %w", dsn, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteArchive: apply schema: %w", err)
	}

	s := &SQLiteArchive{db: db}
	if err := s.prune(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteArchive: prune: %w", err)
	}
	return s, nil
}

// SaveRun persiste el snapshot de diagnósticos de un run terminado.
func (s *SQLiteArchive) SaveRun(ctx context.Context, diag *domain.Diagnostics) error {
	payload, err := json.Marshal(diag)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: marshal: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, mode, started_at, finished_at, signals, executed, unresolved, budget_used, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		diag.RunID, diag.Mode, diag.StartedAt.UTC(), diag.FinishedAt.UTC(),
		diag.SignalsBuilt, diag.Executed, diag.Unresolved, diag.BudgetUsed, string(payload),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: insert: %w", err)
	}
	return nil
}

// GetRuns devuelve los runs registrados en el rango de tiempo dado,
// los más recientes primero.
func (s *SQLiteArchive) GetRuns(ctx context.Context, from, to time.Time) ([]*domain.Diagnostics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM runs
		WHERE started_at >= ? AND started_at <= ?
		ORDER BY started_at DESC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRuns: query: %w", err)
	}
	defer rows.Close()

	var out []*domain.Diagnostics
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage.GetRuns: scan: %w", err)
		}
		var diag domain.Diagnostics
		if err := json.Unmarshal([]byte(payload), &diag); err != nil {
			return nil, fmt.Errorf("storage.GetRuns: unmarshal: %w", err)
		}
		out = append(out, &diag)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos limpiamente.
func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}

// prune borra los runs fuera de la ventana de retención.
func (s *SQLiteArchive) prune(ctx context.Context) error {
	cutoff := time.Now().Add(-retentionRuns).UTC()
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	return err
}
