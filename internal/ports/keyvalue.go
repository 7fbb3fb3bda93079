package ports

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound se devuelve cuando la key no existe en el store.
var ErrKeyNotFound = errors.New("key not found")

// KeyValue es el store persistente compartido entre instancias del bot:
// RunState, latch, riesgo diario y el lock distribuido de run.
type KeyValue interface {
	// Get devuelve el valor de la key, o ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set escribe la key sin expiración.
	Set(ctx context.Context, key string, value []byte) error

	// Delete borra la key. Borrar una key inexistente no es error.
	Delete(ctx context.Context, key string) error

	// SetIfAbsent escribe la key con TTL solo si no existe todavía.
	// Devuelve true si escribió (lock adquirido), false si ya existía.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Close cierra el store limpiamente.
	Close() error
}
