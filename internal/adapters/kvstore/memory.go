package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/pairbot/internal/ports"
)

// MemoryStore es la implementación en memoria de ports.KeyValue, para tests
// y para el modo off. El reloj es inyectable para poder probar expiraciones
// sin dormir.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero = sin expiración
}

// NewMemory crea un MemoryStore con el reloj real.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// NewMemoryWithClock crea un MemoryStore con un reloj inyectado.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		now:     now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		delete(s.entries, key)
		return nil, ports.ErrKeyNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.entries[key] = memEntry{value: v}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !s.expired(e) {
		return false, nil
	}
	v := make([]byte, len(value))
	copy(v, value)
	e := memEntry{value: v}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}
