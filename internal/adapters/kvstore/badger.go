package kvstore

// badger.go — persistencia de estado sobre Badger.
//
// Un único directorio Badger guarda el RunState, el estado de riesgo y el
// lock distribuido de run. SetIfAbsent con TTL es el primitivo del lock:
// Badger expira la entry sola, así que un proceso que muere con el lock
// cogido no bloquea a los demás para siempre.

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/alejandrodnm/pairbot/internal/ports"
)

// BadgerStore implements ports.KeyValue sobre un directorio Badger local.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger abre (o crea) el store en el directorio dado.
func OpenBadger(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("kvstore: path is required")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get devuelve el valor de la key, o ports.ErrKeyNotFound.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ports.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	return out, nil
}

// Set escribe la key sin expiración.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("kvstore: set %q: %w", key, err)
	}
	return nil
}

// Delete borra la key. Borrar una key inexistente no es error.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("kvstore: delete %q: %w", key, err)
	}
	return nil
}

// SetIfAbsent escribe la key con TTL solo si no existe. La comprobación y la
// escritura comparten una transacción, así que dos procesos compitiendo por
// el mismo lock no pueden ganarlo los dos.
func (s *BadgerStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil // ya existe
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("kvstore: setIfAbsent %q: %w", key, err)
	}
	return acquired, nil
}

// Close cierra el store limpiamente.
func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
