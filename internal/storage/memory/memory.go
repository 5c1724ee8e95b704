// memory — in-memory реализация storage.Storage (для тестов и сценариев
// без персистентности, когда сессия живёт только в памяти процесса).
package memory

import (
	"sync"

	"github.com/nachos-replay/replay-client/internal/storage"
)

// Store — потокобезопасное key-value в памяти процесса.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{values: map[string]string{}}
}

// Get возвращает значение по ключу.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}

	return v, nil
}

// Set сохраняет значение по ключу.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	return nil
}

// Remove удаляет ключ.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)

	return nil
}
