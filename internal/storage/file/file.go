// file — файловая реализация storage.Storage.
//
// Все значения лежат в одном JSON-объекте; каждая запись переписывает файл
// целиком через временный файл + rename, чтобы на диске никогда не оказалось
// частично записанного состояния. Права файла — 0600 (в нём токены).
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nachos-replay/replay-client/internal/storage"
)

// Store — файловое key-value хранилище.
type Store struct {
	mu   sync.Mutex
	path string
}

// New создаёт хранилище поверх файла path. Файл и родительские каталоги
// создаются лениво при первой записи.
func New(path string) (*Store, error) {
	const op = "storage.file.New"

	if path == "" {
		return nil, fmt.Errorf("%s: empty path", op)
	}

	return &Store{path: path}, nil
}

// Get возвращает значение по ключу.
func (s *Store) Get(key string) (string, error) {
	const op = "storage.file.Get"

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return v, nil
}

// Set сохраняет значение по ключу.
func (s *Store) Set(key, value string) error {
	const op = "storage.file.Set"

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	values[key] = value

	if err := s.save(values); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Remove удаляет ключ. Отсутствие ключа — не ошибка.
func (s *Store) Remove(key string) error {
	const op = "storage.file.Remove"

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, ok := values[key]; !ok {
		return nil
	}

	delete(values, key)

	if err := s.save(values); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// load читает текущее содержимое файла; отсутствующий файл — пустая карта.
func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}

		return nil, err
	}

	values := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, err
		}
	}

	return values, nil
}

// save атомарно переписывает файл: temp-файл в том же каталоге + rename.
func (s *Store) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, s.path)
}
