package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
)

const (
	keyGroup   = "Group"
	keyChannel = "Channel"

	// unsetValue хранится вместо отсутствующей привязки.
	unsetValue = "0"
)

// Store хранит привязки группы и канала в одном JSON-файле.
// Мьютекс сериализует каждый цикл чтение-изменение-запись,
// так что конкурентные апдейты не теряют чужих записей.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore открывает хранилище по указанному пути. Отсутствующий файл
// создаётся с пустыми привязками.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		defaults := map[string]string{keyGroup: unsetValue, keyChannel: unsetValue}
		if err := s.write(defaults); err != nil {
			return nil, fmt.Errorf("инициализация файла настроек: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	return s, nil
}

// Group возвращает привязанную группу, 0 если привязки нет.
func (s *Store) Group() (int64, error) {
	return s.get(keyGroup)
}

// SetGroup привязывает группу.
func (s *Store) SetGroup(id int64) error {
	return s.set(keyGroup, id)
}

// UnsetGroup сбрасывает привязку, только если хранится именно id.
func (s *Store) UnsetGroup(id int64) error {
	return s.unset(keyGroup, id)
}

// Channel возвращает привязанный канал, 0 если привязки нет.
func (s *Store) Channel() (int64, error) {
	return s.get(keyChannel)
}

// SetChannel привязывает канал.
func (s *Store) SetChannel(id int64) error {
	return s.set(keyChannel, id)
}

// UnsetChannel сбрасывает привязку, только если хранится именно id.
func (s *Store) UnsetChannel(id int64) error {
	return s.unset(keyChannel, id)
}

func (s *Store) get(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read()
	if err != nil {
		return 0, err
	}
	raw, ok := data[key]
	if !ok || raw == "" || raw == unsetValue {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное значение %q в настройках: %w", key, err)
	}
	return id, nil
}

func (s *Store) set(key string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read()
	if err != nil {
		return err
	}
	data[key] = strconv.FormatInt(id, 10)
	return s.write(data)
}

func (s *Store) unset(key string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read()
	if err != nil {
		return err
	}
	if data[key] == strconv.FormatInt(id, 10) {
		data[key] = unsetValue
	}
	return s.write(data)
}

func (s *Store) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("чтение настроек: %w", err)
	}
	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("разбор настроек: %w", err)
	}
	return data, nil
}

func (s *Store) write(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("запись настроек: %w", err)
	}
	return nil
}
