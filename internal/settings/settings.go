package settings

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
)

// Backend durably stores the complete settings map.
type Backend interface {
	LoadAll(ctx context.Context) (map[string]string, error)
	// SaveAll replaces every persisted entry with values.
	SaveAll(ctx context.Context, values map[string]string) error
	Close() error
}

// Settings is the extension's key/value settings store. Set and Erase only
// change the in-memory view; Save commits that view to the backend.
type Settings struct {
	mu      sync.RWMutex
	backend Backend
	values  map[string]string
}

func New(backend Backend) *Settings {
	return &Settings{
		backend: backend,
		values:  make(map[string]string),
	}
}

// Load replaces the in-memory view with the persisted settings.
func (s *Settings) Load(ctx context.Context) error {
	values, err := s.backend.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if values == nil {
		values = make(map[string]string)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()

	slog.Debug("settings loaded", "entry_count", len(values))
	return nil
}

func (s *Settings) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *Settings) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *Settings) Erase(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// All returns a copy of the current in-memory view.
func (s *Settings) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Save commits the in-memory view to the backend.
func (s *Settings) Save(ctx context.Context) error {
	snapshot := s.All()
	if err := s.backend.SaveAll(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	slog.Debug("settings saved", "entry_count", len(snapshot))
	return nil
}

func (s *Settings) Close() error {
	return s.backend.Close()
}
