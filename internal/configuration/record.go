package configuration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/sheetimage/internal/settings"
)

// ConfigKey is the settings key holding the JSON encoded Record.
const ConfigKey = "imageConfig"

var ErrMalformedRecord = errors.New("malformed image configuration")

// Record maps a worksheet column to the image URL.
type Record struct {
	WorksheetName string `json:"worksheetName" validate:"required"`
	ColumnName    string `json:"columnName" validate:"required"`
}

// Manager reads and writes the Record in the settings store.
type Manager struct {
	settings  *settings.Settings
	validator *validator.Validate
}

func NewManager(s *settings.Settings) *Manager {
	return &Manager{
		settings:  s,
		validator: validator.New(),
	}
}

// Load returns the persisted record, or nil when none was saved yet. A stored
// value that does not decode into a complete record is an ErrMalformedRecord.
func (m *Manager) Load() (*Record, error) {
	raw, ok := m.settings.Get(ConfigKey)
	if !ok || raw == "" {
		slog.Info("no image configuration persisted", "key", ConfigKey)
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := m.validator.Struct(record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	slog.Info("image configuration loaded",
		"worksheet", record.WorksheetName,
		"column", record.ColumnName)
	return &record, nil
}

// Save writes the record and commits the settings store.
func (m *Manager) Save(ctx context.Context, record Record) error {
	if err := m.validator.Struct(record); err != nil {
		return fmt.Errorf("invalid image configuration: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode image configuration: %w", err)
	}

	previous, hadPrevious := m.settings.Get(ConfigKey)
	m.settings.Set(ConfigKey, string(data))
	if err := m.settings.Save(ctx); err != nil {
		// An uncommitted record must not ride along with a later save.
		if hadPrevious {
			m.settings.Set(ConfigKey, previous)
		} else {
			m.settings.Erase(ConfigKey)
		}
		return err
	}

	slog.Info("image configuration saved",
		"worksheet", record.WorksheetName,
		"column", record.ColumnName)
	return nil
}

// Reset removes the persisted record.
func (m *Manager) Reset(ctx context.Context) error {
	m.settings.Erase(ConfigKey)
	if err := m.settings.Save(ctx); err != nil {
		return err
	}
	slog.Info("image configuration reset", "key", ConfigKey)
	return nil
}
