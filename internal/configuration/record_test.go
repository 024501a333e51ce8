package configuration

import (
	"context"
	"errors"
	"testing"

	"github.com/jo-hoe/sheetimage/internal/settings"
)

func newTestManager(t *testing.T, initial map[string]string) (*Manager, *settings.MemoryBackend) {
	t.Helper()
	backend := settings.NewMemoryBackend(initial)
	s := settings.New(backend)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return NewManager(s), backend
}

func TestManager_LoadAbsent(t *testing.T) {
	manager, _ := newTestManager(t, nil)
	record, err := manager.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %+v", record)
	}
}

func TestManager_LoadPersisted(t *testing.T) {
	manager, _ := newTestManager(t, map[string]string{
		ConfigKey: `{"worksheetName":"Sales","columnName":"ImgURL"}`,
	})
	record, err := manager.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if record == nil || record.WorksheetName != "Sales" || record.ColumnName != "ImgURL" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestManager_LoadMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{oops"},
		{name: "missing column", raw: `{"worksheetName":"Sales"}`},
		{name: "empty worksheet", raw: `{"worksheetName":"","columnName":"ImgURL"}`},
		{name: "wrong type", raw: `{"worksheetName":1,"columnName":"ImgURL"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, _ := newTestManager(t, map[string]string{ConfigKey: tt.raw})
			_, err := manager.Load()
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestManager_SaveWritesExactJSON(t *testing.T) {
	manager, backend := newTestManager(t, nil)
	err := manager.Save(context.Background(), Record{WorksheetName: "Sales", ColumnName: "ImgURL"})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}

	persisted, _ := backend.LoadAll(context.Background())
	want := `{"worksheetName":"Sales","columnName":"ImgURL"}`
	if persisted[ConfigKey] != want {
		t.Fatalf("persisted %q, want %q", persisted[ConfigKey], want)
	}
}

func TestManager_SaveRejectsIncomplete(t *testing.T) {
	manager, _ := newTestManager(t, nil)
	if err := manager.Save(context.Background(), Record{WorksheetName: "Sales"}); err == nil {
		t.Fatal("expected validation error for empty column")
	}
}

func TestManager_Reset(t *testing.T) {
	manager, backend := newTestManager(t, map[string]string{
		ConfigKey: `{"worksheetName":"Sales","columnName":"ImgURL"}`,
		"other":   "kept",
	})
	if err := manager.Reset(context.Background()); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	persisted, _ := backend.LoadAll(context.Background())
	if _, ok := persisted[ConfigKey]; ok {
		t.Fatal("expected config key to be removed")
	}
	if persisted["other"] != "kept" {
		t.Fatal("expected unrelated settings to survive reset")
	}
}

func TestManager_FailedSaveRestoresPreviousValue(t *testing.T) {
	tests := []struct {
		name    string
		initial map[string]string
		want    *Record
	}{
		{name: "no previous record", initial: nil, want: nil},
		{
			name:    "previous record kept",
			initial: map[string]string{ConfigKey: `{"worksheetName":"Sales","columnName":"ImgURL"}`},
			want:    &Record{WorksheetName: "Sales", ColumnName: "ImgURL"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, backend := newTestManager(t, tt.initial)
			backend.SaveErr = errors.New("disk full")

			err := manager.Save(context.Background(), Record{WorksheetName: "Ops", ColumnName: "Photo"})
			if err == nil {
				t.Fatal("expected save error")
			}

			record, err := manager.Load()
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if tt.want == nil && record != nil {
				t.Fatalf("expected no record after failed save, got %+v", record)
			}
			if tt.want != nil && (record == nil || *record != *tt.want) {
				t.Fatalf("got %+v, want %+v", record, tt.want)
			}

			// A later unrelated save must not commit the failed record.
			backend.SaveErr = nil
			if err := manager.settings.Save(context.Background()); err != nil {
				t.Fatalf("Save error: %v", err)
			}
			persisted, _ := backend.LoadAll(context.Background())
			if persisted[ConfigKey] == `{"worksheetName":"Ops","columnName":"Photo"}` {
				t.Fatal("failed record leaked into a later save")
			}
		})
	}
}
