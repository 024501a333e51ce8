package configuration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jo-hoe/sheetimage/internal/dashboard"
)

var (
	ErrNoWorksheetSelected = errors.New("no worksheet selected")
	ErrUnknownColumn       = errors.New("unknown column")
	ErrWizardComplete      = errors.New("configuration already completed")
)

// Wizard is the two step picker: first a worksheet, then one of its columns.
type Wizard struct {
	mu        sync.Mutex
	dashboard dashboard.Dashboard
	manager   *Manager

	worksheet dashboard.Worksheet
	columns   []string
	record    *Record
}

func NewWizard(d dashboard.Dashboard, manager *Manager) *Wizard {
	return &Wizard{
		dashboard: d,
		manager:   manager,
	}
}

// Worksheets lists the worksheet choices in dashboard order.
func (w *Wizard) Worksheets() []string {
	return dashboard.WorksheetNames(w.dashboard)
}

// SelectWorksheet picks the worksheet and returns its columns in data source order.
func (w *Wizard) SelectWorksheet(ctx context.Context, name string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.record != nil {
		return nil, ErrWizardComplete
	}

	worksheet, err := dashboard.FindWorksheet(w.dashboard, name)
	if err != nil {
		return nil, err
	}
	table, err := worksheet.SummaryData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get summary data for worksheet %s: %w", name, err)
	}

	w.worksheet = worksheet
	w.columns = table.FieldNames()
	return slices.Clone(w.columns), nil
}

// Columns returns the columns of the selected worksheet.
func (w *Wizard) Columns() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.columns)
}

// SelectedWorksheet returns the selected worksheet name, or "" when none.
func (w *Wizard) SelectedWorksheet() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.worksheet == nil {
		return ""
	}
	return w.worksheet.Name()
}

// SelectColumn completes the wizard and persists the resulting record.
// A failed save leaves the wizard open so the user can pick again.
func (w *Wizard) SelectColumn(ctx context.Context, column string) (*Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.record != nil {
		return nil, ErrWizardComplete
	}
	if w.worksheet == nil {
		return nil, ErrNoWorksheetSelected
	}
	if !slices.Contains(w.columns, column) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}

	record := Record{
		WorksheetName: w.worksheet.Name(),
		ColumnName:    column,
	}
	if err := w.manager.Save(ctx, record); err != nil {
		return nil, err
	}
	w.record = &record
	return &record, nil
}

// Done reports whether a record was produced.
func (w *Wizard) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.record != nil
}
