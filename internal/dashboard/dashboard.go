// Package dashboard models the host dashboard the extension runs in: its
// worksheets, their summary data, its parameters and the change events they
// emit.
package dashboard

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrWorksheetNotFound = errors.New("worksheet not found")
	ErrParameterNotFound = errors.New("parameter not found")
	ErrUnsupportedEvent  = errors.New("unsupported event type")
)

type EventType string

const (
	ParameterChanged     EventType = "parameter-changed"
	FilterChanged        EventType = "filter-changed"
	MarkSelectionChanged EventType = "mark-selection-changed"
)

// Event is delivered to listeners. Source names the parameter or worksheet
// that changed.
type Event struct {
	Type   EventType
	Source string
}

type Handler func(Event)

// Unregister removes a previously added event listener.
type Unregister func()

type Column struct {
	FieldName string
	Index     int
}

type DataValue struct {
	Value          any
	FormattedValue string
}

// DataTable is a worksheet's summary data: ordered columns and rows of cells.
type DataTable struct {
	Name    string
	Columns []Column
	Data    [][]DataValue
}

// ColumnIndex returns the position of the column with the given field name,
// or -1 when no such column exists.
func (t *DataTable) ColumnIndex(fieldName string) int {
	for i, column := range t.Columns {
		if column.FieldName == fieldName {
			return i
		}
	}
	return -1
}

// FieldNames returns the column field names in data source order.
func (t *DataTable) FieldNames() []string {
	names := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = column.FieldName
	}
	return names
}

type Worksheet interface {
	Name() string
	SummaryData(ctx context.Context) (*DataTable, error)
	AddEventListener(eventType EventType, handler Handler) (Unregister, error)
}

type Parameter interface {
	Name() string
	Value() any
	AddEventListener(eventType EventType, handler Handler) (Unregister, error)
}

type Dashboard interface {
	Name() string
	Worksheets() []Worksheet
	Parameters(ctx context.Context) ([]Parameter, error)
}

// FindWorksheet returns the first worksheet of the dashboard with the given name.
func FindWorksheet(d Dashboard, name string) (Worksheet, error) {
	for _, worksheet := range d.Worksheets() {
		if worksheet.Name() == name {
			return worksheet, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWorksheetNotFound, name)
}

// WorksheetNames lists worksheet names in dashboard order.
func WorksheetNames(d Dashboard) []string {
	worksheets := d.Worksheets()
	names := make([]string, len(worksheets))
	for i, worksheet := range worksheets {
		names[i] = worksheet.Name()
	}
	return names
}
