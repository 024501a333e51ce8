package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// FixtureSpec is the YAML description of a dashboard. String cells are
// text/template snippets rendered against the current parameter values,
// e.g. "https://cdn.example.com/{{.Region}}.png".
type FixtureSpec struct {
	Name       string          `yaml:"name"`
	Parameters []ParameterSpec `yaml:"parameters"`
	Worksheets []WorksheetSpec `yaml:"worksheets"`
}

type ParameterSpec struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

type WorksheetSpec struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Rows    [][]any  `yaml:"rows"`
}

// Fixture is an in-process dashboard. Parameter, filter and selection changes
// are applied through its setters, which notify the registered listeners.
type Fixture struct {
	mu         sync.RWMutex
	name       string
	parameters []*FixtureParameter
	worksheets []*FixtureWorksheet
}

func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard file %s: %w", path, err)
	}
	fixture, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard file %s: %w", path, err)
	}
	return fixture, nil
}

func ParseFixture(data []byte) (*Fixture, error) {
	var spec FixtureSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return NewFixture(spec)
}

func NewFixture(spec FixtureSpec) (*Fixture, error) {
	f := &Fixture{name: spec.Name}

	seenParameters := make(map[string]bool)
	for i, p := range spec.Parameters {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter at index %d has empty name", i)
		}
		if seenParameters[p.Name] {
			return nil, fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		seenParameters[p.Name] = true
		f.parameters = append(f.parameters, &FixtureParameter{
			fixture: f,
			name:    p.Name,
			value:   p.Value,
			events:  newEmitter(ParameterChanged),
		})
	}

	seenWorksheets := make(map[string]bool)
	for i, w := range spec.Worksheets {
		if w.Name == "" {
			return nil, fmt.Errorf("worksheet at index %d has empty name", i)
		}
		if seenWorksheets[w.Name] {
			return nil, fmt.Errorf("duplicate worksheet name: %s", w.Name)
		}
		seenWorksheets[w.Name] = true

		worksheet, err := newFixtureWorksheet(f, w)
		if err != nil {
			return nil, fmt.Errorf("worksheet %s: %w", w.Name, err)
		}
		f.worksheets = append(f.worksheets, worksheet)
	}

	return f, nil
}

func (f *Fixture) Name() string {
	return f.name
}

func (f *Fixture) Worksheets() []Worksheet {
	worksheets := make([]Worksheet, len(f.worksheets))
	for i, w := range f.worksheets {
		worksheets[i] = w
	}
	return worksheets
}

func (f *Fixture) Parameters(ctx context.Context) ([]Parameter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parameters := make([]Parameter, len(f.parameters))
	for i, p := range f.parameters {
		parameters[i] = p
	}
	return parameters, nil
}

// SetParameter changes a parameter value and fires ParameterChanged.
func (f *Fixture) SetParameter(name string, value any) error {
	parameter := f.parameter(name)
	if parameter == nil {
		return fmt.Errorf("%w: %s", ErrParameterNotFound, name)
	}

	f.mu.Lock()
	parameter.value = value
	f.mu.Unlock()

	slog.Info("dashboard parameter changed", "parameter", name, "value", value)
	parameter.events.emit(Event{Type: ParameterChanged, Source: name})
	return nil
}

// SetFilter keeps only rows whose field formats to one of values. An empty
// values slice clears the filter. Fires FilterChanged.
func (f *Fixture) SetFilter(worksheetName, field string, values []string) error {
	worksheet := f.worksheet(worksheetName)
	if worksheet == nil {
		return fmt.Errorf("%w: %s", ErrWorksheetNotFound, worksheetName)
	}
	if !slices.Contains(worksheet.columns, field) {
		return fmt.Errorf("worksheet %s has no field %s", worksheetName, field)
	}

	f.mu.Lock()
	if len(values) == 0 {
		delete(worksheet.filters, field)
	} else {
		worksheet.filters[field] = slices.Clone(values)
	}
	f.mu.Unlock()

	slog.Info("dashboard filter changed", "worksheet", worksheetName, "field", field, "values", values)
	worksheet.events.emit(Event{Type: FilterChanged, Source: worksheetName})
	return nil
}

// SelectMarks fires MarkSelectionChanged for the worksheet.
func (f *Fixture) SelectMarks(worksheetName string) error {
	worksheet := f.worksheet(worksheetName)
	if worksheet == nil {
		return fmt.Errorf("%w: %s", ErrWorksheetNotFound, worksheetName)
	}
	worksheet.events.emit(Event{Type: MarkSelectionChanged, Source: worksheetName})
	return nil
}

func (f *Fixture) parameter(name string) *FixtureParameter {
	for _, p := range f.parameters {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (f *Fixture) worksheet(name string) *FixtureWorksheet {
	for _, w := range f.worksheets {
		if w.name == name {
			return w
		}
	}
	return nil
}

// parameterValues must be called with f.mu held.
func (f *Fixture) parameterValues() map[string]any {
	values := make(map[string]any, len(f.parameters))
	for _, p := range f.parameters {
		values[p.name] = p.value
	}
	return values
}

type FixtureParameter struct {
	fixture *Fixture
	name    string
	value   any
	events  *emitter
}

func (p *FixtureParameter) Name() string {
	return p.name
}

func (p *FixtureParameter) Value() any {
	p.fixture.mu.RLock()
	defer p.fixture.mu.RUnlock()
	return p.value
}

func (p *FixtureParameter) AddEventListener(eventType EventType, handler Handler) (Unregister, error) {
	return p.events.add(eventType, handler)
}

type fixtureCell struct {
	raw      any
	template *template.Template
}

type FixtureWorksheet struct {
	fixture *Fixture
	name    string
	columns []string
	rows    [][]fixtureCell
	filters map[string][]string
	events  *emitter
}

func newFixtureWorksheet(f *Fixture, spec WorksheetSpec) (*FixtureWorksheet, error) {
	w := &FixtureWorksheet{
		fixture: f,
		name:    spec.Name,
		columns: slices.Clone(spec.Columns),
		filters: make(map[string][]string),
		events:  newEmitter(FilterChanged, MarkSelectionChanged),
	}

	for i, row := range spec.Rows {
		if len(row) != len(spec.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i, len(row), len(spec.Columns))
		}
		cells := make([]fixtureCell, len(row))
		for j, raw := range row {
			cells[j] = fixtureCell{raw: raw}
			if s, ok := raw.(string); ok && strings.Contains(s, "{{") {
				tmpl, err := template.New(fmt.Sprintf("r%dc%d", i, j)).Option("missingkey=error").Parse(s)
				if err != nil {
					return nil, fmt.Errorf("row %d column %s: %w", i, spec.Columns[j], err)
				}
				cells[j].template = tmpl
			}
		}
		w.rows = append(w.rows, cells)
	}
	return w, nil
}

func (w *FixtureWorksheet) Name() string {
	return w.name
}

func (w *FixtureWorksheet) AddEventListener(eventType EventType, handler Handler) (Unregister, error) {
	return w.events.add(eventType, handler)
}

// SummaryData renders the rows against the current parameter values and
// applies the active filters.
func (w *FixtureWorksheet) SummaryData(ctx context.Context) (*DataTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.fixture.mu.RLock()
	defer w.fixture.mu.RUnlock()
	parameters := w.fixture.parameterValues()

	table := &DataTable{Name: w.name}
	for i, name := range w.columns {
		table.Columns = append(table.Columns, Column{FieldName: name, Index: i})
	}

	for i, row := range w.rows {
		values := make([]DataValue, len(row))
		for j, cell := range row {
			value, err := cell.render(parameters)
			if err != nil {
				return nil, fmt.Errorf("failed to render row %d column %s: %w", i, w.columns[j], err)
			}
			values[j] = DataValue{Value: value, FormattedValue: fmt.Sprint(value)}
		}
		if w.matchesFilters(values) {
			table.Data = append(table.Data, values)
		}
	}
	return table, nil
}

// matchesFilters must be called with the fixture lock held.
func (w *FixtureWorksheet) matchesFilters(row []DataValue) bool {
	for field, allowed := range w.filters {
		idx := slices.Index(w.columns, field)
		if idx < 0 || !slices.Contains(allowed, row[idx].FormattedValue) {
			return false
		}
	}
	return true
}

func (c fixtureCell) render(parameters map[string]any) (any, error) {
	if c.template == nil {
		return c.raw, nil
	}
	var buf bytes.Buffer
	if err := c.template.Execute(&buf, parameters); err != nil {
		return nil, err
	}
	return buf.String(), nil
}
