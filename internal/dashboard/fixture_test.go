package dashboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testFixture = `
name: Sales Dashboard
parameters:
  - name: Region
    value: north
worksheets:
  - name: Sales
    columns: [Region, ImgURL, Amount]
    rows:
      - ["{{.Region}}", "https://example.com/{{.Region}}.png", 10]
      - [south, "https://example.com/south.png", 20]
  - name: Inventory
    columns: [Item]
    rows:
      - [widget]
`

func newTestFixture(t *testing.T) *Fixture {
	t.Helper()
	fixture, err := ParseFixture([]byte(testFixture))
	if err != nil {
		t.Fatalf("ParseFixture error: %v", err)
	}
	return fixture
}

func TestFixture_WorksheetNamesInOrder(t *testing.T) {
	fixture := newTestFixture(t)
	names := WorksheetNames(fixture)
	if len(names) != 2 || names[0] != "Sales" || names[1] != "Inventory" {
		t.Fatalf("unexpected worksheet names: %v", names)
	}
}

func TestFixture_SummaryDataRendersParameters(t *testing.T) {
	fixture := newTestFixture(t)
	worksheet, err := FindWorksheet(fixture, "Sales")
	if err != nil {
		t.Fatalf("FindWorksheet error: %v", err)
	}

	table, err := worksheet.SummaryData(context.Background())
	if err != nil {
		t.Fatalf("SummaryData error: %v", err)
	}
	if got := table.FieldNames(); len(got) != 3 || got[1] != "ImgURL" {
		t.Fatalf("unexpected columns: %v", got)
	}
	idx := table.ColumnIndex("ImgURL")
	if got := table.Data[0][idx].Value; got != "https://example.com/north.png" {
		t.Errorf("expected rendered url for north, got %v", got)
	}
	if got := table.Data[0][2].Value; got != 10 {
		t.Errorf("expected numeric cell to stay numeric, got %#v", got)
	}

	if err := fixture.SetParameter("Region", "east"); err != nil {
		t.Fatalf("SetParameter error: %v", err)
	}
	table, err = worksheet.SummaryData(context.Background())
	if err != nil {
		t.Fatalf("SummaryData error: %v", err)
	}
	if got := table.Data[0][idx].Value; got != "https://example.com/east.png" {
		t.Errorf("expected rendered url for east, got %v", got)
	}
}

func TestFixture_ColumnIndexMissing(t *testing.T) {
	table := &DataTable{Columns: []Column{{FieldName: "a"}}}
	if idx := table.ColumnIndex("b"); idx != -1 {
		t.Fatalf("expected -1 for missing column, got %d", idx)
	}
}

func TestFixture_ParameterChangedEvent(t *testing.T) {
	fixture := newTestFixture(t)
	parameters, err := fixture.Parameters(context.Background())
	if err != nil {
		t.Fatalf("Parameters error: %v", err)
	}

	var received []Event
	unregister, err := parameters[0].AddEventListener(ParameterChanged, func(e Event) {
		received = append(received, e)
	})
	if err != nil {
		t.Fatalf("AddEventListener error: %v", err)
	}

	_ = fixture.SetParameter("Region", "west")
	unregister()
	_ = fixture.SetParameter("Region", "north")

	if len(received) != 1 {
		t.Fatalf("expected exactly one event before unregister, got %d", len(received))
	}
	if received[0].Type != ParameterChanged || received[0].Source != "Region" {
		t.Errorf("unexpected event: %+v", received[0])
	}
	if parameters[0].Value() != "north" {
		t.Errorf("expected parameter value north, got %v", parameters[0].Value())
	}
}

func TestFixture_UnsupportedEvent(t *testing.T) {
	fixture := newTestFixture(t)
	worksheet, _ := FindWorksheet(fixture, "Sales")
	_, err := worksheet.AddEventListener(ParameterChanged, func(Event) {})
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("expected ErrUnsupportedEvent, got %v", err)
	}
}

func TestFixture_FilterNarrowsRows(t *testing.T) {
	fixture := newTestFixture(t)
	worksheet, _ := FindWorksheet(fixture, "Sales")

	fired := 0
	if _, err := worksheet.AddEventListener(FilterChanged, func(Event) { fired++ }); err != nil {
		t.Fatalf("AddEventListener error: %v", err)
	}

	if err := fixture.SetFilter("Sales", "Region", []string{"south"}); err != nil {
		t.Fatalf("SetFilter error: %v", err)
	}
	table, err := worksheet.SummaryData(context.Background())
	if err != nil {
		t.Fatalf("SummaryData error: %v", err)
	}
	if len(table.Data) != 1 || table.Data[0][0].Value != "south" {
		t.Fatalf("expected only the south row, got %+v", table.Data)
	}

	if err := fixture.SetFilter("Sales", "Region", nil); err != nil {
		t.Fatalf("SetFilter clear error: %v", err)
	}
	table, _ = worksheet.SummaryData(context.Background())
	if len(table.Data) != 2 {
		t.Fatalf("expected filter to be cleared, got %d rows", len(table.Data))
	}
	if fired != 2 {
		t.Errorf("expected 2 FilterChanged events, got %d", fired)
	}
}

func TestFixture_Errors(t *testing.T) {
	fixture := newTestFixture(t)

	if _, err := FindWorksheet(fixture, "Missing"); !errors.Is(err, ErrWorksheetNotFound) {
		t.Errorf("expected ErrWorksheetNotFound, got %v", err)
	}
	if err := fixture.SetParameter("Missing", 1); !errors.Is(err, ErrParameterNotFound) {
		t.Errorf("expected ErrParameterNotFound, got %v", err)
	}
	if err := fixture.SetFilter("Sales", "Nope", []string{"x"}); err == nil {
		t.Error("expected error for unknown filter field")
	}
	if err := fixture.SelectMarks("Missing"); !errors.Is(err, ErrWorksheetNotFound) {
		t.Errorf("expected ErrWorksheetNotFound, got %v", err)
	}
}

func TestNewFixture_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec FixtureSpec
	}{
		{
			name: "empty worksheet name",
			spec: FixtureSpec{Worksheets: []WorksheetSpec{{Name: ""}}},
		},
		{
			name: "duplicate worksheet",
			spec: FixtureSpec{Worksheets: []WorksheetSpec{{Name: "a"}, {Name: "a"}}},
		},
		{
			name: "duplicate parameter",
			spec: FixtureSpec{Parameters: []ParameterSpec{{Name: "p"}, {Name: "p"}}},
		},
		{
			name: "row width mismatch",
			spec: FixtureSpec{Worksheets: []WorksheetSpec{{Name: "a", Columns: []string{"x"}, Rows: [][]any{{"1", "2"}}}}},
		},
		{
			name: "bad template",
			spec: FixtureSpec{Worksheets: []WorksheetSpec{{Name: "a", Columns: []string{"x"}, Rows: [][]any{{"{{.Broken"}}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFixture(tt.spec); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	if err := os.WriteFile(path, []byte(testFixture), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	fixture, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture error: %v", err)
	}
	if fixture.Name() != "Sales Dashboard" {
		t.Errorf("unexpected dashboard name %q", fixture.Name())
	}

	if _, err := LoadFixture(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
