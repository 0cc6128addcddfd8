package design

import (
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// TableColumn is one named column of a Table. Exactly one of Strings and
// Numbers is non-nil.
type TableColumn struct {
	Name    string
	Strings []string
	Numbers []float64
}

// IsNumeric reports whether the column holds numbers.
func (c TableColumn) IsNumeric() bool {
	return c.Numbers != nil
}

// Table is an ordered, column-oriented covariate table.
// Values are copied on insertion so callers keep ownership of their slices.
type Table struct {
	rows    int
	columns []TableColumn
}

// NewTable returns an empty table with a fixed row count.
func NewTable(rows int) *Table {
	return &Table{rows: rows}
}

// Rows returns the number of observations.
func (t *Table) Rows() int {
	return t.rows
}

// AddStrings appends a string-valued column.
func (t *Table) AddStrings(name string, values []string) error {
	if err := t.checkNew(name, len(values)); err != nil {
		return err
	}
	t.columns = append(t.columns, TableColumn{Name: name, Strings: append([]string(nil), values...)})
	return nil
}

// AddNumbers appends a numeric column.
func (t *Table) AddNumbers(name string, values []float64) error {
	if err := t.checkNew(name, len(values)); err != nil {
		return err
	}
	t.columns = append(t.columns, TableColumn{Name: name, Numbers: append(make([]float64, 0, len(values)), values...)})
	return nil
}

func (t *Table) checkNew(name string, n int) error {
	if name == "" {
		return errors.NewValidationError("column", "column name must not be empty", name)
	}
	if t.Has(name) {
		return errors.NewValidationError(name, "duplicate column", name)
	}
	if n != t.rows {
		return errors.NewValidationError(name, "column length does not match table rows", n)
	}
	return nil
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Column looks a column up by name.
func (t *Table) Column(name string) (TableColumn, bool) {
	if t == nil {
		return TableColumn{}, false
	}
	for _, c := range t.columns {
		if c.Name == name {
			return c, true
		}
	}
	return TableColumn{}, false
}

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}
