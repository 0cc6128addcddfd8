package design

import (
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// Rows returns the number of observations.
func (m *Matrix) Rows() int {
	return len(m.Batch)
}

// Names returns the design column names in order.
func (m *Matrix) Names() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of a named column, or -1.
func (m *Matrix) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// BatchIndex maps every row to the index of its level in BatchLevels.
func (m *Matrix) BatchIndex() []int {
	idx := make([]int, len(m.Batch))
	for i, b := range m.Batch {
		idx[i], _ = slices.BinarySearch(m.BatchLevels, b)
	}
	return idx
}

// Factor returns a non-batch categorical factor by name.
func (m *Matrix) Factor(name string) (Factor, bool) {
	for _, f := range m.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

// Covariates returns the non-batch, non-intercept columns and their
// descriptions. The matrix is nil when there are none.
func (m *Matrix) Covariates() (*mat.Dense, []Column) {
	return m.sub(func(c Column) bool {
		return c.Kind == Categorical || c.Kind == Continuous
	})
}

// NonBatch returns the intercept and covariate columns.
func (m *Matrix) NonBatch() (*mat.Dense, []Column) {
	return m.sub(func(c Column) bool {
		return c.Kind != BatchIndicator
	})
}

func (m *Matrix) sub(keep func(Column) bool) (*mat.Dense, []Column) {
	var idx []int
	var cols []Column
	for j, c := range m.Columns {
		if keep(c) {
			idx = append(idx, j)
			cols = append(cols, c)
		}
	}
	if len(idx) == 0 || m.Data == nil {
		return nil, nil
	}
	out := mat.NewDense(m.Rows(), len(idx), nil)
	for k, j := range idx {
		for i := 0; i < m.Rows(); i++ {
			out.Set(i, k, m.Data.At(i, j))
		}
	}
	return out, cols
}

// Encode rebuilds the given covariate columns from this design.
//
// Continuous columns are looked up by name; categorical indicators are
// recomputed from the stored factor labels, so a design built on a subset of
// sites (where a level may be missing or a reference level differs) encodes
// identically to the design a model was learned on. Every label of a factor
// listed in known must be one of its known levels.
func (m *Matrix) Encode(cols []Column, known []Factor) (*mat.Dense, error) {
	for _, k := range known {
		f, ok := m.Factor(k.Name)
		if !ok {
			return nil, errors.NewValidationError(k.Name, "categorical covariate missing from design", nil)
		}
		for i, v := range f.Values {
			if _, found := slices.BinarySearch(k.Levels, v); !found {
				return nil, errors.NewValidationError(k.Name, "unknown level at row "+strconv.Itoa(i), v)
			}
		}
	}
	if len(cols) == 0 {
		return nil, nil
	}

	rows := m.Rows()
	out := mat.NewDense(rows, len(cols), nil)
	for j, c := range cols {
		switch c.Kind {
		case Categorical:
			f, ok := m.Factor(c.Source)
			if !ok {
				return nil, errors.NewValidationError(c.Source, "categorical covariate missing from design", nil)
			}
			out.SetCol(j, indicator(f.Values, c.Level))
		case Continuous:
			src := m.ColumnIndex(c.Name)
			if src < 0 || m.Columns[src].Kind != Continuous {
				return nil, errors.NewValidationError(c.Name, "continuous covariate missing from design", nil)
			}
			for i := 0; i < rows; i++ {
				out.Set(i, j, m.Data.At(i, src))
			}
		default:
			return nil, errors.NewValidationError(c.Name, "cannot re-encode "+c.Kind.String()+" column", nil)
		}
	}
	return out, nil
}

// CheckComplete returns a ValidationError for the first missing continuous value.
func (m *Matrix) CheckComplete() error {
	if len(m.Missing) == 0 {
		return nil
	}
	mv := m.Missing[0]
	return errors.NewValidationError(mv.Column,
		"missing or non-numeric covariate value at row "+strconv.Itoa(mv.Row), mv.Raw)
}
