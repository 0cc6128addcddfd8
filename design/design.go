// Package design builds numeric regression designs from covariate tables.
//
// A design always carries exactly one categorical group for the batch (site)
// label. Categorical columns are one-hot encoded with levels in lexicographic
// order, continuous columns pass through as numbers, and an intercept column
// of ones leads the matrix unless disabled.
package design

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
	"github.com/YuminosukeSato/eegharmony/pkg/log"
)

// InterceptColumn is the name of the intercept column.
const InterceptColumn = "intercept"

// Kind classifies a design column.
type Kind int

const (
	Intercept Kind = iota
	BatchIndicator
	Categorical
	Continuous
)

func (k Kind) String() string {
	switch k {
	case Intercept:
		return "intercept"
	case BatchIndicator:
		return "batch"
	case Categorical:
		return "categorical"
	case Continuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// Column describes one column of a design matrix.
// Indicator columns carry the source column and the level they encode.
type Column struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Source string `json:"source"`
	Level  string `json:"level,omitempty"`
}

// Factor is a categorical covariate with its sorted levels and raw labels.
type Factor struct {
	Name   string   `json:"name"`
	Levels []string `json:"levels"`
	Values []string `json:"-"`
}

// MissingValue records a continuous value that failed numeric coercion.
type MissingValue struct {
	Row    int
	Column string
	Raw    string
}

// Matrix is a built design.
type Matrix struct {
	Data        *mat.Dense
	Columns     []Column
	BatchColumn string
	BatchLevels []string
	Batch       []string
	Factors     []Factor
	Missing     []MissingValue
}

// Build turns a covariate table into a design matrix.
//
// The batch column is mandatory; its absence is a ValidationError. The table
// is never modified.
func Build(t *Table, opts ...Option) (*Matrix, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if t == nil || t.Rows() == 0 {
		return nil, errors.NewValidationError("table", "must contain at least one row", nil)
	}
	batchCol, ok := t.Column(cfg.batchColumn)
	if !ok {
		return nil, errors.NewValidationError(cfg.batchColumn, "batch column is required", strings.Join(t.Names(), ","))
	}

	categorical, continuous, err := partition(t, cfg)
	if err != nil {
		return nil, err
	}

	rows := t.Rows()
	batch := labels(batchCol)
	for i, b := range batch {
		if strings.TrimSpace(b) == "" {
			return nil, errors.NewValidationError(cfg.batchColumn, "empty batch label at row "+strconv.Itoa(i), b)
		}
	}

	m := &Matrix{
		BatchColumn: cfg.batchColumn,
		Batch:       batch,
		BatchLevels: sortedLevels(batch),
	}

	var cols [][]float64
	addColumn := func(c Column, values []float64) {
		m.Columns = append(m.Columns, c)
		cols = append(cols, values)
	}

	if cfg.intercept && !t.Has(InterceptColumn) {
		ones := make([]float64, rows)
		for i := range ones {
			ones[i] = 1
		}
		addColumn(Column{Name: InterceptColumn, Kind: Intercept, Source: InterceptColumn}, ones)
	}

	for _, level := range indicatorLevels(m.BatchLevels, cfg.dropFirst) {
		addColumn(Column{
			Name:   indicatorName(cfg.batchColumn, level),
			Kind:   BatchIndicator,
			Source: cfg.batchColumn,
			Level:  level,
		}, indicator(batch, level))
	}

	for _, name := range categorical {
		src, _ := t.Column(name)
		values := labels(src)
		f := Factor{Name: name, Levels: sortedLevels(values), Values: values}
		m.Factors = append(m.Factors, f)
		for _, level := range indicatorLevels(f.Levels, cfg.dropFirst) {
			addColumn(Column{
				Name:   indicatorName(name, level),
				Kind:   Categorical,
				Source: name,
				Level:  level,
			}, indicator(values, level))
		}
	}

	for _, name := range continuous {
		src, _ := t.Column(name)
		values, missing := coerce(src)
		m.Missing = append(m.Missing, missing...)
		kind := Continuous
		if name == InterceptColumn {
			kind = Intercept
		}
		addColumn(Column{Name: name, Kind: kind, Source: name}, values)
	}

	if !cfg.allowConstant && rows >= 2 {
		for j, c := range m.Columns {
			if c.Kind == Intercept {
				continue
			}
			if isConstant(cols[j]) {
				return nil, errors.NewValidationError(c.Name, "design column is constant", cols[j][0])
			}
		}
	}

	if len(cols) > 0 {
		m.Data = mat.NewDense(rows, len(cols), nil)
		for j, values := range cols {
			m.Data.SetCol(j, values)
		}
	}

	log.GetLoggerWithName("design").Debug("design matrix built",
		log.SamplesKey, rows,
		log.FeaturesKey, len(m.Columns),
		log.BatchesKey, len(m.BatchLevels),
		log.MissingKey, len(m.Missing),
	)
	return m, nil
}

// FromLabels builds the default design for a bare list of batch labels.
func FromLabels(batch []string) (*Matrix, error) {
	t := NewTable(len(batch))
	if err := t.AddStrings(DefaultBatchColumn, batch); err != nil {
		return nil, err
	}
	return Build(t)
}

func partition(t *Table, cfg *config) (categorical, continuous []string, err error) {
	if !cfg.explicit {
		for _, c := range t.columns {
			if c.Name == cfg.batchColumn {
				continue
			}
			if c.IsNumeric() {
				continuous = append(continuous, c.Name)
			} else {
				categorical = append(categorical, c.Name)
			}
		}
		return categorical, continuous, nil
	}

	seen := map[string]bool{cfg.batchColumn: true}
	check := func(name string) error {
		if !t.Has(name) {
			return errors.NewValidationError(name, "covariate column not found", strings.Join(t.Names(), ","))
		}
		if seen[name] {
			return errors.NewValidationError(name, "column listed more than once or is the batch column", name)
		}
		seen[name] = true
		return nil
	}
	for _, name := range cfg.categorical {
		if err := check(name); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range cfg.continuous {
		if err := check(name); err != nil {
			return nil, nil, err
		}
	}
	return cfg.categorical, cfg.continuous, nil
}

// labels renders a column as strings. Numeric labels use the shortest
// round-tripping representation.
func labels(c TableColumn) []string {
	if !c.IsNumeric() {
		return append([]string(nil), c.Strings...)
	}
	out := make([]string, len(c.Numbers))
	for i, v := range c.Numbers {
		out[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return out
}

func coerce(c TableColumn) ([]float64, []MissingValue) {
	var missing []MissingValue
	if c.IsNumeric() {
		out := append([]float64(nil), c.Numbers...)
		for i, v := range out {
			if math.IsNaN(v) {
				missing = append(missing, MissingValue{Row: i, Column: c.Name, Raw: "NaN"})
			}
		}
		return out, missing
	}

	out := make([]float64, len(c.Strings))
	for i, raw := range c.Strings {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) {
			out[i] = math.NaN()
			missing = append(missing, MissingValue{Row: i, Column: c.Name, Raw: raw})
			continue
		}
		out[i] = v
	}
	if len(missing) > 0 {
		errors.Warn(errors.NewDataConversionWarning("string", "float64",
			c.Name+": "+strconv.Itoa(len(missing))+" value(s) could not be parsed and are missing"))
	}
	return out, missing
}

func sortedLevels(values []string) []string {
	levels := slices.Clone(values)
	slices.Sort(levels)
	return slices.Compact(levels)
}

func indicatorLevels(levels []string, dropFirst bool) []string {
	if dropFirst && len(levels) > 0 {
		return levels[1:]
	}
	return levels
}

func indicatorName(source, level string) string {
	return source + "_" + level
}

func indicator(values []string, level string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == level {
			out[i] = 1
		}
	}
	return out
}

func isConstant(values []float64) bool {
	first := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(first) {
			first = v
			continue
		}
		if v != first {
			return false
		}
	}
	return true
}
