package harmonize

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// TableResult is the outcome of HarmonizeTable.
type TableResult struct {
	// Table is a copy of the input with the feature columns harmonized.
	Table *design.Table
	Model *Model
	// Design is the design matrix the model was learned on.
	Design *design.Matrix
}

// HarmonizeTable learns and applies a harmonization over named columns of a
// mixed feature/covariate table. String covariates are treated as
// categorical, numeric ones as continuous. The input table is not modified.
func HarmonizeTable(t *design.Table, features []string, batchCol string, covariates []string, opts ...Option) (*TableResult, error) {
	X, err := FeatureMatrix(t, features)
	if err != nil {
		return nil, err
	}
	d, err := design.Build(t, CovariateOptions(t, batchCol, covariates)...)
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithFeatureNames(features...)}, opts...)
	out, m, err := FitTransform(X, d, opts...)
	if err != nil {
		return nil, err
	}
	harmonized, err := ReplaceFeatures(t, features, out)
	if err != nil {
		return nil, err
	}
	return &TableResult{Table: harmonized, Model: m, Design: d}, nil
}

// CovariateOptions returns design options declaring batchCol as the batch
// column and typing each covariate by its storage.
func CovariateOptions(t *design.Table, batchCol string, covariates []string) []design.Option {
	// explicit lists only, so feature columns never become covariates
	opts := []design.Option{design.WithBatchColumn(batchCol), design.WithCategorical()}
	for _, name := range covariates {
		c, ok := t.Column(name)
		if ok && c.IsNumeric() {
			opts = append(opts, design.WithContinuous(name))
		} else {
			opts = append(opts, design.WithCategorical(name))
		}
	}
	return opts
}

// FeatureMatrix extracts numeric feature columns into a matrix.
func FeatureMatrix(t *design.Table, features []string) (*mat.Dense, error) {
	if len(features) == 0 {
		return nil, errors.NewValidationError("features", "at least one feature column is required", nil)
	}
	if t == nil || t.Rows() == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "harmonize: feature table")
	}
	X := mat.NewDense(t.Rows(), len(features), nil)
	for j, name := range features {
		c, ok := t.Column(name)
		if !ok {
			return nil, errors.NewValidationError(name, "feature column not found", nil)
		}
		if !c.IsNumeric() {
			return nil, errors.NewValidationError(name, "feature column must be numeric", nil)
		}
		X.SetCol(j, c.Numbers)
	}
	return X, nil
}

// ReplaceFeatures returns a copy of t whose feature columns hold the columns
// of X in order.
func ReplaceFeatures(t *design.Table, features []string, X mat.Matrix) (*design.Table, error) {
	r, c := X.Dims()
	if c != len(features) {
		return nil, errors.NewDimensionError("harmonize.ReplaceFeatures", len(features), c, 1)
	}
	if r != t.Rows() {
		return nil, errors.NewDimensionError("harmonize.ReplaceFeatures", t.Rows(), r, 0)
	}
	index := make(map[string]int, len(features))
	for j, name := range features {
		index[name] = j
	}

	out := design.NewTable(t.Rows())
	for _, name := range t.Names() {
		src, _ := t.Column(name)
		var err error
		if j, ok := index[name]; ok {
			err = out.AddNumbers(name, mat.Col(nil, j, X))
		} else if src.IsNumeric() {
			err = out.AddNumbers(name, src.Numbers)
		} else {
			err = out.AddStrings(name, src.Strings)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
