package design

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

func covariateTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable(6)
	require.NoError(t, tbl.AddStrings("site", []string{"B", "A", "C", "A", "B", "C"}))
	require.NoError(t, tbl.AddStrings("sex", []string{"M", "F", "F", "M", "F", "M"}))
	require.NoError(t, tbl.AddNumbers("age", []float64{21, 34, 45, 29, 52, 38}))
	return tbl
}

func TestBuildShapeLaw(t *testing.T) {
	tests := []struct {
		name      string
		dropFirst bool
		wantBatch int
		wantSex   int
	}{
		{name: "drop first keeps k-1 levels", dropFirst: true, wantBatch: 2, wantSex: 1},
		{name: "all levels", dropFirst: false, wantBatch: 3, wantSex: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build(covariateTable(t), WithBatchColumn("site"), WithDropFirst(tt.dropFirst))
			require.NoError(t, err)

			counts := map[Kind]int{}
			for _, c := range m.Columns {
				counts[c.Kind]++
			}
			assert.Equal(t, 1, counts[Intercept])
			assert.Equal(t, tt.wantBatch, counts[BatchIndicator])
			assert.Equal(t, tt.wantSex, counts[Categorical])
			assert.Equal(t, 1, counts[Continuous])

			r, c := m.Data.Dims()
			assert.Equal(t, 6, r)
			assert.Equal(t, len(m.Columns), c)
			assert.Equal(t, InterceptColumn, m.Columns[0].Name)
		})
	}
}

func TestBuildEncoding(t *testing.T) {
	m, err := Build(covariateTable(t), WithBatchColumn("site"))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, m.BatchLevels)
	assert.Equal(t, []int{1, 0, 2, 0, 1, 2}, m.BatchIndex())
	assert.Equal(t, []string{"intercept", "site_B", "site_C", "sex_M", "age"}, m.Names())

	// row 0: site B, sex M, age 21
	assert.Equal(t, []float64{1, 1, 0, 1, 21}, rowOf(m, 0))
	// row 1: site A (reference), sex F (reference), age 34
	assert.Equal(t, []float64{1, 0, 0, 0, 34}, rowOf(m, 1))

	cov, cols := m.Covariates()
	require.NotNil(t, cov)
	assert.Len(t, cols, 2)
	_, c := cov.Dims()
	assert.Equal(t, 2, c)

	nonBatch, nbCols := m.NonBatch()
	require.NotNil(t, nonBatch)
	assert.Equal(t, InterceptColumn, nbCols[0].Name)
	assert.Len(t, nbCols, 3)
}

func TestBuildMissingBatchColumn(t *testing.T) {
	tbl := NewTable(3)
	require.NoError(t, tbl.AddNumbers("age", []float64{20, 30, 40}))
	before := append([]float64(nil), tbl.columns[0].Numbers...)

	m, err := Build(tbl)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.True(t, errors.IsValidation(err))

	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, DefaultBatchColumn, ve.ParamName)

	assert.Equal(t, before, tbl.columns[0].Numbers)
	assert.Equal(t, []string{"age"}, tbl.Names())
}

func TestBuildCoercionRecordsMissing(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	tbl := NewTable(4)
	require.NoError(t, tbl.AddStrings("batch", []string{"a", "a", "b", "b"}))
	require.NoError(t, tbl.AddStrings("age", []string{"20", "n/a", " 31.5 ", "44"}))

	m, err := Build(tbl, WithContinuous("age"))
	require.NoError(t, err)

	require.Len(t, m.Missing, 1)
	assert.Equal(t, MissingValue{Row: 1, Column: "age", Raw: "n/a"}, m.Missing[0])

	j := m.ColumnIndex("age")
	require.GreaterOrEqual(t, j, 0)
	assert.True(t, math.IsNaN(m.Data.At(1, j)))
	assert.Equal(t, 31.5, m.Data.At(2, j))

	require.Len(t, warnings, 1)
	var dcw *errors.DataConversionWarning
	assert.True(t, errors.As(warnings[0], &dcw))

	assert.True(t, errors.IsValidation(m.CheckComplete()))
}

func TestBuildRejectsConstantColumn(t *testing.T) {
	tbl := NewTable(4)
	require.NoError(t, tbl.AddStrings("batch", []string{"a", "a", "b", "b"}))
	require.NoError(t, tbl.AddNumbers("age", []float64{30, 30, 30, 30}))

	_, err := Build(tbl)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	m, err := Build(tbl, WithAllowConstant(true))
	require.NoError(t, err)
	assert.Equal(t, 3, len(m.Columns))
}

func TestBuildOptions(t *testing.T) {
	t.Run("no intercept", func(t *testing.T) {
		m, err := Build(covariateTable(t), WithBatchColumn("site"), WithIntercept(false))
		require.NoError(t, err)
		assert.Equal(t, -1, m.ColumnIndex(InterceptColumn))
	})

	t.Run("existing intercept column is kept once", func(t *testing.T) {
		tbl := NewTable(2)
		require.NoError(t, tbl.AddStrings("batch", []string{"a", "b"}))
		require.NoError(t, tbl.AddNumbers(InterceptColumn, []float64{1, 1}))
		m, err := Build(tbl)
		require.NoError(t, err)
		assert.Equal(t, []string{"batch_b", "intercept"}, m.Names())
		assert.Equal(t, Intercept, m.Columns[1].Kind)
	})

	t.Run("explicit lists", func(t *testing.T) {
		m, err := Build(covariateTable(t), WithBatchColumn("site"), WithCategorical("sex"))
		require.NoError(t, err)
		assert.Equal(t, -1, m.ColumnIndex("age"))
	})

	t.Run("unknown covariate", func(t *testing.T) {
		_, err := Build(covariateTable(t), WithBatchColumn("site"), WithContinuous("weight"))
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("batch listed as covariate", func(t *testing.T) {
		_, err := Build(covariateTable(t), WithBatchColumn("site"), WithCategorical("site"))
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("empty batch label", func(t *testing.T) {
		tbl := NewTable(2)
		require.NoError(t, tbl.AddStrings("batch", []string{"a", " "}))
		_, err := Build(tbl)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestEncodeAcrossSubsets(t *testing.T) {
	learned, err := Build(covariateTable(t), WithBatchColumn("site"))
	require.NoError(t, err)
	_, cols := learned.Covariates()

	// a later design with only one site and only male subjects
	sub := NewTable(2)
	require.NoError(t, sub.AddStrings("site", []string{"B", "B"}))
	require.NoError(t, sub.AddStrings("sex", []string{"M", "M"}))
	require.NoError(t, sub.AddNumbers("age", []float64{60, 61}))
	later, err := Build(sub, WithBatchColumn("site"), WithAllowConstant(true))
	require.NoError(t, err)

	enc, err := later.Encode(cols, learned.Factors)
	require.NoError(t, err)
	assert.Equal(t, 1.0, enc.At(0, 0))
	assert.Equal(t, 61.0, enc.At(1, 1))

	bad := NewTable(1)
	require.NoError(t, bad.AddStrings("site", []string{"B"}))
	require.NoError(t, bad.AddStrings("sex", []string{"X"}))
	require.NoError(t, bad.AddNumbers("age", []float64{60}))
	badDesign, err := Build(bad, WithBatchColumn("site"))
	require.NoError(t, err)
	_, err = badDesign.Encode(cols, learned.Factors)
	assert.True(t, errors.IsValidation(err))
}

func TestFromLabels(t *testing.T) {
	m, err := FromLabels([]string{"s1", "s2", "s1"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchColumn, m.BatchColumn)
	assert.Equal(t, []string{"intercept", "batch_s2"}, m.Names())
}

func TestTableValidation(t *testing.T) {
	tbl := NewTable(2)
	assert.True(t, errors.IsValidation(tbl.AddNumbers("x", []float64{1})))
	require.NoError(t, tbl.AddNumbers("x", []float64{1, 2}))
	assert.True(t, errors.IsValidation(tbl.AddStrings("x", []string{"a", "b"})))
	assert.True(t, errors.IsValidation(tbl.AddStrings("", []string{"a", "b"})))
}

func rowOf(m *Matrix, i int) []float64 {
	_, c := m.Data.Dims()
	out := make([]float64, c)
	for j := range out {
		out[j] = m.Data.At(i, j)
	}
	return out
}
