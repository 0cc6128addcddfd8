package metrics

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

func TestSiteVarianceRatio(t *testing.T) {
	tests := []struct {
		name    string
		X       *mat.Dense
		batch   []string
		want    float64
		delta   float64
		wantErr bool
	}{
		{
			name:  "identical batch means",
			X:     mat.NewDense(4, 1, []float64{1.0, 1.0, 1.0, 1.0}),
			batch: []string{"a", "a", "b", "b"},
			want:  0.0,
		},
		{
			name:  "equal means with spread",
			X:     mat.NewDense(4, 1, []float64{0, 2, 2, 0}),
			batch: []string{"a", "a", "b", "b"},
			want:  0.0,
			delta: 1e-12,
		},
		{
			name:  "no within-batch spread",
			X:     mat.NewDense(4, 1, []float64{0, 0, 5, 5}),
			batch: []string{"a", "a", "b", "b"},
			want:  1.0,
			delta: 1e-9,
		},
		{
			name: "averaged over features",
			X: mat.NewDense(4, 2, []float64{
				0, 1,
				0, 1,
				5, 1,
				5, 1,
			}),
			batch: []string{"a", "a", "b", "b"},
			want:  0.5,
			delta: 1e-9,
		},
		{
			name: "half of variance between batches",
			// batch means -1, 1; within deviations ±1 → between 1, total 2
			X:     mat.NewDense(4, 1, []float64{-2, 0, 0, 2}),
			batch: []string{"a", "a", "b", "b"},
			want:  0.5,
			delta: 1e-9,
		},
		{
			name:    "label count mismatch",
			X:       mat.NewDense(2, 1, []float64{1, 2}),
			batch:   []string{"a"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SiteVarianceRatio(tt.X, tt.batch)
			if tt.wantErr {
				require.Error(t, err)
				var dimErr *errors.DimensionError
				assert.True(t, errors.As(err, &dimErr))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.delta)
		})
	}
}

func TestSiteVarianceRatioBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 20; trial++ {
		n := 3 + rng.IntN(30)
		p := 1 + rng.IntN(4)
		X := mat.NewDense(n, p, nil)
		batch := make([]string, n)
		for i := 0; i < n; i++ {
			batch[i] = string(rune('a' + rng.IntN(3)))
			for j := 0; j < p; j++ {
				X.Set(i, j, rng.NormFloat64()*10+float64(rng.IntN(3)))
			}
		}
		ratios, err := SiteVarianceRatios(X, batch)
		require.NoError(t, err)
		for _, r := range ratios {
			assert.GreaterOrEqual(t, r, 0.0)
			assert.LessOrEqual(t, r, 1.0)
		}
		mean, err := SiteVarianceRatio(X, batch)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, mean, 0.0)
		assert.LessOrEqual(t, mean, 1.0)
	}
}

func TestSiteVarianceRatioEmpty(t *testing.T) {
	_, err := SiteVarianceRatios(nil, nil)
	require.Error(t, err)
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))
}

func TestPreservationDelta(t *testing.T) {
	age := []float64{20, 30, 40, 50, 60}
	pre := make([]float64, len(age))
	same := make([]float64, len(age))
	flat := make([]float64, len(age))
	for i, a := range age {
		pre[i] = 1 + 0.1*a
		same[i] = 4 + 0.1*a // intercept shift only
		flat[i] = 3
	}

	d, err := PreservationDelta(pre, same, age)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-10)

	d, err = PreservationDelta(pre, flat, age)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, d, 1e-10)
}

func TestPreservationDeltaErrors(t *testing.T) {
	_, err := PreservationDelta([]float64{1, 2}, []float64{1, 2}, []float64{5, 5})
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))

	_, err = PreservationDelta([]float64{1, 2, 3}, []float64{1, 2}, []float64{1, 2, 3})
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	_, err = PreservationDelta([]float64{1}, []float64{1}, []float64{1})
	assert.Error(t, err)
}

func TestPreservationDeltas(t *testing.T) {
	cov := []float64{1, 2, 3, 4}
	pre := mat.NewDense(4, 2, []float64{
		2, 0,
		4, 0,
		6, 0,
		8, 0,
	})
	post := mat.NewDense(4, 2, []float64{
		3, 1,
		5, 2,
		7, 3,
		9, 4,
	})
	deltas, err := PreservationDeltas(pre, post, cov)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1}, deltas, 1e-10)

	_, err = PreservationDeltas(pre, mat.NewDense(4, 1, nil), cov)
	assert.Error(t, err)
}

func TestChangeMetrics(t *testing.T) {
	pre := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	post := mat.NewDense(2, 2, []float64{1.5, 2.5, 2.5, 3.5})

	mae, err := MeanAbsoluteChange(pre, post)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mae, 1e-12)

	rms, err := RMSChange(pre, post)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rms, 1e-12)

	_, err = RMSChange(pre, mat.NewDense(1, 2, nil))
	assert.Error(t, err)
}

func TestSiteVarianceRatiosZeroVarianceWarns(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	X := mat.NewDense(4, 2, []float64{
		3, 0,
		3, 0,
		3, 5,
		3, 5,
	})
	ratios, err := SiteVarianceRatios(X, []string{"a", "a", "b", "b"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, ratios[0])
	assert.InDelta(t, 1.0, ratios[1], 1e-9)

	require.Len(t, warnings, 1)
	var undefined *errors.UndefinedMetricWarning
	assert.True(t, errors.As(warnings[0], &undefined))
}
