package errors

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Learn",
			kind:    "singular design",
			err:     fmt.Errorf("test error"),
			wantMsg: "eegharmony: Learn: singular design: test error",
		},
		{
			name:    "without original error",
			op:      "Apply",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "eegharmony: Apply: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			assert.Contains(t, formatted, "errors_test.go")

			var modelErr *ModelError
			assert.True(t, As(err, &modelErr))
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Apply", 4, 3, 1)

	want := "eegharmony: Apply: dimension mismatch on axis 1 (features). Expected 4, got 3"
	assert.Equal(t, want, err.Error())

	var dimErr *DimensionError
	require.True(t, As(err, &dimErr))
	assert.Equal(t, 4, dimErr.Expected)
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("site", "unknown batch level", "siteC")

	assert.Equal(t, "eegharmony: validation failed for 'site': unknown batch level (got: siteC)", err.Error())
	assert.True(t, IsValidation(err))
	assert.False(t, IsUnavailable(err))
	assert.False(t, IsNumericInstability(err))

	wrapped := Wrap(err, "harmonize.Apply")
	assert.True(t, IsValidation(wrapped))
}

func TestNewUnavailableCapabilityError(t *testing.T) {
	err := NewUnavailableCapabilityError("riemannian-geometry", "no geometry backend configured")

	assert.True(t, IsUnavailable(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "riemannian-geometry")
}

func TestNumericalInstabilityError(t *testing.T) {
	err := NewNumericalInstabilityErrorWithContext("eb_shrinkage", []float64{1, 2, 3, 4, 5, 6}, 1000,
		map[string]interface{}{"batch": "siteA"})

	assert.True(t, IsNumericInstability(err))
	msg := err.Error()
	assert.Contains(t, msg, "eb_shrinkage")
	assert.Contains(t, msg, "iteration 1000")
	assert.Contains(t, msg, "...")
	assert.Contains(t, msg, "siteA")
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("Harmonizer", "Transform")

	want := "eegharmony: Harmonizer: this model is not fitted yet. Call Fit() before using Transform()"
	assert.Equal(t, want, err.Error())

	var notFittedErr *NotFittedError
	assert.True(t, As(err, &notFittedErr))
}

func TestWarnings(t *testing.T) {
	conv := NewConvergenceWarning("EmpiricalBayes", 1000, "relative change 0.01")
	assert.Equal(t, "EmpiricalBayes failed to converge after 1000 iterations: relative change 0.01", conv.Error())

	fallback := NewFallbackPriorWarning("siteB", 1, "fewer than two observations")
	assert.Contains(t, fallback.Error(), "siteB")
	assert.Contains(t, fallback.Error(), "n=1")

	conversion := NewDataConversionWarning("string", "float64", "row 3: \"n/a\"")
	assert.Contains(t, conversion.Error(), "float64")
}

func TestWarnRoutesToZerologFunc(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	SetZerologWarnFunc(func(w error) {
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			logger.Warn().EmbedObject(m).Msg(w.Error())
			return
		}
		logger.Warn().Msg(w.Error())
	})
	defer SetZerologWarnFunc(nil)

	Warn(NewFallbackPriorWarning("siteB", 1, "fewer than two observations"))

	out := buf.String()
	assert.Contains(t, out, `"type":"FallbackPriorWarning"`)
	assert.Contains(t, out, `"batch":"siteB"`)
}

func TestWarnUsesHandlerWithoutZerolog(t *testing.T) {
	var got []string
	SetWarningHandler(func(w error) { got = append(got, w.Error()) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewConvergenceWarning("GeodesicMean", 50, ""))
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "GeodesicMean failed to converge"))
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d rows, got %d", "Learn", 10, 0)

	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.Contains(t, wrapped.Error(), "in Learn: expected 10 rows, got 0")
}

func TestNumericalHelpers(t *testing.T) {
	assert.NoError(t, CheckNumericalStability("op", []float64{1, 2}, 0))
	assert.Error(t, CheckNumericalStability("op", []float64{1, math.NaN()}, 0))
	assert.Error(t, CheckScalar("op", math.Inf(1), 3))

	m := [][]float64{{1, 2}, {3, math.Inf(-1)}}
	err := CheckMatrix("op", atFunc(func(i, j int) float64 { return m[i][j] }), 2, 2, 0)
	require.Error(t, err)
	assert.True(t, IsNumericInstability(err))

	assert.Equal(t, 0.0, SafeDivide(1, 0))
	assert.Equal(t, 0.5, SafeDivide(1, 2))
	assert.Equal(t, 1.0, ClipValue(3, 0, 1))
	assert.Equal(t, 0.0, ClipValue(-3, 0, 1))
	assert.True(t, IsNearZero(1e-13, Epsilon))
}

type atFunc func(i, j int) float64

func (f atFunc) At(i, j int) float64 { return f(i, j) }
