package riemann

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// DefaultRegularization is the diagonal loading applied after every transform.
const DefaultRegularization = 1e-9

// symmetryTol is the relative asymmetry accepted on input.
const symmetryTol = 1e-8

// Symmetrize returns (A + Aᵀ)/2 of a square matrix.
func Symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return out
}

// Regularize symmetrizes c and adds eps to its diagonal. c is not modified.
func Regularize(c mat.Matrix, eps float64) *mat.SymDense {
	out := Symmetrize(c)
	n := out.SymmetricDim()
	for i := 0; i < n; i++ {
		out.SetSym(i, i, out.At(i, i)+eps)
	}
	return out
}

// IsSPD reports whether c admits a Cholesky factorization.
func IsSPD(c mat.Symmetric) bool {
	var chol mat.Cholesky
	return chol.Factorize(c)
}

// Validate checks that every matrix is square, finite, symmetric within
// tolerance, of one shared dimension, and positive definite after
// regularization. It returns regularized copies; the inputs are not modified.
// Shape problems are ValidationErrors, loss of definiteness is a
// NumericInstability. Both name the offending matrix index.
func Validate(set []mat.Matrix, eps float64) ([]*mat.SymDense, error) {
	if len(set) == 0 {
		return nil, errors.NewValidationError("matrices", "SPD set must not be empty", 0)
	}
	dim, _ := set[0].Dims()
	out := make([]*mat.SymDense, len(set))
	for idx, c := range set {
		if c == nil {
			return nil, errors.NewValidationError("matrices", "nil matrix at index "+strconv.Itoa(idx), idx)
		}
		r, k := c.Dims()
		if r != k {
			return nil, errors.NewValidationError("matrices", "matrix "+strconv.Itoa(idx)+" is not square", idx)
		}
		if r != dim {
			return nil, errors.Wrapf(errors.NewDimensionError("riemann.Validate", dim, r, 0), "matrix %d", idx)
		}
		for i := 0; i < r; i++ {
			for j := i; j < r; j++ {
				a, b := c.At(i, j), c.At(j, i)
				if math.IsNaN(a) || math.IsInf(a, 0) || math.IsNaN(b) || math.IsInf(b, 0) {
					return nil, errors.NewValidationError("matrices", "matrix "+strconv.Itoa(idx)+" has non-finite entries", idx)
				}
				if math.Abs(a-b) > symmetryTol*math.Max(1, math.Max(math.Abs(a), math.Abs(b))) {
					return nil, errors.NewValidationError("matrices", "matrix "+strconv.Itoa(idx)+" is not symmetric", idx)
				}
			}
		}
		reg := Regularize(c, eps)
		if !IsSPD(reg) {
			return nil, errors.NewNumericalInstabilityErrorWithContext("spd_validation", nil, 0,
				map[string]interface{}{"matrix_index": idx, "reason": "not positive definite after regularization"})
		}
		out[idx] = reg
	}
	return out, nil
}
