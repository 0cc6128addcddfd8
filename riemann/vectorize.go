package riemann

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// VectorLen returns the tangent vector length d(d+1)/2 for dimension d.
func VectorLen(dim int) int {
	return dim * (dim + 1) / 2
}

// DimFromVectorLen inverts VectorLen, reporting false when n is not triangular.
func DimFromVectorLen(n int) (int, bool) {
	d := int((math.Sqrt(float64(8*n+1)) - 1) / 2)
	return d, VectorLen(d) == n
}

// Vectorize flattens the upper triangle (diagonal included, row-major) of
// each matrix into one row of the result.
func Vectorize(set []*mat.SymDense) *mat.Dense {
	if len(set) == 0 {
		return nil
	}
	dim := set[0].SymmetricDim()
	out := mat.NewDense(len(set), VectorLen(dim), nil)
	for r, s := range set {
		k := 0
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				out.Set(r, k, s.At(i, j))
				k++
			}
		}
	}
	return out
}

// Unvectorize rebuilds a symmetric matrix from its upper-triangle vector.
func Unvectorize(v []float64, dim int) (*mat.SymDense, error) {
	if len(v) != VectorLen(dim) {
		return nil, errors.NewDimensionError("riemann.Unvectorize", VectorLen(dim), len(v), 0)
	}
	out := mat.NewSymDense(dim, nil)
	k := 0
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			out.SetSym(i, j, v[k])
			k++
		}
	}
	return out, nil
}
