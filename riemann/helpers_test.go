package riemann

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/design"
)

// randomSPD returns scale * (A Aᵀ / k + 0.5 I) for a random d×k matrix A.
func randomSPD(rng *rand.Rand, dim int, scale float64) *mat.SymDense {
	k := 2 * dim
	a := mat.NewDense(dim, k, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j < k; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	var out mat.SymDense
	out.SymOuterK(1/float64(k), a)
	for i := 0; i < dim; i++ {
		out.SetSym(i, i, out.At(i, i)+0.5)
	}
	out.ScaleSym(scale, &out)
	return &out
}

// wideSpectrumSPD returns scale * Q diag(10^u) Qᵀ with u uniform in
// [loExp, hiExp] and Q a random orthogonal matrix.
func wideSpectrumSPD(rng *rand.Rand, dim int, loExp, hiExp, scale float64) *mat.SymDense {
	a := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	var q mat.Dense
	qr.QTo(&q)

	diag := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		diag.SetSym(i, i, scale*math.Pow(10, loExp+(hiExp-loExp)*rng.Float64()))
	}
	return congruence(&q, diag)
}

type siteSpec struct {
	name  string
	n     int
	scale float64
}

func spdSet(t *testing.T, seed uint64, dim int, sites ...siteSpec) ([]mat.Matrix, *design.Matrix) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed*7+3))
	var set []mat.Matrix
	var labels []string
	for _, s := range sites {
		for i := 0; i < s.n; i++ {
			set = append(set, randomSPD(rng, dim, s.scale))
			labels = append(labels, s.name)
		}
	}
	d, err := design.FromLabels(labels)
	require.NoError(t, err)
	return set, d
}

func relErr(want, got mat.Matrix) float64 {
	var diff mat.Dense
	diff.Sub(want, got)
	return mat.Norm(&diff, 2) / mat.Norm(want, 2)
}

func minEigen(t *testing.T, c *mat.SymDense) float64 {
	t.Helper()
	var eig mat.EigenSym
	require.True(t, eig.Factorize(c, false))
	vals := eig.Values(nil)
	lo := vals[0]
	for _, v := range vals {
		lo = min(lo, v)
	}
	return lo
}
