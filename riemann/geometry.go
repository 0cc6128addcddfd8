// Package riemann harmonizes symmetric positive-definite matrices by mapping
// them into a flat tangent space around their geodesic mean, running the
// Empirical-Bayes model there, and mapping the results back.
//
// Manifold operations sit behind the Geometry interface so the vector and
// matrix paths share one harmonization implementation.
package riemann

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
	"github.com/YuminosukeSato/eegharmony/pkg/log"
)

// Geometry is the manifold capability the adapter depends on.
type Geometry interface {
	// Mean returns the geodesic (affine-invariant) mean of the set.
	Mean(set []*mat.SymDense) (*mat.SymDense, error)
	// Log returns the matrix logarithm of an SPD matrix.
	Log(c *mat.SymDense) (*mat.SymDense, error)
	// Exp returns the matrix exponential of a symmetric matrix.
	Exp(s *mat.SymDense) (*mat.SymDense, error)
}

const (
	defaultMeanTol     = 1e-8
	defaultMeanMaxIter = 50
)

// EigenGeometry implements Geometry with symmetric eigendecompositions.
type EigenGeometry struct {
	// Tol bounds the Frobenius norm of the mean tangent step at convergence.
	Tol float64
	// MaxIter caps the fixed-point iterations of Mean.
	MaxIter int
	// Workers bounds the goroutines used per iteration; 0 means GOMAXPROCS.
	Workers int
}

var _ Geometry = (*EigenGeometry)(nil)

// NewEigenGeometry returns an EigenGeometry with default tolerances.
func NewEigenGeometry() *EigenGeometry {
	return &EigenGeometry{Tol: defaultMeanTol, MaxIter: defaultMeanMaxIter}
}

// Log returns V diag(log λ) Vᵀ. Non-positive eigenvalues are a NumericInstability.
func (g *EigenGeometry) Log(c *mat.SymDense) (*mat.SymDense, error) {
	return spectral("log", c, func(v float64) (float64, bool) {
		if v <= 0 {
			return 0, false
		}
		return math.Log(v), true
	})
}

// Exp returns V diag(exp λ) Vᵀ.
func (g *EigenGeometry) Exp(s *mat.SymDense) (*mat.SymDense, error) {
	return spectral("exp", s, func(v float64) (float64, bool) {
		return math.Exp(v), true
	})
}

// Sqrt returns the SPD square root of c.
func Sqrt(c *mat.SymDense) (*mat.SymDense, error) {
	return spectral("sqrt", c, func(v float64) (float64, bool) {
		if v <= 0 {
			return 0, false
		}
		return math.Sqrt(v), true
	})
}

// InvSqrt returns c^(-1/2).
func InvSqrt(c *mat.SymDense) (*mat.SymDense, error) {
	return spectral("invsqrt", c, func(v float64) (float64, bool) {
		if v <= 0 {
			return 0, false
		}
		return 1 / math.Sqrt(v), true
	})
}

// Mean computes the affine-invariant geodesic mean by the damped fixed-point
// iteration
//
//	C ← C^½ exp( ν (1/n) Σ log(C^-½ Cᵢ C^-½) ) C^½
//
// starting from the arithmetic mean with ν = 1. The step size ν shrinks by
// 0.95 while the mean tangent norm falls and halves when it grows. Iteration
// stops once the Frobenius norm of the mean tangent or ν drops to Tol. When
// MaxIter is reached first, a ConvergenceWarning is emitted and the last
// iterate is returned.
func (g *EigenGeometry) Mean(set []*mat.SymDense) (*mat.SymDense, error) {
	if len(set) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "riemann.Mean")
	}
	tol, maxIter := g.Tol, g.MaxIter
	if tol <= 0 {
		tol = defaultMeanTol
	}
	if maxIter <= 0 {
		maxIter = defaultMeanMaxIter
	}
	dim := set[0].SymmetricDim()
	n := float64(len(set))

	c := mat.NewSymDense(dim, nil)
	for _, ci := range set {
		c.AddSym(c, ci)
	}
	c.ScaleSym(1/n, c)

	logs := make([]*mat.SymDense, len(set))
	nu, best, crit := 1.0, math.Inf(1), math.Inf(1)
	for it := 1; it <= maxIter; it++ {
		half, err := Sqrt(c)
		if err != nil {
			return nil, err
		}
		invHalf, err := InvSqrt(c)
		if err != nil {
			return nil, err
		}

		err = forEach(len(set), g.Workers, func(i int) error {
			l, err := g.Log(congruence(invHalf, set[i]))
			if err != nil {
				return errors.Wrapf(err, "matrix %d", i)
			}
			logs[i] = l
			return nil
		})
		if err != nil {
			return nil, err
		}

		tangent := mat.NewSymDense(dim, nil)
		for _, l := range logs {
			tangent.AddSym(tangent, l)
		}
		tangent.ScaleSym(1/n, tangent)
		crit = mat.Norm(tangent, 2)
		if math.IsNaN(crit) || math.IsInf(crit, 0) {
			return nil, errors.NewNumericalInstabilityErrorWithContext("geodesic_mean", []float64{crit}, it,
				map[string]interface{}{"step_size": nu, "matrices": len(set)})
		}

		tangent.ScaleSym(nu, tangent)
		e, err := g.Exp(tangent)
		if err != nil {
			return nil, err
		}
		c = congruence(half, e)

		if h := nu * crit; h < best {
			nu *= 0.95
			best = h
		} else {
			nu *= 0.5
		}

		if crit <= tol || nu <= tol {
			log.GetLoggerWithName("riemann").Debug("geodesic mean converged",
				log.OperationKey, log.OperationMean,
				log.IterationKey, it,
				log.ChangeKey, crit,
			)
			return checkMean(c, it)
		}
	}

	errors.Warn(errors.NewConvergenceWarning("GeodesicMean", maxIter, "mean tangent norm above tolerance"))
	log.GetLoggerWithName("riemann").Debug("geodesic mean stopped at iteration cap",
		log.OperationKey, log.OperationMean,
		log.IterationKey, maxIter,
		log.ChangeKey, crit,
		"step_size", nu,
	)
	return checkMean(c, maxIter)
}

// checkMean rejects a mean estimate that is not finite or not SPD.
func checkMean(c *mat.SymDense, it int) (*mat.SymDense, error) {
	dim := c.SymmetricDim()
	var bad []float64
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			if v := c.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				bad = append(bad, v)
			}
		}
	}
	if len(bad) > 0 || !IsSPD(c) {
		return nil, errors.NewNumericalInstabilityErrorWithContext("geodesic_mean", bad, it,
			map[string]interface{}{"spd": len(bad) == 0})
	}
	return c, nil
}

// congruence returns the symmetrized product A S Aᵀ.
func congruence(a mat.Matrix, s mat.Symmetric) *mat.SymDense {
	var tmp, out mat.Dense
	tmp.Mul(a, s)
	out.Mul(&tmp, a.T())
	return Symmetrize(&out)
}

// spectral applies f to the eigenvalues of a symmetric matrix and
// reassembles V diag(f(λ)) Vᵀ.
func spectral(op string, c *mat.SymDense, f func(float64) (float64, bool)) (out *mat.SymDense, err error) {
	defer errors.Recover(&err, "riemann."+op)

	var eig mat.EigenSym
	if ok := eig.Factorize(c, true); !ok {
		return nil, errors.NewNumericalInstabilityError("eigendecomposition", nil, 0)
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	fv := make([]float64, len(values))
	for k, v := range values {
		y, ok := f(v)
		if !ok {
			return nil, errors.NewNumericalInstabilityErrorWithContext("matrix_"+op, values, 0,
				map[string]interface{}{"reason": "matrix is not positive definite"})
		}
		fv[k] = y
	}

	n := len(values)
	out = mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			for k := 0; k < n; k++ {
				s += vecs.At(i, k) * fv[k] * vecs.At(j, k)
			}
			out.SetSym(i, j, s)
		}
	}
	return out, nil
}
