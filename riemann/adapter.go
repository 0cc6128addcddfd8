package riemann

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/harmonize"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
	"github.com/YuminosukeSato/eegharmony/pkg/log"
)

// CapabilityGeometry names the optional geometry backend in
// UnavailableCapabilityErrors.
const CapabilityGeometry = "riemannian-geometry"

// Option configures an Adapter.
type Option func(*Adapter)

// WithRegularization sets the diagonal loading applied after every transform.
func WithRegularization(eps float64) Option {
	return func(a *Adapter) {
		if eps > 0 {
			a.eps = eps
		}
	}
}

// WithWorkers bounds the goroutines used for per-matrix maps.
func WithWorkers(n int) Option {
	return func(a *Adapter) {
		a.workers = n
	}
}

// WithHarmonizeOptions passes options through to harmonize.Learn.
func WithHarmonizeOptions(opts ...harmonize.Option) Option {
	return func(a *Adapter) {
		a.harmonizeOpts = append(a.harmonizeOpts, opts...)
	}
}

// Adapter harmonizes SPD matrices in the tangent space at their geodesic mean.
type Adapter struct {
	geom          Geometry
	eps           float64
	workers       int
	harmonizeOpts []harmonize.Option
}

// NewAdapter returns an adapter backed by geom. A nil geometry is an
// UnavailableCapabilityError so callers can skip the matrix path.
func NewAdapter(geom Geometry, opts ...Option) (*Adapter, error) {
	if geom == nil {
		return nil, errors.NewUnavailableCapabilityError(CapabilityGeometry, "no geometry backend configured")
	}
	a := &Adapter{geom: geom, eps: DefaultRegularization}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) ready() error {
	if a == nil || a.geom == nil {
		return errors.NewUnavailableCapabilityError(CapabilityGeometry, "adapter has no geometry backend")
	}
	return nil
}

// Learn computes the reference mean of set, maps every matrix into the
// tangent space there and learns an Empirical-Bayes model on the tangent
// vectors. A design with a single batch level is a ValidationError.
func (a *Adapter) Learn(set []mat.Matrix, d *design.Matrix) (*Model, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("riemann")
	start := time.Now()

	spd, err := Validate(set, a.eps)
	if err != nil {
		return nil, err
	}
	if err := checkDesign(len(spd), d); err != nil {
		return nil, err
	}
	if len(d.BatchLevels) < 2 {
		return nil, errors.NewValidationError(d.BatchColumn,
			"fewer than two batch levels; nothing to harmonize (use DiagnosticSplit for an explicit diagnostic split)",
			d.BatchLevels)
	}
	dim := spd[0].SymmetricDim()

	logger.Info("learning riemannian harmonization",
		log.OperationKey, log.OperationLearn,
		log.SamplesKey, len(spd),
		log.DimKey, dim,
		log.BatchesKey, len(d.BatchLevels),
	)

	mean, err := a.geom.Mean(spd)
	if err != nil {
		return nil, errors.Wrap(err, "reference mean")
	}
	ref, err := newReference(Regularize(mean, a.eps))
	if err != nil {
		return nil, err
	}

	tangent, err := a.toTangent(spd, ref)
	if err != nil {
		return nil, err
	}
	hm, err := harmonize.Learn(tangent, d, a.harmonizeOpts...)
	if err != nil {
		return nil, err
	}

	logger.Info("riemannian harmonization learned",
		log.OperationKey, log.OperationLearn,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &Model{ref: ref, harmonization: hm}, nil
}

// Apply harmonizes set with a learned model and returns new regularized SPD
// matrices in input order.
func (a *Adapter) Apply(set []mat.Matrix, d *design.Matrix, m *Model) ([]*mat.SymDense, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if m == nil || m.ref == nil {
		return nil, errors.NewValidationError("model", "riemannian model is required", nil)
	}
	spd, err := Validate(set, a.eps)
	if err != nil {
		return nil, err
	}
	if err := checkDesign(len(spd), d); err != nil {
		return nil, err
	}
	if dim := spd[0].SymmetricDim(); dim != m.Dim() {
		return nil, errors.NewDimensionError("riemann.Apply", m.Dim(), dim, 1)
	}

	tangent, err := a.toTangent(spd, m.ref)
	if err != nil {
		return nil, err
	}
	harmonized, err := harmonize.Apply(tangent, d, m.harmonization)
	if err != nil {
		return nil, err
	}

	out := make([]*mat.SymDense, len(spd))
	err = forEach(len(spd), a.workers, func(i int) error {
		y, err := Unvectorize(harmonized.RawRowView(i), m.Dim())
		if err != nil {
			return err
		}
		z, err := a.geom.Exp(y)
		if err != nil {
			return errors.Wrapf(err, "matrix %d", i)
		}
		out[i] = Regularize(congruence(m.ref.l, z), a.eps)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.GetLoggerWithName("riemann").Debug("riemannian harmonization applied",
		log.OperationKey, log.OperationApply,
		log.SamplesKey, len(out),
	)
	return out, nil
}

// FitTransform runs Learn and Apply on the same set.
func (a *Adapter) FitTransform(set []mat.Matrix, d *design.Matrix) ([]*mat.SymDense, *Model, error) {
	m, err := a.Learn(set, d)
	if err != nil {
		return nil, nil, err
	}
	out, err := a.Apply(set, d, m)
	if err != nil {
		return nil, nil, err
	}
	return out, m, nil
}

// Tangent returns the tangent vectors of set at the model's reference point,
// one row per matrix. It is what Learn hands to the harmonization model.
func (a *Adapter) Tangent(set []mat.Matrix, m *Model) (*mat.Dense, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if m == nil || m.ref == nil {
		return nil, errors.NewValidationError("model", "riemannian model is required", nil)
	}
	spd, err := Validate(set, a.eps)
	if err != nil {
		return nil, err
	}
	return a.toTangent(spd, m.ref)
}

// toTangent whitens every matrix with the reference Cholesky factor,
// Zᵢ = L⁻¹ Cᵢ L⁻ᵀ, takes the matrix logarithm and flattens the result.
func (a *Adapter) toTangent(spd []*mat.SymDense, ref *reference) (*mat.Dense, error) {
	logs := make([]*mat.SymDense, len(spd))
	err := forEach(len(spd), a.workers, func(i int) error {
		y, err := a.geom.Log(Regularize(congruence(ref.lInv, spd[i]), a.eps))
		if err != nil {
			return errors.Wrapf(err, "matrix %d", i)
		}
		logs[i] = y
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Vectorize(logs), nil
}

func checkDesign(n int, d *design.Matrix) error {
	if d == nil {
		return errors.NewValidationError("design", "design matrix is required", nil)
	}
	if d.Rows() != n {
		return errors.NewDimensionError("riemann", n, d.Rows(), 0)
	}
	return nil
}

// DiagnosticSplit returns n alternating labels "diagnostic-A", "diagnostic-B".
//
// It exists for inspecting single-site data only. Harmonizing against these
// labels does not remove any real site effect.
func DiagnosticSplit(n int) []string {
	out := make([]string, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = "diagnostic-A"
		} else {
			out[i] = "diagnostic-B"
		}
	}
	return out
}

// AsMatrices widens a slice of symmetric matrices for Learn and Apply.
func AsMatrices(set []*mat.SymDense) []mat.Matrix {
	out := make([]mat.Matrix, len(set))
	for i, s := range set {
		out[i] = s
	}
	return out
}
