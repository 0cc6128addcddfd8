package riemann

import (
	"encoding/json"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/core/model"
	"github.com/YuminosukeSato/eegharmony/harmonize"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

const (
	// ModelType identifies Riemannian models inside an artifact envelope.
	ModelType = "RiemannianHarmonizer"
	// ModelVersion is the payload format version.
	ModelVersion = "1.0.0"
)

// reference holds the tangent-space base point and its Cholesky factors.
type reference struct {
	c    *mat.SymDense
	l    *mat.TriDense
	lInv *mat.TriDense
}

func newReference(c *mat.SymDense) (*reference, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(c); !ok {
		return nil, errors.NewNumericalInstabilityErrorWithContext("reference_cholesky", nil, 0,
			map[string]interface{}{"reason": "reference mean is not positive definite"})
	}
	var l, lInv mat.TriDense
	chol.LTo(&l)
	if err := lInv.InverseTri(&l); err != nil {
		return nil, errors.NewNumericalInstabilityErrorWithContext("reference_inverse", nil, 0,
			map[string]interface{}{"reason": err.Error()})
	}
	ref := mat.NewSymDense(c.SymmetricDim(), nil)
	ref.CopySym(c)
	return &reference{c: ref, l: &l, lInv: &lInv}, nil
}

// Model is a learned Riemannian harmonization: the reference point plus the
// Empirical-Bayes model over tangent vectors. It is immutable.
type Model struct {
	ref           *reference
	harmonization *harmonize.Model
}

// Dim returns the matrix dimension the model was learned on.
func (m *Model) Dim() int {
	return m.ref.c.SymmetricDim()
}

// Reference returns a copy of the geodesic mean used as tangent base point.
func (m *Model) Reference() *mat.SymDense {
	out := mat.NewSymDense(m.Dim(), nil)
	out.CopySym(m.ref.c)
	return out
}

// Harmonization returns the tangent-space harmonization model.
func (m *Model) Harmonization() *harmonize.Model {
	return m.harmonization
}

type modelPayload struct {
	Dim           int              `json:"dim"`
	Reference     []float64        `json:"reference"`
	Harmonization *harmonize.Model `json:"harmonization"`
}

// MarshalJSON wraps the model in a versioned artifact envelope.
func (m *Model) MarshalJSON() ([]byte, error) {
	dim := m.Dim()
	ref := make([]float64, 0, dim*dim)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			ref = append(ref, m.ref.c.At(i, j))
		}
	}
	art, err := model.NewArtifact(ModelType, ModelVersion, modelPayload{
		Dim:           dim,
		Reference:     ref,
		Harmonization: m.harmonization,
	}, map[string]interface{}{"dim": dim})
	if err != nil {
		return nil, err
	}
	return json.Marshal(art)
}

// UnmarshalJSON restores a model written by MarshalJSON.
func (m *Model) UnmarshalJSON(data []byte) error {
	var art model.Artifact
	if err := art.FromJSON(data); err != nil {
		return err
	}
	var p modelPayload
	if err := art.Decode(ModelType, ModelVersion, &p); err != nil {
		return err
	}
	if p.Dim <= 0 || len(p.Reference) != p.Dim*p.Dim {
		return errors.NewValidationError("reference", "reference matrix does not match dim", p.Dim)
	}
	if p.Harmonization == nil {
		return errors.NewValidationError("harmonization", "is required", nil)
	}
	if p.Harmonization.NumFeatures() != VectorLen(p.Dim) {
		return errors.NewDimensionError("riemann.Model", VectorLen(p.Dim), p.Harmonization.NumFeatures(), 1)
	}
	ref, err := newReference(Symmetrize(mat.NewDense(p.Dim, p.Dim, p.Reference)))
	if err != nil {
		return err
	}
	m.ref = ref
	m.harmonization = p.Harmonization
	return nil
}

// GobEncode stores the JSON form.
func (m *Model) GobEncode() ([]byte, error) {
	return m.MarshalJSON()
}

// GobDecode is the inverse of GobEncode.
func (m *Model) GobDecode(data []byte) error {
	return m.UnmarshalJSON(data)
}

// Save writes the model as JSON.
func (m *Model) Save(w io.Writer) error {
	data, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write riemannian model")
	}
	return nil
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read riemannian model")
	}
	m := &Model{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}
