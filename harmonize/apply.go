package harmonize

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/core/parallel"
	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
	"github.com/YuminosukeSato/eegharmony/pkg/log"
)

// 並列化する行数の閾値
const applyParallelThreshold = 2048

// Apply は学習済みモデルでバッチ効果を除去する
//
// 標準化残差から γ* を引いて √δ*² で割り、プールSDを掛けて全体平均と
// 共変量効果を戻す。再推定は一切行わないので、学習に使っていないデータにも
// 適用できる。d のバッチ列名がモデルと異なる場合や、未知のバッチ水準を
// 含む場合は ValidationError を返す。出力は X と同じ形の新しい行列。
func Apply(X mat.Matrix, d *design.Matrix, m *Model) (*mat.Dense, error) {
	if m == nil {
		return nil, errors.NewValidationError("model", "harmonization model is required", nil)
	}
	if err := validateInput(X, d); err != nil {
		return nil, err
	}
	if d.BatchColumn != m.batchColumn {
		return nil, errors.NewValidationError(m.batchColumn,
			"design lacks the batch column used at learn time", d.BatchColumn)
	}
	n, p := X.Dims()
	if p != m.features {
		return nil, errors.NewDimensionError("harmonize.Apply", m.features, p, 1)
	}
	if err := d.CheckComplete(); err != nil {
		return nil, err
	}

	batchIdx := make([]int, n)
	for i, label := range d.Batch {
		b, ok := m.batchIndex(label)
		if !ok {
			return nil, errors.NewValidationError(m.batchColumn, "unknown batch level (known: "+joinLevels(m.batches)+")", label)
		}
		batchIdx[i] = b
	}

	cov, err := d.Encode(m.covariates, m.factors)
	if err != nil {
		return nil, err
	}

	scale := make([][]float64, len(m.estimates))
	for b, e := range m.estimates {
		scale[b] = make([]float64, p)
		for j, d2 := range e.Delta2 {
			scale[b][j] = math.Sqrt(d2)
		}
	}

	out := mat.NewDense(n, p, nil)
	parallel.ParallelizeWithThreshold(n, applyParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			e := m.estimates[batchIdx[i]]
			for j := 0; j < p; j++ {
				mean := m.grandMean[j] + covEffect(cov, m.coef, i, j)
				s := (X.At(i, j) - mean) / m.pooledSD[j]
				out.Set(i, j, (s-e.Gamma[j])/scale[batchIdx[i]][j]*m.pooledSD[j]+mean)
			}
		}
	})

	log.GetLoggerWithName("harmonize").Debug("harmonization applied",
		log.OperationKey, log.OperationApply,
		log.SamplesKey, n,
		log.FeaturesKey, p,
	)
	return out, nil
}

// FitTransform は Learn と Apply を同じデータに対して続けて実行する
func FitTransform(X mat.Matrix, d *design.Matrix, opts ...Option) (*mat.Dense, *Model, error) {
	m, err := Learn(X, d, opts...)
	if err != nil {
		return nil, nil, err
	}
	out, err := Apply(X, d, m)
	if err != nil {
		return nil, nil, err
	}
	return out, m, nil
}

func joinLevels(levels []string) string {
	const maxShown = 8
	if len(levels) > maxShown {
		return strings.Join(levels[:maxShown], ",") + ",..."
	}
	return strings.Join(levels, ",")
}
