package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/linear"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// PreservationDelta は生物学的共変量に対する特徴量の回帰傾きが
// 調和化の前後でどれだけ変わったかを返す
//
//	|slope(post ~ covariate) − slope(pre ~ covariate)|
//
// 0 に近いほど、バッチ効果と一緒に本物の信号を消していないことを示す。
func PreservationDelta(pre, post, covariate []float64) (float64, error) {
	n := len(covariate)
	if n < 2 {
		return 0, errors.NewValueError("PreservationDelta", "need at least two observations")
	}
	if len(pre) != n {
		return 0, errors.NewDimensionError("PreservationDelta", n, len(pre), 0)
	}
	if len(post) != n {
		return 0, errors.NewDimensionError("PreservationDelta", n, len(post), 0)
	}

	x := mat.NewDense(n, 1, append([]float64(nil), covariate...))
	before, err := slope(x, pre)
	if err != nil {
		return 0, err
	}
	after, err := slope(x, post)
	if err != nil {
		return 0, err
	}
	return math.Abs(after - before), nil
}

// PreservationDeltas は列ごとの PreservationDelta を返す
func PreservationDeltas(pre, post mat.Matrix, covariate []float64) ([]float64, error) {
	r, c := pre.Dims()
	r2, c2 := post.Dims()
	if r != r2 {
		return nil, errors.NewDimensionError("PreservationDeltas", r, r2, 0)
	}
	if c != c2 {
		return nil, errors.NewDimensionError("PreservationDeltas", c, c2, 1)
	}
	out := make([]float64, c)
	for j := 0; j < c; j++ {
		d, err := PreservationDelta(mat.Col(nil, j, pre), mat.Col(nil, j, post), covariate)
		if err != nil {
			return nil, errors.Wrapf(err, "feature %d", j)
		}
		out[j] = d
	}
	return out, nil
}

func slope(x *mat.Dense, y []float64) (float64, error) {
	lr := linear.NewLinearRegression()
	if err := lr.Fit(x, mat.NewDense(len(y), 1, append([]float64(nil), y...))); err != nil {
		if errors.Is(err, errors.ErrSingularMatrix) {
			return 0, errors.NewValueError("PreservationDelta", "covariate is constant")
		}
		return 0, err
	}
	return lr.GetWeights()[0], nil
}
