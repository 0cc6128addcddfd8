package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// MeanAbsoluteChange は調和化前後の要素ごとの絶対差の平均を返す
func MeanAbsoluteChange(pre, post mat.Matrix) (float64, error) {
	n, err := checkPair("MeanAbsoluteChange", pre, post)
	if err != nil {
		return 0, err
	}
	r, c := pre.Dims()

	// MAE = (1/n) * Σ|pre - post|
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += math.Abs(pre.At(i, j) - post.At(i, j))
		}
	}
	return sum / float64(n), nil
}

// RMSChange は調和化前後の差の二乗平均平方根を返す
func RMSChange(pre, post mat.Matrix) (float64, error) {
	n, err := checkPair("RMSChange", pre, post)
	if err != nil {
		return 0, err
	}
	r, c := pre.Dims()

	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			diff := pre.At(i, j) - post.At(i, j)
			sum += diff * diff
		}
	}
	return math.Sqrt(sum / float64(n)), nil
}

func checkPair(op string, pre, post mat.Matrix) (int, error) {
	r, c := pre.Dims()
	r2, c2 := post.Dims()
	if r == 0 || c == 0 {
		return 0, errors.NewValueError(op, "empty matrix")
	}
	if r != r2 {
		return 0, errors.NewDimensionError(op, r, r2, 0)
	}
	if c != c2 {
		return 0, errors.NewDimensionError(op, c, c2, 1)
	}
	return r * c, nil
}
