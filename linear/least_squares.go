package linear

import (
	"math"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// conditionLimit を超える条件数の計画行列は特異とみなす
const conditionLimit = 1e12

// LeastSquares は多出力の最小二乗問題 min ||X B - Y|| を解き、B (p x k) を返す
//
// X は n x p（n >= p）、Y は n x k。各列 Y[:, j] に対して独立に回帰係数を求める。
// 正規方程式 (XᵀX) B = XᵀY をコレスキー分解で解き、失敗時や条件数が
// 大きすぎる場合は ErrSingularMatrix を包んだ ModelError を返す。
func LeastSquares(X, Y mat.Matrix) (*mat.Dense, error) {
	n, p := X.Dims()
	ny, k := Y.Dims()

	if n == 0 || p == 0 || k == 0 {
		return nil, errors.NewModelError("LeastSquares", "empty data", errors.ErrEmptyData)
	}
	if ny != n {
		return nil, errors.NewDimensionError("LeastSquares", n, ny, 0)
	}
	if n < p {
		return nil, errors.NewModelError("LeastSquares", "underdetermined system",
			errors.Wrapf(errors.ErrSingularMatrix, "%d rows for %d columns", n, p))
	}

	var gram mat.SymDense
	gram.SymOuterK(1, X.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, errors.NewModelError("LeastSquares", "singular design", errors.ErrSingularMatrix)
	}
	if cond := chol.Cond(); math.IsInf(cond, 0) || cond > conditionLimit {
		return nil, errors.NewModelError("LeastSquares", "ill-conditioned design",
			errors.Wrapf(errors.ErrSingularMatrix, "condition number %.3g", cond))
	}

	var xty mat.Dense
	xty.Mul(X.T(), Y)

	var coef mat.Dense
	if err := chol.SolveTo(&coef, &xty); err != nil {
		return nil, errors.NewModelError("LeastSquares", "solve failed", err)
	}
	return &coef, nil
}
