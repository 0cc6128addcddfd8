package harmonize

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// minRelScale は相対変化の分母の下限。ほぼ0のパラメータで収束判定が振動しないようにする
const minRelScale = 1e-6

// fallbackShape は退化したバッチに使う弱情報逆ガンマ事前分布の形状パラメータ
const fallbackShape = 2.0

// rawEstimates はバッチ×特徴量の縮小前推定値
type rawEstimates struct {
	gamma  [][]float64
	delta2 [][]float64
	counts []int
	// degenerate[b][j] はそのセルで分散推定が使えないことを示す
	degenerate [][]bool
}

// estimatePriors はモーメント法で事前分布のハイパーパラメータを推定する
//
// PoolBatches では特徴量ごとに全バッチの推定値から、PoolFeatures では
// バッチごとに全特徴量の推定値から γ̄, τ², a, b を求める。
// 標本が足りない、分散が0、などモーメントが定義できないセルは
// a=2, b=max(δ̂², ε)(a−1) の弱情報事前分布に置き換える。
func estimatePriors(raw rawEstimates, pooling Pooling) [][]Prior {
	nb := len(raw.gamma)
	p := len(raw.gamma[0])

	priors := make([][]Prior, nb)
	for b := range priors {
		priors[b] = make([]Prior, p)
	}

	switch pooling {
	case PoolFeatures:
		for b := 0; b < nb; b++ {
			g := raw.gamma[b]
			var d []float64
			for j := 0; j < p; j++ {
				if !raw.degenerate[b][j] {
					d = append(d, raw.delta2[b][j])
				}
			}
			gp := gammaPrior(g)
			dp, ok := inverseGammaPrior(d)
			for j := 0; j < p; j++ {
				priors[b][j] = combine(gp, dp, ok && !raw.degenerate[b][j], raw.delta2[b][j])
			}
		}
	default:
		g := make([]float64, nb)
		for j := 0; j < p; j++ {
			var d []float64
			for b := 0; b < nb; b++ {
				g[b] = raw.gamma[b][j]
				if !raw.degenerate[b][j] {
					d = append(d, raw.delta2[b][j])
				}
			}
			gp := gammaPrior(g)
			dp, ok := inverseGammaPrior(d)
			for b := 0; b < nb; b++ {
				priors[b][j] = combine(gp, dp, ok && !raw.degenerate[b][j], raw.delta2[b][j])
			}
		}
	}
	return priors
}

// gammaPrior は正規事前分布の平均と分散を返す。値が1つしかなければ τ²=1
func gammaPrior(values []float64) Prior {
	mean := stat.Mean(values, nil)
	tau2 := 1.0
	if len(values) >= 2 {
		tau2 = stat.Variance(values, nil)
	}
	return Prior{GammaBar: mean, Tau2: tau2}
}

// inverseGammaPrior はモーメント法で逆ガンマ分布の (a, b) を求める
//
//	a = (2v + m²) / v,  b = (m v + m³) / v
func inverseGammaPrior(values []float64) (Prior, bool) {
	if len(values) < 2 {
		return Prior{}, false
	}
	m, v := stat.MeanVariance(values, nil)
	if v < errors.Epsilon || m <= 0 {
		return Prior{}, false
	}
	return Prior{
		A: (2*v + m*m) / v,
		B: (m*v + m*m*m) / v,
	}, true
}

func combine(gp, dp Prior, ok bool, delta2 float64) Prior {
	out := Prior{GammaBar: gp.GammaBar, Tau2: gp.Tau2}
	if ok {
		out.A, out.B = dp.A, dp.B
		return out
	}
	out.A = fallbackShape
	out.B = math.Max(delta2, errors.Epsilon) * (fallbackShape - 1)
	out.Fallback = true
	return out
}

// shrinkResult は1バッチ分の縮小推定の結果
type shrinkResult struct {
	gamma      []float64
	delta2     []float64
	iterations int
	converged  bool
	change     float64
}

// shrink は1つのバッチの γ, δ² を事前分布に向けて反復的に縮小する
//
// s はそのバッチの標準化残差（行 × 特徴量）。
//
//	γ_new  = (n τ² γ̂ + δ² γ̄) / (n τ² + δ²)
//	δ²_new = (b + Σ(s − γ_new)²/2) / (n/2 + a − 1)
//
// を最大相対変化が tol を下回るか maxIter に達するまで繰り返す。
func shrink(s [][]float64, gammaHat, delta2Hat []float64, priors []Prior, tol float64, maxIter int) shrinkResult {
	n := float64(len(s))
	p := len(gammaHat)

	g := append([]float64(nil), gammaHat...)
	d := make([]float64, p)
	for j := range d {
		d[j] = math.Max(delta2Hat[j], errors.Epsilon)
	}
	gNew := make([]float64, p)
	dNew := make([]float64, p)

	res := shrinkResult{}
	for it := 1; it <= maxIter; it++ {
		for j := 0; j < p; j++ {
			pr := priors[j]
			nt := n * pr.Tau2
			gNew[j] = (nt*gammaHat[j] + d[j]*pr.GammaBar) / (nt + d[j] + errors.Epsilon)

			var sum2 float64
			for _, row := range s {
				r := row[j] - gNew[j]
				sum2 += r * r
			}
			dNew[j] = math.Max((pr.B+0.5*sum2)/(0.5*n+pr.A-1), errors.Epsilon)
		}

		change := 0.0
		for j := 0; j < p; j++ {
			change = math.Max(change, relChange(gNew[j], g[j]))
			change = math.Max(change, relChange(dNew[j], d[j]))
		}
		copy(g, gNew)
		copy(d, dNew)

		res.iterations = it
		res.change = change
		if change < tol {
			res.converged = true
			break
		}
	}
	res.gamma = g
	res.delta2 = d
	return res
}

func relChange(next, prev float64) float64 {
	return math.Abs(next-prev) / math.Max(math.Abs(prev), minRelScale)
}
