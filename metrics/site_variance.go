package metrics

import (
	"strconv"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// SiteVarianceRatio は特徴量ごとの SiteVarianceRatios の平均を返す
//
// 全バッチの平均が等しければ0、バッチ内のばらつきに比べてバッチ平均が
// 離れるほど1に近づく。値は常に [0, 1]。
func SiteVarianceRatio(X mat.Matrix, batch []string) (float64, error) {
	ratios, err := SiteVarianceRatios(X, batch)
	if err != nil {
		return 0, err
	}
	mean, err := stats.Mean(ratios)
	if err != nil {
		return 0, errors.Wrap(err, "SiteVarianceRatio")
	}
	return errors.ClipValue(mean, 0, 1), nil
}

// SiteVarianceRatios は特徴量ごとに、バッチ平均の（サンプル数で重み付けした）
// 分散と全体の母分散の比を返す
//
//	ratio_j = Σ_b (n_b/n)(mean_bj − mean_j)² / (var_j + ε)
func SiteVarianceRatios(X mat.Matrix, batch []string) ([]float64, error) {
	if X == nil {
		return nil, errors.NewValueError("SiteVarianceRatios", "empty matrix")
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return nil, errors.NewValueError("SiteVarianceRatios", "empty matrix")
	}
	if len(batch) != n {
		return nil, errors.NewDimensionError("SiteVarianceRatios", n, len(batch), 0)
	}

	groups := make(map[string][]int)
	var order []string
	for i, b := range batch {
		if _, ok := groups[b]; !ok {
			order = append(order, b)
		}
		groups[b] = append(groups[b], i)
	}

	ratios := make([]float64, p)
	col := make(stats.Float64Data, n)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			col[i] = X.At(i, j)
		}
		mean, err := col.Mean()
		if err != nil {
			return nil, errors.Wrap(err, "SiteVarianceRatios")
		}
		total, err := col.PopulationVariance()
		if err != nil {
			return nil, errors.Wrap(err, "SiteVarianceRatios")
		}

		if total < errors.Epsilon {
			errors.Warn(errors.NewUndefinedMetricWarning("site_variance_ratio",
				"feature "+strconv.Itoa(j)+" has zero variance", 0))
			continue
		}

		var between float64
		for _, b := range order {
			rows := groups[b]
			sub := make(stats.Float64Data, len(rows))
			for k, i := range rows {
				sub[k] = col[i]
			}
			bm, err := sub.Mean()
			if err != nil {
				return nil, errors.Wrap(err, "SiteVarianceRatios")
			}
			w := float64(len(rows)) / float64(n)
			between += w * (bm - mean) * (bm - mean)
		}
		ratios[j] = errors.ClipValue(between/(total+errors.Epsilon), 0, 1)
	}
	return ratios, nil
}
