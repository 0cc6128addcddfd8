package harmonize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/linear"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
	"github.com/YuminosukeSato/eegharmony/pkg/log"
)

// regressionCovariates はバッチ回帰に使う共変量列を返す
//
// 全水準で符号化されたカテゴリ因子（design.WithDropFirst(false)）は
// バッチ指示変数と共線になるため、先頭水準の列を除く。
// 返した列はモデルに保存され、Apply でも同じ列で再符号化される。
func regressionCovariates(d *design.Matrix) (*mat.Dense, []design.Column) {
	cov, cols := d.Covariates()
	var idx []int
	var kept []design.Column
	for k, c := range cols {
		if c.Kind == design.Categorical {
			if f, ok := d.Factor(c.Source); ok && len(f.Levels) > 0 && c.Level == f.Levels[0] {
				continue
			}
		}
		idx = append(idx, k)
		kept = append(kept, c)
	}
	if len(kept) == len(cols) {
		return cov, cols
	}
	if len(kept) == 0 {
		return nil, nil
	}
	n := d.Rows()
	out := mat.NewDense(n, len(idx), nil)
	for k, j := range idx {
		for i := 0; i < n; i++ {
			out.Set(i, k, cov.At(i, j))
		}
	}
	return out, kept
}

// Learn はバッチ効果の位置・尺度補正を学習する
//
// 手順:
//  1. 全水準のバッチ指示変数と非バッチ共変量に対する最小二乗で、
//     バッチ係数の加重平均（全体平均）と共変量効果を推定する
//  2. 残差からプールされた分散を推定する
//  3. 標準化残差からバッチごとの γ̂（平均）と δ̂²（不偏分散）を求める
//  4. Empirical-Bayes 縮小で γ*, δ*² を得る（WithEmpiricalBayes(false) で省略）
//
// X（行 = 観測, 列 = 特徴量）と d は変更しない。
func Learn(X mat.Matrix, d *design.Matrix, opts ...Option) (*Model, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	logger := log.GetLoggerWithName("harmonize")
	start := time.Now()

	if err := validateInput(X, d); err != nil {
		return nil, err
	}
	if err := d.CheckComplete(); err != nil {
		return nil, err
	}
	n, p := X.Dims()
	if cfg.featureNames != nil && len(cfg.featureNames) != p {
		return nil, errors.NewDimensionError("harmonize.Learn", p, len(cfg.featureNames), 1)
	}

	levels := d.BatchLevels
	batchIdx := d.BatchIndex()
	nb := len(levels)
	cov, covCols := regressionCovariates(d)

	logger.Info("learning harmonization model",
		log.OperationKey, log.OperationLearn,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.BatchesKey, nb,
		log.CovariatesKey, len(covCols),
		log.EmpiricalBayesKey, cfg.empiricalBayes,
	)
	if nb == 1 {
		logger.Warn("only one batch level present; correction will be near identity",
			log.BatchKey, levels[0])
	}

	// 1. 最小二乗: [バッチ指示変数（全水準） | 共変量]
	full := mat.NewDense(n, nb+len(covCols), nil)
	for i, b := range batchIdx {
		full.Set(i, b, 1)
		for k := range covCols {
			full.Set(i, nb+k, cov.At(i, k))
		}
	}
	beta, err := linear.LeastSquares(full, X)
	if err != nil {
		if errors.Is(err, errors.ErrSingularMatrix) {
			return nil, errors.NewValidationError("design",
				"covariates are collinear with the batch column or with each other",
				strings.Join(d.Names(), ","))
		}
		return nil, errors.Wrap(err, "harmonize.Learn")
	}

	counts := make([]int, nb)
	for _, b := range batchIdx {
		counts[b]++
	}
	grand := make([]float64, p)
	for j := 0; j < p; j++ {
		for b := 0; b < nb; b++ {
			grand[j] += float64(counts[b]) / float64(n) * beta.At(b, j)
		}
	}
	coef := make([][]float64, len(covCols))
	for k := range coef {
		coef[k] = mat.Row(nil, nb+k, beta)
	}

	// 2. プール分散
	var fitted mat.Dense
	fitted.Mul(full, beta)
	sd := make([]float64, p)
	for j := 0; j < p; j++ {
		var ss float64
		for i := 0; i < n; i++ {
			r := X.At(i, j) - fitted.At(i, j)
			ss += r * r
		}
		v := ss / float64(n)
		if v < errors.Epsilon {
			sd[j] = 1
			continue
		}
		sd[j] = math.Sqrt(v)
	}

	// 3. 標準化とバッチごとの生の推定値
	s := standardize(X, cov, grand, sd, coef)
	rows := make([][][]float64, nb)
	for i, b := range batchIdx {
		rows[b] = append(rows[b], s[i])
	}

	raw := rawEstimates{
		gamma:      make([][]float64, nb),
		delta2:     make([][]float64, nb),
		counts:     counts,
		degenerate: make([][]bool, nb),
	}
	col := make([]float64, 0, n)
	for b := 0; b < nb; b++ {
		raw.gamma[b] = make([]float64, p)
		raw.delta2[b] = make([]float64, p)
		raw.degenerate[b] = make([]bool, p)
		for j := 0; j < p; j++ {
			col = col[:0]
			for _, row := range rows[b] {
				col = append(col, row[j])
			}
			raw.gamma[b][j] = stat.Mean(col, nil)
			if counts[b] < 2 {
				raw.delta2[b][j] = 1
				raw.degenerate[b][j] = true
				continue
			}
			raw.delta2[b][j] = stat.Variance(col, nil)
			if raw.delta2[b][j] < errors.Epsilon {
				raw.degenerate[b][j] = true
			}
		}
	}

	builder := NewModelBuilder(d.BatchColumn, levels, p).
		FeatureNames(cfg.featureNames).
		Standardization(grand, sd).
		Covariates(covCols, d.Factors, coef).
		Shrinkage(cfg.empiricalBayes, cfg.pooling)

	// 4. Empirical-Bayes 縮小
	if !cfg.empiricalBayes {
		for b, level := range levels {
			d2 := make([]float64, p)
			for j := range d2 {
				d2[j] = math.Max(raw.delta2[b][j], errors.Epsilon)
			}
			builder.Batch(level, BatchEstimate{
				Gamma:     raw.gamma[b],
				Delta2:    d2,
				RawGamma:  raw.gamma[b],
				RawDelta2: raw.delta2[b],
				Samples:   counts[b],
			})
		}
		return finish(builder, logger, start)
	}

	priors := estimatePriors(raw, cfg.pooling)
	for b, level := range levels {
		warnFallback(level, counts[b], raw.degenerate[b], priors[b])

		res := shrink(rows[b], raw.gamma[b], raw.delta2[b], priors[b], cfg.tol, cfg.maxIter)
		logger.Debug("empirical bayes shrinkage",
			log.BatchKey, level,
			log.SamplesKey, counts[b],
			log.IterationKey, res.iterations,
			log.ChangeKey, res.change,
		)
		if !res.converged {
			errors.Warn(errors.NewConvergenceWarning("EmpiricalBayes", res.iterations,
				"batch "+strconv.Quote(level)+": max relative change "+strconv.FormatFloat(res.change, 'g', 4, 64)))
			if !cfg.allowNonConvergence {
				return nil, errors.NewNumericalInstabilityErrorWithContext("empirical_bayes_shrinkage",
					[]float64{res.change}, res.iterations, map[string]interface{}{
						"batch":     level,
						"tolerance": cfg.tol,
					})
			}
		}
		builder.Batch(level, BatchEstimate{
			Gamma:      res.gamma,
			Delta2:     res.delta2,
			RawGamma:   raw.gamma[b],
			RawDelta2:  raw.delta2[b],
			Priors:     priors[b],
			Iterations: res.iterations,
			Samples:    counts[b],
		})
	}
	return finish(builder, logger, start)
}

func finish(builder *ModelBuilder, logger log.Logger, start time.Time) (*Model, error) {
	m, err := builder.Build()
	if err != nil {
		return nil, err
	}
	logger.Info("harmonization model learned",
		log.OperationKey, log.OperationLearn,
		log.BatchesKey, len(m.batches),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return m, nil
}

func warnFallback(level string, count int, degenerate []bool, priors []Prior) {
	var reason string
	switch {
	case count < 2:
		reason = "fewer than two observations"
	case anyTrue(degenerate):
		reason = "zero residual variance"
	default:
		for _, pr := range priors {
			if pr.Fallback {
				reason = "prior moments undefined"
				break
			}
		}
	}
	if reason != "" {
		errors.Warn(errors.NewFallbackPriorWarning(level, count, reason))
	}
}

func anyTrue(v []bool) bool {
	for _, b := range v {
		if b {
			return true
		}
	}
	return false
}

// standardize は (x − grand − covariate effect) / sd を行ごとに返す
func standardize(X mat.Matrix, cov *mat.Dense, grand, sd []float64, coef [][]float64) [][]float64 {
	n, p := X.Dims()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, p)
		for j := 0; j < p; j++ {
			row[j] = (X.At(i, j) - grand[j] - covEffect(cov, coef, i, j)) / sd[j]
		}
		out[i] = row
	}
	return out
}

func covEffect(cov *mat.Dense, coef [][]float64, i, j int) float64 {
	var e float64
	for k := range coef {
		e += cov.At(i, k) * coef[k][j]
	}
	return e
}

// validateInput は Learn と Apply に共通する入力検証
func validateInput(X mat.Matrix, d *design.Matrix) error {
	if d == nil {
		return errors.NewValidationError("design", "design matrix is required", nil)
	}
	if d.BatchColumn == "" || d.Batch == nil {
		return errors.NewValidationError(design.DefaultBatchColumn, "design has no batch column", nil)
	}
	if X == nil {
		return errors.NewValueError("harmonize", "feature matrix is required")
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.Wrap(errors.ErrEmptyData, "harmonize: feature matrix")
	}
	if n != d.Rows() {
		return errors.NewDimensionError("harmonize", d.Rows(), n, 0)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValidationError("X", "non-finite feature value at row "+strconv.Itoa(i)+", column "+strconv.Itoa(j), v)
			}
		}
	}
	return nil
}
