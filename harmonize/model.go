package harmonize

import (
	"encoding/json"
	"io"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/core/model"
	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

const (
	// ModelType identifies harmonization models inside an artifact envelope.
	ModelType = "EmpiricalBayesHarmonizer"
	// ModelVersion is the payload format version.
	ModelVersion = "1.0.0"
)

// Prior は1つのバッチ×特徴量に対するEmpirical-Bayes事前分布のハイパーパラメータ
//
// γ ~ Normal(GammaBar, Tau2), δ² ~ InverseGamma(A, B)
type Prior struct {
	GammaBar float64 `json:"gamma_bar"`
	Tau2     float64 `json:"tau2"`
	A        float64 `json:"a"`
	B        float64 `json:"b"`
	// Fallback は弱情報事前分布（A=2）に置き換えられたことを示す
	Fallback bool `json:"fallback,omitempty"`
}

// BatchEstimate は1つのバッチについての学習結果
type BatchEstimate struct {
	Gamma      []float64 // 縮小後の位置パラメータ γ*
	Delta2     []float64 // 縮小後の尺度パラメータ δ*²
	RawGamma   []float64 // 縮小前 γ̂
	RawDelta2  []float64 // 縮小前 δ̂²
	Priors     []Prior
	Iterations int
	Samples    int
}

// Model は学習済みの調和化モデル
//
// Learn が返した後は不変であり、任意の数の並行 Apply 呼び出しから
// 読み取り専用で共有できる。構築は ModelBuilder 経由でのみ行う。
type Model struct {
	batchColumn    string
	batches        []string
	features       int
	featureNames   []string
	grandMean      []float64
	pooledSD       []float64
	covariates     []design.Column
	factors        []design.Factor
	coef           [][]float64 // 共変量 × 特徴量
	estimates      []BatchEstimate
	empiricalBayes bool
	pooling        Pooling
}

// BatchColumn は学習時のバッチ列名を返す
func (m *Model) BatchColumn() string { return m.batchColumn }

// Batches は既知のバッチ水準（辞書順）を返す
func (m *Model) Batches() []string { return slices.Clone(m.batches) }

// NumFeatures は特徴量の数を返す
func (m *Model) NumFeatures() int { return m.features }

// FeatureNames は学習時に記録された特徴量名を返す（未記録ならnil）
func (m *Model) FeatureNames() []string { return slices.Clone(m.featureNames) }

// GrandMean は特徴量ごとの全体平均を返す
func (m *Model) GrandMean() []float64 { return slices.Clone(m.grandMean) }

// PooledSD は特徴量ごとのプールされた標準偏差を返す
func (m *Model) PooledSD() []float64 { return slices.Clone(m.pooledSD) }

// EmpiricalBayes は縮小推定を行ったかどうかを返す
func (m *Model) EmpiricalBayes() bool { return m.empiricalBayes }

// Pooling は事前分布のプール方法を返す
func (m *Model) Pooling() Pooling { return m.pooling }

// Covariates は共変量列の定義を返す
func (m *Model) Covariates() []design.Column { return slices.Clone(m.covariates) }

// CovariateCoef は共変量係数（共変量 × 特徴量）のコピーを返す。共変量がなければnil
func (m *Model) CovariateCoef() *mat.Dense {
	if len(m.coef) == 0 {
		return nil
	}
	out := mat.NewDense(len(m.coef), m.features, nil)
	for k, row := range m.coef {
		out.SetRow(k, row)
	}
	return out
}

// Estimate はバッチ水準の学習結果のコピーを返す
func (m *Model) Estimate(batch string) (BatchEstimate, bool) {
	i, ok := m.batchIndex(batch)
	if !ok {
		return BatchEstimate{}, false
	}
	e := m.estimates[i]
	return BatchEstimate{
		Gamma:      slices.Clone(e.Gamma),
		Delta2:     slices.Clone(e.Delta2),
		RawGamma:   slices.Clone(e.RawGamma),
		RawDelta2:  slices.Clone(e.RawDelta2),
		Priors:     slices.Clone(e.Priors),
		Iterations: e.Iterations,
		Samples:    e.Samples,
	}, true
}

func (m *Model) batchIndex(batch string) (int, bool) {
	return slices.BinarySearch(m.batches, batch)
}

// ModelBuilder は Model を組み立てる。Build 後の Model は入力スライスを共有しない
type ModelBuilder struct {
	m   Model
	set []bool
	err error
}

// NewModelBuilder はバッチ列名、バッチ水準、特徴量数を指定してビルダーを作成する
func NewModelBuilder(batchColumn string, batches []string, features int) *ModelBuilder {
	levels := slices.Clone(batches)
	slices.Sort(levels)
	return &ModelBuilder{
		m: Model{
			batchColumn:    batchColumn,
			batches:        levels,
			features:       features,
			estimates:      make([]BatchEstimate, len(levels)),
			empiricalBayes: true,
		},
		set: make([]bool, len(levels)),
	}
}

// FeatureNames は特徴量名を設定する
func (b *ModelBuilder) FeatureNames(names []string) *ModelBuilder {
	if names != nil && len(names) != b.m.features {
		b.fail(errors.NewDimensionError("ModelBuilder.FeatureNames", b.m.features, len(names), 1))
	}
	b.m.featureNames = slices.Clone(names)
	return b
}

// Standardization は全体平均とプールSDを設定する
func (b *ModelBuilder) Standardization(grandMean, pooledSD []float64) *ModelBuilder {
	b.checkLen("grand_mean", grandMean)
	b.checkLen("pooled_sd", pooledSD)
	b.m.grandMean = slices.Clone(grandMean)
	b.m.pooledSD = slices.Clone(pooledSD)
	return b
}

// Covariates は共変量列、カテゴリ水準、係数（共変量 × 特徴量）を設定する
func (b *ModelBuilder) Covariates(cols []design.Column, factors []design.Factor, coef [][]float64) *ModelBuilder {
	if len(cols) != len(coef) {
		b.fail(errors.NewDimensionError("ModelBuilder.Covariates", len(cols), len(coef), 0))
	}
	b.m.covariates = slices.Clone(cols)
	b.m.factors = make([]design.Factor, len(factors))
	for i, f := range factors {
		b.m.factors[i] = design.Factor{Name: f.Name, Levels: slices.Clone(f.Levels)}
	}
	b.m.coef = make([][]float64, len(coef))
	for k, row := range coef {
		b.checkLen("coef", row)
		b.m.coef[k] = slices.Clone(row)
	}
	return b
}

// Shrinkage は縮小推定の設定を記録する
func (b *ModelBuilder) Shrinkage(empiricalBayes bool, pooling Pooling) *ModelBuilder {
	b.m.empiricalBayes = empiricalBayes
	b.m.pooling = pooling
	return b
}

// Batch はバッチ水準の推定結果を設定する
func (b *ModelBuilder) Batch(level string, e BatchEstimate) *ModelBuilder {
	i, ok := b.m.batchIndex(level)
	if !ok {
		b.fail(errors.NewValidationError(b.m.batchColumn, "unknown batch level", level))
		return b
	}
	b.checkLen("gamma", e.Gamma)
	b.checkLen("delta2", e.Delta2)
	b.checkLen("raw_gamma", e.RawGamma)
	b.checkLen("raw_delta2", e.RawDelta2)
	if e.Priors != nil {
		b.checkLen("priors", e.Priors)
	}
	b.m.estimates[i] = BatchEstimate{
		Gamma:      slices.Clone(e.Gamma),
		Delta2:     slices.Clone(e.Delta2),
		RawGamma:   slices.Clone(e.RawGamma),
		RawDelta2:  slices.Clone(e.RawDelta2),
		Priors:     slices.Clone(e.Priors),
		Iterations: e.Iterations,
		Samples:    e.Samples,
	}
	b.set[i] = true
	return b
}

// Build は全項目が揃っていることを確認して Model を返す
func (b *ModelBuilder) Build() (*Model, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.m.batchColumn == "" {
		return nil, errors.NewValidationError("batch_column", "is required", b.m.batchColumn)
	}
	if len(b.m.batches) == 0 || b.m.features <= 0 {
		return nil, errors.NewModelError("ModelBuilder.Build", "empty model", errors.ErrEmptyData)
	}
	if b.m.grandMean == nil || b.m.pooledSD == nil {
		return nil, errors.NewModelError("ModelBuilder.Build", "standardization not set", nil)
	}
	for i, ok := range b.set {
		if !ok {
			return nil, errors.NewValidationError(b.m.batchColumn, "missing estimate for batch level", b.m.batches[i])
		}
		if err := checkFinite(b.m.estimates[i], b.m.batches[i]); err != nil {
			return nil, err
		}
	}
	m := b.m
	b.err = errors.NewModelError("ModelBuilder.Build", "builder already used", nil)
	return &m, nil
}

func (b *ModelBuilder) checkLen(name string, v interface{}) {
	var n int
	switch s := v.(type) {
	case []float64:
		n = len(s)
	case []Prior:
		n = len(s)
	}
	if n != b.m.features {
		b.fail(errors.Wrap(errors.NewDimensionError("ModelBuilder."+name, b.m.features, n, 1), name))
	}
}

func (b *ModelBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func checkFinite(e BatchEstimate, batch string) error {
	for _, v := range [][]float64{e.Gamma, e.Delta2} {
		if err := errors.CheckNumericalStability("harmonize.Model", v, e.Iterations); err != nil {
			return errors.Wrapf(err, "batch %q", batch)
		}
	}
	return nil
}

// ===========================================================================
// 永続化
// ===========================================================================

type batchPayload struct {
	Level      string    `json:"level"`
	Samples    int       `json:"samples"`
	Iterations int       `json:"iterations"`
	Gamma      []float64 `json:"gamma"`
	Delta2     []float64 `json:"delta2"`
	RawGamma   []float64 `json:"raw_gamma"`
	RawDelta2  []float64 `json:"raw_delta2"`
	Priors     []Prior   `json:"priors,omitempty"`
}

type modelPayload struct {
	BatchColumn    string          `json:"batch_column"`
	Features       int             `json:"features"`
	FeatureNames   []string        `json:"feature_names,omitempty"`
	GrandMean      []float64       `json:"grand_mean"`
	PooledSD       []float64       `json:"pooled_sd"`
	Covariates     []design.Column `json:"covariates,omitempty"`
	Factors        []design.Factor `json:"factors,omitempty"`
	Coef           [][]float64     `json:"coef,omitempty"`
	EmpiricalBayes bool            `json:"empirical_bayes"`
	Pooling        string          `json:"pooling"`
	Batches        []batchPayload  `json:"batches"`
}

// MarshalJSON は Model をバージョン付きの Artifact エンベロープで包んで出力する
func (m *Model) MarshalJSON() ([]byte, error) {
	p := modelPayload{
		BatchColumn:    m.batchColumn,
		Features:       m.features,
		FeatureNames:   m.featureNames,
		GrandMean:      m.grandMean,
		PooledSD:       m.pooledSD,
		Covariates:     m.covariates,
		Factors:        m.factors,
		Coef:           m.coef,
		EmpiricalBayes: m.empiricalBayes,
		Pooling:        m.pooling.String(),
	}
	for i, level := range m.batches {
		e := m.estimates[i]
		p.Batches = append(p.Batches, batchPayload{
			Level:      level,
			Samples:    e.Samples,
			Iterations: e.Iterations,
			Gamma:      e.Gamma,
			Delta2:     e.Delta2,
			RawGamma:   e.RawGamma,
			RawDelta2:  e.RawDelta2,
			Priors:     e.Priors,
		})
	}
	art, err := model.NewArtifact(ModelType, ModelVersion, p, map[string]interface{}{
		"batches":  len(m.batches),
		"features": m.features,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(art)
}

// UnmarshalJSON は Artifact エンベロープから Model を復元する。
// 復元にも ModelBuilder を通すので、壊れたペイロードは検証で弾かれる
func (m *Model) UnmarshalJSON(data []byte) error {
	var art model.Artifact
	if err := art.FromJSON(data); err != nil {
		return err
	}
	var p modelPayload
	if err := art.Decode(ModelType, ModelVersion, &p); err != nil {
		return err
	}
	pooling, ok := ParsePooling(p.Pooling)
	if !ok {
		return errors.NewValidationError("pooling", "unknown pooling", p.Pooling)
	}

	levels := make([]string, len(p.Batches))
	for i, bp := range p.Batches {
		levels[i] = bp.Level
	}
	b := NewModelBuilder(p.BatchColumn, levels, p.Features).
		FeatureNames(p.FeatureNames).
		Standardization(p.GrandMean, p.PooledSD).
		Covariates(p.Covariates, p.Factors, p.Coef).
		Shrinkage(p.EmpiricalBayes, pooling)
	for _, bp := range p.Batches {
		b.Batch(bp.Level, BatchEstimate{
			Gamma:      bp.Gamma,
			Delta2:     bp.Delta2,
			RawGamma:   bp.RawGamma,
			RawDelta2:  bp.RawDelta2,
			Priors:     bp.Priors,
			Iterations: bp.Iterations,
			Samples:    bp.Samples,
		})
	}
	built, err := b.Build()
	if err != nil {
		return errors.Wrap(err, "invalid harmonization model payload")
	}
	*m = *built
	return nil
}

// GobEncode は JSON 表現を gob に載せる（フィールドが非公開のため）
func (m *Model) GobEncode() ([]byte, error) {
	return m.MarshalJSON()
}

// GobDecode は GobEncode の逆変換
func (m *Model) GobDecode(data []byte) error {
	return m.UnmarshalJSON(data)
}

// Save は Model を JSON として w に書き出す
func (m *Model) Save(w io.Writer) error {
	data, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write harmonization model")
	}
	return nil
}

// Load は Save で書き出した JSON から Model を読み込む
func Load(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read harmonization model")
	}
	m := &Model{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveFile は Model を gob 形式でファイルに保存する
func (m *Model) SaveFile(path string) error {
	return model.SaveModel(m, path)
}

// LoadFile は SaveFile で保存したファイルから Model を読み込む
func LoadFile(path string) (*Model, error) {
	m := &Model{}
	if err := model.LoadModel(m, path); err != nil {
		return nil, err
	}
	return m, nil
}
