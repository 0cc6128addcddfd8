package harmonize

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/core/model"
	"github.com/YuminosukeSato/eegharmony/design"
)

var _ model.Transformer[*design.Matrix] = (*Harmonizer)(nil)

// Harmonizer は Learn/Apply を Fit/Transform 形式で扱う推定器
//
// 使用例:
//
//	h := harmonize.NewHarmonizer(harmonize.WithEmpiricalBayes(true))
//	if err := h.Fit(X, d); err != nil {
//	    return err
//	}
//	Xh, err := h.Transform(X, d)
type Harmonizer struct {
	model.BaseEstimator

	opts  []Option
	model *Model
}

// NewHarmonizer は新しい Harmonizer を作成する
func NewHarmonizer(opts ...Option) *Harmonizer {
	return &Harmonizer{opts: opts}
}

// Fit はモデルを学習する。再度呼ぶと以前のモデルは置き換えられる
func (h *Harmonizer) Fit(X mat.Matrix, d *design.Matrix) error {
	m, err := Learn(X, d, h.opts...)
	if err != nil {
		return err
	}
	h.model = m
	h.SetFitted()
	return nil
}

// Transform は学習済みモデルで X を調和化する
func (h *Harmonizer) Transform(X mat.Matrix, d *design.Matrix) (mat.Matrix, error) {
	if err := h.RequireFitted("Harmonizer", "Transform"); err != nil {
		return nil, err
	}
	return Apply(X, d, h.model)
}

// FitTransform は Fit と Transform を続けて実行する
func (h *Harmonizer) FitTransform(X mat.Matrix, d *design.Matrix) (mat.Matrix, error) {
	if err := h.Fit(X, d); err != nil {
		return nil, err
	}
	return h.Transform(X, d)
}

// Model は学習済みモデルを返す（未学習ならnil）
func (h *Harmonizer) Model() *Model {
	return h.model
}

// FromModel は保存済みモデルから学習済み状態の Harmonizer を作る
func FromModel(m *Model) *Harmonizer {
	h := &Harmonizer{model: m}
	if m != nil {
		h.SetFitted()
	}
	return h
}
