package model

import "gonum.org/v1/gonum/mat"

// Transformer は補助情報 D（デザイン行列など）を伴うデータ変換のインターフェース
type Transformer[D any] interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix, d D) error

	// Transform は学習済みパラメータでデータを変換する
	Transform(X mat.Matrix, d D) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix, d D) (mat.Matrix, error)
}
