package config

import (
	"github.com/YuminosukeSato/eegharmony/harmonize"
)

// Mode selects between learning a new model and applying a stored one.
const (
	ModeHarmonize = "harmonize"
	ModeApply     = "apply"
)

// Config holds all CLI configuration.
type Config struct {
	Mode      string          `mapstructure:"mode" validate:"required,oneof=harmonize apply"`
	Input     InputConfig     `mapstructure:"input" validate:"required"`
	Output    OutputConfig    `mapstructure:"output" validate:"required"`
	Harmonize HarmonizeConfig `mapstructure:"harmonize" validate:"required"`
	Log       LogConfig       `mapstructure:"log" validate:"required"`
}

// InputConfig describes the feature table.
type InputConfig struct {
	Path        string   `mapstructure:"path" validate:"required"`
	Features    []string `mapstructure:"features" validate:"required,min=1,dive,required"`
	BatchColumn string   `mapstructure:"batch" validate:"required"`
	Covariates  []string `mapstructure:"covariates" validate:"dive,required"`
}

// OutputConfig describes where results go.
type OutputConfig struct {
	Dir     string `mapstructure:"dir" validate:"required"`
	ModelIn string `mapstructure:"model_in"`
	Bundle  bool   `mapstructure:"bundle"`
}

// HarmonizeConfig mirrors the harmonize package options.
type HarmonizeConfig struct {
	EmpiricalBayes      bool    `mapstructure:"empirical_bayes"`
	Pooling             string  `mapstructure:"pooling" validate:"oneof=batches features"`
	Tolerance           float64 `mapstructure:"tolerance" validate:"gt=0"`
	MaxIter             int     `mapstructure:"max_iter" validate:"gt=0"`
	AllowNonConvergence bool    `mapstructure:"allow_non_convergence"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

// Options converts the harmonize section into harmonize options.
func (c HarmonizeConfig) Options(features []string) []harmonize.Option {
	pooling, _ := harmonize.ParsePooling(c.Pooling)
	return []harmonize.Option{
		harmonize.WithEmpiricalBayes(c.EmpiricalBayes),
		harmonize.WithPooling(pooling),
		harmonize.WithTolerance(c.Tolerance),
		harmonize.WithMaxIter(c.MaxIter),
		harmonize.WithAllowNonConvergence(c.AllowNonConvergence),
		harmonize.WithFeatureNames(features...),
	}
}
