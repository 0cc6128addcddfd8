package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "EEGHARMONY"

// FileKey names the viper key holding an optional config file path.
const FileKey = "config"

var validate = validator.New()

// SetDefaults registers every key with its default so that environment
// variables are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeHarmonize)
	v.SetDefault("input.path", "")
	v.SetDefault("input.features", []string{})
	v.SetDefault("input.batch", "batch")
	v.SetDefault("input.covariates", []string{})
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.model_in", "")
	v.SetDefault("output.bundle", true)
	v.SetDefault("harmonize.empirical_bayes", true)
	v.SetDefault("harmonize.pooling", "batches")
	v.SetDefault("harmonize.tolerance", 1e-4)
	v.SetDefault("harmonize.max_iter", 1000)
	v.SetDefault("harmonize.allow_non_convergence", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load resolves the configuration held by v and validates it. Flags should be
// bound to v before calling Load.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString(FileKey); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewValidationError(fe.Namespace(), "failed '"+fe.Tag()+"' rule", fe.Value())
		}
		return errors.Wrap(err, "invalid configuration")
	}
	if c.Mode == ModeApply && c.Output.ModelIn == "" {
		return errors.NewValidationError("Config.Output.ModelIn", "apply mode requires a stored model", "")
	}
	for _, cov := range c.Input.Covariates {
		if cov == c.Input.BatchColumn {
			return errors.NewValidationError("Config.Input.Covariates", "batch column cannot also be a covariate", cov)
		}
	}
	return nil
}
