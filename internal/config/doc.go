// Package config loads and validates the eegharmony CLI configuration.
//
// Values are resolved in viper's usual order: explicit flags, then
// EEGHARMONY_-prefixed environment variables, then an optional config file,
// then defaults. Nested keys map to environment variables by replacing dots
// with underscores, e.g. harmonize.max_iter becomes EEGHARMONY_HARMONIZE_MAX_ITER.
package config
