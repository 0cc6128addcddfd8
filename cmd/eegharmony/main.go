// Command eegharmony harmonizes site effects in tabular EEG features.
//
//	eegharmony harmonize --input features.csv --features alpha,beta --batch site --covariates age,sex --out outdir
//	eegharmony apply --input new.csv --features alpha,beta --batch site --model-in outdir/model.json --out applied
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/eegharmony/internal/config"
	"github.com/YuminosukeSato/eegharmony/pkg/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "eegharmony",
		Short:         "Empirical-Bayes site harmonization for EEG features",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newRunCmd(config.ModeHarmonize, "Learn a harmonization model and apply it to the input"),
		newRunCmd(config.ModeApply, "Apply a stored harmonization model to new data"),
	)
	return rootCmd
}

func newRunCmd(mode, short string) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// a missing .env is normal
			_ = godotenv.Load()

			v.Set("mode", mode)
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := log.Configure(os.Stderr, cfg.Log.Level, cfg.Log.Pretty); err != nil {
				return err
			}
			_, err = run(cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.String("config", "", "optional config file (yaml, json or toml)")
	f.String("input", "", "input CSV with a header row")
	f.StringSlice("features", nil, "feature columns to harmonize")
	f.String("batch", "batch", "batch (site) column")
	f.StringSlice("covariates", nil, "covariate columns whose effects are preserved")
	f.String("out", ".", "output directory")
	f.String("model-in", "", "stored model.json (required for apply)")
	f.Bool("bundle", true, "write results_bundle.zip")
	f.Bool("empirical-bayes", true, "shrink batch estimates toward their priors")
	f.String("pooling", "batches", "prior pooling: batches or features")
	f.Float64("tol", 1e-4, "shrinkage convergence tolerance")
	f.Int("max-iter", 1000, "shrinkage iteration cap")
	f.Bool("allow-non-convergence", false, "keep the last shrinkage iterate instead of failing")
	f.String("log-level", "info", "debug, info, warn or error")
	f.Bool("log-pretty", false, "human-readable logs")

	for key, flag := range map[string]string{
		config.FileKey:                    "config",
		"input.path":                      "input",
		"input.features":                  "features",
		"input.batch":                     "batch",
		"input.covariates":                "covariates",
		"output.dir":                      "out",
		"output.model_in":                 "model-in",
		"output.bundle":                   "bundle",
		"harmonize.empirical_bayes":       "empirical-bayes",
		"harmonize.pooling":               "pooling",
		"harmonize.tolerance":             "tol",
		"harmonize.max_iter":              "max-iter",
		"harmonize.allow_non_convergence": "allow-non-convergence",
		"log.level":                       "log-level",
		"log.pretty":                      "log-pretty",
	} {
		// Lookup never fails for flags registered above
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}
