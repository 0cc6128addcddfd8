package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/harmonize"
	"github.com/YuminosukeSato/eegharmony/internal/config"
	"github.com/YuminosukeSato/eegharmony/internal/tableio"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
	"github.com/YuminosukeSato/eegharmony/pkg/log"
	"github.com/YuminosukeSato/eegharmony/report"
)

// Output file names.
const (
	harmonizedFile = "harmonized.csv"
	modelFile      = "model.json"
	paramsFile     = "params.json"
)

type params struct {
	RunID          string         `json:"run_id"`
	Config         *config.Config `json:"config"`
	Batches        []string       `json:"batches"`
	Covariates     []string       `json:"covariates"`
	EmpiricalBayes bool           `json:"empirical_bayes"`
	Pooling        string         `json:"pooling"`
}

// run executes one harmonize or apply job and returns the written summary.
func run(cfg *config.Config) (*report.Summary, error) {
	tbl, err := readTable(cfg.Input.Path)
	if err != nil {
		return nil, err
	}
	features := cfg.Input.Features
	X, err := harmonize.FeatureMatrix(tbl, features)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", cfg.Output.Dir)
	}

	var (
		m   *harmonize.Model
		d   *design.Matrix
		out *mat.Dense
	)
	switch cfg.Mode {
	case config.ModeApply:
		if m, err = loadModel(cfg.Output.ModelIn); err != nil {
			return nil, err
		}
		covariates := cfg.Input.Covariates
		if len(covariates) == 0 {
			covariates = modelSources(m)
		}
		opts := append(harmonize.CovariateOptions(tbl, cfg.Input.BatchColumn, covariates), design.WithAllowConstant(true))
		if d, err = design.Build(tbl, opts...); err != nil {
			return nil, err
		}
		if out, err = harmonize.Apply(X, d, m); err != nil {
			return nil, err
		}
	default:
		if d, err = design.Build(tbl, harmonize.CovariateOptions(tbl, cfg.Input.BatchColumn, cfg.Input.Covariates)...); err != nil {
			return nil, err
		}
		if out, m, err = harmonize.FitTransform(X, d, cfg.Harmonize.Options(features)...); err != nil {
			return nil, err
		}
	}

	summary := report.NewSummary(cfg.Mode, features, d)
	logger := log.GetLoggerWithName("cli").With(log.EstimatorIDKey, summary.RunID)

	written, err := writeOutputs(cfg, tbl, out, m, summary)
	if err != nil {
		return nil, err
	}

	if err := summary.Evaluate(X, out, d.Batch); err != nil {
		return nil, err
	}
	if len(d.BatchLevels) < 2 {
		summary.Note("single batch level in input; site variance ratio is zero by construction")
	}
	_, cols := d.Covariates()
	for _, c := range cols {
		if c.Kind != design.Continuous {
			continue
		}
		values := mat.Col(nil, d.ColumnIndex(c.Name), d.Data)
		if err := summary.AddPreservation(c.Name, X, out, values); err != nil {
			summary.Note("preservation for " + c.Name + " skipped: " + err.Error())
		}
	}
	summary.Outputs = append(baseNames(written), report.JSONFile, report.MarkdownFile, report.HTMLFile)
	if cfg.Output.Bundle {
		summary.Outputs = append(summary.Outputs, report.BundleFile)
	}

	reports, err := summary.WriteFiles(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	written = append(written, reports...)
	if cfg.Output.Bundle {
		if err := report.Bundle(filepath.Join(cfg.Output.Dir, report.BundleFile), written); err != nil {
			return nil, err
		}
	}

	logger.Info("run complete",
		log.OperationKey, cfg.Mode,
		log.SamplesKey, X.RawMatrix().Rows,
		log.FeaturesKey, len(features),
		log.RatioKey+".reduction_pp", summary.ReductionPP(),
	)
	return summary, nil
}

func writeOutputs(cfg *config.Config, tbl *design.Table, out *mat.Dense, m *harmonize.Model, s *report.Summary) ([]string, error) {
	dir := cfg.Output.Dir
	harmonized, err := harmonize.ReplaceFeatures(tbl, cfg.Input.Features, out)
	if err != nil {
		return nil, err
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s", path)
		}
		if err := fn(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "failed to close %s", path)
		}
		written = append(written, path)
		return nil
	}

	if err := write(harmonizedFile, func(w io.Writer) error { return tableio.WriteCSV(w, harmonized) }); err != nil {
		return nil, err
	}
	if cfg.Mode == config.ModeHarmonize {
		if err := write(modelFile, m.Save); err != nil {
			return nil, err
		}
	}
	p := params{
		RunID:          s.RunID,
		Config:         cfg,
		Batches:        m.Batches(),
		Covariates:     modelSources(m),
		EmpiricalBayes: m.EmpiricalBayes(),
		Pooling:        m.Pooling().String(),
	}
	err = write(paramsFile, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(p), "failed to encode params")
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func readTable(path string) (*design.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return tableio.ReadCSV(f)
}

func loadModel(path string) (*harmonize.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return harmonize.Load(f)
}

// modelSources lists the table columns the model's covariates came from.
func modelSources(m *harmonize.Model) []string {
	var out []string
	for _, c := range m.Covariates() {
		if !slices.Contains(out, c.Source) {
			out = append(out, c.Source)
		}
	}
	return out
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
