package main

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/internal/config"
	"github.com/YuminosukeSato/eegharmony/internal/tableio"
	"github.com/YuminosukeSato/eegharmony/report"
)

func writeSyntheticCSV(t *testing.T, dir string) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(17, 29))
	const perSite = 40
	sites := []struct {
		name          string
		offset, scale float64
	}{{"A", 0, 1}, {"B", 3, 2}}

	n := perSite * len(sites)
	site := make([]string, 0, n)
	sex := make([]string, 0, n)
	age := make([]float64, 0, n)
	alpha := make([]float64, 0, n)
	beta := make([]float64, 0, n)
	for _, s := range sites {
		for i := 0; i < perSite; i++ {
			a := 20 + 50*rng.Float64()
			site = append(site, s.name)
			sex = append(sex, []string{"F", "M"}[i%2])
			age = append(age, a)
			alpha = append(alpha, s.offset+0.1*a+s.scale*rng.NormFloat64())
			beta = append(beta, 1+s.offset/2+s.scale*rng.NormFloat64())
		}
	}
	tbl := design.NewTable(n)
	require.NoError(t, tbl.AddStrings("site", site))
	require.NoError(t, tbl.AddStrings("sex", sex))
	require.NoError(t, tbl.AddNumbers("age", age))
	require.NoError(t, tbl.AddNumbers("alpha", alpha))
	require.NoError(t, tbl.AddNumbers("beta", beta))

	path := filepath.Join(dir, "features.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, tableio.WriteCSV(f, tbl))
	return path
}

func baseConfig(input, out string) *config.Config {
	return &config.Config{
		Mode: config.ModeHarmonize,
		Input: config.InputConfig{
			Path:        input,
			Features:    []string{"alpha", "beta"},
			BatchColumn: "site",
			Covariates:  []string{"age", "sex"},
		},
		Output: config.OutputConfig{Dir: out, Bundle: true},
		Harmonize: config.HarmonizeConfig{
			EmpiricalBayes: true, Pooling: "batches", Tolerance: 1e-4, MaxIter: 1000,
		},
		Log: config.LogConfig{Level: "warn"},
	}
}

func TestRunHarmonizeThenApply(t *testing.T) {
	dir := t.TempDir()
	input := writeSyntheticCSV(t, dir)
	outDir := filepath.Join(dir, "out")

	summary, err := run(baseConfig(input, outDir))
	require.NoError(t, err)
	assert.Less(t, summary.SiteVarianceRatioPost, summary.SiteVarianceRatioPre)
	assert.Less(t, summary.SiteVarianceRatioPost, 0.05)
	assert.NotEmpty(t, summary.PreservationDeltas)

	for _, name := range []string{
		harmonizedFile, modelFile, paramsFile,
		report.JSONFile, report.MarkdownFile, report.HTMLFile, report.BundleFile,
	} {
		assert.FileExists(t, filepath.Join(outDir, name))
		assert.Contains(t, summary.Outputs, name)
	}

	// apply the stored model to the same rows: identical features
	applyCfg := baseConfig(input, filepath.Join(dir, "applied"))
	applyCfg.Mode = config.ModeApply
	applyCfg.Input.Covariates = nil
	applyCfg.Output.ModelIn = filepath.Join(outDir, modelFile)
	applyCfg.Output.Bundle = false
	_, err = run(applyCfg)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "applied", modelFile))
	assert.NoFileExists(t, filepath.Join(dir, "applied", report.BundleFile))

	learned := readColumn(t, filepath.Join(outDir, harmonizedFile), "alpha")
	applied := readColumn(t, filepath.Join(dir, "applied", harmonizedFile), "alpha")
	require.Len(t, applied, len(learned))
	for i := range learned {
		assert.InDelta(t, learned[i], applied[i], 1e-9)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	input := writeSyntheticCSV(t, dir)

	t.Run("missing input", func(t *testing.T) {
		_, err := run(baseConfig(filepath.Join(dir, "absent.csv"), dir))
		assert.Error(t, err)
	})
	t.Run("unknown feature", func(t *testing.T) {
		cfg := baseConfig(input, dir)
		cfg.Input.Features = []string{"delta"}
		_, err := run(cfg)
		assert.Error(t, err)
	})
	t.Run("apply with missing model", func(t *testing.T) {
		cfg := baseConfig(input, dir)
		cfg.Mode = config.ModeApply
		cfg.Output.ModelIn = filepath.Join(dir, "absent.json")
		_, err := run(cfg)
		assert.Error(t, err)
	})
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeSyntheticCSV(t, dir)
	outDir := filepath.Join(dir, "cli")

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"harmonize",
		"--input", input,
		"--features", "alpha,beta",
		"--batch", "site",
		"--covariates", "age",
		"--out", outDir,
		"--log-level", "error",
	})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(outDir, report.BundleFile))

	bad := newRootCmd()
	bad.SetArgs([]string{"apply", "--input", input, "--features", "alpha", "--out", outDir})
	assert.Error(t, bad.Execute())
}

func readColumn(t *testing.T, path, name string) []float64 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	tbl, err := tableio.ReadCSV(f)
	require.NoError(t, err)
	c, ok := tbl.Column(name)
	require.True(t, ok)
	return c.Numbers
}
