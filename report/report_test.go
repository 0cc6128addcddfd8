package report

import (
	"archive/zip"
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/design"
)

func fixture(t *testing.T) (*Summary, *mat.Dense, *mat.Dense, []float64) {
	t.Helper()
	batch := []string{"A", "A", "A", "B", "B", "B"}
	d, err := design.FromLabels(batch)
	require.NoError(t, err)

	// feature 0 carries a site offset of 10, feature 1 none
	pre := mat.NewDense(6, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
		11, 1,
		12, 2,
		13, 3,
	})
	post := mat.NewDense(6, 2, []float64{
		6, 1,
		7, 2,
		8, 3,
		6, 1,
		7, 2,
		8, 3,
	})
	age := []float64{1, 2, 3, 1, 2, 3}

	s := NewSummary("harmonize", []string{"alpha", "beta"}, d)
	require.NoError(t, s.Evaluate(pre, post, d.Batch))
	return s, pre, post, age
}

func TestSummaryEvaluate(t *testing.T) {
	s, pre, post, age := fixture(t)

	_, err := uuid.Parse(s.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 6, s.Samples)
	assert.Equal(t, "batch", s.BatchColumn)
	assert.Equal(t, []string{"A", "B"}, s.Batches)

	require.Len(t, s.PerFeature, 2)
	assert.Equal(t, "alpha", s.PerFeature[0].Name)
	assert.Greater(t, s.PerFeature[0].RatioPre, 0.9)
	assert.InDelta(t, 0, s.PerFeature[0].RatioPost, 1e-9)
	assert.InDelta(t, 0, s.PerFeature[1].RatioPre, 1e-9)
	assert.Greater(t, s.SiteVarianceRatioPre, s.SiteVarianceRatioPost)
	assert.Greater(t, s.ReductionPP(), 40.0)
	assert.InDelta(t, 2.5, s.MeanAbsChange, 1e-12)
	assert.InDelta(t, math.Sqrt(12.5), s.RMSChange, 1e-12)

	require.NoError(t, s.AddPreservation("age", pre, post, age))
	require.Len(t, s.PreservationDeltas, 2)
	assert.Equal(t, "beta", s.PreservationDeltas[1].Feature)
	assert.InDelta(t, 0, s.PreservationDeltas[1].Delta, 1e-9)
}

func TestSummaryEvaluateErrors(t *testing.T) {
	s := NewSummary("apply", []string{"only"}, nil)
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	assert.Error(t, s.Evaluate(X, X, []string{"a", "b"}))
	assert.Error(t, s.Evaluate(X, X, []string{"a"}))
}

func TestMarkdown(t *testing.T) {
	s, _, _, _ := fixture(t)
	s.Note("single covariate")
	md := s.Markdown()

	assert.Contains(t, md, "# Harmonization summary")
	assert.Contains(t, md, s.RunID)
	assert.Contains(t, md, "`batch` (2 levels: A, B)")
	assert.Contains(t, md, "| alpha |")
	assert.Contains(t, md, "change (pp)")
	assert.Contains(t, md, "- single covariate")
	// alpha drops from a high ratio to 0.00%
	assert.Contains(t, md, "| 0.00% |")
}

func TestWriteFilesAndBundle(t *testing.T) {
	s, _, _, _ := fixture(t)
	dir := t.TempDir()

	paths, err := s.WriteFiles(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	htmlBytes, err := os.ReadFile(filepath.Join(dir, HTMLFile))
	require.NoError(t, err)
	assert.Contains(t, string(htmlBytes), "<table>")
	assert.Contains(t, string(htmlBytes), "<title>Harmonization summary")

	f, err := os.Open(filepath.Join(dir, JSONFile))
	require.NoError(t, err)
	defer f.Close()
	back, err := ReadJSON(f)
	require.NoError(t, err)
	assert.Equal(t, s.RunID, back.RunID)
	assert.Equal(t, s.PerFeature, back.PerFeature)

	dest := filepath.Join(dir, BundleFile)
	require.NoError(t, Bundle(dest, paths))
	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, e := range zr.File {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{HTMLFile, JSONFile, MarkdownFile}, names)

	assert.Error(t, Bundle(filepath.Join(dir, "x.zip"), []string{filepath.Join(dir, "missing")}))
}

func TestWriteJSONIsIndented(t *testing.T) {
	s, _, _, _ := fixture(t)
	var buf bytes.Buffer
	require.NoError(t, s.WriteJSON(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \"run_id\""))
}
