// Package report summarizes a harmonization run and writes it out as JSON,
// Markdown and HTML, optionally zipped together with the run's other outputs.
package report

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/metrics"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
	"github.com/YuminosukeSato/eegharmony/pkg/log"
)

// FeatureSummary holds the per-feature site variance ratios of a run.
type FeatureSummary struct {
	Name      string  `json:"name"`
	RatioPre  float64 `json:"site_variance_ratio_pre"`
	RatioPost float64 `json:"site_variance_ratio_post"`
}

// Preservation is the slope change of one feature against one covariate.
type Preservation struct {
	Covariate string  `json:"covariate"`
	Feature   string  `json:"feature"`
	Delta     float64 `json:"delta"`
}

// Summary describes one harmonize or apply run.
type Summary struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Mode        string    `json:"mode"`
	Samples     int       `json:"samples"`
	Features    []string  `json:"features"`
	BatchColumn string    `json:"batch_column"`
	Batches     []string  `json:"batches"`
	Covariates  []string  `json:"covariates,omitempty"`

	SiteVarianceRatioPre  float64 `json:"site_variance_ratio_pre"`
	SiteVarianceRatioPost float64 `json:"site_variance_ratio_post"`
	MedianRatioPre        float64 `json:"median_ratio_pre"`
	MedianRatioPost       float64 `json:"median_ratio_post"`
	MeanAbsChange         float64 `json:"mean_abs_change"`
	RMSChange             float64 `json:"rms_change"`

	PerFeature         []FeatureSummary `json:"per_feature"`
	PreservationDeltas []Preservation   `json:"preservation_deltas,omitempty"`
	Outputs            []string         `json:"outputs,omitempty"`
	Notes              []string         `json:"notes,omitempty"`
}

// NewSummary starts a summary with a fresh run id.
func NewSummary(mode string, features []string, d *design.Matrix) *Summary {
	s := &Summary{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Mode:      mode,
		Features:  append([]string(nil), features...),
	}
	if d != nil {
		s.Samples = d.Rows()
		s.BatchColumn = d.BatchColumn
		s.Batches = append([]string(nil), d.BatchLevels...)
		_, cols := d.Covariates()
		for _, c := range cols {
			s.Covariates = append(s.Covariates, c.Name)
		}
	}
	return s
}

// Evaluate fills the site variance ratios before and after harmonization.
func (s *Summary) Evaluate(pre, post mat.Matrix, batch []string) error {
	before, err := metrics.SiteVarianceRatios(pre, batch)
	if err != nil {
		return errors.Wrap(err, "pre-harmonization ratios")
	}
	after, err := metrics.SiteVarianceRatios(post, batch)
	if err != nil {
		return errors.Wrap(err, "post-harmonization ratios")
	}
	if len(s.Features) != 0 && len(s.Features) != len(before) {
		return errors.NewDimensionError("report.Evaluate", len(s.Features), len(before), 1)
	}

	s.PerFeature = make([]FeatureSummary, len(before))
	for j := range before {
		s.PerFeature[j] = FeatureSummary{Name: s.featureName(j), RatioPre: before[j], RatioPost: after[j]}
	}
	if s.SiteVarianceRatioPre, err = stats.Mean(before); err != nil {
		return errors.Wrap(err, "mean ratio")
	}
	if s.SiteVarianceRatioPost, err = stats.Mean(after); err != nil {
		return errors.Wrap(err, "mean ratio")
	}
	if s.MedianRatioPre, err = stats.Median(before); err != nil {
		return errors.Wrap(err, "median ratio")
	}
	if s.MedianRatioPost, err = stats.Median(after); err != nil {
		return errors.Wrap(err, "median ratio")
	}

	if s.MeanAbsChange, err = metrics.MeanAbsoluteChange(pre, post); err != nil {
		return err
	}
	if s.RMSChange, err = metrics.RMSChange(pre, post); err != nil {
		return err
	}

	log.GetLoggerWithName("report").Info("site variance ratio",
		log.RatioKey+".pre", s.SiteVarianceRatioPre,
		log.RatioKey+".post", s.SiteVarianceRatioPost,
	)
	return nil
}

// AddPreservation records |slope change| of every feature against a
// continuous covariate column.
func (s *Summary) AddPreservation(covariate string, pre, post mat.Matrix, values []float64) error {
	deltas, err := metrics.PreservationDeltas(pre, post, values)
	if err != nil {
		return errors.Wrapf(err, "preservation for %q", covariate)
	}
	for j, d := range deltas {
		s.PreservationDeltas = append(s.PreservationDeltas, Preservation{
			Covariate: covariate,
			Feature:   s.featureName(j),
			Delta:     d,
		})
	}
	return nil
}

// Note appends a free-form remark.
func (s *Summary) Note(msg string) {
	s.Notes = append(s.Notes, msg)
}

// ReductionPP returns the drop of the mean site variance ratio in
// percentage points.
func (s *Summary) ReductionPP() float64 {
	return 100 * (s.SiteVarianceRatioPre - s.SiteVarianceRatioPost)
}

func (s *Summary) featureName(j int) string {
	if j < len(s.Features) {
		return s.Features[j]
	}
	return "feature_" + strconv.Itoa(j)
}

// WriteJSON writes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "failed to encode summary")
	}
	return nil
}

// ReadJSON decodes a summary written by WriteJSON.
func ReadJSON(r io.Reader) (*Summary, error) {
	var s Summary
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "failed to decode summary")
	}
	return &s, nil
}
