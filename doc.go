// Package eegharmony removes site (batch) effects from EEG features while
// keeping the effects of biological covariates such as age or sex.
//
// Harmonization follows the location/scale Empirical-Bayes model: per-site
// shifts and scalings of standardized residuals are estimated, shrunk toward
// priors pooled across sites, and removed. Learned models are immutable and
// can be stored and applied to new sessions without re-estimation.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/eegharmony/design"
//	    "github.com/YuminosukeSato/eegharmony/harmonize"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    d, err := design.FromLabels([]string{"A", "A", "A", "B", "B", "B"})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    X := mat.NewDense(6, 1, []float64{1, 2, 3, 11, 12, 13})
//
//	    out, model, err := harmonize.FitTransform(X, d)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(mat.Formatted(out), model.Batches())
//	}
//
// # Packages
//
//   - design: covariate tables and design matrices (batch one-hot, categorical, continuous)
//   - harmonize: Empirical-Bayes learn/apply, immutable models and persistence
//   - riemann: SPD covariance harmonization in the tangent space at the geodesic mean
//   - metrics: site variance ratio, covariate preservation delta
//   - linear: least squares used by the harmonizer and metrics
//   - report: run summaries as JSON, Markdown, HTML and a zip bundle
//   - core/model: estimator bases, versioned artifacts, gob persistence
//   - core/parallel: row-parallel helpers
//   - pkg/errors, pkg/log: structured errors, warnings and zerolog-backed logging
//
// The eegharmony command (cmd/eegharmony) wraps the pipeline for CSV tables.
//
// # License
//
// eegharmony is released under the MIT License.
package eegharmony
