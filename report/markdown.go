package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// Markdown renders the summary as a Markdown document.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("# Harmonization summary\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", s.RunID)
	fmt.Fprintf(&b, "- Mode: %s\n", s.Mode)
	fmt.Fprintf(&b, "- Samples: %d\n", s.Samples)
	fmt.Fprintf(&b, "- Batch column: `%s` (%d levels: %s)\n", s.BatchColumn, len(s.Batches), strings.Join(s.Batches, ", "))
	if len(s.Covariates) > 0 {
		fmt.Fprintf(&b, "- Covariates: %s\n", strings.Join(s.Covariates, ", "))
	}
	b.WriteString("\n## Site variance ratio\n\n")
	b.WriteString("| statistic | pre | post | change (pp) |\n|---|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| mean | %s | %s | %s |\n", pct(s.SiteVarianceRatioPre), pct(s.SiteVarianceRatioPost),
		pp(s.SiteVarianceRatioPre, s.SiteVarianceRatioPost))
	fmt.Fprintf(&b, "| median | %s | %s | %s |\n", pct(s.MedianRatioPre), pct(s.MedianRatioPost),
		pp(s.MedianRatioPre, s.MedianRatioPost))

	fmt.Fprintf(&b, "\nMean absolute change: %.4g (RMS %.4g)\n", s.MeanAbsChange, s.RMSChange)

	if len(s.PerFeature) > 0 {
		b.WriteString("\n## Per feature\n\n")
		b.WriteString("| feature | pre | post | change (pp) |\n|---|---:|---:|---:|\n")
		for _, f := range s.PerFeature {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", f.Name, pct(f.RatioPre), pct(f.RatioPost), pp(f.RatioPre, f.RatioPost))
		}
	}

	if len(s.PreservationDeltas) > 0 {
		b.WriteString("\n## Covariate preservation\n\n")
		b.WriteString("| covariate | feature | slope change |\n|---|---|---:|\n")
		for _, p := range s.PreservationDeltas {
			fmt.Fprintf(&b, "| %s | %s | %.4g |\n", p.Covariate, p.Feature, p.Delta)
		}
	}

	if len(s.Notes) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, n := range s.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return b.String()
}

// WriteMarkdown writes Markdown() to w.
func (s *Summary) WriteMarkdown(w io.Writer) error {
	if _, err := io.WriteString(w, s.Markdown()); err != nil {
		return errors.Wrap(err, "failed to write markdown summary")
	}
	return nil
}

// WriteHTML renders the Markdown summary as a standalone HTML page.
func (s *Summary) WriteHTML(w io.Writer) error {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Harmonization summary " + s.RunID,
	})
	out := markdown.ToHTML([]byte(s.Markdown()), p, r)
	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, "failed to write html summary")
	}
	return nil
}

func pct(v float64) string {
	return strconv.FormatFloat(100*v, 'f', 2, 64) + "%"
}

func pp(pre, post float64) string {
	return strconv.FormatFloat(100*(post-pre), 'f', 2, 64)
}
