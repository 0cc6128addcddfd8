// Package tableio reads and writes design.Tables as CSV with a header row.
package tableio

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/eegharmony/design"
	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// missing cell spellings accepted in numeric columns
var missingTokens = map[string]bool{"": true, "na": true, "nan": true, "null": true}

// ReadCSV parses a CSV table. A column is numeric when every non-missing
// cell parses as a float and at least one cell is present; missing cells in
// numeric columns become NaN. All other columns are kept as strings.
func ReadCSV(r io.Reader) (*design.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse csv")
	}
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "csv has no header")
	}
	header, rows := records[0], records[1:]
	t := design.NewTable(len(rows))
	for j, name := range header {
		raw := make([]string, len(rows))
		for i, rec := range rows {
			raw[i] = rec[j]
		}
		if nums, ok := parseNumeric(raw); ok {
			err = t.AddNumbers(strings.TrimSpace(name), nums)
		} else {
			err = t.AddStrings(strings.TrimSpace(name), raw)
		}
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

func parseNumeric(raw []string) ([]float64, bool) {
	out := make([]float64, len(raw))
	present := 0
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if missingTokens[strings.ToLower(s)] {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
		present++
	}
	return out, present > 0
}

// WriteCSV writes t with a header row. NaN cells are written empty.
func WriteCSV(w io.Writer, t *design.Table) error {
	cw := csv.NewWriter(w)
	names := t.Names()
	if err := cw.Write(names); err != nil {
		return errors.Wrap(err, "failed to write csv header")
	}
	cols := make([]design.TableColumn, len(names))
	for j, name := range names {
		cols[j], _ = t.Column(name)
	}
	rec := make([]string, len(names))
	for i := 0; i < t.Rows(); i++ {
		for j, c := range cols {
			if !c.IsNumeric() {
				rec[j] = c.Strings[i]
				continue
			}
			if v := c.Numbers[i]; math.IsNaN(v) {
				rec[j] = ""
			} else {
				rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "failed to write csv row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush csv")
}
