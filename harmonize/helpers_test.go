package harmonize

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/eegharmony/design"
)

type site struct {
	name   string
	n      int
	center float64
	scale  float64
}

// synthetic generates p features per observation: center + scale*noise +
// 0.05*age for each site, with age uniform in [20, 70).
func synthetic(t *testing.T, seed uint64, p int, sites ...site) (*mat.Dense, *design.Table) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))

	var labels []string
	var ages []float64
	var rows [][]float64
	for _, s := range sites {
		for i := 0; i < s.n; i++ {
			age := 20 + 50*rng.Float64()
			row := make([]float64, p)
			for j := range row {
				row[j] = s.center + float64(j) + s.scale*rng.NormFloat64() + 0.05*age
			}
			labels = append(labels, s.name)
			ages = append(ages, age)
			rows = append(rows, row)
		}
	}

	X := mat.NewDense(len(rows), p, nil)
	for i, row := range rows {
		X.SetRow(i, row)
	}
	tbl := design.NewTable(len(rows))
	require.NoError(t, tbl.AddStrings("site", labels))
	require.NoError(t, tbl.AddNumbers("age", ages))
	return X, tbl
}

func buildDesign(t *testing.T, tbl *design.Table, opts ...design.Option) *design.Matrix {
	t.Helper()
	opts = append([]design.Option{design.WithBatchColumn("site")}, opts...)
	d, err := design.Build(tbl, opts...)
	require.NoError(t, err)
	return d
}

func batchMeans(X mat.Matrix, labels []string, j int) map[string]float64 {
	sum := map[string]float64{}
	cnt := map[string]float64{}
	for i, l := range labels {
		sum[l] += X.At(i, j)
		cnt[l]++
	}
	for l := range sum {
		sum[l] /= cnt[l]
	}
	return sum
}
