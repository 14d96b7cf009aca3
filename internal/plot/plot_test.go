package plot

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fembench/internal/storage"
)

// saveSeries stores a poisson-like run with time = size*degree/np.
func saveSeries(t *testing.T, st *storage.Store, s storage.Series) {
	t.Helper()
	var records []storage.Record
	for _, size := range []int{10, 20, 40} {
		for _, degree := range []int{1, 2} {
			y := float64(size*degree) / float64(s.NP)
			records = append(records, storage.Record{
				Params: map[string]string{"size": strconv.Itoa(size), "degree": strconv.Itoa(degree)},
				Regions: map[string]storage.RegionStats{
					"solve": {Samples: []float64{y}, Min: y, Mean: y},
					"total": {Samples: []float64{2 * y}, Min: 2 * y, Mean: 2 * y},
				},
			})
		}
	}
	_, err := st.Save(storage.RunMetadata{
		Benchmark:  "poisson",
		Series:     s,
		ParamNames: []string{"size", "degree"},
		Regions:    []string{"solve", "total"},
		Repeats:    1,
	}, records)
	require.NoError(t, err)
}

func newStore(t *testing.T) *storage.Store {
	st := storage.New(t.TempDir())
	saveSeries(t, st, storage.Series{NP: 1, Variant: "Go"})
	saveSeries(t, st, storage.Series{NP: 2, Variant: "Go"})
	saveSeries(t, st, storage.Series{NP: 4, Variant: "Go"})
	return st
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("LogLog")
	require.NoError(t, err)
	assert.True(t, k.LogX())
	assert.True(t, k.LogY())

	k, err = ParseKind("barlog")
	require.NoError(t, err)
	assert.True(t, k.IsBar())
	assert.False(t, k.LogX())

	_, err = ParseKind("pie")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestCombineSeriesByParam(t *testing.T) {
	st := newStore(t)
	lines, err := CombineSeries(st, "poisson", []storage.Series{{NP: 1, Variant: "Go"}}, Options{
		Kind:    KindLogLog,
		XAxis:   "size",
		Regions: []string{"solve"},
		Groups:  []string{"degree"},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Go (np=1) degree=1 solve", lines[0].Label)
	require.Len(t, lines[0].Points, 3)
	assert.Equal(t, []float64{10, 20, 40}, []float64{lines[0].Points[0].X, lines[0].Points[1].X, lines[0].Points[2].X})
	assert.Equal(t, 80.0, lines[1].Points[2].Y)
}

func TestCombineSeriesDefaultsAndFilter(t *testing.T) {
	st := newStore(t)
	lines, err := CombineSeries(st, "poisson", nil, Options{
		XAxis:  XNP,
		Filter: map[string]string{"size": "20", "degree": "1"},
	})
	require.NoError(t, err)
	// all series share one line per region when np is the x axis
	require.Len(t, lines, 2)
	assert.Equal(t, "solve", lines[0].Region)
	assert.Equal(t, "total", lines[1].Region)
	require.Len(t, lines[0].Points, 3)
	assert.Equal(t, 1.0, lines[0].Points[0].X)
	assert.Equal(t, "4", lines[0].Points[2].XLabel)
	assert.InDelta(t, 5.0, lines[0].Points[2].Y, 1e-12)
}

func TestCombineSeriesSpeedup(t *testing.T) {
	st := newStore(t)
	base := storage.Series{NP: 1, Variant: "Go"}
	lines, err := CombineSeries(st, "poisson", nil, Options{
		XAxis:   XNP,
		Regions: []string{"solve"},
		Filter:  map[string]string{"size": "40", "degree": "2"},
		Speedup: &base,
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	for _, p := range lines[0].Points {
		assert.InDelta(t, p.X, p.Y, 1e-12)
	}

	missing := storage.Series{NP: 8, Variant: "Go"}
	_, err = CombineSeries(st, "poisson", nil, Options{XAxis: XNP, Speedup: &missing})
	assert.True(t, errors.Is(err, ErrNoPoints))
}

func TestCombineSeriesErrors(t *testing.T) {
	st := newStore(t)
	_, err := CombineSeries(st, "wave", nil, Options{XAxis: XNP})
	assert.True(t, errors.Is(err, storage.ErrNoResults))

	_, err = CombineSeries(st, "poisson", nil, Options{XAxis: XNP, Regions: []string{"nope"}})
	assert.True(t, errors.Is(err, ErrNoPoints))
}

func TestEfficiencyTransforms(t *testing.T) {
	strong := []Point{{X: 1, Y: 8}, {X: 2, Y: 4}, {X: 4, Y: 4}}
	StrongEfficiency(strong)
	assert.Equal(t, []float64{1, 1, 0.5}, []float64{strong[0].Y, strong[1].Y, strong[2].Y})

	weak := []Point{{X: 1, Y: 2}, {X: 8, Y: 4}}
	WeakEfficiency(weak)
	assert.Equal(t, 0.5, weak[1].Y)

	tr, err := ParseTransform("strong")
	require.NoError(t, err)
	assert.NotNil(t, tr)
	tr, err = ParseTransform("")
	require.NoError(t, err)
	assert.Nil(t, tr)
	_, err = ParseTransform("amdahl")
	assert.Error(t, err)
}

func TestWriteHTML(t *testing.T) {
	st := newStore(t)
	lines, err := CombineSeries(st, "poisson", []storage.Series{{NP: 2, Variant: "Go"}}, Options{
		XAxis: "degree", Regions: []string{"solve"}, Filter: map[string]string{"size": "10"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, lines, Options{Kind: KindBar, Title: "Poisson degrees"}))
	assert.Contains(t, buf.String(), "echarts")
	assert.Contains(t, buf.String(), "Poisson degrees")

	buf.Reset()
	require.NoError(t, WriteHTML(&buf, lines, Options{Kind: KindLogLog, Styles: map[string]string{"solve": "+"}}))
	assert.Contains(t, buf.String(), "rect")

	assert.ErrorIs(t, WriteHTML(&buf, nil, Options{}), ErrNoPoints)
}

func TestSVG(t *testing.T) {
	lines := []Line{
		{Label: "Go solve", Region: "solve", Points: []Point{{X: 1, XLabel: "1", Y: 4}, {X: 2, XLabel: "2", Y: 2}, {X: 4, XLabel: "4", Y: 1}}},
		{Label: "Go <total>", Region: "total", Points: []Point{{X: 1, XLabel: "1", Y: 0}, {X: 2, XLabel: "2", Y: 3}}},
	}
	svg := SVG(lines, Options{Kind: KindLogLog, Title: "strong"}, 400, 300)
	assert.True(t, strings.HasPrefix(svg, "<?xml"))
	assert.True(t, strings.HasSuffix(svg, "</svg>"))
	// the zero point is dropped on the log axis
	assert.Equal(t, 4, strings.Count(svg, "<circle"))
	assert.Contains(t, svg, "Go &lt;total&gt;")

	assert.Empty(t, SVG(nil, Options{}, 400, 300))
}

func TestSaveFigure(t *testing.T) {
	dir := t.TempDir()
	lines := []Line{{Label: "a", Region: "solve", Points: []Point{{X: 1, Y: 1}, {X: 2, Y: 3}}}}
	paths, err := SaveFigure(dir, lines, Options{Kind: KindPlot, FigName: "fig"})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	_, err = SaveFigure(dir, lines, Options{})
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	lines := []Line{
		{Label: "mesh", Points: []Point{{X: 1, Y: 1}, {X: 2, Y: 10}, {X: 3, Y: 100}}},
		{Label: "single", Points: []Point{{X: 1, Y: 5}}},
	}
	out := Preview(lines, Options{Kind: KindSemiLogY, Title: "sweep"}, 40, 8)
	assert.Contains(t, out, "sweep (log10)")
	assert.Contains(t, out, "mesh")
	assert.Contains(t, out, "single")

	assert.Empty(t, Preview([]Line{{Label: "neg", Points: []Point{{X: 1, Y: -1}}}}, Options{Kind: KindLogLog}, 40, 8))
}
