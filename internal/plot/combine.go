package plot

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/fembench/internal/storage"
)

var (
	ErrUnknownKind = errors.New("plot: unknown plot kind")
	ErrNoPoints    = errors.New("plot: nothing to plot")
)

type Kind string

const (
	KindPlot     Kind = "plot"
	KindLogLog   Kind = "loglog"
	KindSemiLogX Kind = "semilogx"
	KindSemiLogY Kind = "semilogy"
	KindBar      Kind = "bar"
	KindBarLog   Kind = "barlog"
)

var kinds = []Kind{KindPlot, KindLogLog, KindSemiLogX, KindSemiLogY, KindBar, KindBarLog}

func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == strings.ToLower(s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) LogX() bool { return k == KindLogLog || k == KindSemiLogX }

func (k Kind) LogY() bool { return k == KindLogLog || k == KindSemiLogY || k == KindBarLog }

func (k Kind) IsBar() bool { return k == KindBar || k == KindBarLog }

// XNP selects the rank count of a series as x axis.
const XNP = "np"

// Options select and shape the data of one figure.
type Options struct {
	Kind    Kind
	XAxis   string
	Regions []string
	// Groups are params that split the data into separate lines.
	Groups []string
	// Filter keeps only records whose params have these values.
	Filter map[string]string
	// SeriesFilter adds a filter per series, e.g. the mesh scale each rank
	// count ran at in a weak scaling study.
	SeriesFilter func(s storage.Series) map[string]string
	// XValues maps param values to numeric x; the value itself is parsed
	// otherwise.
	XValues     map[string]float64
	XTickLabels []string
	XLabel      string
	YLabel      string
	Title       string
	FigName     string
	YMin        *float64
	Transform   Transform
	// Speedup divides the baseline series time by every time.
	Speedup *storage.Series
	// Styles maps regions to marker styles.
	Styles map[string]string
}

type Point struct {
	X      float64
	XLabel string
	Y      float64
	Std    float64
}

type Line struct {
	Label  string
	Region string
	Series storage.Series
	Points []Point
}

type sample struct {
	series storage.Series
	params map[string]string
	region string
	mean   float64
	std    float64
}

// CombineSeries loads the given series of a benchmark and arranges the
// requested regions into lines over the x axis.
func CombineSeries(st *storage.Store, benchmark string, series []storage.Series, o Options) ([]Line, error) {
	if len(series) == 0 {
		runs, err := st.ListBenchmark(benchmark)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			series = append(series, r.Series)
		}
	}
	var samples []sample
	var defaultRegions []string
	for _, s := range series {
		id := storage.RunID(benchmark, s)
		meta, err := st.Load(id)
		if err != nil {
			return nil, err
		}
		if defaultRegions == nil {
			defaultRegions = meta.Regions
		}
		records, err := st.LoadRecords(id)
		if err != nil {
			return nil, err
		}
		var extra map[string]string
		if o.SeriesFilter != nil {
			extra = o.SeriesFilter(s)
		}
		for _, rec := range records {
			if !matches(rec.Params, o.Filter) || !matches(rec.Params, extra) {
				continue
			}
			for name, rs := range rec.Regions {
				samples = append(samples, sample{series: s, params: rec.Params, region: name, mean: rs.Mean, std: rs.Std})
			}
		}
	}
	if len(o.Regions) == 0 {
		o.Regions = defaultRegions
	}

	if o.Speedup != nil {
		var err error
		if samples, err = speedup(samples, *o.Speedup); err != nil {
			return nil, err
		}
	}

	lines := buildLines(samples, o)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPoints, benchmark)
	}
	if o.Transform != nil {
		for i := range lines {
			o.Transform(lines[i].Points)
		}
	}
	return lines, nil
}

func matches(params, filter map[string]string) bool {
	for k, v := range filter {
		if params[k] != v {
			return false
		}
	}
	return true
}

func (o Options) xOf(s sample) (float64, string) {
	if o.XAxis == XNP {
		return float64(s.series.NP), strconv.Itoa(s.series.NP)
	}
	raw := s.params[o.XAxis]
	if x, ok := o.XValues[raw]; ok {
		return x, raw
	}
	x, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, raw
	}
	return x, raw
}

// lineLabel identifies the line a sample belongs to. With np on the x axis
// series of one variant share a line.
func (o Options) lineLabel(s sample) string {
	var parts []string
	if o.XAxis == XNP {
		parts = append(parts, s.series.Variant)
	} else {
		parts = append(parts, s.series.String())
	}
	for _, g := range o.Groups {
		parts = append(parts, g+"="+s.params[g])
	}
	return strings.Join(parts, " ") + " " + s.region
}

func buildLines(samples []sample, o Options) []Line {
	wanted := make(map[string]int, len(o.Regions))
	for i, r := range o.Regions {
		wanted[r] = i
	}
	byKey := make(map[string]*Line)
	var keys []string
	for _, s := range samples {
		if _, ok := wanted[s.region]; !ok {
			continue
		}
		key := o.lineLabel(s)
		l, ok := byKey[key]
		if !ok {
			l = &Line{Label: key, Region: s.region, Series: s.series}
			byKey[key] = l
			keys = append(keys, key)
		}
		x, xl := o.xOf(s)
		l.Points = append(l.Points, Point{X: x, XLabel: xl, Y: s.mean, Std: s.std})
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := byKey[keys[i]], byKey[keys[j]]
		if wanted[a.Region] != wanted[b.Region] {
			return wanted[a.Region] < wanted[b.Region]
		}
		return keys[i] < keys[j]
	})
	lines := make([]Line, 0, len(keys))
	for _, k := range keys {
		l := byKey[k]
		sort.Slice(l.Points, func(i, j int) bool { return l.Points[i].X < l.Points[j].X })
		lines = append(lines, *l)
	}
	return lines
}
