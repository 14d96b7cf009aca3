package plot

import (
	"fmt"
	"slices"
	"strings"

	"github.com/san-kum/fembench/internal/storage"
)

// Transform rewrites the points of one line, sorted by x. The first point
// is the baseline.
type Transform func(points []Point)

// StrongEfficiency is x[b]*y[b] / (x*y): ideal strong scaling keeps x*y
// constant.
func StrongEfficiency(points []Point) {
	if len(points) == 0 {
		return
	}
	b := points[0].X * points[0].Y
	for i := range points {
		points[i].Y = b / (points[i].X * points[i].Y)
		points[i].Std = 0
	}
}

// WeakEfficiency is y[b] / y: ideal weak scaling keeps y constant.
func WeakEfficiency(points []Point) {
	if len(points) == 0 {
		return
	}
	b := points[0].Y
	for i := range points {
		points[i].Y = b / points[i].Y
		points[i].Std = 0
	}
}

// ParseTransform maps "strong" and "weak" to their efficiency transform.
func ParseTransform(name string) (Transform, error) {
	switch strings.ToLower(name) {
	case "":
		return nil, nil
	case "strong":
		return StrongEfficiency, nil
	case "weak":
		return WeakEfficiency, nil
	}
	return nil, fmt.Errorf("plot: unknown transform %q", name)
}

// speedup replaces every mean by base/mean, base being the time of the
// baseline series for the same region and params. With np on the x axis
// this compares against the baseline rank count.
func speedup(samples []sample, base storage.Series) ([]sample, error) {
	key := func(s sample) string {
		names := make([]string, 0, len(s.params))
		for k := range s.params {
			names = append(names, k)
		}
		slices.Sort(names)
		return s.region + ";" + storage.ParamKey(s.params, names)
	}
	baseline := make(map[string]float64)
	for _, s := range samples {
		if s.series == base {
			baseline[key(s)] = s.mean
		}
	}
	if len(baseline) == 0 {
		return nil, fmt.Errorf("%w: speedup baseline %s missing", ErrNoPoints, base)
	}
	out := samples[:0]
	for _, s := range samples {
		b, ok := baseline[key(s)]
		if !ok || s.mean == 0 {
			continue
		}
		s.mean = b / s.mean
		s.std = 0
		out = append(out, s)
	}
	return out, nil
}
