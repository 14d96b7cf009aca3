package plot

import (
	"slices"

	"github.com/san-kum/fembench/internal/storage"
)

// Selection names the series a set of figures is drawn from.
type Selection struct {
	Variants []string
	// NPs are the rank counts of parallel runs.
	NPs []int
	// Base is the reference series for speedup plots.
	Base storage.Series
}

// Series expands the variants over the given rank counts, or over NPs when
// none are given.
func (s Selection) Series(nps ...int) []storage.Series {
	if len(nps) == 0 {
		nps = s.NPs
	}
	variants := s.Variants
	if len(variants) == 0 {
		variants = []string{s.Base.Variant}
	}
	var out []storage.Series
	for _, v := range variants {
		for _, np := range nps {
			out = append(out, storage.Series{NP: np, Variant: v})
		}
	}
	return out
}

// WithBase adds the base series unless it is already selected.
func (s Selection) WithBase(series []storage.Series) []storage.Series {
	if slices.Contains(series, s.Base) {
		return series
	}
	return append(slices.Clone(series), s.Base)
}

// Figure is one output file: the options plus the series it combines.
type Figure struct {
	Series []storage.Series
	Options
}

// Lines loads and combines the figure data.
func (f Figure) Lines(st *storage.Store, benchmark string) ([]Line, error) {
	return CombineSeries(st, benchmark, f.Series, f.Options)
}

// Save renders the figure into dir.
func (f Figure) Save(st *storage.Store, benchmark, dir string) ([]string, error) {
	lines, err := f.Lines(st, benchmark)
	if err != nil {
		return nil, err
	}
	return SaveFigure(dir, lines, f.Options)
}
