package bench

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/pprof"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

// Total is the region holding the whole time of one run.
const Total = "total"

// Func runs one parameter combination, timing its phases with t.
type Func func(ctx context.Context, p Values, t *timing.Timer) error

// Progress reports a finished parameter combination.
type Progress struct {
	Done, Total int
	Key         string
	Seconds     float64
}

// Benchmark describes a parameter sweep of timed regions.
type Benchmark struct {
	Name   string
	Method string
	Params []Param
	// Regions fixes the order of regions in stored results; regions not
	// listed are appended in first-seen order.
	Regions []string
	// PlotStyle maps region names to marker styles.
	PlotStyle map[string]string
	Meta      map[string]string
	Series    storage.Series
	Repeats   int

	Logger     *slog.Logger
	OnProgress func(Progress)
	TimerOpts  []timing.Option
}

func (b *Benchmark) paramNames() []string {
	names := make([]string, len(b.Params))
	for i, p := range b.Params {
		names[i] = p.Name
	}
	return names
}

func (b *Benchmark) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Run executes fn for every parameter combination Repeats times.
// The total region is the sum of all regions unless fn sets it itself.
func (b *Benchmark) Run(ctx context.Context, fn Func) ([]storage.Record, error) {
	repeats := b.Repeats
	if repeats < 1 {
		repeats = 1
	}
	combos := Combinations(b.Params)
	names := b.paramNames()
	records := make([]storage.Record, 0, len(combos))
	log := b.logger().With("benchmark", b.Name, "series", b.Series.Key())

	for i, p := range combos {
		key := storage.ParamKey(p.Strings(), names)
		samples := make(map[string][]float64)
		var order []string
		for r := 0; r < repeats; r++ {
			if err := ctx.Err(); err != nil {
				return records, err
			}
			t := timing.New(b.TimerOpts...)
			if err := fn(ctx, p, t); err != nil {
				return records, fmt.Errorf("%s %s: %w", b.Name, key, err)
			}
			if t.Count(Total) == 0 {
				t.Set(Total, t.Total())
			}
			for _, name := range t.Names() {
				if _, ok := samples[name]; !ok {
					order = append(order, name)
				}
				samples[name] = append(samples[name], t.Seconds(name))
			}
		}
		b.mergeRegions(order)

		rec := storage.Record{Params: p.Strings(), Regions: make(map[string]storage.RegionStats, len(samples))}
		for name, s := range samples {
			rec.Regions[name] = Stats(s)
		}
		records = append(records, rec)
		log.Debug("combination done", "params", key, "total", rec.Regions[Total].Mean)
		if b.OnProgress != nil {
			b.OnProgress(Progress{Done: i + 1, Total: len(combos), Key: key, Seconds: rec.Regions[Total].Mean})
		}
	}
	return records, nil
}

func (b *Benchmark) mergeRegions(seen []string) {
	for _, name := range seen {
		if !slices.Contains(b.Regions, name) {
			b.Regions = append(b.Regions, name)
		}
	}
}

// Stats summarises samples. Std is the sample standard deviation and zero
// for fewer than two samples.
func Stats(samples []float64) storage.RegionStats {
	if len(samples) == 0 {
		return storage.RegionStats{}
	}
	s := storage.RegionStats{
		Samples: append([]float64(nil), samples...),
		Min:     floats.Min(samples),
		Mean:    stat.Mean(samples, nil),
	}
	if len(samples) > 1 {
		s.Std = stat.StdDev(samples, nil)
	}
	return s
}

func (b *Benchmark) metadata() storage.RunMetadata {
	return storage.RunMetadata{
		Benchmark:  b.Name,
		Series:     b.Series,
		Method:     b.Method,
		ParamNames: b.paramNames(),
		Regions:    b.Regions,
		Repeats:    b.Repeats,
		Meta:       b.Meta,
	}
}

// Save stores records under the benchmark's series.
func (b *Benchmark) Save(st *storage.Store, records []storage.Record) (string, error) {
	if err := st.Init(); err != nil {
		return "", err
	}
	return st.Save(b.metadata(), records)
}

// Load reads back the records of one series of a benchmark.
func Load(st *storage.Store, name string, series storage.Series) (*storage.RunMetadata, []storage.Record, error) {
	id := storage.RunID(name, series)
	meta, err := st.Load(id)
	if err != nil {
		return nil, nil, err
	}
	records, err := st.LoadRecords(id)
	if err != nil {
		return nil, nil, err
	}
	return meta, records, nil
}

// Profile runs every combination once under the CPU profiler and writes
// <dir>/<name>.pprof. Samples carry the region label of the timer, so
// `go tool pprof -tagfocus region=<name>` slices the profile. The seconds
// spent in the listed regions are written to <dir>/<name>_regions.csv.
func (b *Benchmark) Profile(ctx context.Context, fn Func, dir string, regions []string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, b.Name+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := pprof.StartCPUProfile(f); err != nil {
		return "", fmt.Errorf("bench: start profile: %w", err)
	}
	once := *b
	once.Repeats = 1
	records, runErr := once.Run(ctx, fn)
	pprof.StopCPUProfile()
	if runErr != nil {
		return path, runErr
	}

	sums := make([]float64, len(regions))
	for _, rec := range records {
		for i, r := range regions {
			sums[i] += rec.Regions[r].Mean
		}
	}
	summary := filepath.Join(dir, b.Name+"_regions.csv")
	if err := storage.WriteElapsed(summary, regions, sums); err != nil {
		return path, err
	}
	b.logger().Info("profile written", "path", path, "regions", regions)
	return path, nil
}
