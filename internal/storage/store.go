package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoResults = errors.New("storage: no results")
	ErrBadRecord = errors.New("storage: malformed timing record")
)

const (
	metadataFile = "metadata.json"
	timingsFile  = "timings.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// Series identifies one set of results of a benchmark: the rank count and
// a free-form variant label.
type Series struct {
	NP      int    `json:"np" yaml:"np"`
	Variant string `json:"variant" yaml:"variant"`
}

func (s Series) Key() string {
	return fmt.Sprintf("np%d_%s", s.NP, s.Variant)
}

func (s Series) String() string {
	return fmt.Sprintf("%s (np=%d)", s.Variant, s.NP)
}

// RunID is the directory name of a benchmark series.
func RunID(benchmark string, series Series) string {
	return benchmark + "_" + series.Key()
}

type RegionStats struct {
	Samples []float64 `json:"samples"`
	Min     float64   `json:"min"`
	Mean    float64   `json:"mean"`
	Std     float64   `json:"std"`
}

// Record is the timing of one parameter combination.
type Record struct {
	Params  map[string]string      `json:"params"`
	Regions map[string]RegionStats `json:"regions"`
}

type RunMetadata struct {
	ID         string            `json:"id"`
	Benchmark  string            `json:"benchmark"`
	Series     Series            `json:"series"`
	Method     string            `json:"method"`
	Timestamp  time.Time         `json:"timestamp"`
	ParamNames []string          `json:"param_names"`
	Regions    []string          `json:"regions"`
	Repeats    int               `json:"repeats"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// ParamKey names a parameter combination, taking names in order.
func ParamKey(params map[string]string, order []string) string {
	parts := make([]string, 0, len(order))
	for _, n := range order {
		parts = append(parts, n+"="+params[n])
	}
	return strings.Join(parts, ",")
}

func recordFile(key string) string {
	r := strings.NewReplacer("/", "-", " ", "-", "=", "-", ",", "_")
	if key == "" {
		key = "default"
	}
	return r.Replace(key) + ".json"
}

// Save writes metadata, one JSON file per record and a timings.csv of mean
// region times. Records already present for the same series and params are
// replaced, others are kept.
func (s *Store) Save(meta RunMetadata, records []Record) (string, error) {
	runID := RunID(meta.Benchmark, meta.Series)
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	meta.ID = runID
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	for _, rec := range records {
		key := ParamKey(rec.Params, meta.ParamNames)
		if err := writeJSON(filepath.Join(runDir, recordFile(key)), rec); err != nil {
			return "", err
		}
	}

	all, err := s.LoadRecords(runID)
	if err != nil {
		return "", err
	}
	if err := writeTimings(filepath.Join(runDir, timingsFile), meta, all); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTimings(path string, meta RunMetadata, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string(nil), meta.ParamNames...), meta.Regions...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := make([]string, 0, len(header))
		for _, n := range meta.ParamNames {
			row = append(row, rec.Params[n])
		}
		for _, r := range meta.Regions {
			row = append(row, strconv.FormatFloat(rec.Regions[r].Mean, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	return runs, nil
}

// ListBenchmark returns the series stored for one benchmark.
func (s *Store) ListBenchmark(benchmark string) ([]RunMetadata, error) {
	runs, err := s.List()
	if err != nil {
		return nil, err
	}
	out := runs[:0]
	for _, r := range runs {
		if r.Benchmark == benchmark {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w for %s in %s", ErrNoResults, benchmark, s.baseDir)
	}
	return out, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoResults, runID)
		}
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadRecords reads every record of a run, ordered by file name.
func (s *Store) LoadRecords(runID string) ([]Record, error) {
	runDir := filepath.Join(s.baseDir, runID)
	entries, err := os.ReadDir(runDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoResults, runID)
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == metadataFile || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(runDir, n))
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("storage: %s/%s: %w", runID, n, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadTimings reads timings.csv back as a header and string rows.
func (s *Store) LoadTimings(runID string) ([]string, [][]string, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, timingsFile))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: empty %s", ErrBadRecord, timingsFile)
	}
	return records[0], records[1:], nil
}

// WriteElapsed writes a header line of names and one line of values.
func WriteElapsed(path string, names []string, values []float64) error {
	if len(names) != len(values) {
		return fmt.Errorf("%w: %d names for %d values", ErrBadRecord, len(names), len(values))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	if err := w.Write(names); err != nil {
		return err
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// ReadElapsed parses a file written by WriteElapsed.
func ReadElapsed(path string) ([]string, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) != 2 || len(records[0]) != len(records[1]) {
		return nil, nil, fmt.Errorf("%w: %s", ErrBadRecord, path)
	}
	values := make([]float64, len(records[1]))
	for i, s := range records[1] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrBadRecord, path, err)
		}
		values[i] = v
	}
	return records[0], values, nil
}
