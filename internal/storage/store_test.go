package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleRun() (RunMetadata, []Record) {
	meta := RunMetadata{
		Benchmark:  "poisson",
		Series:     Series{NP: 2, Variant: "Go"},
		Method:     "poisson",
		ParamNames: []string{"degree", "size"},
		Regions:    []string{"setup", "solve"},
		Repeats:    3,
	}
	records := []Record{
		{
			Params: map[string]string{"degree": "1", "size": "22"},
			Regions: map[string]RegionStats{
				"setup": {Samples: []float64{0.1, 0.2}, Min: 0.1, Mean: 0.15},
				"solve": {Samples: []float64{1, 1}, Min: 1, Mean: 1},
			},
		},
		{
			Params: map[string]string{"degree": "2", "size": "22"},
			Regions: map[string]RegionStats{
				"setup": {Min: 0.3, Mean: 0.3},
				"solve": {Min: 2, Mean: 2.5},
			},
		},
	}
	return meta, records
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta, records := sampleRun()
	runID, err := st.Save(meta, records)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID != "poisson_np2_Go" {
		t.Errorf("expected run id poisson_np2_Go, got %s", runID)
	}

	loaded, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Series.NP != 2 || loaded.Repeats != 3 {
		t.Errorf("unexpected metadata %+v", loaded)
	}
	if loaded.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	recs, err := st.LoadRecords(runID)
	if err != nil {
		t.Fatalf("load records failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Regions["setup"].Mean != 0.15 {
		t.Errorf("expected setup mean 0.15, got %f", recs[0].Regions["setup"].Mean)
	}

	header, rows, err := st.LoadTimings(runID)
	if err != nil {
		t.Fatalf("load timings failed: %v", err)
	}
	if strings.Join(header, ",") != "degree,size,setup,solve" {
		t.Errorf("unexpected header %v", header)
	}
	if len(rows) != 2 || rows[1][3] != "2.5" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestStoreSaveMerges(t *testing.T) {
	st := New(t.TempDir())
	meta, records := sampleRun()
	if _, err := st.Save(meta, records[:1]); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save(meta, records[1:]); err != nil {
		t.Fatal(err)
	}
	recs, err := st.LoadRecords(RunID("poisson", meta.Series))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("expected merged records, got %d", len(recs))
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected empty listing, got %v %v", runs, err)
	}

	meta, records := sampleRun()
	st.Save(meta, records)
	meta.Series = Series{NP: 1, Variant: "Go"}
	st.Save(meta, records)
	meta.Benchmark = "wave"
	st.Save(meta, records)

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3 runs, got %d", len(runs))
	}
	pr, err := st.ListBenchmark("poisson")
	if err != nil {
		t.Fatal(err)
	}
	if len(pr) != 2 {
		t.Errorf("expected 2 poisson series, got %d", len(pr))
	}
	if _, err := st.ListBenchmark("forms"); err == nil {
		t.Error("expected ErrNoResults for unknown benchmark")
	}
	if _, err := st.Load("missing"); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	meta, records := sampleRun()
	runID, err := st.Save(meta, records)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := st.Export(&buf, runID); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if data.Run.Benchmark != "poisson" || len(data.Records) != 2 {
		t.Errorf("unexpected export %+v", data.Run)
	}
}

func TestWriteElapsed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "elapsed.csv")
	names := []string{"mesh", "mesh_s", "setup_s", "solve_s"}
	if err := WriteElapsed(path, names, []float64{64, 0.01, 0.5, 2.25}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "mesh,mesh_s,setup_s,solve_s" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "64,0.01,0.5,2.25" {
		t.Errorf("unexpected values %q", lines[1])
	}
	if len(strings.Split(lines[0], ",")) != len(strings.Split(lines[1], ",")) {
		t.Error("field counts differ")
	}

	gotNames, gotValues, err := ReadElapsed(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotNames) != 4 || gotValues[3] != 2.25 {
		t.Errorf("unexpected read back %v %v", gotNames, gotValues)
	}

	if err := WriteElapsed(path, names, []float64{1}); err == nil {
		t.Error("expected error on length mismatch")
	}
}
