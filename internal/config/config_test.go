package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Variant != DefaultVariant {
		t.Errorf("expected variant %s, got %s", DefaultVariant, cfg.Variant)
	}
	if cfg.Repeats <= 0 {
		t.Error("repeats should be positive")
	}
	if cfg.Poisson.Dim != 3 {
		t.Errorf("expected poisson dim 3, got %d", cfg.Poisson.Dim)
	}
	if cfg.CahnHilliard.Preconditioner != "fieldsplit" {
		t.Errorf("expected fieldsplit, got %s", cfg.CahnHilliard.Preconditioner)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fembench.yaml")
	data := "np: 4\nwave:\n  steps: 7\npoisson:\n  degrees: [2]\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NP != 4 {
		t.Errorf("expected np 4, got %d", cfg.NP)
	}
	if cfg.Wave.Steps != 7 {
		t.Errorf("expected 7 steps, got %d", cfg.Wave.Steps)
	}
	if cfg.Wave.Dt != 0.001 {
		t.Errorf("expected default dt, got %g", cfg.Wave.Dt)
	}
	if len(cfg.Poisson.Degrees) != 1 || cfg.Poisson.Degrees[0] != 2 {
		t.Errorf("expected degrees [2], got %v", cfg.Poisson.Degrees)
	}
	if cfg.Repeats != DefaultRepeats {
		t.Errorf("expected default repeats, got %d", cfg.Repeats)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	tests := []struct {
		name string
		data string
	}{
		{"zero repeats", "repeats: 0\n"},
		{"zero ranks", "np: 0\n"},
		{"empty variant", "variant: \"\"\n"},
		{"forms opt out of range", "forms:\n  opts: [0, 4]\n"},
		{"negative forms opt", "forms:\n  opts: [-1]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Forms.MeshSize = 5
	cfg.TraceEndpoint = "localhost:4318"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Forms.MeshSize != 5 {
		t.Errorf("expected mesh size 5, got %d", got.Forms.MeshSize)
	}
	if got.TraceEndpoint != "localhost:4318" {
		t.Errorf("expected endpoint, got %q", got.TraceEndpoint)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("wave", "quick")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Wave.Steps != 10 {
		t.Errorf("expected 10 steps, got %d", cfg.Wave.Steps)
	}
	if cfg.Poisson.Dim != 3 {
		t.Error("preset should keep defaults of other benchmarks")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("wave", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "quick")
	if cfg != nil {
		t.Error("expected nil for nonexistent benchmark")
	}
}

func TestListPresets(t *testing.T) {
	tests := []struct {
		benchmark string
		expected  int
	}{
		{"cahn-hilliard", 3},
		{"poisson", 3},
		{"wave", 3},
		{"assembly", 3},
		{"forms", 2},
	}

	for _, tt := range tests {
		presets := ListPresets(tt.benchmark)
		if len(presets) != tt.expected {
			t.Errorf("benchmark %s: expected %d presets, got %d", tt.benchmark, tt.expected, len(presets))
		}
	}
	if got := ListPresets("poisson"); got[0] != "2d" {
		t.Errorf("expected sorted presets, got %v", got)
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent benchmark")
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Results = "elsewhere"
	if err := ApplyPreset(cfg, "poisson", "quick"); err != nil {
		t.Fatal(err)
	}
	if cfg.Poisson.Dim != 2 {
		t.Errorf("expected dim 2, got %d", cfg.Poisson.Dim)
	}
	if cfg.Repeats != 1 {
		t.Errorf("expected 1 repeat, got %d", cfg.Repeats)
	}
	if cfg.Results != "elsewhere" {
		t.Error("preset should not touch global settings")
	}
	if len(cfg.Wave.Scales) != 5 {
		t.Error("preset should not touch other benchmarks")
	}
	if err := ApplyPreset(cfg, "poisson", "huge"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestWeakPreset(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Wave.Weak {
		t.Fatal("default wave config should sweep scales")
	}
	if err := ApplyPreset(cfg, "wave", "weak"); err != nil {
		t.Fatal(err)
	}
	if !cfg.Wave.Weak {
		t.Error("weak preset should tie the scale to the rank count")
	}
}
