package config

import (
	"fmt"
	"slices"

	"github.com/san-kum/fembench/internal/problems/poisson"
)

func preset(modify func(c *Config)) *Config {
	c := DefaultConfig()
	modify(c)
	return c
}

// Presets are named parameter sets per benchmark. Each one is a complete
// configuration derived from the defaults.
var Presets = map[string]map[string]*Config{
	"cahn-hilliard": {
		"bare": preset(func(c *Config) {}),
		"jacobi": preset(func(c *Config) {
			c.CahnHilliard.Preconditioner = "jacobi"
			c.CahnHilliard.InnerKSP = "preonly"
		}),
		"long": preset(func(c *Config) {
			c.CahnHilliard.Steps = 50
			c.CahnHilliard.ComputeNorms = true
		}),
	},
	"poisson": {
		"sweep": preset(func(c *Config) {}),
		"2d": preset(func(c *Config) {
			c.Poisson.Dim = 2
			c.Poisson.Sizes = poisson.DefaultSizes(2, 4)
		}),
		"quick": preset(func(c *Config) {
			c.Poisson.Dim = 2
			c.Poisson.Degrees = []int{1, 2}
			c.Poisson.Sizes = []int{8, 16}
			c.Repeats = 1
		}),
	},
	"wave": {
		"weak": preset(func(c *Config) {
			c.Wave.Weak = true
		}),
		"strong": preset(func(c *Config) {
			c.Wave.Scales = []float64{1.0}
		}),
		"quick": preset(func(c *Config) {
			c.Wave.Scales = []float64{4, 2}
			c.Wave.Steps = 10
			c.Repeats = 1
		}),
	},
	"assembly": {
		"sweep": preset(func(c *Config) {}),
		"2d": preset(func(c *Config) {
			c.Assembly.Dims = []int{2}
			c.Assembly.Sizes = []int{32, 64, 128}
		}),
		"quick": preset(func(c *Config) {
			c.Assembly.Sizes = []int{4, 8}
			c.Assembly.Degrees = []int{1, 2}
			c.Repeats = 1
		}),
	},
	"forms": {
		"coffee": preset(func(c *Config) {}),
		"quick": preset(func(c *Config) {
			c.Forms.Degrees = []int{1, 2}
			c.Forms.QDegrees = []int{1, 2}
			c.Forms.MeshSize = 4
			c.Repeats = 1
		}),
	},
}

func GetPreset(benchmark, name string) *Config {
	bp, ok := Presets[benchmark]
	if !ok {
		return nil
	}
	cfg, ok := bp[name]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(benchmark string) []string {
	bp, ok := Presets[benchmark]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(bp))
	for k := range bp {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// ApplyPreset copies the benchmark section of a preset into cfg. The repeat
// count is copied when the preset changes it.
func ApplyPreset(cfg *Config, benchmark, name string) error {
	p := GetPreset(benchmark, name)
	if p == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", name, ListPresets(benchmark))
	}
	switch benchmark {
	case "cahn-hilliard":
		cfg.CahnHilliard = p.CahnHilliard
	case "poisson":
		cfg.Poisson = p.Poisson
	case "wave":
		cfg.Wave = p.Wave
	case "assembly":
		cfg.Assembly = p.Assembly
	case "forms":
		cfg.Forms = p.Forms
	}
	if p.Repeats != DefaultRepeats {
		cfg.Repeats = p.Repeats
	}
	return nil
}
