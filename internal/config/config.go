package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/fembench/internal/problems/assembly"
	"github.com/san-kum/fembench/internal/problems/cahnhilliard"
	"github.com/san-kum/fembench/internal/problems/forms"
	"github.com/san-kum/fembench/internal/problems/poisson"
	"github.com/san-kum/fembench/internal/problems/wave"
)

const (
	DefaultResults    = "results"
	DefaultPlotDir    = "plots"
	DefaultProfileDir = "profiles"
	DefaultVariant    = "Go"
	DefaultRepeats    = 3
	DefaultNP         = 1
)

type Config struct {
	Results       string `yaml:"results"`
	PlotDir       string `yaml:"plot_dir"`
	ProfileDir    string `yaml:"profile_dir"`
	Variant       string `yaml:"variant"`
	Repeats       int    `yaml:"repeats"`
	NP            int    `yaml:"np"`
	TraceEndpoint string `yaml:"trace_endpoint"`

	CahnHilliard cahnhilliard.Config `yaml:"cahn_hilliard"`
	Poisson      poisson.Config      `yaml:"poisson"`
	Wave         wave.Config         `yaml:"wave"`
	Assembly     assembly.Config     `yaml:"assembly"`
	Forms        forms.Config        `yaml:"forms"`
}

func DefaultConfig() *Config {
	return &Config{
		Results:      DefaultResults,
		PlotDir:      DefaultPlotDir,
		ProfileDir:   DefaultProfileDir,
		Variant:      DefaultVariant,
		Repeats:      DefaultRepeats,
		NP:           DefaultNP,
		CahnHilliard: cahnhilliard.DefaultConfig(),
		Poisson:      poisson.DefaultConfig(),
		Wave:         wave.DefaultConfig(),
		Assembly:     assembly.DefaultConfig(),
		Forms:        forms.DefaultConfig(),
	}
}

// Load reads a yaml file over the defaults; keys the file omits keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Repeats < 1 {
		return fmt.Errorf("repeats must be positive, got %d", c.Repeats)
	}
	if c.NP < 1 {
		return fmt.Errorf("np must be positive, got %d", c.NP)
	}
	if c.Variant == "" {
		return fmt.Errorf("variant must not be empty")
	}
	if err := c.Forms.Validate(); err != nil {
		return err
	}
	return nil
}
