// Package config holds the tunable thresholds of the back end.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

// Strategy forces a switch lowering strategy
type Strategy string

const (
	Auto   Strategy = "auto"
	Linear Strategy = "linear"
	Table  Strategy = "table"
	Hash   Strategy = "hash"
)

// Switch holds the switch strategy decision thresholds. A switch with at
// most LinearMax cases uses a compare chain. Otherwise a jump table is used
// when the density exceeds DensityMin or the value range is at most RangeMax,
// and both bounds fit [ImmMin, ImmMax]. Everything else gets a hash table of
// at most HashCapacity entries.
type Switch struct {
	LinearMax    int      `yaml:"linear_max"`
	DensityMin   float64  `yaml:"density_min"`
	RangeMax     int      `yaml:"range_max"`
	ImmMin       int32    `yaml:"imm_min"`
	ImmMax       int32    `yaml:"imm_max"`
	HashCapacity int      `yaml:"hash_capacity"`
	Strategy     Strategy `yaml:"strategy"`
}

// Config is the back end configuration
type Config struct {
	Switch   Switch `yaml:"switch"`
	Comments bool   `yaml:"comments"`
}

// Default returns the built in configuration
func Default() *Config {
	return &Config{
		Switch: Switch{
			LinearMax:    7,
			DensityMin:   0.5,
			RangeMax:     300,
			ImmMin:       -32768,
			ImmMax:       32767,
			HashCapacity: 30011,
			Strategy:     Auto,
		},
		Comments: true,
	}
}

// Load reads a YAML config file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	return Parse(data)
}

// Parse decodes YAML config data over the defaults
func Parse(data []byte) (*Config, error) {
	c := Default()

	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks that thresholds are usable
func (c *Config) Validate() error {
	s := &c.Switch

	switch s.Strategy {
	case Auto, Linear, Table, Hash:
	case "":
		s.Strategy = Auto
	default:
		return errors.New("unknown switch strategy: %q", s.Strategy)
	}

	if s.LinearMax < 0 {
		return errors.New("switch.linear_max must not be negative: %d", s.LinearMax)
	}
	if s.ImmMin > s.ImmMax {
		return errors.New("switch.imm_min %d > imm_max %d", s.ImmMin, s.ImmMax)
	}
	if s.HashCapacity < 1 {
		return errors.New("switch.hash_capacity must be positive: %d", s.HashCapacity)
	}

	return nil
}
