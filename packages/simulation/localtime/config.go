package localtime

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clockdomain/ltsim/packages/core/clock"
)

// AffineConfig is the YAML shape of an Affine clock model (spec.md §6).
type AffineConfig struct {
	Frequency float64 `yaml:"frequency"`
	Offset    int64   `yaml:"offset"`
}

// PeriodicConfig is the YAML shape of a Periodic clock model.
type PeriodicConfig struct {
	Delta      int64   `yaml:"delta"`
	Period     int64   `yaml:"period"`
	Interval   int64   `yaml:"interval"`
	Slope      float64 `yaml:"slope"`
	XRefGlobal int64   `yaml:"x_ref_global"`
}

// ClockConfig selects and configures one ClockModel variant. Kind must
// be "affine", "periodic" or empty (treated as "affine"). "periodic"
// requires the periodic block; "affine" without an affine block uses
// the legacy-default model. The block for the other kind is ignored.
type ClockConfig struct {
	Kind     string          `yaml:"kind"`
	Affine   *AffineConfig   `yaml:"affine"`
	Periodic *PeriodicConfig `yaml:"periodic"`
}

// Scenario is the top-level YAML document this package loads: which
// clock model a demo entity starts with, and which scheduler backend
// the simulator should use.
type Scenario struct {
	Clock     ClockConfig `yaml:"clock"`
	Scheduler string      `yaml:"scheduler"`
}

// Build constructs the clock.Model described by this config. A zero
// value (Kind == "") defaults to the legacy-default Affine model
// (frequency 2, offset 0), matching spec.md §6's "Legacy constructor
// default frequency=2 is preserved for bit-exact replay of existing
// scenarios."
func (c ClockConfig) Build() (clock.Model, error) {
	switch c.Kind {
	case "", "affine":
		if c.Affine == nil {
			return clock.DefaultAffine(), nil
		}
		return clock.NewAffine(c.Affine.Frequency, clock.Time(c.Affine.Offset)), nil
	case "periodic":
		if c.Periodic == nil {
			return nil, fmt.Errorf("localtime: clock.kind=periodic requires a periodic block")
		}
		p := c.Periodic
		return clock.NewPeriodic(
			clock.Duration(p.Delta),
			clock.Duration(p.Period),
			clock.Duration(p.Interval),
			p.Slope,
			clock.Time(p.XRefGlobal),
		), nil
	default:
		return nil, fmt.Errorf("localtime: unknown clock.kind %q", c.Kind)
	}
}

// BuildScheduler resolves the named scheduler backend. "heap" (the
// default) is the only built-in; callers embedding this package can
// still pass their own Scheduler directly to WithScheduler without
// going through config at all.
func (s Scenario) BuildScheduler() (Scheduler, error) {
	switch s.Scheduler {
	case "", "heap":
		return NewHeapScheduler(), nil
	default:
		return nil, fmt.Errorf("localtime: unknown scheduler %q", s.Scheduler)
	}
}

// LoadScenario reads and parses a YAML scenario file from path.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("localtime: reading scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("localtime: parsing scenario %s: %w", path, err)
	}
	return sc, nil
}
