package scenario

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wintersim/muonio/pkg/geom"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds a run when the config does not set one.
const DefaultTimeout = 300 * time.Second

// ActorConfig describes an actor the runner spawns before the scenario starts.
type ActorConfig struct {
	Model     string         `json:"model" yaml:"model"`                             // blueprint, e.g. "vehicle.nissan.patrol"
	RoleName  string         `json:"role_name" yaml:"role_name"`                     // "hero" for the ego vehicle
	Transform geom.Transform `json:"transform" yaml:"transform"`                     // spawn pose
	Autopilot bool           `json:"autopilot,omitempty" yaml:"autopilot,omitempty"` // hand the actor to the simulator's autopilot
}

// Config is the scenario configuration, usually loaded from a YAML file.
type Config struct {
	Name          string           `json:"name" yaml:"name"`                                   // Human-readable run name
	Type          string           `json:"type" yaml:"type"`                                   // Registered scenario type, e.g. "FollowLeadingVehicle"
	Town          string           `json:"town,omitempty" yaml:"town,omitempty"`               // Map the scenario expects; empty accepts any
	MapFile       string           `json:"map_file,omitempty" yaml:"map_file,omitempty"`       // Map description for the headless simulator
	TriggerPoints []geom.Transform `json:"trigger_points" yaml:"trigger_points"`               // Anchors for scenario-relative positions
	EgoVehicles   []ActorConfig    `json:"ego_vehicles" yaml:"ego_vehicles"`                   // Vehicles under test
	Timeout       float64          `json:"timeout,omitempty" yaml:"timeout,omitempty"`         // Seconds of simulation time; zero means DefaultTimeout
	Randomize     bool             `json:"randomize,omitempty" yaml:"randomize,omitempty"`     // Draw randomized parameters
	Seed          uint64           `json:"seed,omitempty" yaml:"seed,omitempty"`               // Seed for randomized parameters; zero picks one
	StandStill    bool             `json:"stand_still,omitempty" yaml:"stand_still,omitempty"` // Also require the ego to stand still at the end
	NoCriteria    bool             `json:"no_criteria,omitempty" yaml:"no_criteria,omitempty"` // Skip the pass/fail criteria
	Debug         bool             `json:"debug,omitempty" yaml:"debug,omitempty"`             // Log the tree after every tick
}

// LoadConfig reads and validates a YAML scenario config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scenario config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the fields every scenario relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Type == "" {
		errs = append(errs, errors.New("type is required"))
	} else if _, ok := Lookup(c.Type); !ok {
		errs = append(errs, fmt.Errorf("unknown scenario type %q (available: %v)", c.Type, Types()))
	}
	if len(c.TriggerPoints) == 0 {
		errs = append(errs, errors.New("at least one trigger point is required"))
	}
	if len(c.EgoVehicles) == 0 {
		errs = append(errs, errors.New("at least one ego vehicle is required"))
	}
	for i, ego := range c.EgoVehicles {
		if ego.Model == "" {
			errs = append(errs, fmt.Errorf("ego_vehicles[%d]: model is required", i))
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// TimeoutDuration returns the configured timeout or DefaultTimeout.
func (c *Config) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.Timeout * float64(time.Second))
}
