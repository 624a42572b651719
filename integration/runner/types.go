package runner

import (
	"time"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/pkg/scenario"
)

// TestSuite defines a complete integration test scenario.
// Can either be a regular test with Steps, or a suite that references other Cases.
type TestSuite struct {
	Name     string     `yaml:"name"`
	Scenario string     `yaml:"scenario,omitempty"` // Scenario config, relative to the case file
	Steps    []TestStep `yaml:"steps,omitempty"`    // Used for regular tests
	Cases    []string   `yaml:"cases,omitempty"`    // Used for suite tests (list of case files)

	// Set while loading; the scenario path is resolved against it.
	dir string
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one run of the suite's scenario with its expected outcome.
type TestStep struct {
	Name         string       `yaml:"name,omitempty"`
	Overrides    Overrides    `yaml:"overrides,omitempty"`
	Expectations Expectations `yaml:"expect"`
}

// Overrides change the scenario config for a single step.
type Overrides struct {
	Timeout    *float64 `yaml:"timeout,omitempty"`
	Randomize  *bool    `yaml:"randomize,omitempty"`
	Seed       *uint64  `yaml:"seed,omitempty"`
	StandStill *bool    `yaml:"stand_still,omitempty"`
	NoCriteria *bool    `yaml:"no_criteria,omitempty"`
	Autopilot  *bool    `yaml:"autopilot,omitempty"` // applies to every ego vehicle
	EgoX       *float64 `yaml:"ego_x,omitempty"`     // moves the first ego vehicle along the road
}

// Expectations defines what to check after a run completes.
type Expectations struct {
	Verdict       *scenario.Verdict `yaml:"verdict,omitempty"`
	Criteria      map[string]string `yaml:"criteria,omitempty"` // criterion name -> status
	MinSimSeconds *float64          `yaml:"min_sim_seconds,omitempty"`
	MaxSimSeconds *float64          `yaml:"max_sim_seconds,omitempty"`
	MinTicks      *int              `yaml:"min_ticks,omitempty"`
	Params        []string          `yaml:"params,omitempty"` // keys that must be recorded
	ErrorContains string            `yaml:"error_contains,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName string
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
	RunID    uuid.UUID
	Verdict  scenario.Verdict
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
}
