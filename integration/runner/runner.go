package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wintersim/muonio/internal/events"
	scenariorunner "github.com/wintersim/muonio/internal/runner"
	"github.com/wintersim/muonio/internal/storage"
	"github.com/wintersim/muonio/pkg/scenario"
	"github.com/wintersim/muonio/pkg/sim"
	"github.com/wintersim/muonio/pkg/sim/headless"
	"gopkg.in/yaml.v3"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes scenario test cases against a simulator. When BaseURL is
// set, every stored run is also read back through the API.
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	Endpoint          sim.Endpoint     // Simulator to connect to for every step
	Store             storage.Storage  // Where runs are saved; nil skips saving
	Publisher         events.Publisher // nil publishes nothing
	Log               *slog.Logger     // Logger handed to the simulator and scenario runner
}

// NewRunner creates a new test runner against the headless simulator
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
		Endpoint:          sim.Endpoint{Backend: headless.BackendName},
		Log:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// LoadTestSuite loads a test suite from a YAML file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	suite.dir = filepath.Dir(filename)

	if !suite.IsSequence() {
		if suite.Scenario == "" {
			return TestSuite{}, fmt.Errorf("test file %s names no scenario", filename)
		}
		if len(suite.Steps) == 0 {
			return TestSuite{}, fmt.Errorf("test file %s has no steps", filename)
		}
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	// If this is not a sequence, return it as-is
	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	// This is a sequence - load all referenced cases
	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		// Resolve path relative to casesDir
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// ScenarioPath is the suite's scenario config resolved against its case file.
func (ts *TestSuite) ScenarioPath() string {
	if filepath.IsAbs(ts.Scenario) {
		return ts.Scenario
	}
	return filepath.Join(ts.dir, ts.Scenario)
}

// RunSuite executes a complete test suite
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	failures := 0
	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, suite, step)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if !stepResult.Success {
			failures++
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failures > 0 {
		result.Error = fmt.Errorf("%d of %d step(s) failed", failures, len(suite.Steps))
	}
	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep runs one step and logs its outcome
func (r *Runner) runStep(ctx context.Context, suite TestSuite, step TestStep) TestResult {
	result := r.executeStep(ctx, suite, step)
	if result.Success {
		r.Logger("    ✓ %s: %s in %v", step.Name, result.Verdict, result.Duration)
	} else {
		r.Logger("    ✗ %s: %v", step.Name, result.Error)
	}
	return result
}

// executeStep loads the scenario, applies the step's overrides and runs it on
// a fresh simulator connection.
func (r *Runner) executeStep(ctx context.Context, suite TestSuite, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{
		StepName: step.Name,
	}

	cfgPath := suite.ScenarioPath()
	cfg, err := scenario.LoadConfig(cfgPath)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	if err := applyOverrides(cfg, step.Overrides); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	ep := r.Endpoint
	if cfg.MapFile != "" {
		mapFile := cfg.MapFile
		if !filepath.IsAbs(mapFile) {
			mapFile = filepath.Join(filepath.Dir(cfgPath), mapFile)
		}
		ep.Options = map[string]string{"map": mapFile}
	}

	world, err := sim.Connect(stepCtx, ep, r.Log)
	if err != nil {
		result.Error = fmt.Errorf("failed to connect to simulator: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	defer func() { _ = world.Close() }()

	run := scenariorunner.New(world, r.Store, r.Publisher, r.Log, scenariorunner.WithBackend(ep.Backend))
	rec, runErr := run.Run(stepCtx, cfg)
	if rec != nil {
		result.RunID = rec.ID
		result.Verdict = rec.Verdict
	}

	if err := r.checkExpectations(step.Expectations, rec, runErr); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	if r.BaseURL != "" && r.Store != nil && rec != nil {
		stored, err := PollForRun(ctx, r.Client, r.BaseURL, rec.ID)
		if err != nil {
			result.Error = fmt.Errorf("failed to read run back from API: %w", err)
			result.Duration = time.Since(start)
			return result
		}
		if stored.Verdict != rec.Verdict || stored.Ticks != rec.Ticks {
			result.Error = fmt.Errorf("API returned %s after %d ticks, run finished %s after %d ticks",
				stored.Verdict, stored.Ticks, rec.Verdict, rec.Ticks)
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// applyOverrides changes cfg for a single step and revalidates it
func applyOverrides(cfg *scenario.Config, o Overrides) error {
	if o.Timeout != nil {
		cfg.Timeout = *o.Timeout
	}
	if o.Randomize != nil {
		cfg.Randomize = *o.Randomize
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	if o.StandStill != nil {
		cfg.StandStill = *o.StandStill
	}
	if o.NoCriteria != nil {
		cfg.NoCriteria = *o.NoCriteria
	}
	if o.Autopilot != nil {
		for i := range cfg.EgoVehicles {
			cfg.EgoVehicles[i].Autopilot = *o.Autopilot
		}
	}
	if o.EgoX != nil && len(cfg.EgoVehicles) > 0 {
		cfg.EgoVehicles[0].Transform.Location.X = *o.EgoX
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("overrides make the scenario invalid: %w", err)
	}
	return nil
}

// checkExpectations validates the test expectations against the finished run
func (r *Runner) checkExpectations(exp Expectations, rec *scenario.Record, runErr error) error {
	// Error check
	if exp.ErrorContains != "" {
		if runErr == nil {
			return fmt.Errorf("expected an error containing %q, run succeeded", exp.ErrorContains)
		}
		if !strings.Contains(runErr.Error(), exp.ErrorContains) {
			return fmt.Errorf("expected an error containing %q, got: %v", exp.ErrorContains, runErr)
		}
	} else if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	if rec == nil {
		return fmt.Errorf("run produced no record")
	}

	// Verdict check
	if exp.Verdict != nil && rec.Verdict != *exp.Verdict {
		return fmt.Errorf("expected verdict %s, got %s", *exp.Verdict, rec.Verdict)
	}

	// Criteria check
	if len(exp.Criteria) > 0 {
		got := make(map[string]string, len(rec.Criteria))
		for _, c := range rec.Criteria {
			got[c.Name] = c.Status
		}
		names := make([]string, 0, len(exp.Criteria))
		for name := range exp.Criteria {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			status, ok := got[name]
			if !ok {
				return fmt.Errorf("expected criterion %s, run recorded %v", name, got)
			}
			if status != exp.Criteria[name] {
				return fmt.Errorf("expected criterion %s to be %s, got %s", name, exp.Criteria[name], status)
			}
		}
	}

	// Simulation time checks
	if exp.MinSimSeconds != nil && rec.SimSeconds < *exp.MinSimSeconds {
		return fmt.Errorf("expected at least %.2fs of simulation time, got %.2fs", *exp.MinSimSeconds, rec.SimSeconds)
	}
	if exp.MaxSimSeconds != nil && rec.SimSeconds > *exp.MaxSimSeconds {
		return fmt.Errorf("expected at most %.2fs of simulation time, got %.2fs", *exp.MaxSimSeconds, rec.SimSeconds)
	}
	if exp.MinTicks != nil && rec.Ticks < *exp.MinTicks {
		return fmt.Errorf("expected at least %d ticks, got %d", *exp.MinTicks, rec.Ticks)
	}

	// Recorded parameter check
	for _, key := range exp.Params {
		if _, ok := rec.Params[key]; !ok {
			return fmt.Errorf("expected parameter %s to be recorded, got %v", key, rec.Params)
		}
	}

	return nil
}
