//go:build integration
// +build integration

package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/wintersim/muonio/integration/runner"
	"github.com/wintersim/muonio/internal/config"
	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/internal/logger"
	"github.com/wintersim/muonio/internal/storage"
	"github.com/wintersim/muonio/pkg/sim"
	_ "github.com/wintersim/muonio/pkg/sim/headless"
)

const casesDir = "cases"

var caseFlag = flag.String("case", "", "Comma separated suites to run from integration/cases/")
var errFlag = flag.String("err", "continue", "Error handling mode: 'continue' (run all steps) or 'exit' (stop on first failure)")

func TestMain(m *testing.M) {
	flag.Parse()
	fmt.Printf("Running WinterSim Muonio Integration Tests\n")
	fmt.Printf("   Simulator: %s\n", getEnv("SIM_BACKEND", "headless"))
	if apiBaseURL := os.Getenv("API_BASE_URL"); apiBaseURL != "" {
		fmt.Printf("   API Base URL: %s\n", apiBaseURL)
	}
	os.Exit(m.Run())
}

// newTestRunner builds a runner for the simulator named in the environment.
// With API_BASE_URL set, runs are saved to the configured storage and read
// back through the API.
func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	testRunner := runner.NewRunner(os.Getenv("API_BASE_URL"))
	testRunner.Timeout = time.Duration(getIntEnv("TEST_TIMEOUT_SECONDS", 60)) * time.Second
	testRunner.Logger = t.Logf
	testRunner.Endpoint = sim.Endpoint{
		Backend: cfg.SimBackend,
		Host:    cfg.SimHost,
		Port:    cfg.SimPort,
		Timeout: cfg.SimTimeout,
	}
	if os.Getenv("TEST_VERBOSE") != "" {
		testRunner.Log = logger.Setup(cfg)
	}

	if testRunner.BaseURL == "" {
		return testRunner
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runner.CheckHealth(ctx, testRunner.Client, testRunner.BaseURL); err != nil {
		t.Fatalf("API is not healthy: %v", err)
	}
	store, err := storage.New(ctx, cfg, testRunner.Log)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	testRunner.Store = store
	if rs, ok := store.(*storage.RedisStorage); ok {
		testRunner.Publisher = events.NewBroadcaster(rs.Client(), testRunner.Log)
	}
	return testRunner
}

func TestIntegrationSuites(t *testing.T) {
	if *caseFlag != "" {
		t.Skip("Running the suites named by -case instead")
	}
	files, err := discoverTestFiles(casesDir)
	if err != nil {
		t.Fatalf("Failed to discover test files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("No test files found in cases directory")
	}

	testRunner := newTestRunner(t)
	testRunner.ErrorHandlingMode = runner.ErrorHandlingContinue
	runSuites(t, testRunner, files)
}

// TestSingleSuite runs the suites named by -case, e.g. -case "a,b".
func TestSingleSuite(t *testing.T) {
	if *caseFlag == "" {
		t.Skip("Skipping single suite test (use -case flag to run)")
	}
	if *errFlag != "exit" && *errFlag != "continue" {
		t.Fatalf("Invalid -err flag value: %s (must be 'exit' or 'continue')", *errFlag)
	}

	var files []string
	for _, name := range strings.Split(*caseFlag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !strings.HasSuffix(name, ".yaml") {
			name += ".yaml"
		}
		files = append(files, filepath.Join(casesDir, name))
	}
	if len(files) == 0 {
		t.Fatalf("No valid test cases found in -case flag: %s", *caseFlag)
	}

	testRunner := newTestRunner(t)
	testRunner.ErrorHandlingMode = runner.ErrorHandlingMode(*errFlag)
	runSuites(t, testRunner, files)
}

// runSuites runs every suite in files as a subtest and logs how many runs
// ended with each verdict.
func runSuites(t *testing.T, testRunner *runner.Runner, files []string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	verdicts := make(map[string]int)
	for _, file := range files {
		jobs, err := runner.LoadTestSuiteWithExpansion(file, casesDir)
		if err != nil {
			t.Errorf("Failed to load test suite %s: %v", file, err)
			continue
		}
		for _, job := range jobs {
			ok := t.Run(job.Name, func(t *testing.T) {
				result, err := testRunner.RunSuite(ctx, job.Suite)
				if err != nil && result.Error == nil {
					result.Error = err
				}
				for _, step := range result.Results {
					verdicts[string(step.Verdict)]++
					if !step.Success {
						t.Errorf("Step %s failed: %v", step.StepName, step.Error)
					}
				}
				if result.Error != nil {
					t.Fatalf("Suite failed: %v", result.Error)
				}
				t.Logf("Completed in %v", result.Duration)
			})
			if !ok && testRunner.ErrorHandlingMode == runner.ErrorHandlingExit {
				t.Fatalf("Stopping after %s failed", job.Name)
			}
		}
	}

	names := make([]string, 0, len(verdicts))
	for v := range verdicts {
		names = append(names, v)
	}
	sort.Strings(names)
	for _, v := range names {
		t.Logf("%s: %d run(s)", v, verdicts[v])
	}
}

func discoverTestFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".yaml") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func getEnv(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(name string, defaultValue int) int {
	val, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return val
}
