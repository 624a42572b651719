package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wintersim/muonio/pkg/scenario"
)

const followYAML = `name: muonio_follow
type: FollowLeadingVehicle
town: Muonio
trigger_points:
  - location: {x: 100, y: 0, z: 0}
ego_vehicles:
  - model: vehicle.tesla.model3
    role_name: hero
    transform:
      location: {x: 100, y: 0, z: 0.3}
    autopilot: true
`

// setupEnv points the commands at a fresh SQLite store and the headless
// simulator, and returns the path of a scenario config that passes.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "runs.db"))
	t.Setenv("SIM_BACKEND", "headless")
	t.Setenv("SIM_MAP_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(dir, "follow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(followYAML), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "list", "show"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("json"))
}

func TestRunListShow(t *testing.T) {
	path := setupEnv(t)

	out, err := execute(t, "run", path, "--json")
	require.NoError(t, err)
	var rec scenario.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, scenario.VerdictSuccess, rec.Verdict)
	assert.Equal(t, "muonio_follow", rec.Scenario)
	assert.Equal(t, "headless", rec.Backend)

	out, err = execute(t, "list", "--json")
	require.NoError(t, err)
	var runs []scenario.Record
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rec.ID, runs[0].ID)

	out, err = execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, rec.ID.String())
	assert.Contains(t, out, "SUCCESS")

	out, err = execute(t, "show", rec.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario muonio_follow")
	assert.Contains(t, out, rec.ID.String())
}

func TestRunFailingVerdictReturnsError(t *testing.T) {
	setupEnv(t)
	path := filepath.Join(t.TempDir(), "stalled.yaml")
	// Without autopilot the ego never reaches the lead vehicle.
	stalled := strings.NewReplacer(
		"autopilot: true", "autopilot: false",
		"{x: 100, y: 0, z: 0.3}", "{x: 20, y: 0, z: 0.3}",
	).Replace(followYAML)
	require.NoError(t, os.WriteFile(path, []byte(stalled), 0o644))

	out, err := execute(t, "run", path, "--timeout", "10", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMEOUT")

	var rec scenario.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, scenario.VerdictTimeout, rec.Verdict)
	assert.InDelta(t, 10, rec.SimSeconds, 0.1)
}

func TestListEmpty(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs stored.")

	out, err = execute(t, "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestCommandErrors(t *testing.T) {
	path := setupEnv(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing config", []string{"run", filepath.Join(t.TempDir(), "nope.yaml")}, "failed to read scenario config"},
		{"negative timeout", []string{"run", path, "--timeout=-1"}, "invalid scenario config"},
		{"unknown backend", []string{"run", path, "--sim", "carla-xl"}, "unknown"},
		{"invalid run id", []string{"show", "not-a-uuid"}, "invalid run ID"},
		{"unknown run", []string{"show", "0b6f1c1e-8a5e-4c1f-9a53-1d2c3b4a5f60"}, "run not found"},
		{"run needs a config", []string{"run"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
