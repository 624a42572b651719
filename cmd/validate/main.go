package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wintersim/muonio/pkg/scenario"
	"github.com/wintersim/muonio/pkg/sim"
	"github.com/wintersim/muonio/pkg/sim/headless"
	"gopkg.in/yaml.v3"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <scenario.yaml> [more.yaml...]\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		validator := &ScenarioValidator{}
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		fmt.Printf("%s is valid!\n", filename)
	}
	if failed {
		os.Exit(1)
	}
}

type ScenarioValidator struct {
	errors []string
}

func (v *ScenarioValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	ext := filepath.Ext(baseName)
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("scenario file must have .yaml or .yml extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ext)
	if !isValidScenarioFilename(nameWithoutExt) {
		return fmt.Errorf("scenario filename '%s' must be lowercase snake_case (e.g., follow_leading_vehicle.yaml, not Follow-Leading.yaml)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	v.errors = nil

	var cfg scenario.Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return fmt.Errorf("file %s failed strict YAML unmarshaling: %w", filename, err)
	}

	v.validateConfig(&cfg, filename)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	return nil
}

func (v *ScenarioValidator) validateConfig(cfg *scenario.Config, filename string) {
	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			v.addError(line)
		}
	}

	v.validateIDFormat("name", cfg.Name)

	roles := make(map[string]int)
	for i, ego := range cfg.EgoVehicles {
		if ego.RoleName == "" {
			continue
		}
		v.validateIDFormat(fmt.Sprintf("ego_vehicles[%d] role_name", i), ego.RoleName)
		if prev, ok := roles[ego.RoleName]; ok {
			v.addError(fmt.Sprintf("ego_vehicles[%d] role_name '%s' is already used by ego_vehicles[%d]", i, ego.RoleName, prev))
		}
		roles[ego.RoleName] = i
	}

	v.validatePlacement(cfg, filename)
}

// validatePlacement checks the trigger points and ego poses against the road
// the headless simulator would load: the map_file when set, otherwise the
// built-in Muonio road when the town matches it.
func (v *ScenarioValidator) validatePlacement(cfg *scenario.Config, filename string) {
	spec := headless.DefaultMapSpec()
	switch {
	case cfg.MapFile != "":
		path := cfg.MapFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(filename), path)
		}
		loaded, err := headless.LoadMapSpec(path)
		if err != nil {
			v.addError(fmt.Sprintf("map_file: %v", err))
			return
		}
		spec = loaded
		if cfg.Town != "" && !strings.EqualFold(cfg.Town, spec.Name) {
			v.addError(fmt.Sprintf("town '%s' does not match map '%s'", cfg.Town, spec.Name))
		}
	case !strings.EqualFold(cfg.Town, spec.Name):
		// Another simulator's town; nothing to check against.
		return
	}

	world := headless.New(spec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer world.Close()
	m := world.Map()

	for i, tp := range cfg.TriggerPoints {
		if _, err := m.Waypoint(tp.Location); err != nil {
			v.addError(fmt.Sprintf("trigger_points[%d] is off the road: %v", i, err))
			continue
		}
		if i == 0 && cfg.Type == scenario.FollowLeadingVehicleType {
			placement, err := scenario.PlaceLeadVehicle(m, tp)
			if err != nil {
				v.addError(fmt.Sprintf("trigger_points[0]: lead vehicle cannot be placed: %v", err))
				continue
			}
			if _, ok, _ := sim.NextJunction(m, placement.Live.Location); !ok {
				v.addError("trigger_points[0]: the road has no junction ahead of the lead vehicle")
			}
		}
	}
	for i, ego := range cfg.EgoVehicles {
		if _, err := m.Waypoint(ego.Transform.Location); err != nil {
			v.addError(fmt.Sprintf("ego_vehicles[%d] spawns off the road: %v", i, err))
		}
	}
}

func (v *ScenarioValidator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}

	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

func (v *ScenarioValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var (
	validIDRegex       = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
	validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}

func isValidScenarioFilename(name string) bool {
	// Allow 'x.' prefix for experimental scenarios
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
