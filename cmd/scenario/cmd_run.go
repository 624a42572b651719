package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wintersim/muonio/internal/runner"
	"github.com/wintersim/muonio/pkg/scenario"
	"github.com/wintersim/muonio/pkg/sim"
	_ "github.com/wintersim/muonio/pkg/sim/headless"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run a scenario against the simulator",
		Long: `Run a scenario to completion and print its report.

The run is stored and, with Redis storage, its events are published on
scenario-events:<run id>. The command fails unless the verdict is SUCCESS.

Examples:
  wintersim-scenario run scenarios/follow_leading_vehicle.yaml
  wintersim-scenario run follow.yaml --randomize --seed 42
  wintersim-scenario run follow.yaml --timeout 60 --stand-still`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			realtime, _ := cmd.Flags().GetBool("realtime")

			scCfg, err := scenario.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, scCfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			ep := endpoint(cmd, e, scCfg, args[0])
			world, err := sim.Connect(ctx, ep, e.log)
			if err != nil {
				return fmt.Errorf("failed to connect to simulator: %w", err)
			}
			defer func() {
				if err := world.Close(); err != nil {
					e.log.Warn("Failed to close simulator connection", "error", err)
				}
			}()

			r := runner.New(world, e.store, e.publisher(), e.log,
				runner.WithRealtime(realtime),
				runner.WithBackend(ep.Backend))
			rec, err := r.Run(ctx, scCfg)
			if rec != nil {
				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(rec); encErr != nil {
						return fmt.Errorf("failed to encode run record: %w", encErr)
					}
				} else {
					fmt.Fprint(cmd.OutOrStdout(), runner.Report(rec))
				}
			}
			if err != nil {
				return err
			}
			if !rec.Verdict.Passed() {
				return fmt.Errorf("scenario %s finished with verdict %s", scCfg.Name, rec.Verdict)
			}
			return nil
		},
	}

	cmd.Flags().Float64("timeout", 0, "Simulation seconds before the run times out (default from config, else 300)")
	cmd.Flags().Bool("randomize", false, "Draw the randomized scenario parameters")
	cmd.Flags().Uint64("seed", 0, "Seed for randomized parameters (0 draws one)")
	cmd.Flags().Bool("realtime", false, "Pace ticks to the wall clock")
	cmd.Flags().Bool("stand-still", false, "Also require the ego vehicle to stand still at the end")
	cmd.Flags().Bool("debug", false, "Log the behavior tree after every tick")
	cmd.Flags().String("sim", "", "Simulator backend (default from SIM_BACKEND)")
	cmd.Flags().String("host", "", "Simulator host (default from SIM_HOST)")
	cmd.Flags().Int("port", 0, "Simulator port (default from SIM_PORT)")
	cmd.Flags().String("map", "", "Map spec file for the headless backend")
	return cmd
}

// applyRunFlags overrides config fields with the flags that were set.
func applyRunFlags(cmd *cobra.Command, cfg *scenario.Config) error {
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetFloat64("timeout")
	}
	if flags.Changed("randomize") {
		cfg.Randomize, _ = flags.GetBool("randomize")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("stand-still") {
		cfg.StandStill, _ = flags.GetBool("stand-still")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid scenario config: %w", err)
	}
	return nil
}

// endpoint resolves the simulator endpoint: flags first, then the scenario
// config, then the environment. A map file named in the scenario config is
// relative to the config file.
func endpoint(cmd *cobra.Command, e *env, cfg *scenario.Config, configPath string) sim.Endpoint {
	flags := cmd.Flags()
	ep := sim.Endpoint{
		Backend: e.cfg.SimBackend,
		Host:    e.cfg.SimHost,
		Port:    e.cfg.SimPort,
		Timeout: e.cfg.SimTimeout,
	}
	if v, _ := flags.GetString("sim"); v != "" {
		ep.Backend = v
	}
	if v, _ := flags.GetString("host"); v != "" {
		ep.Host = v
	}
	if v, _ := flags.GetInt("port"); v != 0 {
		ep.Port = v
	}

	mapFile := e.cfg.MapFile
	if cfg.MapFile != "" {
		mapFile = cfg.MapFile
		if !filepath.IsAbs(mapFile) {
			mapFile = filepath.Join(filepath.Dir(configPath), mapFile)
		}
	}
	if v, _ := flags.GetString("map"); v != "" {
		mapFile = v
	}
	ep.Options = map[string]string{"map": mapFile}
	return ep
}
