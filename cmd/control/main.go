package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/wintersim/muonio/internal/config"
	"github.com/wintersim/muonio/internal/control"
	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/internal/logger"
	"github.com/wintersim/muonio/pkg/sim"
	_ "github.com/wintersim/muonio/pkg/sim/headless"
)

const defaultLogFile = "wintersim-control.log"

type controlFlags struct {
	verbose          bool
	host             string
	port             int
	autopilot        bool
	res              string
	friction         float64
	constantVelocity bool
	filter           string
	roleName         string
	simBackend       string
	mapFile          string
	redisURL         string
	logFile          string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &controlFlags{}
	cmd := &cobra.Command{
		Use:   "wintersim-control",
		Short: "WinterSim Muonio manual control",
		Long: `wintersim-control drives a vehicle in the simulator from the keyboard.

The HUD shows telemetry and weather sliders; dragging a slider pushes the
new weather to the simulator every frame. Press H in the program for the
full list of keys.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "print debug information")
	flags.StringVar(&f.host, "host", "127.0.0.1", "IP of the host server")
	flags.IntVarP(&f.port, "port", "p", 2000, "TCP port to listen to")
	flags.BoolVarP(&f.autopilot, "autopilot", "a", false, "enable autopilot")
	flags.StringVar(&f.res, "res", "1280x720", "window resolution, used until the terminal reports its size")
	flags.Float64Var(&f.friction, "fr", control.DefaultFriction, "tire friction applied to every wheel")
	flags.BoolVar(&f.constantVelocity, "c", false, "start in constant velocity mode")
	flags.StringVar(&f.filter, "filter", control.DefaultFilter, "actor filter")
	flags.StringVar(&f.roleName, "rolename", control.DefaultRoleName, "actor role name")
	flags.StringVar(&f.simBackend, "sim", "", "simulator backend (default from SIM_BACKEND)")
	flags.StringVar(&f.mapFile, "map", "", "map spec file for the headless backend")
	flags.StringVar(&f.redisURL, "redis", "", "publish weather updates to this Redis URL")
	flags.StringVar(&f.logFile, "log-file", defaultLogFile, "log file; the terminal belongs to the HUD")
	return cmd
}

func run(ctx context.Context, f *controlFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	width, height, err := parseRes(f.res)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.LogLevel = slog.LevelInfo
	if f.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	log, closeLog, err := logger.SetupFile(cfg, f.logFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLog() // Ignore error in defer
	}()

	backend := f.simBackend
	if backend == "" {
		backend = cfg.SimBackend
	}
	mapFile := f.mapFile
	if mapFile == "" {
		mapFile = cfg.MapFile
	}
	log.Info("Listening to server", "host", f.host, "port", f.port, "backend", backend)

	w, err := sim.Connect(ctx, sim.Endpoint{
		Backend: backend,
		Host:    f.host,
		Port:    f.port,
		Timeout: cfg.SimTimeout,
		Options: map[string]string{"map": mapFile},
	}, log)
	if err != nil {
		log.Error("Failed to connect to simulator", "error", err)
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Warn("Failed to close simulator connection", "error", err)
		}
	}()

	publisher, closePublisher, err := newPublisher(ctx, f.redisURL, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	renderer := newTermRenderer(width, height)
	loop, err := control.Start(ctx, w, renderer, control.NewRealClock(), publisher, control.Options{
		Width:            width,
		Height:           height,
		Autopilot:        f.autopilot,
		Friction:         &f.friction,
		ConstantVelocity: f.constantVelocity,
		World:            control.WorldOptions{RoleName: f.roleName, Filter: f.filter},
	}, log)
	if err != nil {
		log.Error("Failed to start control loop", "error", err)
		return err
	}
	defer func() {
		if err := loop.Close(); err != nil {
			log.Warn("Failed to destroy player", "error", err)
		}
	}()

	m := newModel(loop, renderer, log)
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	final, err := p.Run()
	if errors.Is(err, tea.ErrInterrupted) || interrupted(final) {
		fmt.Println("Cancelled by user. Bye!")
		return nil
	}
	if err != nil {
		log.Error("Error running program", "error", err)
		return err
	}
	if fm, ok := final.(*model); ok && fm.err != nil {
		return fm.err
	}
	return nil
}

func interrupted(m tea.Model) bool {
	fm, ok := m.(*model)
	return ok && fm.interrupted
}

// newPublisher connects the weather broadcaster when a Redis URL is given.
func newPublisher(ctx context.Context, url string, log *slog.Logger) (events.Publisher, func(), error) {
	if url == "" {
		return events.Nop{}, func() {}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	log.Info("Publishing weather updates", "channel", events.ControlChannel)
	return events.NewBroadcaster(client, log), func() { _ = client.Close() }, nil
}

// parseRes reads a WIDTHxHEIGHT resolution.
func parseRes(res string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(res), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid resolution %q, want WIDTHxHEIGHT", res)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution height %q", h)
	}
	return width, height, nil
}
