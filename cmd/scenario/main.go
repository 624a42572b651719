package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wintersim-scenario",
		Short: "WinterSim Muonio scenario runner",
		Long: `wintersim-scenario runs behavior-tree driving scenarios against a
simulator and keeps a record of every run.

Storage and the simulator endpoint come from the environment
(STORAGE_BACKEND, SQLITE_PATH, REDIS_URL, SIM_BACKEND, SIM_HOST, SIM_PORT).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newListCmd(),
		newShowCmd(),
	)
	return rootCmd
}
