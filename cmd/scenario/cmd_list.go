package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/wintersim/muonio/internal/runner"
	"github.com/wintersim/muonio/pkg/scenario"
)

var (
	listHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	listCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored scenario runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := openEnv(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			runs, err := e.store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if runs == nil {
				runs = []*scenario.Record{}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs stored.")
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "Scenario", "Verdict", "Ticks", "Sim time", "Started").
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == table.HeaderRow {
						return listHeaderStyle
					}
					return listCellStyle
				})
			for _, rec := range runs {
				t.Row(
					rec.ID.String(),
					rec.Scenario,
					string(rec.Verdict),
					fmt.Sprintf("%d", rec.Ticks),
					fmt.Sprintf("%.2fs", rec.SimSeconds),
					rec.StartedAt.Local().Format(time.DateTime),
				)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 lists all)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run ID %q: %w", args[0], err)
			}

			e, err := openEnv(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			rec, err := e.store.LoadRun(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}
			if rec == nil {
				return fmt.Errorf("run not found: %s", id)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			fmt.Fprint(cmd.OutOrStdout(), runner.Report(rec))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
