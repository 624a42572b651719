package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/wintersim/muonio/pkg/atomic"
	"github.com/wintersim/muonio/pkg/scenario"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Report renders the outcome of a run as a short header followed by a table
// of criteria.
func Report(rec *scenario.Record) string {
	var b strings.Builder

	verdict := string(rec.Verdict)
	if rec.Verdict.Passed() {
		verdict = passStyle.Render(verdict)
	} else {
		verdict = failStyle.Render(verdict)
	}
	fmt.Fprintf(&b, "Scenario %s (%s): %s\n", rec.Scenario, rec.Type, verdict)
	fmt.Fprintf(&b, "Run ID: %s\n", rec.ID)
	fmt.Fprintf(&b, "Simulation time: %.2fs in %d ticks (wall clock %s)\n",
		rec.SimSeconds, rec.Ticks, rec.Duration().Round(time.Millisecond))
	if len(rec.Params) > 0 {
		fmt.Fprintf(&b, "Parameters: %v\n", rec.Params)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rec.Error)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Actor", "Criterion", "Result", "Actual", "Expected").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rec.Criteria {
		t.Row(r.Actor.String(), r.Name, r.Status, formatValue(r.Actual), formatValue(r.Expected))
	}
	durationStatus := atomic.TestSuccess
	if rec.Verdict == scenario.VerdictTimeout {
		durationStatus = atomic.TestFailure
	}
	t.Row("", "Duration", durationStatus, fmt.Sprintf("%.2fs", rec.SimSeconds), "")

	b.WriteString(t.String())
	b.WriteString("\n")
	return b.String()
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
