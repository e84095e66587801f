package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/testdeck/testdeck/types"
)

// statusOrder fixes the display order of report sections.
var statusOrder = []types.ExecutionStatus{
	types.ExecutionStatusFailed,
	types.ExecutionStatusBlocked,
	types.ExecutionStatusPassed,
	types.ExecutionStatusSkipped,
	types.ExecutionStatusInconclusive,
}

// getStatusString returns a colored status indicator for terminal output.
func getStatusString(status types.RunStatus) string {
	switch status {
	case types.RunStatusPassed:
		return text.FgGreen.Sprint("✓ " + status)
	case types.RunStatusFailed:
		return text.FgRed.Sprint("✗ " + status)
	case types.RunStatusCancelled:
		return text.FgYellow.Sprint("- " + status)
	default:
		return string(status)
	}
}

func formatDuration(secs *int64) string {
	if secs == nil {
		return "-"
	}
	return (time.Duration(*secs) * time.Second).String()
}

// FormatReport renders a run report as a text table.
func FormatReport(report *types.RunReport) string {
	var sb strings.Builder
	t := table.NewWriter()
	t.SetOutputMirror(&sb)
	t.SetTitle(fmt.Sprintf("Suite Run Report: %s (%s)", report.SuiteName, report.SuiteRun.ID))

	t.AppendHeader(table.Row{"Status", "Test Case", "Executed At", "Executed By"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test Case", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, status := range statusOrder {
		for _, d := range report.ByStatus[status] {
			executedAt := "-"
			if d.ExecutedAt != nil {
				executedAt = d.ExecutedAt.Format(time.RFC3339)
			}
			t.AppendRow(table.Row{string(status), d.TestCaseTitle, executedAt, d.ExecutedBy})
		}
	}

	t.AppendFooter(table.Row{
		getStatusString(report.SuiteRun.Status),
		fmt.Sprintf("%d/%d passed (%.1f%%)", report.SuiteRun.Passed, report.SuiteRun.Total, report.PassRate),
		formatDuration(report.DurationSeconds),
		"",
	})
	t.Render()

	if len(report.Defects) > 0 {
		sb.WriteString("\nLinked defects:\n")
		for _, d := range report.Defects {
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", d.Severity, d.Title))
		}
	}
	return sb.String()
}

// FormatTrends renders a trend summary as a text table, oldest run first.
func FormatTrends(summary *types.TrendSummary) string {
	var sb strings.Builder
	t := table.NewWriter()
	t.SetOutputMirror(&sb)
	t.SetTitle("Suite Run Trends")

	t.AppendHeader(table.Row{"Started", "Status", "Pass Rate", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Pass Rate", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, p := range summary.Points {
		t.AppendRow(table.Row{
			p.StartedAt.Format("2006-01-02 15:04"),
			getStatusString(p.Status),
			fmt.Sprintf("%.1f%%", p.PassRate),
			formatDuration(p.DurationSeconds),
		})
	}

	meanDuration := "-"
	if summary.MeanDurationSeconds != nil {
		meanDuration = fmt.Sprintf("%.0fs", *summary.MeanDurationSeconds)
	}
	t.AppendFooter(table.Row{"mean", "", fmt.Sprintf("%.1f%%", summary.MeanPassRate), meanDuration})
	t.Render()
	return sb.String()
}
