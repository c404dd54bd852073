// internal/reporting/reporter.go
// Rendering of execution reports: a human-readable console table and a
// machine-readable JSON document.
package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/naytrik/naytrik/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteConsole renders the report as an aligned table with a summary line.
func WriteConsole(w io.Writer, report *schemas.ExecutionReport) error {
	fmt.Fprintf(w, "Workflow: %s\nRun:      %s\n\n", report.WorkflowName, report.RunID)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tKIND\tOUTCOME\tSTRATEGY\tDURATION\tDETAIL")
	for _, step := range report.Steps {
		detail := step.ErrorDetail
		if step.Extracted != "" {
			detail = fmt.Sprintf("extracted %q", step.Extracted)
		}
		if step.ScreenshotRef != "" && detail == "" {
			detail = step.ScreenshotRef
		}
		detail = truncate(detail, 80)

		strategy := string(step.StrategyUsed)
		if strategy == "" {
			strategy = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%dms\t%s\n",
			step.StepID, step.Kind, step.Outcome, strategy, step.DurationMs, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	succeeded, fallback, failed, skipped := report.Counts()
	status := "PASSED"
	if !report.Passed() {
		status = "FAILED"
	}
	fmt.Fprintf(w, "\n%s: %d succeeded, %d via fallback, %d failed, %d skipped (%s)\n",
		status, succeeded, fallback, failed, skipped, report.Duration().Round(time.Millisecond))

	if len(report.Outputs) > 0 {
		fmt.Fprintln(w, "\nOutputs:")
		for key, value := range report.Outputs {
			fmt.Fprintf(w, "  %s = %s\n", key, truncate(value, 120))
		}
	}
	return nil
}

// WriteJSON emits the full report as indented JSON.
func WriteJSON(w io.Writer, report *schemas.ExecutionReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
