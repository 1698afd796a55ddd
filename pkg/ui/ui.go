package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaneisley/gymbook/pkg/metrics"
	"github.com/shaneisley/gymbook/pkg/orchestrator"
)

// Reporter handles terminal output for booking runs
type Reporter struct {
	writer io.Writer
	quiet  bool
}

// NewReporter creates a new status reporter
func NewReporter(writer io.Writer) *Reporter {
	return &Reporter{writer: writer}
}

// SetQuiet suppresses everything but the final status line
func (r *Reporter) SetQuiet(quiet bool) {
	r.quiet = quiet
}

// headline is the one-line verdict for a run
func headline(result orchestrator.Result) string {
	attempts := "1 attempt"
	if result.Attempts != 1 {
		attempts = fmt.Sprintf("%d attempts", result.Attempts)
	}

	switch result.State {
	case orchestrator.StateBooked:
		return fmt.Sprintf("✅ [gymbook] Booked slot %s on %s after %s.", result.SlotID, result.Date, attempts)
	case orchestrator.StateAlreadyBooked:
		return fmt.Sprintf("✅ [gymbook] Slot %s on %s was already booked.", result.SlotID, result.Date)
	case orchestrator.StateSlotNotFound:
		return fmt.Sprintf("⚠️  [gymbook] No slot found for %s (%s).", result.Date, result.Weekday)
	case orchestrator.StateAuthFailed:
		return "❌ [gymbook] Login failed, nothing was booked."
	default:
		return fmt.Sprintf("❌ [gymbook] Booking for %s failed after %s.", result.Date, attempts)
	}
}

// FinalSummary reports the final outcome of a run
func (r *Reporter) FinalSummary(result orchestrator.Result) {
	fmt.Fprintln(r.writer, headline(result))
	if r.quiet {
		return
	}

	fmt.Fprintf(r.writer, "\nRun Summary:\n")
	fmt.Fprintf(r.writer, "  Run ID: %s\n", result.RunID)
	fmt.Fprintf(r.writer, "  Target Date: %s (%s)\n", result.Date, result.Weekday)
	if result.SlotID != "" {
		fmt.Fprintf(r.writer, "  Slot: %s\n", result.SlotID)
	}
	fmt.Fprintf(r.writer, "  Outcome: %s\n", result.State)
	fmt.Fprintf(r.writer, "  Booking Attempts: %d\n", result.Attempts)
	fmt.Fprintf(r.writer, "  Logged Out: %t\n", result.LoggedOut)
	fmt.Fprintf(r.writer, "  Total Duration: %s\n", FormatDuration(result.Duration))
	if result.Reason != "" {
		fmt.Fprintf(r.writer, "  Final Reason: %s\n", result.Reason)
	}
}

// Slot prints the result of a schedule lookup
func (r *Reporter) Slot(date, targetTime string, id string, found bool) {
	if !found {
		fmt.Fprintf(r.writer, "No slot at %s on %s.\n", targetTime, date)
		return
	}
	fmt.Fprintf(r.writer, "Slot at %s on %s: %s\n", targetTime, date, id)
}

// History prints recorded runs as a table followed by aggregate statistics
func (r *Reporter) History(runs []*metrics.RunMetrics) {
	if len(runs) == 0 {
		fmt.Fprintln(r.writer, "No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(r.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDATE\tSLOT\tSTATUS\tATTEMPTS\tDURATION")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			time.Unix(run.Timestamp, 0).UTC().Format("2006-01-02 15:04"),
			run.Date, dash(run.SlotID), run.FinalStatus, run.TotalAttempts, FormatDuration(run.Duration))
	}
	tw.Flush()

	if r.quiet {
		return
	}
	stats := metrics.Aggregate(runs)
	fmt.Fprintf(r.writer, "\n%d runs, %.0f%% successful, %.1f attempts on average\n",
		stats.TotalRuns, stats.SuccessRate*100, stats.AverageAttempts)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	if d < time.Second {
		return fmt.Sprintf("%.1fs", float64(d)/float64(time.Second))
	}

	if d < time.Minute {
		seconds := float64(d) / float64(time.Second)
		if seconds == float64(int(seconds)) {
			return fmt.Sprintf("%.0fs", seconds)
		}
		formatted := strings.TrimRight(fmt.Sprintf("%.2f", seconds), "0")
		formatted = strings.TrimRight(formatted, ".")
		return formatted + "s"
	}

	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second

	var b strings.Builder
	if hours > 0 {
		fmt.Fprintf(&b, "%dh", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dm", minutes)
	}
	if seconds > 0 {
		fmt.Fprintf(&b, "%ds", seconds)
	}
	return b.String()
}
