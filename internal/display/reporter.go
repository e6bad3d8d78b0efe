package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"ago-backup/internal/backup"
)

var _ backup.Reporter = (*RunReporter)(nil)

// RunReporter prints one status line per finished item and a summary at the
// end of a run. With a structured format it stays silent until the run ends
// and then writes the whole report.
type RunReporter struct {
	mu     sync.Mutex
	out    *OutputWriter
	writer io.Writer
	colors ColorSystem
	icons  *IconSystem
	format OutputFormat
	quiet  bool
}

// NewRunReporter creates a reporter from a display configuration
func NewRunReporter(config *DisplayConfig) *RunReporter {
	config.SetDefaults()
	colors := NewColorSystem(config.Writer, GetThemeByName(config.Theme), config.IsColorEnabled())
	return &RunReporter{
		out:    NewOutputWriter(config.OutputFormat, config.Writer, NewFormatterRegistry(colors, config.MaxTableWidth)),
		writer: config.Writer,
		colors: colors,
		icons:  NewIconSystem(config.UseIcons),
		format: config.OutputFormat,
		quiet:  config.QuietMode,
	}
}

// ItemFinished implements backup.Reporter
func (r *RunReporter) ItemFinished(outcome *backup.ItemOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.format {
	case FormatTable:
		r.printStatusLine(outcome)
	case FormatCompact:
		r.printCompactLine(outcome)
	}
}

// RunFinished implements backup.Reporter
func (r *RunReporter) RunFinished(report *backup.RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.format {
	case FormatTable:
		r.printSummary(report)
	case FormatCompact:
		fmt.Fprintf(r.writer, "summary\tcandidates=%d\tcompleted=%d\tskipped=%d\tfailed=%d\twarnings=%d\n",
			report.Candidates, report.Completed, report.Skipped, report.Failed, report.Warnings)
	default:
		if err := r.out.Write(NewReportView(report)); err != nil {
			fmt.Fprintf(r.writer, "failed to write report: %v\n", err)
		}
	}
}

// StatusLine renders the human-readable status line of an outcome
func (r *RunReporter) StatusLine(outcome *backup.ItemOutcome) string {
	return r.statusLine(outcome)
}

func (r *RunReporter) printStatusLine(outcome *backup.ItemOutcome) {
	if r.quiet && outcome.Status != backup.OutcomeFailed && len(outcome.Warnings) == 0 {
		return
	}

	fmt.Fprintln(r.writer, r.statusLine(outcome))
	for _, w := range outcome.Warnings {
		fmt.Fprintf(r.writer, "  %s %s\n",
			r.icons.RenderWithColor(IconWarning, r.colors),
			r.colors.Colorize("warning: "+w.Error(), r.colors.Theme().Warning))
	}
}

func (r *RunReporter) statusLine(outcome *backup.ItemOutcome) string {
	id, title := "", ""
	if outcome.Item != nil {
		id, title = outcome.Item.ID, outcome.Item.Title
	}
	theme := r.colors.Theme()

	switch outcome.Status {
	case backup.OutcomeCompleted:
		return fmt.Sprintf("%s %s %s %q -> %s",
			r.icons.RenderWithColor(IconCompleted, r.colors),
			r.colors.Colorize("completed", theme.Success),
			id, title, outcome.Identifier)
	case backup.OutcomeSkipped:
		return fmt.Sprintf("%s %s %s %q",
			r.icons.RenderWithColor(IconSkipped, r.colors),
			r.colors.Colorize(fmt.Sprintf("skipped (%s)", outcome.Reason), theme.Info),
			id, title)
	default:
		line := fmt.Sprintf("%s %s %s %q",
			r.icons.RenderWithColor(IconFailed, r.colors),
			r.colors.Colorize(fmt.Sprintf("failed at %s", outcome.Stage), theme.Error),
			id, title)
		if outcome.Err != nil {
			line += ": " + outcome.Err.Error()
		}
		return line
	}
}

func (r *RunReporter) printCompactLine(outcome *backup.ItemOutcome) {
	id := ""
	if outcome.Item != nil {
		id = outcome.Item.ID
	}
	detail := string(outcome.Reason)
	if outcome.Status == backup.OutcomeFailed {
		detail = string(outcome.Stage)
	}
	fmt.Fprintf(r.writer, "%s\t%s\t%s\t%s\n", outcome.Status, id, outcome.Identifier, detail)
}

func (r *RunReporter) printSummary(report *backup.RunReport) {
	theme := r.colors.Theme()

	parts := []string{
		r.colors.Colorize(fmt.Sprintf("%d completed", report.Completed), theme.Success),
		fmt.Sprintf("%d skipped", report.Skipped),
	}
	failed := fmt.Sprintf("%d failed", report.Failed)
	if report.Failed > 0 {
		failed = r.colors.Colorize(failed, theme.Error)
	}
	parts = append(parts, failed)
	if report.Warnings > 0 {
		parts = append(parts, r.colors.Colorize(fmt.Sprintf("%d warnings", report.Warnings), theme.Warning))
	}

	fmt.Fprintf(r.writer, "\nBackup run %s: %d candidates, %s in %s\n",
		report.RunID, report.Candidates, strings.Join(parts, ", "), report.Duration.Round(time.Millisecond))

	if len(report.Orphans) > 0 {
		fmt.Fprintf(r.writer, "%s %d export item(s) left on the portal:\n",
			r.icons.RenderWithColor(IconWarning, r.colors), len(report.Orphans))
		for _, o := range report.Orphans {
			fmt.Fprintf(r.writer, "  %s %s (%s, item %s)\n", r.icons.Render(IconBullet), o.ID, o.Name, o.ItemID)
		}
	}
}

// PrintMessage writes a one-line status message in the reporter's style.
// Machine formats suppress it so their output stays parseable.
func (r *RunReporter) PrintMessage(icon, message string) {
	if r.format != FormatTable || r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.writer, "%s %s\n", r.icons.RenderWithColor(icon, r.colors), message)
}

// Write prints a view in the reporter's output format
func (r *RunReporter) Write(view View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.Write(view)
}

// Colors returns the reporter's color system
func (r *RunReporter) Colors() ColorSystem {
	return r.colors
}

// Icons returns the reporter's icon system
func (r *RunReporter) Icons() *IconSystem {
	return r.icons
}
