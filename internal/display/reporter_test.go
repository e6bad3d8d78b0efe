package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"ago-backup/internal/backup"
)

func newTestReporter(format OutputFormat, quiet bool) (*RunReporter, *bytes.Buffer) {
	var buf bytes.Buffer
	r := NewRunReporter(&DisplayConfig{
		ColorEnabled: false,
		OutputFormat: format,
		UseIcons:     true,
		QuietMode:    quiet,
		Writer:       &buf,
	})
	r.Icons().SetUnicodeSupport(true)
	return r, &buf
}

func sampleOutcomes() []*backup.ItemOutcome {
	return []*backup.ItemOutcome{
		{
			Item:       &backup.CatalogItem{ID: "a1", Title: "Parcels"},
			Identifier: "a1_2024-03-01_14-22-05",
			Status:     backup.OutcomeCompleted,
		},
		{
			Item:   &backup.CatalogItem{ID: "b2", Title: "Empty"},
			Status: backup.OutcomeSkipped,
			Reason: backup.SkipReasonNoEditHistory,
		},
		{
			Item:       &backup.CatalogItem{ID: "c3", Title: "Roads"},
			Identifier: "c3_None",
			Status:     backup.OutcomeFailed,
			Stage:      backup.StageExport,
			Err:        errors.New("export job failed"),
		},
		{
			Item:       &backup.CatalogItem{ID: "d4", Title: "Hydrants"},
			Identifier: "d4_None",
			Status:     backup.OutcomeCompleted,
			Warnings:   []error{errors.New("failed to delete remote export")},
			Orphan:     &backup.RemoteArtifact{ID: "exp-d4", Name: "d4_None", ItemID: "d4"},
		},
	}
}

func sampleReport() *backup.RunReport {
	outcomes := sampleOutcomes()
	return &backup.RunReport{
		RunID:      "run-123",
		StartedAt:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Duration:   1500 * time.Millisecond,
		Candidates: 4,
		Completed:  2,
		Skipped:    1,
		Failed:     1,
		Warnings:   1,
		Outcomes:   outcomes,
		Orphans:    []*backup.RemoteArtifact{outcomes[3].Orphan},
	}
}

func TestRunReporter_StatusLines(t *testing.T) {
	r, buf := newTestReporter(FormatTable, false)
	for _, o := range sampleOutcomes() {
		r.ItemFinished(o)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	expected := []string{
		`✓ completed a1 "Parcels" -> a1_2024-03-01_14-22-05`,
		`- skipped (no-edit-history) b2 "Empty"`,
		`✗ failed at export c3 "Roads": export job failed`,
		`✓ completed d4 "Hydrants" -> d4_None`,
		`  ! warning: failed to delete remote export`,
	}
	if len(lines) != len(expected) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(expected), buf.String())
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], expected[i])
		}
	}
}

func TestRunReporter_QuietShowsOnlyProblems(t *testing.T) {
	r, buf := newTestReporter(FormatTable, true)
	for _, o := range sampleOutcomes() {
		r.ItemFinished(o)
	}

	out := buf.String()
	if strings.Contains(out, "a1") || strings.Contains(out, "b2") {
		t.Errorf("quiet mode should hide clean outcomes:\n%s", out)
	}
	if !strings.Contains(out, "c3") || !strings.Contains(out, "d4") {
		t.Errorf("quiet mode should show failures and warnings:\n%s", out)
	}
}

func TestRunReporter_Summary(t *testing.T) {
	r, buf := newTestReporter(FormatTable, false)
	r.RunFinished(sampleReport())

	out := buf.String()
	if !strings.Contains(out, "Backup run run-123: 4 candidates, 2 completed, 1 skipped, 1 failed, 1 warnings in 1.5s") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, "1 export item(s) left on the portal") || !strings.Contains(out, "exp-d4 (d4_None, item d4)") {
		t.Errorf("summary should list orphaned exports:\n%s", out)
	}
}

func TestRunReporter_Compact(t *testing.T) {
	r, buf := newTestReporter(FormatCompact, false)
	outcomes := sampleOutcomes()
	r.ItemFinished(outcomes[1])
	r.ItemFinished(outcomes[2])
	r.RunFinished(sampleReport())

	want := "skipped\tb2\t\tno-edit-history\n" +
		"failed\tc3\tc3_None\texport\n" +
		"summary\tcandidates=4\tcompleted=2\tskipped=1\tfailed=1\twarnings=1\n"
	if buf.String() != want {
		t.Errorf("compact output = %q, want %q", buf.String(), want)
	}
}

func TestRunReporter_JSONWritesReportOnce(t *testing.T) {
	r, buf := newTestReporter(FormatJSON, false)
	for _, o := range sampleOutcomes() {
		r.ItemFinished(o)
	}
	if buf.Len() != 0 {
		t.Fatalf("JSON reporter should not print per item, got %q", buf.String())
	}

	r.RunFinished(sampleReport())

	var summary ReportSummary
	if err := json.Unmarshal(buf.Bytes(), &summary); err != nil {
		t.Fatalf("report is not valid JSON: %v\n%s", err, buf.String())
	}
	if summary.RunID != "run-123" || summary.Failed != 1 || len(summary.Outcomes) != 4 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Outcomes[2].Stage != "export" || summary.Outcomes[2].Error != "export job failed" {
		t.Errorf("unexpected failed outcome %+v", summary.Outcomes[2])
	}
}

func TestRunReporter_PrintMessage(t *testing.T) {
	r, buf := newTestReporter(FormatTable, false)
	r.PrintMessage(IconInfo, "Signed in")
	if buf.String() != "• Signed in\n" {
		t.Errorf("PrintMessage() wrote %q", buf.String())
	}

	r, buf = newTestReporter(FormatJSON, false)
	r.PrintMessage(IconInfo, "Signed in")
	if buf.Len() != 0 {
		t.Errorf("structured formats should suppress messages, got %q", buf.String())
	}
}

func TestRunReporter_ASCIIIcons(t *testing.T) {
	r, _ := newTestReporter(FormatTable, false)
	r.Icons().SetUnicodeSupport(false)

	line := r.StatusLine(sampleOutcomes()[2])
	if !strings.HasPrefix(line, "FAIL failed at export") {
		t.Errorf("StatusLine() = %q", line)
	}
}
