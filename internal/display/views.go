package display

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ago-backup/internal/backup"
)

// PlanRow is one classified candidate of a plan
type PlanRow struct {
	ID         string `json:"id" yaml:"id"`
	Title      string `json:"title" yaml:"title"`
	Owner      string `json:"owner" yaml:"owner"`
	Action     string `json:"action" yaml:"action"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	LastEdited string `json:"last_edited,omitempty" yaml:"last_edited,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// PlanView shows what a run would do
type PlanView struct {
	rows []PlanRow
}

// NewPlanView builds the view of plan. Items needing a backup come first.
func NewPlanView(plan *backup.Plan, codec backup.NameCodec) *PlanView {
	v := &PlanView{}
	for _, p := range plan.NeedsBackup {
		v.rows = append(v.rows, PlanRow{
			ID:         p.Item.ID,
			Title:      p.Item.Title,
			Owner:      p.Item.Owner,
			Action:     "backup",
			Identifier: p.Identifier,
			LastEdited: codec.FingerprintText(p.Fingerprint),
		})
	}
	for _, s := range plan.Skipped {
		row := PlanRow{
			ID:         s.Item.ID,
			Title:      s.Item.Title,
			Owner:      s.Item.Owner,
			Action:     "skip",
			Reason:     string(s.Reason),
			Identifier: s.Identifier,
		}
		if s.Err != nil {
			row.Error = s.Err.Error()
		}
		v.rows = append(v.rows, row)
	}
	return v
}

func (v *PlanView) Headers() []string {
	return []string{"ID", "Title", "Owner", "Action", "Identifier", "Reason"}
}

func (v *PlanView) Rows() [][]string {
	rows := make([][]string, 0, len(v.rows))
	for _, r := range v.rows {
		rows = append(rows, []string{r.ID, r.Title, r.Owner, r.Action, r.Identifier, r.Reason})
	}
	return rows
}

func (v *PlanView) Value() interface{} {
	if v.rows == nil {
		return []PlanRow{}
	}
	return v.rows
}

// ArchiveView lists archive entries
type ArchiveView struct {
	entries []*backup.ArchiveEntry
}

// NewArchiveView creates an archive listing view
func NewArchiveView(entries []*backup.ArchiveEntry) *ArchiveView {
	return &ArchiveView{entries: entries}
}

func (v *ArchiveView) Headers() []string {
	return []string{"Identifier", "Item ID", "Last Edited", "Size", "Modified"}
}

func (v *ArchiveView) Rows() [][]string {
	rows := make([][]string, 0, len(v.entries))
	for _, e := range v.entries {
		rows = append(rows, []string{
			e.Identifier,
			e.ItemID,
			e.FingerprintText,
			FormatBytes(e.Size),
			e.ModTime.Format(time.RFC3339),
		})
	}
	return rows
}

func (v *ArchiveView) Value() interface{} {
	if v.entries == nil {
		return []*backup.ArchiveEntry{}
	}
	return v.entries
}

// AuditView shows audit records in the column order of the audit file
type AuditView struct {
	records []*backup.AuditRecord
}

// NewAuditView creates an audit log view
func NewAuditView(records []*backup.AuditRecord) *AuditView {
	return &AuditView{records: records}
}

func (v *AuditView) Headers() []string {
	return []string{"FileName", "Title", "ID", "Owner", "ownerFolder", "layers", "tables", "Last Edited"}
}

func (v *AuditView) Rows() [][]string {
	rows := make([][]string, 0, len(v.records))
	for _, r := range v.records {
		rows = append(rows, []string{
			r.FileName,
			r.Title,
			r.ID,
			r.Owner,
			r.OwnerFolder,
			strconv.Itoa(len(r.Layers)),
			strconv.Itoa(len(r.Tables)),
			r.LastEdited,
		})
	}
	return rows
}

func (v *AuditView) Value() interface{} {
	if v.records == nil {
		return []*backup.AuditRecord{}
	}
	return v.records
}

// OutcomeRow is the machine-readable form of one item outcome
type OutcomeRow struct {
	ID         string   `json:"id" yaml:"id"`
	Title      string   `json:"title" yaml:"title"`
	Status     string   `json:"status" yaml:"status"`
	Identifier string   `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Reason     string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Stage      string   `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Path       string   `json:"path,omitempty" yaml:"path,omitempty"`
	Orphan     string   `json:"orphan_export,omitempty" yaml:"orphan_export,omitempty"`
	Duration   string   `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// ReportSummary is the machine-readable form of a run report
type ReportSummary struct {
	RunID      string       `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	Duration   string       `json:"duration" yaml:"duration"`
	Candidates int          `json:"candidates" yaml:"candidates"`
	Completed  int          `json:"completed" yaml:"completed"`
	Skipped    int          `json:"skipped" yaml:"skipped"`
	Failed     int          `json:"failed" yaml:"failed"`
	Warnings   int          `json:"warnings" yaml:"warnings"`
	Orphans    []string     `json:"orphan_exports,omitempty" yaml:"orphan_exports,omitempty"`
	Outcomes   []OutcomeRow `json:"outcomes" yaml:"outcomes"`
}

// ReportView shows every outcome of a run
type ReportView struct {
	summary ReportSummary
}

// NewReportView creates a view of a finished run
func NewReportView(report *backup.RunReport) *ReportView {
	s := ReportSummary{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		Duration:   report.Duration.Round(time.Millisecond).String(),
		Candidates: report.Candidates,
		Completed:  report.Completed,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Warnings:   report.Warnings,
		Outcomes:   make([]OutcomeRow, 0, len(report.Outcomes)),
	}
	for _, o := range report.Orphans {
		s.Orphans = append(s.Orphans, o.ID)
	}
	for _, o := range report.Outcomes {
		s.Outcomes = append(s.Outcomes, outcomeRow(o))
	}
	return &ReportView{summary: s}
}

func outcomeRow(o *backup.ItemOutcome) OutcomeRow {
	row := OutcomeRow{
		Status:     string(o.Status),
		Identifier: o.Identifier,
		Reason:     string(o.Reason),
		Stage:      string(o.Stage),
	}
	if o.Item != nil {
		row.ID = o.Item.ID
		row.Title = o.Item.Title
	}
	if o.Err != nil {
		row.Error = o.Err.Error()
	}
	for _, w := range o.Warnings {
		row.Warnings = append(row.Warnings, w.Error())
	}
	if o.Entry != nil {
		row.Path = o.Entry.Path
	}
	if o.Orphan != nil {
		row.Orphan = o.Orphan.ID
	}
	if o.Duration > 0 {
		row.Duration = o.Duration.Round(time.Millisecond).String()
	}
	return row
}

func (v *ReportView) Headers() []string {
	return []string{"ID", "Status", "Identifier", "Detail"}
}

func (v *ReportView) Rows() [][]string {
	rows := make([][]string, 0, len(v.summary.Outcomes))
	for _, o := range v.summary.Outcomes {
		detail := o.Reason
		if o.Status == string(backup.OutcomeFailed) {
			detail = fmt.Sprintf("%s: %s", o.Stage, o.Error)
		} else if len(o.Warnings) > 0 {
			detail = strings.Join(o.Warnings, "; ")
		}
		rows = append(rows, []string{o.ID, o.Status, o.Identifier, detail})
	}
	return rows
}

func (v *ReportView) Value() interface{} {
	return v.summary
}

// FormatBytes renders a size with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
