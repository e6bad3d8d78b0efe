package backup

import (
	"context"
	"sync"
	"time"

	"ago-backup/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// OutcomeStatus is the per-item result of a run
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// ItemOutcome is the tagged result for one catalog item
type ItemOutcome struct {
	Item       *CatalogItem    `json:"item"`
	Identifier string          `json:"identifier,omitempty"`
	Status     OutcomeStatus   `json:"status"`
	Stage      Stage           `json:"stage,omitempty"`
	Reason     SkipReason      `json:"reason,omitempty"`
	Err        error           `json:"-"`
	Warnings   []error         `json:"-"`
	Entry      *ArchiveEntry   `json:"entry,omitempty"`
	Orphan     *RemoteArtifact `json:"orphan,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// RunReport summarises one backup run
type RunReport struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Candidates int               `json:"candidates"`
	Completed  int               `json:"completed"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Warnings   int               `json:"warnings"`
	Outcomes   []*ItemOutcome    `json:"outcomes"`
	Orphans    []*RemoteArtifact `json:"orphans,omitempty"`
}

// HasFailures reports whether any item failed
func (r *RunReport) HasFailures() bool {
	return r.Failed > 0
}

func (r *RunReport) add(outcome *ItemOutcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	switch outcome.Status {
	case OutcomeCompleted:
		r.Completed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	r.Warnings += len(outcome.Warnings)
	if outcome.Orphan != nil {
		r.Orphans = append(r.Orphans, outcome.Orphan)
	}
}

// Orchestrator drives a run: search, plan, execute, report. It holds no
// decision logic of its own.
type Orchestrator struct {
	catalog     Catalog
	planner     *Planner
	transaction *Transaction
	reporter    Reporter
	logger      *BackupLogger
	workers     int
}

// OrchestratorConfig wires the collaborators of an Orchestrator
type OrchestratorConfig struct {
	Catalog     Catalog
	Planner     *Planner
	Transaction *Transaction
	Reporter    Reporter
	Logger      *BackupLogger
	Workers     int
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = NewDiscardBackupLogger()
	}
	return &Orchestrator{
		catalog:     config.Catalog,
		planner:     config.Planner,
		transaction: config.Transaction,
		reporter:    config.Reporter,
		logger:      logger,
		workers:     workers,
	}
}

// Plan searches the catalog and classifies the results without exporting anything
func (o *Orchestrator) Plan(ctx context.Context, query SearchQuery) ([]*CatalogItem, *Plan, error) {
	start := time.Now()
	items, err := o.catalog.Search(ctx, query)
	o.logger.Logger().LogCatalogSearch(query.Query, len(items), time.Since(start), err)
	if err != nil {
		return nil, nil, err
	}

	plan := o.planner.Plan(items)
	o.logger.LogPlanResult(ctx, len(items), plan)
	return items, plan, nil
}

// Run performs a full backup run. It returns an error only if the catalog
// search fails; item failures are reported as outcomes.
func (o *Orchestrator) Run(ctx context.Context, query SearchQuery) (*RunReport, error) {
	report := &RunReport{
		RunID:     o.logger.GetCorrelationID(),
		StartedAt: time.Now(),
	}
	if report.RunID == "" {
		report.RunID = uuid.New().String()
	}
	ctx = logging.ContextWithRunID(ctx, report.RunID)

	finish := o.logger.LogRunStart(ctx, query)

	items, plan, err := o.Plan(ctx, query)
	if err != nil {
		finish(nil, err)
		return nil, err
	}
	report.Candidates = len(items)

	for _, s := range plan.Skipped {
		outcome := &ItemOutcome{
			Item:       s.Item,
			Identifier: s.Identifier,
			Status:     OutcomeSkipped,
			Reason:     s.Reason,
		}
		if s.Err != nil {
			outcome.Warnings = []error{s.Err}
		}
		report.add(outcome)
		o.emit(outcome)
	}

	for _, outcome := range o.execute(ctx, plan.NeedsBackup) {
		report.add(outcome)
	}

	report.Duration = time.Since(report.StartedAt)
	if o.reporter != nil {
		o.reporter.RunFinished(report)
	}
	finish(report, nil)
	return report, nil
}

// execute runs transactions with at most o.workers in flight. Outcomes keep
// the plan order while status lines are emitted as items finish.
func (o *Orchestrator) execute(ctx context.Context, planned []*PlannedItem) []*ItemOutcome {
	outcomes := make([]*ItemOutcome, len(planned))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.workers)

	for i, p := range planned {
		i, p := i, p
		g.Go(func() error {
			outcome := outcomeFromResult(o.transaction.Execute(ctx, p))
			outcomes[i] = outcome

			mu.Lock()
			o.emit(outcome)
			mu.Unlock()
			return nil
		})
	}

	// Transactions report failure through their results, never through Go
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) emit(outcome *ItemOutcome) {
	if o.reporter != nil {
		o.reporter.ItemFinished(outcome)
	}
}

func outcomeFromResult(result *TransactionResult) *ItemOutcome {
	outcome := &ItemOutcome{
		Item:       result.Planned.Item,
		Identifier: result.Planned.Identifier,
		Entry:      result.Entry,
		Orphan:     result.Orphan,
		Warnings:   result.Warnings(),
		Duration:   result.Duration,
	}
	if result.Completed() {
		outcome.Status = OutcomeCompleted
	} else {
		outcome.Status = OutcomeFailed
		outcome.Stage = result.FailedStage
		outcome.Err = result.Err
	}
	return outcome
}
