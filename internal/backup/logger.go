package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ago-backup/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BackupLogger provides structured logging for backup runs with a correlation
// ID and an optional JSON event journal recording every state transition.
type BackupLogger struct {
	logger        *logging.Logger
	journal       *logrus.Logger
	journalFile   *os.File
	correlationID string
}

// BackupLoggerConfig holds configuration for backup logging
type BackupLoggerConfig struct {
	Logger        *logging.Logger
	JournalFile   string
	CorrelationID string
}

// JournalEntry is the shape of one journal line
type JournalEntry struct {
	Timestamp     time.Time `json:"time"`
	CorrelationID string    `json:"correlation_id"`
	Event         string    `json:"event"`
	ItemID        string    `json:"item_id,omitempty"`
	Identifier    string    `json:"identifier,omitempty"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// NewBackupLogger creates a backup logger. A correlation ID is generated when
// none is given.
func NewBackupLogger(config BackupLoggerConfig) (*BackupLogger, error) {
	correlationID := config.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	bl := &BackupLogger{
		logger:        logger,
		correlationID: correlationID,
	}

	if config.JournalFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.JournalFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}

		file, err := os.OpenFile(config.JournalFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal file: %w", err)
		}

		journal := logrus.New()
		journal.SetOutput(file)
		journal.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
		journal.SetLevel(logrus.InfoLevel)

		bl.journal = journal
		bl.journalFile = file
	}

	return bl, nil
}

// NewDiscardBackupLogger returns a backup logger that writes nothing
func NewDiscardBackupLogger() *BackupLogger {
	return &BackupLogger{
		logger:        logging.NewDiscardLogger(),
		correlationID: uuid.New().String(),
	}
}

// GetCorrelationID returns the current correlation ID
func (bl *BackupLogger) GetCorrelationID() string {
	return bl.correlationID
}

// Logger returns the underlying application logger
func (bl *BackupLogger) Logger() *logging.Logger {
	return bl.logger
}

// Close closes the journal file, if any
func (bl *BackupLogger) Close() error {
	if bl.journalFile == nil {
		return nil
	}
	err := bl.journalFile.Close()
	bl.journalFile = nil
	return err
}

// LogRunStart logs the start of a backup run and returns a completion func
func (bl *BackupLogger) LogRunStart(ctx context.Context, query SearchQuery) func(*RunReport, error) {
	startTime := time.Now()

	bl.entry(ctx).WithFields(logrus.Fields{
		"operation":   "backup_run",
		"query":       query.Query,
		"max_results": query.MaxResults,
	}).Info("Backup run started")
	bl.writeJournal(JournalEntry{Event: "run_started"})

	return func(report *RunReport, err error) {
		fields := logrus.Fields{
			"operation": "backup_run",
			"duration":  time.Since(startTime).String(),
		}
		if report != nil {
			fields["completed"] = report.Completed
			fields["skipped"] = report.Skipped
			fields["failed"] = report.Failed
			fields["orphans"] = len(report.Orphans)
		}

		if err != nil {
			fields["error"] = err.Error()
			bl.entry(ctx).WithFields(fields).Error("Backup run aborted")
			bl.writeJournal(JournalEntry{Event: "run_aborted", Error: err.Error()})
			return
		}

		bl.entry(ctx).WithFields(fields).Info("Backup run finished")
		bl.writeJournal(JournalEntry{Event: "run_finished"})
	}
}

// LogPlanResult logs the plan summary and each skipped item
func (bl *BackupLogger) LogPlanResult(ctx context.Context, candidates int, plan *Plan) {
	bl.logger.LogPlan(candidates, len(plan.NeedsBackup), len(plan.Skipped))

	for _, s := range plan.Skipped {
		fields := logrus.Fields{
			"item_id": s.Item.ID,
			"title":   s.Item.Title,
			"reason":  string(s.Reason),
		}
		if s.Err != nil {
			fields["error"] = s.Err.Error()
			bl.entry(ctx).WithFields(fields).Warn("Item metadata could not be resolved")
		} else {
			bl.entry(ctx).WithFields(fields).Debug("Item skipped")
		}
		bl.writeJournal(JournalEntry{
			Event:      "item_skipped",
			ItemID:     s.Item.ID,
			Identifier: s.Identifier,
			To:         string(s.Reason),
		})
	}
}

// LogTransition records one transaction state change
func (bl *BackupLogger) LogTransition(ctx context.Context, planned *PlannedItem, from, to TransactionState, err error) {
	fields := logrus.Fields{
		"item_id":    planned.Item.ID,
		"identifier": planned.Identifier,
		"from":       string(from),
		"to":         string(to),
	}

	entry := JournalEntry{
		Event:      "transition",
		ItemID:     planned.Item.ID,
		Identifier: planned.Identifier,
		From:       string(from),
		To:         string(to),
	}
	if err != nil {
		fields["error"] = err.Error()
		entry.Error = err.Error()
	}

	bl.entry(ctx).WithFields(fields).Debug("Transaction state changed")
	bl.writeJournal(entry)
}

// LogStageWarning logs a stage failure that does not fail the transaction
func (bl *BackupLogger) LogStageWarning(ctx context.Context, planned *PlannedItem, stage Stage, err error) {
	bl.entry(ctx).WithFields(logrus.Fields{
		"item_id":    planned.Item.ID,
		"identifier": planned.Identifier,
		"stage":      string(stage),
		"error":      err.Error(),
	}).Warn("Stage failed; backup kept")
	bl.writeJournal(JournalEntry{
		Event:      "stage_warning",
		ItemID:     planned.Item.ID,
		Identifier: planned.Identifier,
		From:       string(stage),
		Error:      err.Error(),
	})
}

// LogTransactionResult logs the final state of a transaction
func (bl *BackupLogger) LogTransactionResult(ctx context.Context, result *TransactionResult) {
	state := string(result.State)
	if result.FailedStage != "" {
		state = fmt.Sprintf("%s(%s)", result.State, result.FailedStage)
	}
	bl.logger.LogTransaction(result.Planned.Item.ID, result.Planned.Identifier, state, result.Duration, result.Err)

	if result.AuditErr != nil {
		bl.entry(ctx).WithField("identifier", result.Planned.Identifier).
			Errorf("Audit record not written: %v", result.AuditErr)
	}
}

func (bl *BackupLogger) entry(ctx context.Context) *logrus.Entry {
	return bl.logger.WithContext(ctx).WithField("correlation_id", bl.correlationID)
}

func (bl *BackupLogger) writeJournal(entry JournalEntry) {
	if bl.journal == nil {
		return
	}

	fields := logrus.Fields{
		"correlation_id": bl.correlationID,
		"event":          entry.Event,
	}
	if entry.ItemID != "" {
		fields["item_id"] = entry.ItemID
	}
	if entry.Identifier != "" {
		fields["identifier"] = entry.Identifier
	}
	if entry.From != "" {
		fields["from"] = entry.From
	}
	if entry.To != "" {
		fields["to"] = entry.To
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}

	bl.journal.WithFields(fields).Info("journal")
}
