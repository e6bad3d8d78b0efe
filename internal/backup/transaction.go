package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StateTransition is one step in a transaction's history
type StateTransition struct {
	From TransactionState `json:"from"`
	To   TransactionState `json:"to"`
	At   time.Time        `json:"at"`
}

// TransactionResult is the outcome of one export transaction
type TransactionResult struct {
	Planned     *PlannedItem      `json:"planned"`
	State       TransactionState  `json:"state"`
	FailedStage Stage             `json:"failed_stage,omitempty"`
	Err         error             `json:"-"`
	Artifact    *RemoteArtifact   `json:"artifact,omitempty"`
	Entry       *ArchiveEntry     `json:"entry,omitempty"`
	Orphan      *RemoteArtifact   `json:"orphan,omitempty"`
	CleanupErr  error             `json:"-"`
	AuditErr    error             `json:"-"`
	History     []StateTransition `json:"history"`
	Duration    time.Duration     `json:"duration"`
}

// Completed reports whether the local archive is authoritative
func (r *TransactionResult) Completed() bool {
	return r.State == StateComplete
}

// Warnings returns the non-fatal errors of a completed transaction
func (r *TransactionResult) Warnings() []error {
	var warnings []error
	if r.CleanupErr != nil {
		warnings = append(warnings, r.CleanupErr)
	}
	if r.AuditErr != nil {
		warnings = append(warnings, r.AuditErr)
	}
	return warnings
}

// advance moves the result to the next state, refusing invalid transitions
func (r *TransactionResult) advance(to TransactionState) error {
	if err := transition(r.State, to); err != nil {
		return err
	}
	r.History = append(r.History, StateTransition{From: r.State, To: to, At: time.Now()})
	r.State = to
	return nil
}

func (r *TransactionResult) fail(stage Stage, err error) *TransactionResult {
	// FAILED is reachable from every non-terminal state
	_ = r.advance(StateFailed)
	r.FailedStage = stage
	r.Err = err
	return r
}

func transition(from, to TransactionState) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transaction transition: %s -> %s", from, to)
	}
	return nil
}

func isAllowedTransition(from, to TransactionState) bool {
	if to == StateFailed {
		return !from.IsTerminal()
	}
	switch from {
	case StateRequested:
		return to == StateExported
	case StateExported:
		return to == StateDownloaded
	case StateDownloaded:
		return to == StateRemoteCleaned || to == StateComplete
	case StateRemoteCleaned:
		return to == StateComplete
	default:
		return false
	}
}

// Transaction runs export, download and remote cleanup for planned items.
// It holds no per-item state and may execute items concurrently.
type Transaction struct {
	catalog  Catalog
	index    *LocalArchiveIndex
	codec    NameCodec
	verifier ArchiveVerifier
	audit    AuditLog
	logger   *BackupLogger
	config   ExecutionConfig
}

// NewTransaction wires a transaction runner. verifier may be nil to accept
// downloads unchecked.
func NewTransaction(catalog Catalog, index *LocalArchiveIndex, codec NameCodec, verifier ArchiveVerifier,
	audit AuditLog, logger *BackupLogger, config ExecutionConfig) *Transaction {
	config.SetDefaults()
	if logger == nil {
		logger = NewDiscardBackupLogger()
	}
	return &Transaction{
		catalog:  catalog,
		index:    index,
		codec:    codec,
		verifier: verifier,
		audit:    audit,
		logger:   logger,
		config:   config,
	}
}

// Execute runs the transaction for one planned item. It never retries. An
// audit record is appended only when the transaction reaches COMPLETE.
func (t *Transaction) Execute(ctx context.Context, planned *PlannedItem) *TransactionResult {
	start := time.Now()
	result := &TransactionResult{Planned: planned, State: StateRequested}
	defer func() {
		result.Duration = time.Since(start)
		t.logger.LogTransactionResult(ctx, result)
	}()

	// Nothing is exported for an item whose archive could not be stored
	final, err := t.index.ArchivePath(planned.Identifier)
	if err != nil {
		return t.failed(ctx, result, StageExport, NewResolutionError("cannot store archive", err).
			WithContext("item_id", planned.Item.ID))
	}

	artifact, err := t.export(ctx, planned)
	if err != nil {
		return t.failed(ctx, result, StageExport, err)
	}
	result.Artifact = artifact
	t.step(ctx, result, StateExported)

	entry, err := t.download(ctx, planned, artifact, final)
	if err != nil {
		// The export is still on the portal and nothing here will remove it
		result.Orphan = artifact
		return t.failed(ctx, result, StageDownload, err)
	}
	result.Entry = entry
	t.step(ctx, result, StateDownloaded)

	if !t.config.KeepRemoteExports {
		if err := t.cleanup(ctx, artifact); err != nil {
			result.CleanupErr = err
			result.Orphan = artifact
			t.logger.LogStageWarning(ctx, planned, StageCleanup, err)
		} else {
			t.step(ctx, result, StateRemoteCleaned)
		}
	}

	t.step(ctx, result, StateComplete)

	if t.audit != nil {
		lastEdited := ""
		if !planned.Fingerprint.IsAbsent() {
			lastEdited = t.codec.FingerprintText(planned.Fingerprint)
		}
		record := NewAuditRecord(planned, planned.Identifier, lastEdited)
		if err := t.audit.Append(record); err != nil {
			result.AuditErr = NewAuditWriteError("failed to append audit record", err).
				WithContext("identifier", planned.Identifier)
		}
	}

	return result
}

func (t *Transaction) step(ctx context.Context, result *TransactionResult, to TransactionState) {
	from := result.State
	if err := result.advance(to); err != nil {
		t.logger.logger.Errorf("transaction %s: %v", result.Planned.Identifier, err)
		return
	}
	t.logger.LogTransition(ctx, result.Planned, from, to, nil)
}

func (t *Transaction) failed(ctx context.Context, result *TransactionResult, stage Stage, err error) *TransactionResult {
	from := result.State
	result.fail(stage, err)
	t.logger.LogTransition(ctx, result.Planned, from, StateFailed, err)
	return result
}

func (t *Transaction) export(ctx context.Context, planned *PlannedItem) (*RemoteArtifact, error) {
	exportCtx, cancel := context.WithTimeout(ctx, t.config.ExportTimeout)
	defer cancel()

	artifact, err := t.catalog.Export(exportCtx, planned.Item, planned.Identifier, t.config.ExportFormat)
	if err != nil {
		return nil, NewExportError("remote export failed", err).
			WithContext("item_id", planned.Item.ID).
			WithContext("identifier", planned.Identifier)
	}
	if artifact == nil {
		return nil, NewExportError("catalog returned no export artifact", nil).
			WithContext("item_id", planned.Item.ID)
	}
	return artifact, nil
}

// download fetches the artifact into a private staging directory, verifies it
// and renames it to final inside the archive root. On error no archive file is
// left.
func (t *Transaction) download(ctx context.Context, planned *PlannedItem, artifact *RemoteArtifact, final string) (*ArchiveEntry, error) {
	staging := filepath.Join(t.index.StagingDir(), uuid.New().String())
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, NewDownloadError("failed to create staging directory", err)
	}
	defer os.RemoveAll(staging)

	downloadCtx, cancel := context.WithTimeout(ctx, t.config.DownloadTimeout)
	defer cancel()

	staged, err := t.catalog.Download(downloadCtx, artifact, staging)
	if err != nil {
		return nil, NewDownloadError("remote download failed", err).
			WithContext("artifact_id", artifact.ID)
	}

	var verified *VerifyResult
	if t.verifier != nil {
		verified, err = t.verifier.Verify(staged)
		if err != nil {
			return nil, NewDownloadError("downloaded archive failed verification", err).
				WithContext("artifact_id", artifact.ID)
		}
	}

	if err := os.Rename(staged, final); err != nil {
		return nil, NewDownloadError("failed to move archive into place", err).
			WithContext("path", final)
	}

	info, err := os.Stat(final)
	if err != nil {
		os.Remove(final)
		return nil, NewDownloadError("archive missing after move", err).WithContext("path", final)
	}

	itemID, fpText, _ := t.codec.Decode(planned.Identifier)
	entry := &ArchiveEntry{
		Identifier:      planned.Identifier,
		ItemID:          itemID,
		FingerprintText: fpText,
		Path:            final,
		Size:            info.Size(),
		ModTime:         info.ModTime(),
	}
	if verified != nil {
		entry.Digest = verified.Digest
	}
	return entry, nil
}

func (t *Transaction) cleanup(ctx context.Context, artifact *RemoteArtifact) error {
	cleanupCtx, cancel := context.WithTimeout(ctx, t.config.CleanupTimeout)
	defer cancel()

	if err := t.catalog.Delete(cleanupCtx, artifact); err != nil {
		return NewCleanupError("failed to delete remote export", err).
			WithContext("artifact_id", artifact.ID)
	}
	return nil
}
