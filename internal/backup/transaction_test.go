package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestPlanned(id string, ms int64) *PlannedItem {
	fp := FingerprintFromMillis(ms)
	return &PlannedItem{
		Item:        newTestItem(id, ms),
		Fingerprint: fp,
		Identifier:  utcCodec.Encode(id, fp),
	}
}

func newTestTransaction(catalog Catalog, index *LocalArchiveIndex, audit AuditLog, config ExecutionConfig) *Transaction {
	return NewTransaction(catalog, index, utcCodec, NewZipArchiveVerifier(), audit, nil, config)
}

func historyStates(result *TransactionResult) []TransactionState {
	states := []TransactionState{}
	for _, h := range result.History {
		states = append(states, h.To)
	}
	return states
}

func assertStagingEmpty(t *testing.T, index *LocalArchiveIndex) {
	t.Helper()
	entries, err := os.ReadDir(index.StagingDir())
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransaction_Execute_Success(t *testing.T) {
	index := newTestIndex(t)
	audit := &memoryAuditLog{}
	planned := newTestPlanned("abc123", 5000)
	artifact := &RemoteArtifact{ID: "exp1", Name: planned.Identifier, ItemID: "abc123", Format: DefaultExportFormat}

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, planned.Item, planned.Identifier, DefaultExportFormat).Return(artifact, nil)
	catalog.On("Download", mock.Anything, artifact, mock.Anything).Return(zipDownload(t, planned.Identifier), nil)
	catalog.On("Delete", mock.Anything, artifact).Return(nil)

	result := newTestTransaction(catalog, index, audit, ExecutionConfig{}).Execute(context.Background(), planned)

	require.True(t, result.Completed(), "unexpected error: %v", result.Err)
	assert.Equal(t, []TransactionState{StateExported, StateDownloaded, StateRemoteCleaned, StateComplete}, historyStates(result))
	assert.Nil(t, result.Orphan)
	assert.Empty(t, result.Warnings())
	assert.True(t, index.Exists(planned.Identifier))

	require.NotNil(t, result.Entry)
	assert.Equal(t, "abc123", result.Entry.ItemID)
	assert.Equal(t, "1970-01-01_00-00-05", result.Entry.FingerprintText)
	assert.Len(t, result.Entry.Digest, 64)

	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "abc123_1970-01-01_00-00-05", records[0].FileName)
	assert.Equal(t, "1970-01-01_00-00-05", records[0].LastEdited)
	assert.Equal(t, []string{"layerA"}, records[0].Layers)
	assert.Equal(t, StateComplete, records[0].Status)

	assertStagingEmpty(t, index)
	catalog.AssertExpectations(t)
}

func TestTransaction_Execute_ExportFailure(t *testing.T) {
	index := newTestIndex(t)
	audit := &memoryAuditLog{}
	planned := newTestPlanned("abc123", 5000)

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("export quota exceeded"))

	result := newTestTransaction(catalog, index, audit, ExecutionConfig{}).Execute(context.Background(), planned)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StageExport, result.FailedStage)
	assert.True(t, IsErrorType(result.Err, BackupErrorTypeExport))
	assert.Nil(t, result.Orphan)
	assert.Empty(t, audit.Records())
	assert.False(t, index.Exists(planned.Identifier))
	catalog.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything)
	catalog.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestTransaction_Execute_UnsafeIdentifier(t *testing.T) {
	parent := t.TempDir()
	index, err := NewLocalArchiveIndex(&ArchiveConfig{Root: filepath.Join(parent, "root")}, utcCodec)
	require.NoError(t, err)
	audit := &memoryAuditLog{}
	planned := newTestPlanned("../escaped", 5000)

	catalog := &MockCatalog{}

	result := newTestTransaction(catalog, index, audit, ExecutionConfig{}).Execute(context.Background(), planned)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StageExport, result.FailedStage)
	assert.True(t, IsErrorType(result.Err, BackupErrorTypeResolution))
	assert.Nil(t, result.Orphan)
	assert.Empty(t, audit.Records())
	catalog.AssertNotCalled(t, "Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	_, statErr := os.Stat(filepath.Join(parent, utcCodec.FileName("escaped_1970-01-01_00-00-05")))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTransaction_Execute_ExportReturnsNoArtifact(t *testing.T) {
	planned := newTestPlanned("abc123", 5000)

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	result := newTestTransaction(catalog, newTestIndex(t), &memoryAuditLog{}, ExecutionConfig{}).
		Execute(context.Background(), planned)

	assert.Equal(t, StageExport, result.FailedStage)
	assert.True(t, IsErrorType(result.Err, BackupErrorTypeExport))
}

func TestTransaction_Execute_DownloadTimeout(t *testing.T) {
	index := newTestIndex(t)
	audit := &memoryAuditLog{}
	planned := newTestPlanned("abc123", 5000)
	artifact := &RemoteArtifact{ID: "exp1", Name: planned.Identifier, ItemID: "abc123"}

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(artifact, nil)
	catalog.On("Download", mock.Anything, artifact, mock.Anything).Return("", context.DeadlineExceeded)

	result := newTestTransaction(catalog, index, audit, ExecutionConfig{}).Execute(context.Background(), planned)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StageDownload, result.FailedStage)
	assert.True(t, IsErrorType(result.Err, BackupErrorTypeDownload))
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Equal(t, []TransactionState{StateExported, StateFailed}, historyStates(result))

	assert.Empty(t, audit.Records())
	assert.Nil(t, result.Entry)
	assert.False(t, index.Exists(planned.Identifier))
	assert.Equal(t, artifact, result.Orphan)
	catalog.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	assertStagingEmpty(t, index)
}

func TestTransaction_Execute_VerificationFailure(t *testing.T) {
	index := newTestIndex(t)
	planned := newTestPlanned("abc123", 5000)
	artifact := &RemoteArtifact{ID: "exp1", Name: planned.Identifier}

	badDownload := func(dir string) (string, error) {
		path := filepath.Join(dir, "bad.zip")
		return path, os.WriteFile(path, []byte("<html>error</html>"), 0644)
	}

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(artifact, nil)
	catalog.On("Download", mock.Anything, artifact, mock.Anything).Return(badDownload, nil)

	result := newTestTransaction(catalog, index, &memoryAuditLog{}, ExecutionConfig{}).Execute(context.Background(), planned)

	assert.Equal(t, StageDownload, result.FailedStage)
	assert.False(t, index.Exists(planned.Identifier))
	assert.Equal(t, artifact, result.Orphan)
	assertStagingEmpty(t, index)
}

func TestTransaction_Execute_CleanupFailure(t *testing.T) {
	index := newTestIndex(t)
	audit := &memoryAuditLog{}
	planned := newTestPlanned("abc123", 5000)
	artifact := &RemoteArtifact{ID: "exp1", Name: planned.Identifier}

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(artifact, nil)
	catalog.On("Download", mock.Anything, artifact, mock.Anything).Return(zipDownload(t, planned.Identifier), nil)
	catalog.On("Delete", mock.Anything, artifact).Return(errors.New("item is locked"))

	result := newTestTransaction(catalog, index, audit, ExecutionConfig{}).Execute(context.Background(), planned)

	assert.True(t, result.Completed())
	assert.Equal(t, []TransactionState{StateExported, StateDownloaded, StateComplete}, historyStates(result))
	assert.True(t, IsErrorType(result.CleanupErr, BackupErrorTypeCleanup))
	require.Len(t, result.Warnings(), 1)
	assert.Equal(t, artifact, result.Orphan)
	assert.True(t, index.Exists(planned.Identifier))
	assert.Len(t, audit.Records(), 1)
}

func TestTransaction_Execute_KeepRemoteExports(t *testing.T) {
	index := newTestIndex(t)
	planned := newTestPlanned("abc123", 5000)
	artifact := &RemoteArtifact{ID: "exp1", Name: planned.Identifier}

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(artifact, nil)
	catalog.On("Download", mock.Anything, artifact, mock.Anything).Return(zipDownload(t, planned.Identifier), nil)

	result := newTestTransaction(catalog, index, &memoryAuditLog{}, ExecutionConfig{KeepRemoteExports: true}).
		Execute(context.Background(), planned)

	assert.True(t, result.Completed())
	assert.Equal(t, []TransactionState{StateExported, StateDownloaded, StateComplete}, historyStates(result))
	assert.Nil(t, result.Orphan)
	catalog.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestTransaction_Execute_AuditFailure(t *testing.T) {
	index := newTestIndex(t)
	planned := newTestPlanned("abc123", 5000)
	artifact := &RemoteArtifact{ID: "exp1", Name: planned.Identifier}

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(artifact, nil)
	catalog.On("Download", mock.Anything, artifact, mock.Anything).Return(zipDownload(t, planned.Identifier), nil)
	catalog.On("Delete", mock.Anything, artifact).Return(nil)

	audit := &memoryAuditLog{err: errors.New("disk full")}
	result := newTestTransaction(catalog, index, audit, ExecutionConfig{}).Execute(context.Background(), planned)

	assert.True(t, result.Completed())
	assert.True(t, IsErrorType(result.AuditErr, BackupErrorTypeAuditWrite))
	assert.True(t, index.Exists(planned.Identifier))
	assert.Len(t, result.Warnings(), 1)
}

func TestTransaction_Execute_WithoutVerifier(t *testing.T) {
	index := newTestIndex(t)
	planned := newTestPlanned("abc123", 5000)
	artifact := &RemoteArtifact{ID: "exp1", Name: planned.Identifier}

	rawDownload := func(dir string) (string, error) {
		path := filepath.Join(dir, "raw.zip")
		return path, os.WriteFile(path, []byte("opaque"), 0644)
	}

	catalog := &MockCatalog{}
	catalog.On("Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(artifact, nil)
	catalog.On("Download", mock.Anything, artifact, mock.Anything).Return(rawDownload, nil)
	catalog.On("Delete", mock.Anything, artifact).Return(nil)

	tx := NewTransaction(catalog, index, utcCodec, nil, &memoryAuditLog{}, nil, ExecutionConfig{})
	result := tx.Execute(context.Background(), planned)

	assert.True(t, result.Completed())
	assert.Empty(t, result.Entry.Digest)
	assert.Equal(t, int64(len("opaque")), result.Entry.Size)
}

func TestIsAllowedTransition(t *testing.T) {
	tests := []struct {
		from, to TransactionState
		allowed  bool
	}{
		{StateRequested, StateExported, true},
		{StateRequested, StateDownloaded, false},
		{StateExported, StateDownloaded, true},
		{StateExported, StateComplete, false},
		{StateDownloaded, StateRemoteCleaned, true},
		{StateDownloaded, StateComplete, true},
		{StateRemoteCleaned, StateComplete, true},
		{StateRequested, StateFailed, true},
		{StateExported, StateFailed, true},
		{StateDownloaded, StateFailed, true},
		{StateComplete, StateFailed, false},
		{StateFailed, StateFailed, false},
		{StateFailed, StateExported, false},
		{StateComplete, StateRequested, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, isAllowedTransition(tt.from, tt.to))
			if tt.allowed {
				assert.NoError(t, transition(tt.from, tt.to))
			} else {
				assert.Error(t, transition(tt.from, tt.to))
			}
		})
	}
}

func TestTransactionState_IsTerminal(t *testing.T) {
	assert.True(t, StateComplete.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateRequested.IsTerminal())
	assert.False(t, StateDownloaded.IsTerminal())
}
