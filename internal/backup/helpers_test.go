package backup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCatalog is a testify mock of the Catalog interface
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) Search(ctx context.Context, query SearchQuery) ([]*CatalogItem, error) {
	args := m.Called(ctx, query)
	items, _ := args.Get(0).([]*CatalogItem)
	return items, args.Error(1)
}

func (m *MockCatalog) Export(ctx context.Context, item *CatalogItem, targetName, format string) (*RemoteArtifact, error) {
	args := m.Called(ctx, item, targetName, format)
	artifact, _ := args.Get(0).(*RemoteArtifact)
	return artifact, args.Error(1)
}

func (m *MockCatalog) Download(ctx context.Context, artifact *RemoteArtifact, dir string) (string, error) {
	args := m.Called(ctx, artifact, dir)
	// The staging directory is random, so tests can return a writer func
	if fn, ok := args.Get(0).(func(string) (string, error)); ok {
		return fn(dir)
	}
	return args.String(0), args.Error(1)
}

func (m *MockCatalog) Delete(ctx context.Context, artifact *RemoteArtifact) error {
	args := m.Called(ctx, artifact)
	return args.Error(0)
}

// mapIndex is an in-memory ArchiveIndex
type mapIndex map[string]bool

func (m mapIndex) Exists(identifier string) bool {
	return m[identifier]
}

// memoryAuditLog collects records in memory and optionally fails
type memoryAuditLog struct {
	mu      sync.Mutex
	records []*AuditRecord
	err     error
}

func (m *memoryAuditLog) Append(record *AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memoryAuditLog) Records() []*AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AuditRecord(nil), m.records...)
}

// recordingReporter collects outcomes in emission order
type recordingReporter struct {
	mu       sync.Mutex
	outcomes []*ItemOutcome
	report   *RunReport
}

func (r *recordingReporter) ItemFinished(outcome *ItemOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingReporter) RunFinished(report *RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report = report
}

var utcCodec = NewNameCodec(time.UTC, "zip")

// editedLayer returns a layer descriptor reporting an edit at ms
func editedLayer(id int, name string, ms int64) Descriptor {
	return Descriptor{
		ID:          id,
		Name:        name,
		EditingInfo: map[string]interface{}{"lastEditDate": float64(ms)},
	}
}

// newTestItem returns a feature service item with one layer per edit timestamp
func newTestItem(id string, edits ...int64) *CatalogItem {
	item := &CatalogItem{
		ID:           id,
		Title:        "Item " + id,
		Owner:        "gis_admin",
		Type:         "Feature Service",
		Snippet:      "Test service",
		OwnerFolder:  "folder-1",
		TypeKeywords: []string{"ArcGIS Server", "Data", "Service"},
	}
	for i, ms := range edits {
		item.Layers = append(item.Layers, editedLayer(i, "layer"+string(rune('A'+i)), ms))
	}
	return item
}

// writeTestZip creates a zip archive at path with the given files
func writeTestZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

// zipDownload returns a Download result func writing a small valid archive
func zipDownload(t *testing.T, name string) func(string) (string, error) {
	return func(dir string) (string, error) {
		path := filepath.Join(dir, name+".zip")
		writeTestZip(t, path, map[string]string{name + ".gdb/gdb": "data"})
		return path, nil
	}
}

// newTestIndex creates a LocalArchiveIndex over a fresh temporary directory
func newTestIndex(t *testing.T) *LocalArchiveIndex {
	t.Helper()

	idx, err := NewLocalArchiveIndex(&ArchiveConfig{Root: t.TempDir()}, utcCodec)
	require.NoError(t, err)
	return idx
}
