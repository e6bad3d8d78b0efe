package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipArchiveVerifier_Verify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.zip")
	writeTestZip(t, path, map[string]string{
		"roads.gdb/a00000001.gdbtable": "table data",
		"roads.gdb/gdb":                "marker",
	})

	result, err := NewZipArchiveVerifier().Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Entries)
	assert.Len(t, result.Digest, 64)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), result.Size)

	// Same bytes, same digest
	again, err := NewZipArchiveVerifier().Verify(path)
	require.NoError(t, err)
	assert.Equal(t, result.Digest, again.Digest)
}

func TestZipArchiveVerifier_Rejects(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "error.zip")
	require.NoError(t, os.WriteFile(notZip, []byte(`{"error":{"code":498,"message":"Invalid token"}}`), 0644))

	empty := filepath.Join(dir, "empty.zip")
	writeTestZip(t, empty, map[string]string{})

	truncated := filepath.Join(dir, "truncated.zip")
	writeTestZip(t, truncated, map[string]string{"a": "some content that will be cut"})
	data, err := os.ReadFile(truncated)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(truncated, data[:len(data)/2], 0644))

	tests := []struct {
		name string
		path string
	}{
		{"not a zip", notZip},
		{"empty archive", empty},
		{"truncated archive", truncated},
		{"missing file", filepath.Join(dir, "missing.zip")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewZipArchiveVerifier().Verify(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestZipArchiveVerifier_AllowEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.zip")
	writeTestZip(t, path, map[string]string{})

	v := NewZipArchiveVerifier()
	v.AllowEmpty = true

	result, err := v.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Entries)
}
