package compression

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const auditRows = "FileName,Title,ID,Owner\nabc_None.zip,Parcels,abc,gis_admin\n"

func TestNewManager(t *testing.T) {
	m := NewManager()

	supported := m.Supported()
	assert.Len(t, supported, 3)
	assert.ElementsMatch(t, []Algorithm{AlgorithmGzip, AlgorithmLZ4, AlgorithmZstd}, supported)
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		input   string
		want    Algorithm
		wantErr bool
	}{
		{"", AlgorithmNone, false},
		{"none", AlgorithmNone, false},
		{"gzip", AlgorithmGzip, false},
		{" LZ4 ", AlgorithmLZ4, false},
		{"Zstd", AlgorithmZstd, false},
		{"brotli", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupportedAlgorithm))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".gz", Extension(AlgorithmGzip))
	assert.Equal(t, ".lz4", Extension(AlgorithmLZ4))
	assert.Equal(t, ".zst", Extension(AlgorithmZstd))
	assert.Equal(t, "", Extension(AlgorithmNone))
}

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager()
	data := []byte(strings.Repeat(auditRows, 200))

	for _, algorithm := range []Algorithm{AlgorithmGzip, AlgorithmLZ4, AlgorithmZstd} {
		t.Run(string(algorithm), func(t *testing.T) {
			c, err := m.Get(algorithm)
			require.NoError(t, err)

			for _, level := range []int{c.MinLevel(), c.DefaultLevel(), c.MaxLevel()} {
				var compressed bytes.Buffer
				stats, err := m.Compress(&compressed, bytes.NewReader(data), algorithm, level)
				require.NoError(t, err)

				assert.Equal(t, algorithm, stats.Algorithm)
				assert.Equal(t, int64(len(data)), stats.OriginalSize)
				assert.Equal(t, int64(compressed.Len()), stats.CompressedSize)
				assert.Less(t, stats.Ratio(), 1.0)

				var out bytes.Buffer
				require.NoError(t, m.Decompress(&out, &compressed, algorithm))
				assert.Equal(t, data, out.Bytes())
			}
		})
	}
}

func TestManager_CompressNone(t *testing.T) {
	m := NewManager()
	data := []byte(auditRows)

	var out bytes.Buffer
	stats, err := m.Compress(&out, bytes.NewReader(data), AlgorithmNone, 0)
	require.NoError(t, err)

	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, 1.0, stats.Ratio())
}

func TestManager_LevelOutOfRangeUsesDefault(t *testing.T) {
	m := NewManager()

	var out bytes.Buffer
	stats, err := m.Compress(&out, strings.NewReader(auditRows), AlgorithmZstd, 99)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Level)
}

func TestManager_Unsupported(t *testing.T) {
	m := NewManager()

	_, err := m.Compress(&bytes.Buffer{}, strings.NewReader("x"), Algorithm("BROTLI"), 1)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	err = m.Decompress(&bytes.Buffer{}, strings.NewReader("x"), Algorithm("BROTLI"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestManager_CompressFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "audit.csv")
	data := []byte(strings.Repeat(auditRows, 50))
	require.NoError(t, os.WriteFile(src, data, 0644))

	m := NewManager()
	dst := src + Extension(AlgorithmZstd)

	stats, err := m.CompressFile(src, dst, AlgorithmZstd, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), stats.OriginalSize)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()

	var out bytes.Buffer
	require.NoError(t, m.Decompress(&out, f, AlgorithmZstd))
	assert.Equal(t, data, out.Bytes())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary file should not be left behind")
}

func TestManager_CompressFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	m := NewManager()

	_, err := m.CompressFile(filepath.Join(dir, "missing.csv"), filepath.Join(dir, "out.gz"), AlgorithmGzip, 6)
	assert.True(t, os.IsNotExist(err))
}
