// Package compression provides streaming compressors used for rotated audit
// log segments.
package compression

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names a compression algorithm
type Algorithm string

const (
	AlgorithmNone Algorithm = "NONE"
	AlgorithmGzip Algorithm = "GZIP"
	AlgorithmLZ4  Algorithm = "LZ4"
	AlgorithmZstd Algorithm = "ZSTD"
)

// ErrUnsupportedAlgorithm is returned for unknown algorithm names
var ErrUnsupportedAlgorithm = errors.New("unsupported compression algorithm")

// ParseAlgorithm accepts algorithm names case-insensitively. Empty means NONE.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToUpper(strings.TrimSpace(name))) {
	case "", AlgorithmNone:
		return AlgorithmNone, nil
	case AlgorithmGzip:
		return AlgorithmGzip, nil
	case AlgorithmLZ4:
		return AlgorithmLZ4, nil
	case AlgorithmZstd:
		return AlgorithmZstd, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, name)
}

// Extension returns the file suffix for an algorithm, including the dot
func Extension(algorithm Algorithm) string {
	switch algorithm {
	case AlgorithmGzip:
		return ".gz"
	case AlgorithmLZ4:
		return ".lz4"
	case AlgorithmZstd:
		return ".zst"
	default:
		return ""
	}
}

// Stats describes one compression pass
type Stats struct {
	OriginalSize   int64         `json:"original_size"`
	CompressedSize int64         `json:"compressed_size"`
	Algorithm      Algorithm     `json:"algorithm"`
	Level          int           `json:"level"`
	Duration       time.Duration `json:"duration"`
}

// Ratio returns compressed size over original size
func (s *Stats) Ratio() float64 {
	if s.OriginalSize == 0 {
		return 1.0
	}
	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// Compressor wraps streams for one algorithm
type Compressor interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	Algorithm() Algorithm
	DefaultLevel() int
	MinLevel() int
	MaxLevel() int
}

// Manager dispatches to the registered compressors
type Manager struct {
	compressors map[Algorithm]Compressor
}

// NewManager creates a manager with gzip, lz4 and zstd registered
func NewManager() *Manager {
	return &Manager{
		compressors: map[Algorithm]Compressor{
			AlgorithmGzip: gzipCompressor{},
			AlgorithmLZ4:  lz4Compressor{},
			AlgorithmZstd: zstdCompressor{},
		},
	}
}

// Get returns the compressor for algorithm
func (m *Manager) Get(algorithm Algorithm) (Compressor, error) {
	c, ok := m.compressors[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	return c, nil
}

// Supported lists the registered algorithms
func (m *Manager) Supported() []Algorithm {
	algorithms := make([]Algorithm, 0, len(m.compressors))
	for a := range m.compressors {
		algorithms = append(algorithms, a)
	}
	return algorithms
}

// Compress copies src into dst through the algorithm's writer.
// Out-of-range levels fall back to the algorithm default.
func (m *Manager) Compress(dst io.Writer, src io.Reader, algorithm Algorithm, level int) (*Stats, error) {
	start := time.Now()

	if algorithm == AlgorithmNone {
		n, err := io.Copy(dst, src)
		if err != nil {
			return nil, fmt.Errorf("copy: %w", err)
		}
		return &Stats{OriginalSize: n, CompressedSize: n, Algorithm: AlgorithmNone, Duration: time.Since(start)}, nil
	}

	c, err := m.Get(algorithm)
	if err != nil {
		return nil, err
	}
	if level < c.MinLevel() || level > c.MaxLevel() {
		level = c.DefaultLevel()
	}

	counter := &countingWriter{w: dst}
	w, err := c.NewWriter(counter, level)
	if err != nil {
		return nil, fmt.Errorf("create %s writer: %w", algorithm, err)
	}

	n, err := io.Copy(w, src)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("%s compress: %w", algorithm, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close %s writer: %w", algorithm, err)
	}

	return &Stats{
		OriginalSize:   n,
		CompressedSize: counter.n,
		Algorithm:      algorithm,
		Level:          level,
		Duration:       time.Since(start),
	}, nil
}

// Decompress copies the decoded form of src into dst
func (m *Manager) Decompress(dst io.Writer, src io.Reader, algorithm Algorithm) error {
	if algorithm == AlgorithmNone {
		_, err := io.Copy(dst, src)
		return err
	}

	c, err := m.Get(algorithm)
	if err != nil {
		return err
	}

	r, err := c.NewReader(src)
	if err != nil {
		return fmt.Errorf("create %s reader: %w", algorithm, err)
	}
	defer r.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("%s decompress: %w", algorithm, err)
	}
	return nil
}

// CompressFile writes a compressed copy of src to dst. dst is written through a
// temporary file in the same directory and renamed on success.
func (m *Manager) CompressFile(src, dst string, algorithm Algorithm, level int) (*Stats, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()

	stats, err := m.Compress(tmp, in, algorithm, level)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return nil, err
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return nil, err
	}
	return stats, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type gzipCompressor struct{}

func (gzipCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, level)
}

func (gzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (gzipCompressor) Algorithm() Algorithm { return AlgorithmGzip }
func (gzipCompressor) DefaultLevel() int    { return gzip.DefaultCompression }
func (gzipCompressor) MinLevel() int        { return gzip.DefaultCompression }
func (gzipCompressor) MaxLevel() int        { return gzip.BestCompression }

type lz4Compressor struct{}

// LZ4 only distinguishes fast mode from high compression
func (lz4Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, err
		}
	}
	return writer, nil
}

func (lz4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lz4Compressor) Algorithm() Algorithm { return AlgorithmLZ4 }
func (lz4Compressor) DefaultLevel() int    { return 1 }
func (lz4Compressor) MinLevel() int        { return 1 }
func (lz4Compressor) MaxLevel() int        { return 12 }

type zstdCompressor struct{}

func (zstdCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
}

func (zstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

func (zstdCompressor) Algorithm() Algorithm { return AlgorithmZstd }
func (zstdCompressor) DefaultLevel() int    { return 3 }
func (zstdCompressor) MinLevel() int        { return 1 }
func (zstdCompressor) MaxLevel() int        { return 22 }
