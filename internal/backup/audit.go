package backup

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"ago-backup/internal/compression"
	"ago-backup/internal/logging"
)

// AuditHeader is the fixed column layout of the audit log
var AuditHeader = []string{
	"FileName", "Title", "ID", "Owner", "typeKeywords", "Snippet",
	"ownerFolder", "groupDesignations", "layers", "tables", "Last Edited",
}

const (
	rotationTimeLayout = "20060102T150405"

	// maxSegmentsPerSecond bounds the sequence suffix of segment names
	maxSegmentsPerSecond = 1000
)

// segmentSuffix matches the part of a segment name after "<log>."
var segmentSuffix = regexp.MustCompile(`^\d{8}T\d{6}-\d{3}(\.gz|\.lz4|\.zst)?$`)

// CSVAuditLog appends audit records to a delimited file. The file is opened
// and closed on every call so an interrupted run leaves a parseable log.
type CSVAuditLog struct {
	mu sync.Mutex

	path             string
	rotateSize       int64
	algorithm        compression.Algorithm
	compressionLevel int
	compressor       *compression.Manager
	logger           *logging.Logger
	now              func() time.Time
}

// NewCSVAuditLog creates an audit log at config.Path. The file itself is
// created lazily on the first Append.
func NewCSVAuditLog(config AuditConfig, logger *logging.Logger) (*CSVAuditLog, error) {
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid audit configuration", err)
	}
	algorithm, err := compression.ParseAlgorithm(config.Compression)
	if err != nil {
		return nil, NewConfigurationError("invalid audit compression", err)
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	return &CSVAuditLog{
		path:             config.Path,
		rotateSize:       config.RotateSize,
		algorithm:        algorithm,
		compressionLevel: config.CompressionLevel,
		compressor:       compression.NewManager(),
		logger:           logger,
		now:              time.Now,
	}, nil
}

// Path returns the live audit file path
func (a *CSVAuditLog) Path() string {
	return a.path
}

// Append writes one row, preceded by the header when the file is new or empty
func (a *CSVAuditLog) Append(record *AuditRecord) error {
	if record == nil {
		return NewValidationError("audit record cannot be nil", nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if dir := filepath.Dir(a.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create audit directory: %w", err)
		}
	}

	if a.rotateSize > 0 {
		if info, err := os.Stat(a.path); err == nil && info.Size() >= a.rotateSize {
			if err := a.rotate(); err != nil {
				return err
			}
		}
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		w.Write(AuditHeader)
	}
	w.Write(record.row())
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("encode audit record: %w", err)
	}

	// One write per call keeps rows whole when the process dies mid-run
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	return file.Close()
}

// rotate renames the live file to a new timestamped segment and compresses
// it. A compression failure leaves the plain segment in place.
func (a *CSVAuditLog) rotate() error {
	segment, err := a.reserveSegment()
	if err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	if err := os.Rename(a.path, segment); err != nil {
		os.Remove(segment)
		return fmt.Errorf("rotate audit log: %w", err)
	}

	if a.algorithm == compression.AlgorithmNone {
		return nil
	}

	stats, err := a.compressor.CompressFile(segment, segment+compression.Extension(a.algorithm), a.algorithm, a.compressionLevel)
	if err != nil {
		a.logger.Warnf("Audit segment %s left uncompressed: %v", segment, err)
		return nil
	}
	if err := os.Remove(segment); err != nil {
		a.logger.Warnf("Failed to remove uncompressed audit segment %s: %v", segment, err)
	}

	a.logger.WithFields(map[string]interface{}{
		"segment":         segment,
		"algorithm":       string(stats.Algorithm),
		"original_size":   stats.OriginalSize,
		"compressed_size": stats.CompressedSize,
	}).Debug("Audit log rotated")
	return nil
}

// reserveSegment creates an empty placeholder under the first segment name of
// the current second that is free in both plain and compressed form. Existing
// segments are never replaced.
func (a *CSVAuditLog) reserveSegment() (string, error) {
	stamp := a.path + "." + a.now().Format(rotationTimeLayout)
	ext := compression.Extension(a.algorithm)

	for seq := 0; seq < maxSegmentsPerSecond; seq++ {
		segment := fmt.Sprintf("%s-%03d", stamp, seq)
		if ext != "" {
			if _, err := os.Lstat(segment + ext); err == nil {
				continue
			}
		}
		file, err := os.OpenFile(segment, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		return segment, file.Close()
	}
	return "", fmt.Errorf("more than %d segments for %s", maxSegmentsPerSecond, stamp)
}

func (r *AuditRecord) row() []string {
	return []string{
		r.FileName,
		r.Title,
		r.ID,
		r.Owner,
		encodeList(r.TypeKeywords),
		r.Snippet,
		r.OwnerFolder,
		r.GroupDesignations,
		encodeList(r.Layers),
		encodeList(r.Tables),
		r.LastEdited,
	}
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeList(value string) []string {
	if value == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(value), &values); err != nil {
		return []string{value}
	}
	return values
}

// ReadAuditLog parses an audit file. Rotated segments compressed with a known
// algorithm are decompressed transparently.
func ReadAuditLog(path string) ([]*AuditRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var reader io.Reader = file
	if algorithm := algorithmForSegment(path); algorithm != compression.AlgorithmNone {
		var buf bytes.Buffer
		if err := compression.NewManager().Decompress(&buf, file, algorithm); err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
		reader = &buf
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = len(AuditHeader)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse audit log %s: %w", path, err)
	}

	records := make([]*AuditRecord, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			if strings.Join(row, ",") != strings.Join(AuditHeader, ",") {
				return nil, fmt.Errorf("audit log %s has an unexpected header", path)
			}
			continue
		}
		records = append(records, &AuditRecord{
			FileName:          row[0],
			Title:             row[1],
			ID:                row[2],
			Owner:             row[3],
			TypeKeywords:      decodeList(row[4]),
			Snippet:           row[5],
			OwnerFolder:       row[6],
			GroupDesignations: row[7],
			Layers:            decodeList(row[8]),
			Tables:            decodeList(row[9]),
			LastEdited:        row[10],
			Status:            StateComplete,
		})
	}
	return records, nil
}

// AuditSegments lists rotated segments of the audit log at path, oldest first.
// Files in flight, such as temporary compression output, are not segments.
func AuditSegments(path string) ([]string, error) {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + "."

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var segments []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if segmentSuffix.MatchString(strings.TrimPrefix(name, prefix)) {
			segments = append(segments, filepath.Join(dir, name))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func algorithmForSegment(path string) compression.Algorithm {
	for _, algorithm := range []compression.Algorithm{compression.AlgorithmGzip, compression.AlgorithmLZ4, compression.AlgorithmZstd} {
		if strings.HasSuffix(path, compression.Extension(algorithm)) {
			return algorithm
		}
	}
	return compression.AlgorithmNone
}
