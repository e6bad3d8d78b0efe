package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// stagingDirName holds in-flight downloads under the archive root
const stagingDirName = ".staging"

// LocalArchiveIndex implements ArchiveIndex over a directory of archive files.
// It never writes to the archive root.
type LocalArchiveIndex struct {
	root  string
	codec NameCodec
}

// NewLocalArchiveIndex creates an index over config.Root, creating the
// directory when missing.
func NewLocalArchiveIndex(config *ArchiveConfig, codec NameCodec) (*LocalArchiveIndex, error) {
	if config == nil {
		return nil, NewValidationError("archive configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid archive configuration", err)
	}

	perm := config.Permissions
	if perm == 0 {
		perm = 0755
	}
	if err := os.MkdirAll(config.Root, perm); err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to create archive root %s", config.Root), err)
	}

	info, err := os.Stat(config.Root)
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("archive root %s is not accessible", config.Root), err)
	}
	if !info.IsDir() {
		return nil, NewStorageError(fmt.Sprintf("archive root %s is not a directory", config.Root), nil)
	}

	return &LocalArchiveIndex{root: config.Root, codec: codec}, nil
}

// Exists reports whether <root>/<identifier>.<ext> is a regular file.
// Identifiers that would escape the root never exist.
func (idx *LocalArchiveIndex) Exists(identifier string) bool {
	if !isSafeIdentifier(identifier) {
		return false
	}
	info, err := os.Stat(idx.Path(identifier))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Path returns where the archive for identifier lives
func (idx *LocalArchiveIndex) Path(identifier string) string {
	return filepath.Join(idx.root, idx.codec.FileName(identifier))
}

// ArchivePath is Path for identifiers about to be written. It fails when the
// file would not land directly inside the root.
func (idx *LocalArchiveIndex) ArchivePath(identifier string) (string, error) {
	if !isSafeIdentifier(identifier) {
		return "", NewValidationError(fmt.Sprintf("identifier %q is not a valid archive name", identifier), nil)
	}
	path := idx.Path(identifier)
	if filepath.Dir(path) != filepath.Clean(idx.root) {
		return "", NewValidationError(fmt.Sprintf("archive for %q would be written outside %s", identifier, idx.root), nil)
	}
	return path, nil
}

// Root returns the archive root directory
func (idx *LocalArchiveIndex) Root() string {
	return idx.root
}

// StagingDir returns the directory used for downloads not yet committed
func (idx *LocalArchiveIndex) StagingDir() string {
	return filepath.Join(idx.root, stagingDirName)
}

// List enumerates archive files in the root whose names decode as identifiers,
// sorted by identifier. Other files are ignored.
func (idx *LocalArchiveIndex) List(ctx context.Context) ([]*ArchiveEntry, error) {
	dirEntries, err := os.ReadDir(idx.root)
	if err != nil {
		return nil, NewStorageError("failed to read archive root", err)
	}

	suffix := "." + idx.codec.extension()
	var entries []*ArchiveEntry
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !de.Type().IsRegular() || !strings.HasSuffix(de.Name(), suffix) {
			continue
		}

		identifier := strings.TrimSuffix(de.Name(), suffix)
		itemID, fpText, err := idx.codec.Decode(identifier)
		if err != nil {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}

		entries = append(entries, &ArchiveEntry{
			Identifier:      identifier,
			ItemID:          itemID,
			FingerprintText: fpText,
			Path:            filepath.Join(idx.root, de.Name()),
			Size:            info.Size(),
			ModTime:         info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identifier < entries[j].Identifier
	})
	return entries, nil
}

// HealthCheck verifies the archive root accepts new files
func (idx *LocalArchiveIndex) HealthCheck(ctx context.Context) error {
	probe, err := os.CreateTemp(idx.root, ".health_check-*")
	if err != nil {
		return NewStorageError("archive root is not writable", err)
	}
	name := probe.Name()
	probe.Close()

	if err := os.Remove(name); err != nil {
		return NewStorageError("failed to remove health check file", err)
	}
	return nil
}

func isSafeIdentifier(identifier string) bool {
	if identifier == "" || identifier == "." || identifier == ".." {
		return false
	}
	return !strings.ContainsAny(identifier, `/\`) && !strings.Contains(identifier, "..")
}
