package backup

import (
	"context"
)

// Catalog is the remote content catalog the backup run reads from and exports
// through. Every call must honour ctx deadlines.
type Catalog interface {
	Search(ctx context.Context, query SearchQuery) ([]*CatalogItem, error)
	Export(ctx context.Context, item *CatalogItem, targetName, format string) (*RemoteArtifact, error)
	Download(ctx context.Context, artifact *RemoteArtifact, dir string) (string, error)
	Delete(ctx context.Context, artifact *RemoteArtifact) error
}

// ArchiveIndex answers whether a backup with the given identifier already exists
type ArchiveIndex interface {
	Exists(identifier string) bool
}

// AuditLog records completed backups. Append must be safe for concurrent use.
type AuditLog interface {
	Append(record *AuditRecord) error
}

// ArchiveVerifier checks a downloaded archive before it is moved into place
type ArchiveVerifier interface {
	Verify(path string) (*VerifyResult, error)
}

// Reporter receives per-item outcomes and the end-of-run summary
type Reporter interface {
	ItemFinished(outcome *ItemOutcome)
	RunFinished(report *RunReport)
}
