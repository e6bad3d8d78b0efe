package backup

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Descriptor is the metadata of one layer or table belonging to a catalog item
type Descriptor struct {
	ID          int                    `json:"id"`
	Name        string                 `json:"name"`
	EditingInfo map[string]interface{} `json:"editingInfo,omitempty"`
}

// LastEditTimestamp returns the lastEditDate reported in the descriptor's
// editing info. ok is false when the descriptor has no editing info or the
// date is null. A present editing info without a usable integer date is an error.
func (d Descriptor) LastEditTimestamp() (ms int64, ok bool, err error) {
	if d.EditingInfo == nil {
		return 0, false, nil
	}

	raw, found := d.EditingInfo["lastEditDate"]
	if !found {
		return 0, false, fmt.Errorf("descriptor %d (%s): editingInfo has no lastEditDate", d.ID, d.Name)
	}

	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false, fmt.Errorf("descriptor %d (%s): lastEditDate %v is not an integer", d.ID, d.Name, v)
		}
		return int64(v), true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("descriptor %d (%s): lastEditDate %q: %w", d.ID, d.Name, v, err)
		}
		return n, true, nil
	case int64:
		return v, true, nil
	case int:
		return int64(v), true, nil
	default:
		return 0, false, fmt.Errorf("descriptor %d (%s): lastEditDate has unexpected type %T", d.ID, d.Name, raw)
	}
}

// CatalogItem is a hosted feature service as returned by the catalog. The core
// treats it as read-only.
type CatalogItem struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Owner             string       `json:"owner"`
	Type              string       `json:"type"`
	URL               string       `json:"url,omitempty"`
	Snippet           string       `json:"snippet,omitempty"`
	OwnerFolder       string       `json:"ownerFolder,omitempty"`
	GroupDesignations string       `json:"groupDesignations,omitempty"`
	TypeKeywords      []string     `json:"typeKeywords,omitempty"`
	Modified          time.Time    `json:"modified"`
	Layers            []Descriptor `json:"layers,omitempty"`
	Tables            []Descriptor `json:"tables,omitempty"`

	// MetadataErr is set by the catalog when layer and table metadata could not
	// be loaded for this item.
	MetadataErr error `json:"-"`
}

// IsViewService reports whether the item is a view over another item's data
func (i *CatalogItem) IsViewService() bool {
	for _, kw := range i.TypeKeywords {
		if strings.EqualFold(kw, ViewServiceKeyword) {
			return true
		}
	}
	return false
}

// ViewServiceKeyword marks view-service items in the type keywords
const ViewServiceKeyword = "View Service"

// SearchQuery selects candidate items from the catalog
type SearchQuery struct {
	Query      string `json:"query" yaml:"query"`
	SortField  string `json:"sort_field" yaml:"sort_field"`
	SortOrder  string `json:"sort_order" yaml:"sort_order"`
	MaxResults int    `json:"max_results" yaml:"max_results"`
}

// RemoteArtifact is a handle to an export materialized in the catalog
type RemoteArtifact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ItemID string `json:"item_id"`
	Owner  string `json:"owner,omitempty"`
	JobID  string `json:"job_id,omitempty"`
	Format string `json:"format"`
}

// ArchiveEntry is one completed backup in the archive root
type ArchiveEntry struct {
	Identifier      string    `json:"identifier" yaml:"identifier"`
	ItemID          string    `json:"item_id" yaml:"item_id"`
	FingerprintText string    `json:"fingerprint" yaml:"fingerprint"`
	Path            string    `json:"path" yaml:"path"`
	Size            int64     `json:"size" yaml:"size"`
	ModTime         time.Time `json:"mod_time" yaml:"mod_time"`
	Digest          string    `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// AuditRecord is one row of the audit log
type AuditRecord struct {
	FileName          string   `json:"file_name" yaml:"file_name"`
	Title             string   `json:"title" yaml:"title"`
	ID                string   `json:"id" yaml:"id"`
	Owner             string   `json:"owner" yaml:"owner"`
	TypeKeywords      []string `json:"type_keywords" yaml:"type_keywords"`
	Snippet           string   `json:"snippet" yaml:"snippet"`
	OwnerFolder       string   `json:"owner_folder" yaml:"owner_folder"`
	GroupDesignations string   `json:"group_designations" yaml:"group_designations"`
	Layers            []string `json:"layers" yaml:"layers"`
	Tables            []string `json:"tables" yaml:"tables"`
	LastEdited        string   `json:"last_edited" yaml:"last_edited"`

	// Status is the transaction state the record was written at. Only completed
	// transactions are recorded, so it is not persisted.
	Status TransactionState `json:"-" yaml:"-"`
}

// NewAuditRecord builds the audit row for a planned item
func NewAuditRecord(planned *PlannedItem, fileName, lastEdited string) *AuditRecord {
	item := planned.Item
	return &AuditRecord{
		FileName:          fileName,
		Title:             item.Title,
		ID:                item.ID,
		Owner:             item.Owner,
		TypeKeywords:      append([]string(nil), item.TypeKeywords...),
		Snippet:           item.Snippet,
		OwnerFolder:       item.OwnerFolder,
		GroupDesignations: item.GroupDesignations,
		Layers:            descriptorNames(item.Layers),
		Tables:            descriptorNames(item.Tables),
		LastEdited:        lastEdited,
		Status:            StateComplete,
	}
}

func descriptorNames(descriptors []Descriptor) []string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	return names
}

// SkipReason explains why the planner left an item out of the work list
type SkipReason string

const (
	SkipReasonNoEditHistory    SkipReason = "no-edit-history"
	SkipReasonAlreadyBackedUp  SkipReason = "already-backed-up"
	SkipReasonViewService      SkipReason = "view-service"
	SkipReasonUnsafeIdentifier SkipReason = "unsafe-identifier"
)

// PlannedItem is an item that needs a fresh backup
type PlannedItem struct {
	Item        *CatalogItem `json:"item"`
	Fingerprint Fingerprint  `json:"fingerprint"`
	Identifier  string       `json:"identifier"`
}

// SkippedItem is an item the planner decided not to back up
type SkippedItem struct {
	Item       *CatalogItem `json:"item"`
	Reason     SkipReason   `json:"reason"`
	Identifier string       `json:"identifier,omitempty"`
	Err        error        `json:"-"`
}

// Plan is the planner's classification of a batch of candidates
type Plan struct {
	NeedsBackup []*PlannedItem `json:"needs_backup"`
	Skipped     []*SkippedItem `json:"skipped"`
}

// Stage names the step of an export transaction
type Stage string

const (
	StageExport   Stage = "export"
	StageDownload Stage = "download"
	StageCleanup  Stage = "cleanup"
)

// TransactionState is the state of an export transaction
type TransactionState string

const (
	StateRequested     TransactionState = "REQUESTED"
	StateExported      TransactionState = "EXPORTED"
	StateDownloaded    TransactionState = "DOWNLOADED"
	StateRemoteCleaned TransactionState = "REMOTE_CLEANED"
	StateComplete      TransactionState = "COMPLETE"
	StateFailed        TransactionState = "FAILED"
)

// IsTerminal reports whether no further transition is possible
func (s TransactionState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}
