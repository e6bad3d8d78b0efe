package backup

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fingerprint is the freshness signature of a catalog item: the latest edit
// timestamp across its layers and tables, or absent when none report one.
type Fingerprint struct {
	millis  int64
	present bool
}

// AbsentFingerprint returns the fingerprint of an item with no edit history
func AbsentFingerprint() Fingerprint {
	return Fingerprint{}
}

// FingerprintFromMillis returns a present fingerprint at ms since the epoch
func FingerprintFromMillis(ms int64) Fingerprint {
	return Fingerprint{millis: ms, present: true}
}

// IsAbsent reports whether no descriptor carried an edit timestamp
func (f Fingerprint) IsAbsent() bool {
	return !f.present
}

// Millis returns the timestamp in milliseconds since the epoch. Zero when absent.
func (f Fingerprint) Millis() int64 {
	return f.millis
}

// Time returns the fingerprint instant in loc
func (f Fingerprint) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(f.millis).In(loc)
}

func (f Fingerprint) String() string {
	if !f.present {
		return AbsentMarker
	}
	return fmt.Sprintf("%dms", f.millis)
}

// MarshalJSON renders absent as null and present as epoch milliseconds
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	if !f.present {
		return []byte("null"), nil
	}
	return json.Marshal(f.millis)
}

// ResolveFingerprint scans the item's layers then its tables and returns the
// greatest lastEditDate. Descriptors without editing info are ignored. Malformed
// descriptor metadata, or metadata the catalog failed to load, is a resolution
// error scoped to this item.
func ResolveFingerprint(item *CatalogItem) (Fingerprint, error) {
	if item == nil {
		return AbsentFingerprint(), NewResolutionError("catalog item is nil", nil)
	}
	if item.MetadataErr != nil {
		return AbsentFingerprint(), NewResolutionError("layer metadata unavailable", item.MetadataErr).
			WithContext("item_id", item.ID)
	}

	fp := AbsentFingerprint()
	for _, group := range [][]Descriptor{item.Layers, item.Tables} {
		for _, d := range group {
			ms, ok, err := d.LastEditTimestamp()
			if err != nil {
				return AbsentFingerprint(), NewResolutionError("malformed editing info", err).
					WithContext("item_id", item.ID)
			}
			if ok && (!fp.present || ms > fp.millis) {
				fp = FingerprintFromMillis(ms)
			}
		}
	}

	return fp, nil
}
