package backup

import (
	"fmt"
	"strings"
	"time"
)

const (
	// AbsentMarker is the fingerprint text used for items with no edit history
	AbsentMarker = "None"
	// DefaultArchiveExtension is the extension of exported file geodatabase archives
	DefaultArchiveExtension = "zip"

	fingerprintLayout = "2006-01-02_15-04-05"
)

var identifierReplacer = strings.NewReplacer(" ", "_", ":", "_")

// NameCodec turns (item ID, fingerprint) pairs into archive identifiers of the
// form <itemID>_<YYYY-MM-DD_HH-MM-SS> or <itemID>_None, and back.
type NameCodec struct {
	Location  *time.Location
	Extension string
}

// NewNameCodec returns a codec rendering timestamps in loc. A nil loc means
// local time and an empty extension means zip.
func NewNameCodec(loc *time.Location, extension string) NameCodec {
	if loc == nil {
		loc = time.Local
	}
	extension = strings.TrimPrefix(extension, ".")
	if extension == "" {
		extension = DefaultArchiveExtension
	}
	return NameCodec{Location: loc, Extension: extension}
}

// Encode never fails. Sub-second precision is truncated.
func (c NameCodec) Encode(itemID string, fp Fingerprint) string {
	return sanitizeIdentifier(itemID + "_" + c.FingerprintText(fp))
}

// FingerprintText renders fp the way it appears in identifiers
func (c NameCodec) FingerprintText(fp Fingerprint) string {
	if fp.IsAbsent() {
		return AbsentMarker
	}
	return fp.Time(c.location()).Format(fingerprintLayout)
}

// Decode splits an identifier, optionally carrying the archive extension, into
// the item ID and fingerprint text.
func (c NameCodec) Decode(identifier string) (itemID, fingerprintText string, err error) {
	name := strings.TrimSuffix(identifier, "."+c.extension())

	if strings.HasSuffix(name, "_"+AbsentMarker) {
		itemID = strings.TrimSuffix(name, "_"+AbsentMarker)
		if itemID == "" {
			return "", "", NewValidationError(fmt.Sprintf("identifier %q has no item ID", identifier), nil)
		}
		return itemID, AbsentMarker, nil
	}

	n := len(fingerprintLayout)
	if len(name) < n+2 || name[len(name)-n-1] != '_' {
		return "", "", NewValidationError(fmt.Sprintf("identifier %q has no fingerprint suffix", identifier), nil)
	}

	fingerprintText = name[len(name)-n:]
	if _, err := time.ParseInLocation(fingerprintLayout, fingerprintText, c.location()); err != nil {
		return "", "", NewValidationError(fmt.Sprintf("identifier %q has a malformed timestamp", identifier), err)
	}

	return name[:len(name)-n-1], fingerprintText, nil
}

// ParseFingerprintText converts rendered fingerprint text back into a
// fingerprint at seconds resolution.
func (c NameCodec) ParseFingerprintText(text string) (Fingerprint, error) {
	if text == AbsentMarker {
		return AbsentFingerprint(), nil
	}
	t, err := time.ParseInLocation(fingerprintLayout, text, c.location())
	if err != nil {
		return AbsentFingerprint(), NewValidationError(fmt.Sprintf("malformed fingerprint %q", text), err)
	}
	return FingerprintFromMillis(t.UnixMilli()), nil
}

// FileName returns the archive file name for identifier
func (c NameCodec) FileName(identifier string) string {
	return identifier + "." + c.extension()
}

func (c NameCodec) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c NameCodec) extension() string {
	if c.Extension == "" {
		return DefaultArchiveExtension
	}
	return strings.TrimPrefix(c.Extension, ".")
}

// sanitizeIdentifier is the single rule keeping identifiers filesystem safe
func sanitizeIdentifier(s string) string {
	return identifierReplacer.Replace(s)
}
