package archive

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultProjectName replaces file names that leave nothing usable.
const DefaultProjectName = "project"

// Limits bound what Extract is willing to write.
type Limits struct {
	MaxEntries int   // maximum number of archive entries, 0 = unlimited
	MaxBytes   int64 // maximum total uncompressed bytes, 0 = unlimited
}

// DefaultLimits mirrors the pipeline defaults.
func DefaultLimits() Limits {
	return Limits{MaxEntries: 10000, MaxBytes: 512 << 20}
}

// ProjectName derives the project folder name from an uploaded file name:
// the .zip suffix is removed (any case), the result is NFC-normalized and any
// directory component is dropped.
func ProjectName(filename string) string {
	name := norm.NFC.String(strings.TrimSpace(filename))
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".zip") {
		name = name[:len(name)-4]
	}
	name = strings.TrimSpace(name)
	switch name {
	case "", ".", "..", "/":
		return DefaultProjectName
	}
	return name
}

// IsZipName reports whether a file name carries the .zip extension.
func IsZipName(filename string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".zip")
}

// entryName normalizes a raw archive entry name to a slash-separated NFC path.
func entryName(raw string) string {
	return norm.NFC.String(strings.ReplaceAll(raw, `\`, "/"))
}

// isMetadata reports macOS archive noise that never belongs to a project.
func isMetadata(name string) bool {
	trimmed := strings.TrimSuffix(name, "/")
	if trimmed == "__MACOSX" || strings.HasPrefix(trimmed, "__MACOSX/") {
		return true
	}
	return path.Base(trimmed) == ".DS_Store"
}
