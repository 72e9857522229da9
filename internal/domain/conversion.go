package domain

import (
	"fmt"
	"strings"
)

// Per-file conversion outcome. A batch run always produces exactly one Result
// per discovered file; file-level problems are reported here, never raised.
const (
	StatusWritten = "written"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

const (
	SkipUnsupportedSOPClass = "unsupported_sop_class"
	SkipMultiframe          = "multiframe"
)

// unsupportedSOPClasses maps rejected SOP class UIDs to a human-readable name.
// Extending the rejection set means adding an entry, not a code path.
var unsupportedSOPClasses = map[string]string{
	"1.2.840.10008.5.1.4.1.1.104.1": "Encapsulated PDF Storage",
	"1.2.840.10008.5.1.4.1.1.88.59": "Key Object Selection Document",
}

// UnsupportedSOPClassName reports whether the given SOP class UID is in the
// rejection table and, if so, its display name.
func UnsupportedSOPClassName(uid string) (string, bool) {
	name, ok := unsupportedSOPClasses[strings.TrimSpace(uid)]
	return name, ok
}

type Result struct {
	Source   string `json:"source"`
	Status   string `json:"status"`
	Path     string `json:"path,omitempty"`
	SkipKind string `json:"skip_kind,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
	Pixels   int64  `json:"pixels,omitempty"`
}

func Written(source, path string) Result {
	return Result{Source: source, Status: StatusWritten, Path: path}
}

func Skipped(source, kind, reason string) Result {
	return Result{Source: source, Status: StatusSkipped, SkipKind: kind, Reason: reason}
}

func Failed(source string, err error) Result {
	r := Result{Source: source, Status: StatusFailed}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

var outputFormats = map[string]bool{
	"jpg":       true,
	"jpeg":      true,
	"png":       true,
	"bmp":       true,
	"tiff":      true,
	"raw-array": true,
}

// NormalizeFormat lowercases and validates the requested output format token.
// An unrecognized token is a fatal validation error, raised before dispatch.
func NormalizeFormat(token string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(token))
	if !outputFormats[format] {
		return "", fmt.Errorf("unsupported output format %q (expected jpg, jpeg, png, bmp, tiff, or raw-array)", token)
	}
	return format, nil
}
