// Package export resolves output file paths for converted images.
package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Placeholder tokens for datasets missing series/instance identifiers.
// Export never fails purely for absent metadata; two files that both lack
// these fields will collide on the placeholder name.
const (
	SeriesPlaceholder   = "Ser"
	InstancePlaceholder = "Ins"
)

// Resolver computes output paths under a target root. In anonymous mode the
// path comes from a caller-supplied mapping keyed by source file path; the
// mapping must be built in full before any task runs.
type Resolver struct {
	TargetRoot string
	Anonymize  bool
	AnonPaths  map[string]string
}

// Resolve returns the flat output path
// {target_root}/{SeriesNumber}_{InstanceNumber}.{format}. The layout is
// deliberately flat; no per-patient or per-date subfolders are created.
func (r Resolver) Resolve(source, seriesNumber, instanceNumber, format string) (string, error) {
	if r.Anonymize {
		path, ok := r.AnonPaths[source]
		if !ok {
			return "", fmt.Errorf("no anonymized path mapping for %s", source)
		}
		return path, nil
	}

	series := strings.TrimSpace(seriesNumber)
	if series == "" {
		series = SeriesPlaceholder
	}
	instance := strings.TrimSpace(instanceNumber)
	if instance == "" {
		instance = InstancePlaceholder
	}

	return filepath.Join(r.TargetRoot, fmt.Sprintf("%s_%s.%s", series, instance, format)), nil
}

// TargetRoot picks the caller-supplied root when given, otherwise the parent
// directory of the first input path.
func TargetRoot(explicit string, inputs []string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	if len(inputs) == 0 {
		return "."
	}
	return filepath.Dir(inputs[0])
}
