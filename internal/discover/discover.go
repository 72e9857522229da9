// Package discover turns the caller's input paths into the validated,
// deterministically ordered list of dataset files a batch will convert.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extension is the recognized dataset-file suffix, matched case-insensitively.
const Extension = ".dcm"

// Files validates every input path and expands it into dataset files. A
// missing path, or an explicit file without the dataset extension, is a fatal
// error that aborts the batch before any task is scheduled. Directories are
// walked recursively and non-dataset files inside them are skipped silently.
// The aggregate list is sorted by path so processing order is reproducible.
func Files(inputs []string) ([]string, error) {
	var files []string

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("input path %q does not exist", input)
			}
			return nil, fmt.Errorf("stat input path %q: %w", input, err)
		}

		if !info.IsDir() {
			if !hasExtension(input) {
				return nil, fmt.Errorf("input file %q is not a %s file", input, Extension)
			}
			files = append(files, input)
			continue
		}

		err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if hasExtension(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk input directory %q: %w", input, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

func hasExtension(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Extension)
}
