package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFilesSortsDeterministically(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.dcm"))
	touch(t, filepath.Join(dir, "a.dcm"))
	touch(t, filepath.Join(dir, "c.dcm"))

	files, err := Files([]string{dir})
	if err != nil {
		t.Fatalf("Files returned error: %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.dcm"),
		filepath.Join(dir, "b.dcm"),
		filepath.Join(dir, "c.dcm"),
	}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(files))
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("files[%d]: expected %s, got %s", i, want[i], files[i])
		}
	}
}

func TestFilesWalksRecursivelyAndSkipsOtherTypes(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "top.dcm"))
	touch(t, filepath.Join(dir, "nested", "deep", "scan.DCM"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "nested", "thumb.png"))

	files, err := Files([]string{dir})
	if err != nil {
		t.Fatalf("Files returned error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 dataset files, got %d: %v", len(files), files)
	}
}

func TestFilesRejectsMissingPath(t *testing.T) {
	if _, err := Files([]string{"/does/not/exist"}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFilesRejectsExplicitNonDatasetFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	touch(t, path)

	if _, err := Files([]string{path}); err == nil {
		t.Fatal("expected error for explicit non-dataset file")
	}
}

func TestFilesAcceptsExplicitFileCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.DcM")
	touch(t, path)

	files, err := Files([]string{path})
	if err != nil {
		t.Fatalf("Files returned error: %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Fatalf("expected [%s], got %v", path, files)
	}
}

func TestFilesAggregatesMultipleInputs(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	touch(t, filepath.Join(dirA, "z.dcm"))
	touch(t, filepath.Join(dirB, "a.dcm"))

	files, err := Files([]string{dirA, dirB})
	if err != nil {
		t.Fatalf("Files returned error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	if files[0] > files[1] {
		t.Fatalf("aggregate list not sorted: %v", files)
	}
}
