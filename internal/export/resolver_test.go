package export

import (
	"path/filepath"
	"testing"
)

func TestResolveFlatNaming(t *testing.T) {
	r := Resolver{TargetRoot: "/out"}

	path, err := r.Resolve("/in/scan.dcm", "4", "12", "png")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if want := filepath.Join("/out", "4_12.png"); path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
}

func TestResolvePlaceholders(t *testing.T) {
	r := Resolver{TargetRoot: "/out"}

	path, err := r.Resolve("/in/scan.dcm", "", "  ", "bmp")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if want := filepath.Join("/out", "Ser_Ins.bmp"); path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
}

func TestResolveAnonymousUsesMapping(t *testing.T) {
	r := Resolver{
		TargetRoot: "/out",
		Anonymize:  true,
		AnonPaths:  map[string]string{"/in/scan.dcm": "/out/p001/1.png"},
	}

	path, err := r.Resolve("/in/scan.dcm", "4", "12", "png")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if path != "/out/p001/1.png" {
		t.Fatalf("expected mapped path, got %s", path)
	}
}

func TestResolveAnonymousMissingEntryFails(t *testing.T) {
	r := Resolver{TargetRoot: "/out", Anonymize: true, AnonPaths: map[string]string{}}

	if _, err := r.Resolve("/in/scan.dcm", "4", "12", "png"); err == nil {
		t.Fatal("expected error for missing anonymized mapping")
	}
}

func TestTargetRootDefaultsToFirstInputParent(t *testing.T) {
	if got := TargetRoot("", []string{"/data/study1/scan.dcm"}); got != "/data/study1" {
		t.Fatalf("expected /data/study1, got %s", got)
	}
	if got := TargetRoot("/explicit", []string{"/data/study1"}); got != "/explicit" {
		t.Fatalf("expected /explicit, got %s", got)
	}
}
