package domain

import "testing"

func TestCreateBatchRequestValidate(t *testing.T) {
	valid := CreateBatchRequest{
		SourceType: SourceTypeLocalPath,
		Inputs:     []string{"/data/study1"},
		Format:     "png",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateBatchRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingInputs := CreateBatchRequest{
		SourceType: SourceTypeLocalPath,
		Format:     "png",
	}
	if err := missingInputs.Validate(); err == nil {
		t.Fatal("expected validation error for missing inputs")
	}

	badFormat := CreateBatchRequest{
		SourceType: SourceTypeLocalPath,
		Inputs:     []string{"/data/study1"},
		Format:     "gif",
	}
	if err := badFormat.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported format")
	}

	anonWithoutMapping := CreateBatchRequest{
		SourceType: SourceTypeLocalPath,
		Inputs:     []string{"/data/study1"},
		Format:     "png",
		Anonymize:  true,
	}
	if err := anonWithoutMapping.Validate(); err == nil {
		t.Fatal("expected validation error for anonymize without anon_paths")
	}
}

func TestNormalizeFormat(t *testing.T) {
	for _, token := range []string{"jpg", "JPEG", "png", "bmp", "TIFF", "raw-array"} {
		if _, err := NormalizeFormat(token); err != nil {
			t.Fatalf("expected %q to be recognized: %v", token, err)
		}
	}
	if _, err := NormalizeFormat("webp"); err == nil {
		t.Fatal("expected error for unrecognized format token")
	}
}

func TestUnsupportedSOPClassName(t *testing.T) {
	name, ok := UnsupportedSOPClassName("1.2.840.10008.5.1.4.1.1.104.1")
	if !ok || name != "Encapsulated PDF Storage" {
		t.Fatalf("expected Encapsulated PDF Storage, got %q ok=%v", name, ok)
	}
	if _, ok := UnsupportedSOPClassName("1.2.840.10008.5.1.4.1.1.2"); ok {
		t.Fatal("CT Image Storage should not be in the rejection table")
	}
}
