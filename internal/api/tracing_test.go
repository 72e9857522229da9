package api

import "testing"

func TestBatchIDFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/v1/batches/batch-7f3a", "batch-7f3a"},
		{"/v1/batches/batch-7f3a/start", "batch-7f3a"},
		{"/v1/batches/", ""},
		{"/v1/batches", ""},
		{"/v1/uploads", ""},
		{"/healthz", ""},
		{"/metrics", ""},
	}
	for _, tc := range cases {
		if got := batchIDFromPath(tc.path); got != tc.want {
			t.Fatalf("batchIDFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
