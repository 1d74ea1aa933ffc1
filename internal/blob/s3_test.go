package blob

import "testing"

func TestParseObjectURL(t *testing.T) {
	bucket, key, err := parseObjectURL("s3://statements/statements/u1/p1/jan.pdf")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if bucket != "statements" || key != "statements/u1/p1/jan.pdf" {
		t.Fatalf("unexpected parse result %q %q", bucket, key)
	}

	for _, bad := range []string{
		"https://example.com/file.pdf",
		"s3://",
		"s3://bucket-only",
		"s3://bucket/",
	} {
		if _, _, err := parseObjectURL(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
