package model

import "testing"

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips utm parameters",
			in:   "https://example.org/jobs/123?utm_source=feed&utm_campaign=daily",
			want: "https://example.org/jobs/123",
		},
		{
			name: "strips tracking parameters but keeps real ones",
			in:   "https://example.org/jobs?id=42&ref=homepage&fbclid=xyz",
			want: "https://example.org/jobs?id=42",
		},
		{
			name: "drops fragment",
			in:   "https://example.org/jobs/123#apply",
			want: "https://example.org/jobs/123",
		},
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.ORG/Jobs/123",
			want: "https://example.org/Jobs/123",
		},
		{
			name: "trims trailing slash",
			in:   "https://example.org/jobs/123/",
			want: "https://example.org/jobs/123",
		},
		{
			name: "trims surrounding whitespace",
			in:   "  https://example.org/jobs/123  ",
			want: "https://example.org/jobs/123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalURLRejectsNonHTTP(t *testing.T) {
	for _, in := range []string{"", "jobs/123", "ftp://example.org/jobs", "mailto:hr@example.org"} {
		if _, err := CanonicalURL(in); err == nil {
			t.Errorf("CanonicalURL(%q) should fail", in)
		}
	}
}

func TestCanonicalURLEquivalentVariants(t *testing.T) {
	a, err := CanonicalURL("https://example.org/jobs/123?utm_source=a#top")
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalURL("HTTPS://EXAMPLE.ORG/jobs/123/")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("variants should canonicalize identically: %q vs %q", a, b)
	}
}
