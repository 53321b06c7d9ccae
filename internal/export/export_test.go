package export

import "testing"

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Getting Started": "Getting-Started",
		"Person/Ada":      "Person-Ada",
		"샘플":              "page",
		"a b_c-d!!":       "a-b_c-d",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	if got := percentEncodeForDataURL("a b"); got != "a%20b" {
		t.Fatalf("space must encode as %%20, got %q", got)
	}
	if got := percentEncodeForDataURL("<p>"); got != "%3Cp%3E" {
		t.Fatalf("angle brackets must be encoded, got %q", got)
	}
}
