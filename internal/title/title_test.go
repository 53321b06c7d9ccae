package title

import "testing"

func TestPathTitleRoundTrip(t *testing.T) {
	titles := []string{
		"Home",
		"Getting Started",
		"Person/Isaac Newton",
		"C++",
		"2024 Review",
		"샘플 문서",
	}
	for _, want := range titles {
		path := ToPath(want)
		got, err := ToTitle(path)
		if err != nil {
			t.Fatalf("ToTitle(%q): %v", path, err)
		}
		if got != want {
			t.Fatalf("round trip %q -> %q -> %q", want, path, got)
		}
	}
}

func TestToPathEscapesNonASCII(t *testing.T) {
	path := ToPath("샘플")
	if path != "%EC%83%98%ED%94%8C" {
		t.Fatalf("expected UTF-8 percent-encoding, got %q", path)
	}
}

func TestToPathKeepsHierarchySeparator(t *testing.T) {
	if got := ToPath("Book/The Trial"); got != "Book/The_Trial" {
		t.Fatalf("expected slash preserved, got %q", got)
	}
}

func TestGrouper(t *testing.T) {
	cases := map[string]string{
		"apple":       "A",
		"Zebra":       "Z",
		"2024 Review": "0-9",
		"Person/Ada":  "Person",
		"...":         "Others",
		"":            "Others",
	}
	for in, want := range cases {
		if got := Grouper(in); got != want {
			t.Fatalf("Grouper(%q) = %q, want %q", in, got, want)
		}
	}
}
