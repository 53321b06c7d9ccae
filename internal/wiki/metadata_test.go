package wiki

import (
	"reflect"
	"testing"
)

func TestParseMetadata(t *testing.T) {
	body := ".content-type text/css\n" +
		".schema Blog\n" +
		".redirect New Home\n" +
		".read alice@example.com, bob@example.com\n" +
		".write alice@example.com\n" +
		".published\n" +
		"\n" +
		".read mallory@example.com\n"

	meta := ParseMetadata(body)

	if meta.ContentType != "text/css" {
		t.Errorf("content-type: got %q", meta.ContentType)
	}
	if meta.Schema != "Blog" {
		t.Errorf("schema: got %q", meta.Schema)
	}
	if meta.Redirect != "New Home" {
		t.Errorf("redirect: got %q", meta.Redirect)
	}
	if want := []string{"alice@example.com", "bob@example.com"}; !reflect.DeepEqual(meta.ACLRead, want) {
		t.Errorf("read: got %v", meta.ACLRead)
	}
	if want := []string{"alice@example.com"}; !reflect.DeepEqual(meta.ACLWrite, want) {
		t.Errorf("write: got %v", meta.ACLWrite)
	}
	if !meta.Published {
		t.Error("published flag not set")
	}
}

func TestParseMetadataDefaults(t *testing.T) {
	meta := ParseMetadata("just a page\nwith text")
	if meta.ContentType != NativeContentType {
		t.Errorf("default content type: got %q", meta.ContentType)
	}
	if meta.Published || meta.Redirect != "" || meta.ACLRead != nil || meta.ACLWrite != nil {
		t.Errorf("unexpected metadata from plain body: %+v", meta)
	}
}

func TestParseMetadataHeaderEndsAtFirstNonMatching(t *testing.T) {
	meta := ParseMetadata(".read all\nA sentence. Not metadata.\n.write alice@example.com\n")
	if meta.ACLRead == nil {
		t.Fatal("first line is metadata")
	}
	if meta.ACLWrite != nil {
		t.Fatal("lines after the header must be ignored")
	}
}

func TestParseMetadataRejectsNonKeyLines(t *testing.T) {
	for _, line := range []string{". leading space", ".", ".NotLower x", ".key2 numbers"} {
		if _, _, ok := metadataLine(line); ok {
			t.Errorf("%q should not parse as metadata", line)
		}
	}
	if key, value, ok := metadataLine(".content-type text/css"); !ok || key != "content-type" || value != "text/css" {
		t.Errorf("dashed key should parse, got %q %q %v", key, value, ok)
	}
}

func TestStripMetadata(t *testing.T) {
	body := ".read all\n.published\n\n# Heading\ntext"
	if got := StripMetadata(body); got != "\n# Heading\ntext" {
		t.Errorf("got %q", got)
	}
	if got := StripMetadata("no header"); got != "no header" {
		t.Errorf("plain body must pass through, got %q", got)
	}
}
