package wiki

import (
	"strings"
)

// NativeContentType is the wiki's own markup type. Pages declaring any other
// content-type are served verbatim (header stripped) under that type.
const NativeContentType = "text/x-markdown"

// Metadata is the structured header of a page body: consecutive leading
// lines of the form ".key value". The first line that does not match ends
// the header.
type Metadata struct {
	ContentType string
	Schema      string
	Redirect    string
	ACLRead     []string
	ACLWrite    []string
	Published   bool
}

// ParseMetadata reads the metadata header of a body.
func ParseMetadata(body string) Metadata {
	meta := Metadata{ContentType: NativeContentType}
	for _, line := range strings.Split(body, "\n") {
		key, value, ok := metadataLine(line)
		if !ok {
			break
		}
		switch key {
		case "content-type":
			if value != "" {
				meta.ContentType = value
			}
		case "schema":
			meta.Schema = value
		case "redirect":
			meta.Redirect = value
		case "read":
			meta.ACLRead = splitPrincipals(value)
		case "write":
			meta.ACLWrite = splitPrincipals(value)
		case "published":
			meta.Published = true
		}
	}
	return meta
}

// StripMetadata returns the body without its metadata header.
func StripMetadata(body string) string {
	lines := strings.Split(body, "\n")
	i := 0
	for ; i < len(lines); i++ {
		if _, _, ok := metadataLine(lines[i]); !ok {
			break
		}
	}
	return strings.Join(lines[i:], "\n")
}

// metadataLine parses one ".key value" line. Keys are lowercase words with
// optional dashes; a lone dot or a markdown-ish line does not qualify.
func metadataLine(line string) (key, value string, ok bool) {
	if !strings.HasPrefix(line, ".") {
		return "", "", false
	}
	rest := strings.TrimPrefix(line, ".")
	key, value, _ = strings.Cut(rest, " ")
	if key == "" {
		return "", "", false
	}
	for _, r := range key {
		if (r < 'a' || r > 'z') && r != '-' {
			return "", "", false
		}
	}
	return key, strings.TrimSpace(value), true
}

func splitPrincipals(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
