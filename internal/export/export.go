// Package export turns a rendered wiki page into a downloadable PDF through
// headless Chrome.
package export

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPDFDependencyMissing indicates the headless Chrome binary is not
// installed on this host.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// PDF renders the given page HTML to a PDF named after the page title.
func PDF(html, pageTitle string) (*Result, error) {
	return exportPDF(html, pageTitle)
}

// sanitizeFilename creates a safe filename from a page title.
func sanitizeFilename(pageTitle string) string {
	var b strings.Builder
	for _, r := range pageTitle {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '/':
			b.WriteRune('-')
		case r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "page"
	}
	return result
}

// percentEncodeForDataURL encodes HTML for a data: URL. url.QueryEscape is
// unsuitable here: data URLs need %20 for spaces, not "+".
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}
