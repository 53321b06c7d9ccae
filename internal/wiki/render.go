package wiki

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"leafwiki/api/internal/title"
)

//go:embed templates/*.html templates/*.xml
var templateFS embed.FS

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// renderMarkdown converts wiki markup to HTML. The metadata header is
// stripped first so ".read" lines never leak into output.
func renderMarkdown(body string) template.HTML {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(StripMetadata(body)), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(body))
	}
	return template.HTML(buf.String())
}

var funcMap = template.FuncMap{
	"dt": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04")
	},
	"sdt": func(t time.Time) string {
		return t.UTC().Format("Jan 2, 2006")
	},
	"isodt": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
	"toPath":   title.ToPath,
	"markdown": renderMarkdown,
}

var pageTemplates = template.Must(
	template.New("wiki").Funcs(funcMap).ParseFS(templateFS, "templates/*.html", "templates/*.xml"),
)

// render executes one template from the embedded set.
func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// pageData is the common payload for page-level templates.
type pageData struct {
	SiteTitle string
	Title     string
	Path      string
	BodyHTML  template.HTML
	Revision  int
	IsCurrent bool
	Modifier  string
	UpdatedAt time.Time
	NotFound  bool
	UserName  string
	CanWrite  bool
	// Posts is populated for Blog-schema pages: the page's published
	// children, newest first.
	Posts []postRow
}

// listData covers the listing templates: history, index, changes, posts,
// search.
type listData struct {
	SiteTitle  string
	Title      string
	Path       string
	Query      string
	Revisions  []historyRow
	Titles     []string
	Groups     []titleGroup
	Changes    []changeRow
	Posts      []postRow
	Matches    []resultRow
	Exclusions []resultRow
	UserName   string
}

type historyRow struct {
	Revision  int
	Comment   string
	CreatedAt time.Time
}

type titleGroup struct {
	Key    string
	Titles []string
}

type changeRow struct {
	Title     string
	Modifier  string
	UpdatedAt time.Time
}

type postRow struct {
	Title       string
	BodyHTML    template.HTML
	Modifier    string
	PublishedAt time.Time
}

type resultRow struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// formData feeds the edit form, including the conflict re-render.
type formData struct {
	SiteTitle string
	Title     string
	Path      string
	Body      string
	Revision  int
	Comment   string
	Message   string
	UserName  string
}

// opensearchData feeds the opensearch descriptor.
type opensearchData struct {
	SiteTitle string
	BaseURL   string
}
