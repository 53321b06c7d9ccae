package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"leafwiki/api/internal/acl"
	"leafwiki/api/internal/title"
)

// Representation kinds selectable via the _type query parameter.
const (
	ResDefault = "default"
	ResAtom    = "atom"
	ResForm    = "form"
	ResRawBody = "rawbody"
	ResBody    = "body"
	ResHistory = "history"
	ResJSON    = "json"
)

// Rendered is one finished response body. A non-empty Location means a
// redirect; Body and ContentType are ignored then.
type Rendered struct {
	Status      int
	ContentType string
	Body        []byte
	Location    string
}

// pageJSON is the stable machine-readable page shape.
type pageJSON struct {
	Title     string   `json:"title"`
	Modifier  *string  `json:"modifier"`
	UpdatedAt string   `json:"updated_at"`
	Body      string   `json:"body"`
	Revision  int      `json:"revision"`
	ACLRead   []string `json:"acl_read"`
	ACLWrite  []string `json:"acl_write"`
}

// postsPerPage bounds the blog view and its feed.
const postsPerPage = 20

// Negotiate renders page into the requested representation. The caller has
// already passed the read guard; redirect metadata therefore takes effect
// here, never before the guard.
func (s *Service) Negotiate(ctx context.Context, page PageView, kind string, user *acl.User) (Rendered, error) {
	if kind == "" {
		kind = ResDefault
	}

	switch kind {
	case ResDefault:
		return s.negotiateDefault(ctx, page, user)

	case ResAtom:
		return s.negotiateAtom(ctx, page, user)

	case ResForm:
		html, err := render("form.html", formData{
			SiteTitle: s.siteTitle(ctx),
			Title:     page.Title(),
			Path:      title.ToPath(page.Title()),
			Body:      page.Body(),
			Revision:  page.Revision(),
		})
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Status: http.StatusOK, ContentType: "text/html; charset=utf-8", Body: []byte(html)}, nil

	case ResRawBody:
		return Rendered{Status: http.StatusOK, ContentType: "text/plain; charset=utf-8", Body: []byte(page.Body())}, nil

	case ResBody:
		html, err := render("bodyonly.html", pageData{BodyHTML: renderMarkdown(page.Body())})
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Status: http.StatusOK, ContentType: "text/html; charset=utf-8", Body: []byte(html)}, nil

	case ResHistory:
		revisions, err := page.History(ctx)
		if err != nil {
			return Rendered{}, err
		}
		rows := make([]historyRow, 0, len(revisions))
		for _, rev := range revisions {
			rows = append(rows, historyRow{Revision: rev.Revision, Comment: rev.Comment, CreatedAt: rev.CreatedAt})
		}
		html, err := render("history.html", listData{
			SiteTitle: s.siteTitle(ctx),
			Title:     page.Title(),
			Path:      title.ToPath(page.Title()),
			Revisions: rows,
			UserName:  userName(user),
		})
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Status: http.StatusOK, ContentType: "text/html; charset=utf-8", Body: []byte(html)}, nil

	case ResJSON:
		var modifier *string
		if m := page.Modifier(); m != "" {
			modifier = &m
		}
		body, err := json.Marshal(pageJSON{
			Title:     page.Title(),
			Modifier:  modifier,
			UpdatedAt: page.UpdatedAt().UTC().Format(time.RFC3339),
			Body:      page.Body(),
			Revision:  page.Revision(),
			ACLRead:   page.ACLRead(),
			ACLWrite:  page.ACLWrite(),
		})
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Status: http.StatusOK, ContentType: "application/json", Body: body}, nil

	default:
		return Rendered{}, badRequest(fmt.Sprintf("unknown representation %q", kind))
	}
}

func (s *Service) negotiateDefault(ctx context.Context, page PageView, user *acl.User) (Rendered, error) {
	meta := page.Metadata()

	// Pages declaring a foreign content type are served verbatim.
	if meta.ContentType != NativeContentType {
		return Rendered{Status: http.StatusOK, ContentType: meta.ContentType + "; charset=utf-8", Body: []byte(StripMetadata(page.Body()))}, nil
	}

	if meta.Redirect != "" {
		return Rendered{Status: http.StatusSeeOther, Location: "/" + title.ToPath(meta.Redirect)}, nil
	}

	// Blog pages render the normal page template with their published
	// children attached below the body.
	var posts []postRow
	if meta.Schema == "Blog" {
		var err error
		posts, err = s.postRows(ctx, page.Title(), user)
		if err != nil {
			return Rendered{}, err
		}
	}

	status := http.StatusOK
	if page.Revision() == 0 {
		// Unwritten page: render the normal template with a 404 status so
		// browsers see the create prompt and clients see the miss.
		status = http.StatusNotFound
	}
	html, err := render("wikipage.html", pageData{
		SiteTitle: s.siteTitle(ctx),
		Title:     page.Title(),
		Path:      title.ToPath(page.Title()),
		BodyHTML:  renderMarkdown(page.Body()),
		Revision:  page.Revision(),
		IsCurrent: page.IsCurrent(),
		Modifier:  page.Modifier(),
		UpdatedAt: page.UpdatedAt(),
		NotFound:  page.Revision() == 0,
		UserName:  userName(user),
		CanWrite:  acl.CanWrite(page.ACLWrite(), user),
		Posts:     posts,
	})
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Status: status, ContentType: "text/html; charset=utf-8", Body: []byte(html)}, nil
}

// negotiateAtom serves the page's published children as an Atom feed.
func (s *Service) negotiateAtom(ctx context.Context, page PageView, user *acl.User) (Rendered, error) {
	docs, err := s.Posts(ctx, user, page.Title(), postsPerPage)
	if err != nil {
		return Rendered{}, err
	}
	entries := make([]FeedEntry, 0, len(docs))
	for _, doc := range docs {
		ts := doc.UpdatedAt
		if doc.PublishedAt != nil {
			ts = *doc.PublishedAt
		}
		entries = append(entries, FeedEntry{
			Title:     doc.Title,
			BodyHTML:  string(renderMarkdown(doc.Body)),
			Author:    doc.Modifier,
			URL:       "/" + title.ToPath(doc.Title),
			Timestamp: ts,
		})
	}
	feedURL := s.cfg.BaseURL + "/" + title.ToPath(page.Title()) + "?_type=atom"
	atom, err := BuildFeed(page.Title(), feedURL, s.cfg.BaseURL, s.adminEmail(ctx), entries)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Status: http.StatusOK, ContentType: "application/atom+xml; charset=utf-8", Body: []byte(atom)}, nil
}

func (s *Service) postRows(ctx context.Context, parent string, user *acl.User) ([]postRow, error) {
	docs, err := s.Posts(ctx, user, parent, postsPerPage)
	if err != nil {
		return nil, err
	}
	rows := make([]postRow, 0, len(docs))
	for _, doc := range docs {
		ts := doc.UpdatedAt
		if doc.PublishedAt != nil {
			ts = *doc.PublishedAt
		}
		rows = append(rows, postRow{
			Title:       doc.Title,
			BodyHTML:    renderMarkdown(doc.Body),
			Modifier:    doc.Modifier,
			PublishedAt: ts,
		})
	}
	return rows, nil
}

func (s *Service) siteTitle(ctx context.Context) string {
	return s.ServiceConfig(ctx).Service.Title
}

func (s *Service) adminEmail(ctx context.Context) string {
	return s.ServiceConfig(ctx).Admin.Email
}

func userName(user *acl.User) string {
	if user == nil {
		return ""
	}
	return user.Email
}
