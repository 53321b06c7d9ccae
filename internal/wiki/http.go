package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leafwiki/api/internal/acl"
	"leafwiki/api/internal/blob"
	"leafwiki/api/internal/export"
	"leafwiki/api/internal/identity"
	"leafwiki/api/internal/search"
	"leafwiki/api/internal/store"
	"leafwiki/api/internal/title"
	"leafwiki/api/internal/util"
)

const (
	sessionCookie    = "leafwiki_session"
	changesLimit     = 100
	changesFeedLimit = 3
	postsLimitMax    = 200
)

type HTTPServer struct {
	service  *Service
	identity *identity.Service
	blobs    *blob.Store

	// renderPDF is swappable so tests do not need headless Chrome.
	renderPDF func(html, pageTitle string) (*export.Result, error)
}

func NewHTTPServer(service *Service, identity *identity.Service, blobs *blob.Store) *HTTPServer {
	return &HTTPServer{
		service:   service,
		identity:  identity,
		blobs:     blobs,
		renderPDF: export.PDF,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

type requestIDKey struct{}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.RequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	if strings.HasPrefix(path, "sp.") {
		s.handleSpecial(w, r, strings.TrimPrefix(path, "sp."))
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleGet(w, r, path)
	case http.MethodPost:
		s.handlePost(w, r, path)
	default:
		writeDomainError(w, &DomainError{Status: http.StatusMethodNotAllowed, Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	}
}

// currentUser resolves the session cookie into a principal. Absent or
// invalid cookies mean an anonymous visitor, never an error. The email
// named on the configuration page is always an administrator.
func (s *HTTPServer) currentUser(r *http.Request) *acl.User {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := s.identity.FromToken(cookie.Value)
	if err != nil {
		return nil
	}
	user := &acl.User{Email: claims.Email, Admin: claims.Admin}
	if !user.Admin && user.Email != "" && user.Email == s.service.adminEmail(r.Context()) {
		user.Admin = true
	}
	s.service.MarkRecentUser(r.Context(), user.Email)
	return user
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request, path string) {
	if path == "" {
		http.Redirect(w, r, "/"+title.ToPath(s.service.HomeTitle()), http.StatusSeeOther)
		return
	}

	// Canonicalize space-containing paths to their underscore form before
	// touching the store.
	if strings.Contains(path, " ") {
		location := "/" + title.ToPath(strings.ReplaceAll(path, "_", " "))
		if r.URL.RawQuery != "" {
			location += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, location, http.StatusSeeOther)
		return
	}

	if strings.HasPrefix(path, "+") || strings.HasPrefix(path, "-") {
		s.handleSearchPath(w, r, path)
		return
	}

	pageTitle, err := title.ToTitle(path)
	if err != nil {
		writeDomainError(w, badRequest(err.Error()))
		return
	}

	page, err := s.service.Resolve(r.Context(), pageTitle, r.URL.Query().Get("rev"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	user := s.currentUser(r)
	if !acl.CanRead(page.ACLRead(), user) {
		s.renderForbidden(w, r, user)
		return
	}

	rendered, err := s.service.Negotiate(r.Context(), page, r.URL.Query().Get("_type"), user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeRendered(w, r, rendered)
}

func (s *HTTPServer) handlePost(w http.ResponseWriter, r *http.Request, path string) {
	pageTitle, err := title.ToTitle(path)
	if err != nil {
		writeDomainError(w, badRequest(err.Error()))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeDomainError(w, badRequest("malformed form body"))
		return
	}
	revision, err := strconv.Atoi(r.PostFormValue("revision"))
	if err != nil || revision < 0 {
		writeDomainError(w, badRequest("revision must be a non-negative integer"))
		return
	}

	current, err := s.service.CurrentDocument(r.Context(), pageTitle)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	user := s.currentUser(r)
	if !acl.CanWrite(current.ACLWrite, user) {
		s.renderForbidden(w, r, user)
		return
	}

	doc, err := s.service.Update(r.Context(), current, r.PostFormValue("body"), revision, r.PostFormValue("comment"), user)
	var derr *DomainError
	if errors.As(err, &derr) && derr.Code == "CONFLICT" {
		s.renderConflict(w, r, pageTitle, derr.Message)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	http.Redirect(w, r, "/"+title.ToPath(doc.Title), http.StatusSeeOther)
}

// handleSearchPath serves the +term / -term search shorthand paths.
func (s *HTTPServer) handleSearchPath(w http.ResponseWriter, r *http.Request, path string) {
	raw := path[1:]
	expression, err := title.ToTitle(raw)
	if err != nil {
		writeDomainError(w, badRequest(err.Error()))
		return
	}
	if strings.HasPrefix(path, "-") {
		expression = "-" + expression
	}
	s.renderSearch(w, r, expression)
}

func (s *HTTPServer) renderSearch(w http.ResponseWriter, r *http.Request, expression string) {
	matches, exclusions, err := s.service.SearchRanked(expression)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	html, err := render("search.html", listData{
		SiteTitle:  s.service.siteTitle(r.Context()),
		Query:      expression,
		Matches:    resultRows(matches),
		Exclusions: resultRows(exclusions),
		UserName:   userName(s.currentUser(r)),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeRendered(w, r, Rendered{Status: http.StatusOK, ContentType: "text/html; charset=utf-8", Body: []byte(html)})
}

func (s *HTTPServer) handleSpecial(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()
	user := s.currentUser(r)

	switch name {
	case "titles":
		if kind := r.URL.Query().Get("_type"); kind != "" && kind != ResJSON {
			writeDomainError(w, badRequest(fmt.Sprintf("unknown representation %q", kind)))
			return
		}
		titles, err := s.service.Titles(ctx, user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if titles == nil {
			titles = []string{}
		}
		writeJSON(w, http.StatusOK, titles)

	case "status":
		checks := map[string]any{"search": s.service.SearchHealthy()}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "checks": checks})

	case "changes":
		docs, err := s.service.Changes(ctx, user, changesLimit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if r.URL.Query().Get("_type") == ResAtom {
			if len(docs) > changesFeedLimit {
				docs = docs[:changesFeedLimit]
			}
			s.writeListFeed(w, r, "Recent Changes", "/sp.changes", docs, false)
			return
		}
		rows := make([]changeRow, 0, len(docs))
		for _, doc := range docs {
			rows = append(rows, changeRow{Title: doc.Title, Modifier: doc.Modifier, UpdatedAt: doc.UpdatedAt})
		}
		s.renderHTML(w, r, "changes.html", listData{
			SiteTitle: s.service.siteTitle(ctx),
			Changes:   rows,
			UserName:  userName(user),
		})

	case "index":
		docs, err := s.service.Index(ctx, user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if r.URL.Query().Get("_type") == ResAtom {
			s.writeListFeed(w, r, "Page Index", "/sp.index", docs, false)
			return
		}
		titles := make([]string, 0, len(docs))
		for _, doc := range docs {
			titles = append(titles, doc.Title)
		}
		s.renderHTML(w, r, "index.html", listData{
			SiteTitle: s.service.siteTitle(ctx),
			Groups:    GroupTitles(titles),
			UserName:  userName(user),
		})

	case "posts":
		parent := r.URL.Query().Get("parent")
		if r.URL.Query().Get("_type") == ResAtom {
			docs, err := s.service.Posts(ctx, user, parent, postsPerPage)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			s.writeListFeed(w, r, "Posts", "/sp.posts", docs, true)
			return
		}
		docs, err := s.service.Posts(ctx, user, parent, postsLimitMax)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		rows := make([]postRow, 0, len(docs))
		for _, doc := range docs {
			ts := doc.UpdatedAt
			if doc.PublishedAt != nil {
				ts = *doc.PublishedAt
			}
			rows = append(rows, postRow{Title: doc.Title, BodyHTML: renderMarkdown(doc.Body), Modifier: doc.Modifier, PublishedAt: ts})
		}
		s.renderHTML(w, r, "posts.html", listData{
			SiteTitle: s.service.siteTitle(ctx),
			Title:     "Posts",
			Posts:     rows,
			UserName:  userName(user),
		})

	case "search":
		s.handleSearchQuery(w, r, user)

	case "opensearch":
		xml, err := render("opensearch.xml", opensearchData{
			SiteTitle: s.service.siteTitle(ctx),
			BaseURL:   s.service.BaseURL(),
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		s.writeRendered(w, r, Rendered{Status: http.StatusOK, ContentType: "application/opensearchdescription+xml", Body: []byte(xml)})

	case "reindex":
		if r.Method != http.MethodPost {
			writeDomainError(w, &DomainError{Status: http.StatusMethodNotAllowed, Code: "METHOD_NOT_ALLOWED", Message: "reindex requires POST"})
			return
		}
		if user == nil || !user.Admin {
			writeDomainError(w, accessDenied("reindex requires an administrator"))
			return
		}
		count, err := s.service.Reindex(ctx)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"indexed": count})

	case "storagecheck":
		if user == nil || !user.Admin {
			writeDomainError(w, accessDenied("storage check requires an administrator"))
			return
		}
		if s.blobs == nil {
			writeDomainError(w, &DomainError{Status: http.StatusServiceUnavailable, Code: "UNAVAILABLE", Message: "object storage is not configured"})
			return
		}
		if err := s.blobs.Check(ctx); err != nil {
			writeDomainError(w, fmt.Errorf("storage check: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case "export":
		s.handleExport(w, r, user)

	case "login":
		s.handleLogin(w, r)

	case "signup":
		s.handleSignup(w, r)

	case "logout":
		if r.Method != http.MethodPost {
			writeDomainError(w, &DomainError{Status: http.StatusMethodNotAllowed, Code: "METHOD_NOT_ALLOWED", Message: "logout requires POST"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
		http.Redirect(w, r, "/", http.StatusSeeOther)

	default:
		writeDomainError(w, notFound(fmt.Sprintf("unknown special page %q", name)))
	}
}

// handleSearchQuery serves /sp.search, a json-only route: the ranked score
// shape by default, or the opensearch suggestion format. The HTML result
// page lives on the +term / -term paths.
func (s *HTTPServer) handleSearchQuery(w http.ResponseWriter, r *http.Request, user *acl.User) {
	query := r.URL.Query().Get("q")

	if kind := r.URL.Query().Get("_type"); kind != "" && kind != ResJSON {
		writeDomainError(w, badRequest(fmt.Sprintf("unknown representation %q", kind)))
		return
	}

	if r.URL.Query().Get("format") == "opensearch" {
		titles, err := s.service.Titles(r.Context(), user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		lowered := strings.ToLower(query)
		var suggestions []string
		for _, t := range titles {
			if strings.Contains(strings.ToLower(t), lowered) {
				suggestions = append(suggestions, t)
			}
		}
		if suggestions == nil {
			suggestions = []string{}
		}
		writeJSON(w, http.StatusOK, []any{query, suggestions})
		return
	}

	matches, exclusions, err := s.service.SearchRanked(query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":      query,
		"matches":    resultRows(matches),
		"exclusions": resultRows(exclusions),
	})
}

// handleExport renders a page to PDF and streams it back, archiving a copy
// in object storage when configured.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, user *acl.User) {
	path := r.URL.Query().Get("title")
	if path == "" {
		writeDomainError(w, badRequest("title query parameter is required"))
		return
	}
	pageTitle, err := title.ToTitle(path)
	if err != nil {
		writeDomainError(w, badRequest(err.Error()))
		return
	}

	page, err := s.service.Resolve(r.Context(), pageTitle, r.URL.Query().Get("rev"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !acl.CanRead(page.ACLRead(), user) {
		s.renderForbidden(w, r, user)
		return
	}
	if page.Revision() == 0 {
		writeDomainError(w, notFound(fmt.Sprintf("page %q not found", pageTitle)))
		return
	}

	rendered, err := s.service.Negotiate(r.Context(), page, ResDefault, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	result, err := s.renderPDF(string(rendered.Body), pageTitle)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		writeDomainError(w, &DomainError{Status: http.StatusServiceUnavailable, Code: "UNAVAILABLE", Message: "pdf export is not available on this host"})
		return
	}
	if err != nil {
		writeDomainError(w, fmt.Errorf("export %q: %w", pageTitle, err))
		return
	}

	if s.blobs != nil {
		key := "exports/" + result.Filename
		if err := s.blobs.Put(r.Context(), key, result.MimeType, result.Data); err != nil {
			log.Printf("export archive failed key=%q err=%v", key, err)
		}
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(result.Data)
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		s.renderHTML(w, r, "login.html", formData{SiteTitle: s.service.siteTitle(r.Context())})
		return
	}
	if r.Method != http.MethodPost {
		writeDomainError(w, &DomainError{Status: http.StatusMethodNotAllowed, Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeDomainError(w, badRequest("malformed form body"))
		return
	}
	token, err := s.identity.SignIn(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if errors.Is(err, identity.ErrInvalidCredentials) {
		html, rerr := render("login.html", formData{
			SiteTitle: s.service.siteTitle(r.Context()),
			Message:   "Invalid email or password.",
		})
		if rerr != nil {
			writeDomainError(w, rerr)
			return
		}
		s.writeRendered(w, r, Rendered{Status: http.StatusUnauthorized, ContentType: "text/html; charset=utf-8", Body: []byte(html)})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.setSession(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *HTTPServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDomainError(w, &DomainError{Status: http.StatusMethodNotAllowed, Code: "METHOD_NOT_ALLOWED", Message: "signup requires POST"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeDomainError(w, badRequest("malformed form body"))
		return
	}
	token, err := s.identity.SignUp(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"), r.PostFormValue("name"))
	if err != nil {
		writeDomainError(w, badRequest(err.Error()))
		return
	}
	s.setSession(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *HTTPServer) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) renderForbidden(w http.ResponseWriter, r *http.Request, user *acl.User) {
	html, err := render("403.html", pageData{
		SiteTitle: s.service.siteTitle(r.Context()),
		UserName:  userName(user),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeRendered(w, r, Rendered{Status: http.StatusForbidden, ContentType: "text/html; charset=utf-8", Body: []byte(html)})
}

func (s *HTTPServer) renderConflict(w http.ResponseWriter, r *http.Request, pageTitle, message string) {
	html, err := render("406.html", formData{
		SiteTitle: s.service.siteTitle(r.Context()),
		Title:     pageTitle,
		Path:      title.ToPath(pageTitle),
		Message:   message,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeRendered(w, r, Rendered{Status: http.StatusNotAcceptable, ContentType: "text/html; charset=utf-8", Body: []byte(html)})
}

func (s *HTTPServer) renderHTML(w http.ResponseWriter, r *http.Request, template string, data any) {
	html, err := render(template, data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeRendered(w, r, Rendered{Status: http.StatusOK, ContentType: "text/html; charset=utf-8", Body: []byte(html)})
}

// writeListFeed serializes documents as an Atom feed. usePublished selects
// the publication time over the update time as entry timestamp.
func (s *HTTPServer) writeListFeed(w http.ResponseWriter, r *http.Request, feedName, feedPath string, docs []store.Document, usePublished bool) {
	entries := make([]FeedEntry, 0, len(docs))
	for _, doc := range docs {
		ts := doc.UpdatedAt
		if usePublished && doc.PublishedAt != nil {
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
	feedTitle := s.service.siteTitle(r.Context()) + " - " + feedName
	feedURL := s.service.BaseURL() + feedPath + "?_type=atom"
	atom, err := BuildFeed(feedTitle, feedURL, s.service.BaseURL(), s.service.adminEmail(r.Context()), entries)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeRendered(w, r, Rendered{Status: http.StatusOK, ContentType: "application/atom+xml; charset=utf-8", Body: []byte(atom)})
}

// writeRendered sends a finished representation. HEAD requests get the full
// headers, including Content-Length computed from the rendered body, but no
// body bytes.
func (s *HTTPServer) writeRendered(w http.ResponseWriter, r *http.Request, rendered Rendered) {
	if rendered.Location != "" {
		http.Redirect(w, r, rendered.Location, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", rendered.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(rendered.Body)))
	w.WriteHeader(rendered.Status)
	if r.Method != http.MethodHead {
		w.Write(rendered.Body)
	}
}

func resultRows(entries search.ScoreTable) []resultRow {
	rows := make([]resultRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, resultRow{Title: entry.Title, Score: entry.Score})
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	body = append(body, '\n')
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var derr *DomainError
	if !errors.As(err, &derr) {
		log.Printf("internal error: %v", err)
		derr = &DomainError{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
	}
	writeJSON(w, derr.Status, map[string]any{"error": map[string]any{"code": derr.Code, "message": derr.Message}})
}
