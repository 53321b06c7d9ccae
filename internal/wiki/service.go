package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"leafwiki/api/internal/acl"
	"leafwiki/api/internal/cache"
	"leafwiki/api/internal/config"
	"leafwiki/api/internal/gitmirror"
	"leafwiki/api/internal/search"
	"leafwiki/api/internal/store"
	"leafwiki/api/internal/title"
)

// dataStore is the storage surface the wiki service needs.
type dataStore interface {
	GetByTitle(ctx context.Context, title string) (store.Document, error)
	GetRevision(ctx context.Context, title string, revision int) (store.Revision, error)
	ListRevisions(ctx context.Context, title string) ([]store.Revision, error)
	UpdateContent(ctx context.Context, input store.UpdateInput) (store.Document, error)
	GetPublishedPosts(ctx context.Context, parent string, limit int) ([]store.Document, error)
	GetIndex(ctx context.Context) ([]store.Document, error)
	GetChanges(ctx context.Context, limit int) ([]store.Document, error)
	GetTitles(ctx context.Context) ([]string, error)
}

// Service implements the wiki's request-handling core: revision resolution,
// optimistic-concurrency writes, search ranking and listings.
type Service struct {
	cfg     config.Config
	store   dataStore
	scorer  search.Scorer
	indexer search.Indexer
	caches  *cache.Caches
	mirror  *gitmirror.Mirror
}

func NewService(cfg config.Config, st dataStore, scorer search.Scorer, indexer search.Indexer, caches *cache.Caches, mirror *gitmirror.Mirror) *Service {
	return &Service{cfg: cfg, store: st, scorer: scorer, indexer: indexer, caches: caches, mirror: mirror}
}

func (s *Service) HomeTitle() string { return s.cfg.HomeTitle }
func (s *Service) BaseURL() string   { return s.cfg.BaseURL }

// CurrentDocument loads the live document, which may be a revision-0
// placeholder for pages never written.
func (s *Service) CurrentDocument(ctx context.Context, pageTitle string) (store.Document, error) {
	return s.store.GetByTitle(ctx, pageTitle)
}

// Resolve turns a title plus revision selector into a page view. An empty
// or "latest" selector yields the live view; a non-negative integer yields
// the frozen revision, short-circuiting to the live view when it names the
// current revision number.
func (s *Service) Resolve(ctx context.Context, pageTitle, selector string) (PageView, error) {
	doc, err := s.store.GetByTitle(ctx, pageTitle)
	if err != nil {
		return nil, fmt.Errorf("load page %q: %w", pageTitle, err)
	}

	if selector == "" || selector == "latest" {
		return NewCurrentPage(doc, s.store), nil
	}

	revision, err := strconv.Atoi(selector)
	if err != nil || revision < 0 {
		return nil, badRequest(fmt.Sprintf("invalid revision %q", selector))
	}
	// A selector naming the current revision is the live view. For a page
	// never written that number is 0.
	if revision == doc.Revision {
		return NewCurrentPage(doc, s.store), nil
	}

	rev, err := s.store.GetRevision(ctx, pageTitle, revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(fmt.Sprintf("revision %d of %q not found", revision, pageTitle))
	}
	if err != nil {
		return nil, fmt.Errorf("load revision %d of %q: %w", revision, pageTitle, err)
	}
	return NewRevisionPage(rev, doc), nil
}

// Update performs one optimistic-concurrency write on behalf of user. ACL
// and publication state are derived from the new body's metadata header.
// Side channels (git mirror, search index, config cache) are best-effort:
// their failures are logged, never surfaced.
func (s *Service) Update(ctx context.Context, current store.Document, body string, expectedRevision int, comment string, user *acl.User) (store.Document, error) {
	meta := ParseMetadata(body)

	var publishedAt *time.Time
	if meta.Published {
		if current.PublishedAt != nil {
			publishedAt = current.PublishedAt
		} else {
			now := time.Now().UTC()
			publishedAt = &now
		}
	}

	modifier := ""
	if user != nil {
		modifier = user.Email
	}

	doc, err := s.store.UpdateContent(ctx, store.UpdateInput{
		Title:            current.Title,
		Body:             body,
		ExpectedRevision: expectedRevision,
		Comment:          comment,
		Modifier:         modifier,
		ACLRead:          meta.ACLRead,
		ACLWrite:         meta.ACLWrite,
		PublishedAt:      publishedAt,
	})
	var conflictErr *store.ConflictError
	if errors.As(err, &conflictErr) {
		return store.Document{}, conflict(fmt.Sprintf("expected revision %d but page is at revision %d", conflictErr.Expected, conflictErr.Current))
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("update page %q: %w", current.Title, err)
	}

	if s.mirror != nil {
		if err := s.mirror.RecordWrite(doc.Title, doc.Body, comment, modifier); err != nil {
			log.Printf("git mirror write failed title=%q err=%v", doc.Title, err)
		}
	}
	if s.indexer != nil {
		// Only publicly readable pages live in the search index; a write
		// that restricts the read list withdraws the page from it.
		if acl.CanRead(doc.ACLRead, nil) {
			record := search.PageRecord{ID: search.RecordID(doc.Title), Title: doc.Title, Body: StripMetadata(doc.Body)}
			if err := s.indexer.IndexPage(record); err != nil {
				log.Printf("search index update failed title=%q err=%v", doc.Title, err)
			}
		} else if err := s.indexer.DeletePage(doc.Title); err != nil {
			log.Printf("search index removal failed title=%q err=%v", doc.Title, err)
		}
	}
	if s.caches != nil && doc.Title == s.cfg.ConfigTitle {
		if err := s.caches.InvalidateConfig(ctx); err != nil {
			log.Printf("config cache invalidation failed err=%v", err)
		}
	}
	return doc, nil
}

// ServiceConfig returns the parsed configuration page, read through the
// redis cache. Cache failures degrade to a direct load; load failures
// degrade to defaults.
func (s *Service) ServiceConfig(ctx context.Context) cache.ServiceConfig {
	load := func(ctx context.Context) (string, error) {
		doc, err := s.store.GetByTitle(ctx, s.cfg.ConfigTitle)
		if err != nil {
			return "", err
		}
		return StripMetadata(doc.Body), nil
	}

	var body string
	var err error
	if s.caches != nil {
		body, err = s.caches.ConfigBody(ctx, load)
	} else {
		body, err = load(ctx)
	}
	if err != nil {
		log.Printf("config page load failed err=%v", err)
		return cache.ParseServiceConfig("")
	}
	return cache.ParseServiceConfig(body)
}

// SearchRanked evaluates the expression and partitions the score table.
func (s *Service) SearchRanked(expression string) (matches, exclusions search.ScoreTable, err error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil, badRequest("empty search expression")
	}
	table, err := s.scorer.Scores(expression)
	if err != nil {
		return nil, nil, fmt.Errorf("score %q: %w", expression, err)
	}
	matches, exclusions = RankSearch(table)
	return matches, exclusions, nil
}

// Reindex pushes every publicly readable page into the search backend and
// returns the count.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	docs, err := s.store.GetIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pages for reindex: %w", err)
	}
	var records []search.PageRecord
	for _, doc := range docs {
		if !acl.CanRead(doc.ACLRead, nil) {
			continue
		}
		records = append(records, search.PageRecord{
			ID:    search.RecordID(doc.Title),
			Title: doc.Title,
			Body:  StripMetadata(doc.Body),
		})
	}
	if err := s.indexer.IndexPages(records); err != nil {
		return 0, fmt.Errorf("reindex %d pages: %w", len(records), err)
	}
	return len(records), nil
}

// SearchHealthy reports whether the search backend is reachable.
func (s *Service) SearchHealthy() bool {
	return s.scorer.Healthy()
}

// Titles lists all page titles readable by user. Administrators read
// everything, so their listing skips the per-page ACL pass.
func (s *Service) Titles(ctx context.Context, user *acl.User) ([]string, error) {
	if user != nil && user.Admin {
		titles, err := s.store.GetTitles(ctx)
		if err != nil {
			return nil, fmt.Errorf("list titles: %w", err)
		}
		return titles, nil
	}
	docs, err := s.store.GetIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	var titles []string
	for _, doc := range docs {
		if acl.CanRead(doc.ACLRead, user) {
			titles = append(titles, doc.Title)
		}
	}
	return titles, nil
}

// Index lists readable pages grouped by their title grouper key.
func (s *Service) Index(ctx context.Context, user *acl.User) ([]store.Document, error) {
	docs, err := s.store.GetIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	return filterReadable(docs, user), nil
}

// Changes lists the most recently modified readable pages.
func (s *Service) Changes(ctx context.Context, user *acl.User, limit int) ([]store.Document, error) {
	docs, err := s.store.GetChanges(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return filterReadable(docs, user), nil
}

// Posts lists published pages under parent, newest publication first.
func (s *Service) Posts(ctx context.Context, user *acl.User, parent string, limit int) ([]store.Document, error) {
	docs, err := s.store.GetPublishedPosts(ctx, parent, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return filterReadable(docs, user), nil
}

func filterReadable(docs []store.Document, user *acl.User) []store.Document {
	var out []store.Document
	for _, doc := range docs {
		if acl.CanRead(doc.ACLRead, user) {
			out = append(out, doc)
		}
	}
	return out
}

// MarkRecentUser records activity in the advisory recent-users cache.
func (s *Service) MarkRecentUser(ctx context.Context, email string) {
	if s.caches == nil || email == "" {
		return
	}
	if err := s.caches.MarkRecentUser(ctx, email); err != nil {
		log.Printf("recent-user mark failed err=%v", err)
	}
}

// GroupTitles buckets titles by their index grouper key, preserving the
// incoming (alphabetical) order within each bucket.
func GroupTitles(titles []string) []titleGroup {
	var groups []titleGroup
	index := map[string]int{}
	for _, t := range titles {
		key := title.Grouper(t)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, titleGroup{Key: key})
		}
		groups[i].Titles = append(groups[i].Titles, t)
	}
	return groups
}
