package wiki

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"leafwiki/api/internal/acl"
	"leafwiki/api/internal/cache"
	"leafwiki/api/internal/store"
)

func newTestService(st dataStore, indexer *fakeIndexer) *Service {
	return NewService(testConfig(), st, &fakeScorer{}, indexer, nil, nil)
}

func TestResolveLatestSelectors(t *testing.T) {
	st := &fakeStore{
		getByTitle: func(ctx context.Context, title string) (store.Document, error) {
			return store.Document{Title: title, Revision: 4, Body: "current"}, nil
		},
		getRevision: func(ctx context.Context, title string, revision int) (store.Revision, error) {
			t.Fatal("current-revision selectors must not hit the revisions table")
			return store.Revision{}, nil
		},
	}
	service := newTestService(st, &fakeIndexer{})

	for _, selector := range []string{"", "latest", "4"} {
		page, err := service.Resolve(context.Background(), "Home", selector)
		if err != nil {
			t.Fatalf("selector %q: %v", selector, err)
		}
		if !page.IsCurrent() {
			t.Fatalf("selector %q must resolve to the live view", selector)
		}
	}
}

func TestResolveFrozenRevision(t *testing.T) {
	st := &fakeStore{
		getByTitle: func(ctx context.Context, title string) (store.Document, error) {
			return store.Document{Title: title, Revision: 4, Body: "current"}, nil
		},
		getRevision: func(ctx context.Context, title string, revision int) (store.Revision, error) {
			if revision == 2 {
				return store.Revision{Title: title, Revision: 2, Body: "older"}, nil
			}
			return store.Revision{}, sql.ErrNoRows
		},
	}
	service := newTestService(st, &fakeIndexer{})

	page, err := service.Resolve(context.Background(), "Home", "2")
	if err != nil {
		t.Fatal(err)
	}
	if page.IsCurrent() || page.Body() != "older" {
		t.Fatalf("expected frozen revision 2, got current=%v body=%q", page.IsCurrent(), page.Body())
	}

	_, err = service.Resolve(context.Background(), "Home", "9")
	var derr *DomainError
	if !errors.As(err, &derr) || derr.Code != "NOT_FOUND" {
		t.Fatalf("missing revision: expected NOT_FOUND, got %v", err)
	}
}

func TestResolveRevisionZeroOfPlaceholder(t *testing.T) {
	st := &fakeStore{
		getRevision: func(ctx context.Context, title string, revision int) (store.Revision, error) {
			t.Fatal("revision 0 of an unwritten page is the live view, not a lookup")
			return store.Revision{}, nil
		},
	}
	service := newTestService(st, &fakeIndexer{})

	page, err := service.Resolve(context.Background(), "Ghost", "0")
	if err != nil {
		t.Fatal(err)
	}
	if !page.IsCurrent() || page.Revision() != 0 {
		t.Fatalf("expected the revision-0 live view, got current=%v rev=%d", page.IsCurrent(), page.Revision())
	}
}

func TestTitlesAdminSkipsACLPass(t *testing.T) {
	st := &fakeStore{
		getTitles: func(ctx context.Context) ([]string, error) {
			return []string{"Home", "Private"}, nil
		},
		getIndex: func(ctx context.Context) ([]store.Document, error) {
			t.Fatal("admin listing must use the title-only query")
			return nil, nil
		},
	}
	service := newTestService(st, &fakeIndexer{})

	titles, err := service.Titles(context.Background(), &acl.User{Email: "root@example.com", Admin: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 2 {
		t.Fatalf("admin must see every title, got %v", titles)
	}
}

func TestUpdateRestrictedPageLeavesSearchIndex(t *testing.T) {
	st := &fakeStore{
		updateContent: func(ctx context.Context, input store.UpdateInput) (store.Document, error) {
			return store.Document{Title: input.Title, Revision: 2, Body: input.Body, ACLRead: input.ACLRead}, nil
		},
	}
	indexer := &fakeIndexer{}
	service := newTestService(st, indexer)

	body := ".read alice@example.com\n\nnow private"
	if _, err := service.Update(context.Background(), store.Document{Title: "Secrets", Revision: 1}, body, 1, "", &acl.User{Email: "alice@example.com"}); err != nil {
		t.Fatal(err)
	}
	if len(indexer.indexed) != 0 {
		t.Fatalf("restricted page must not be indexed: %+v", indexer.indexed)
	}
	if len(indexer.deleted) != 1 || indexer.deleted[0] != "Secrets" {
		t.Fatalf("restricted page must be withdrawn from the index, got %v", indexer.deleted)
	}
}

func TestReindexSkipsRestrictedPages(t *testing.T) {
	st := &fakeStore{
		getIndex: func(ctx context.Context) ([]store.Document, error) {
			return []store.Document{
				{Title: "Home", Revision: 1, Body: "hi"},
				{Title: "Private", Revision: 1, Body: "x", ACLRead: []string{"alice@example.com"}},
			}, nil
		},
	}
	indexer := &fakeIndexer{}
	service := newTestService(st, indexer)

	count, err := service.Reindex(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || len(indexer.indexed) != 1 || indexer.indexed[0].Title != "Home" {
		t.Fatalf("only publicly readable pages belong in the index, got count=%d %+v", count, indexer.indexed)
	}
}

func TestUpdateConflictMapsToDomainError(t *testing.T) {
	st := &fakeStore{
		updateContent: func(ctx context.Context, input store.UpdateInput) (store.Document, error) {
			return store.Document{}, &store.ConflictError{Expected: 1, Current: 3}
		},
	}
	service := newTestService(st, &fakeIndexer{})

	_, err := service.Update(context.Background(), store.Document{Title: "Home", Revision: 3}, "body", 1, "", &acl.User{Email: "alice@example.com"})
	var derr *DomainError
	if !errors.As(err, &derr) || derr.Code != "CONFLICT" || derr.Status != 406 {
		t.Fatalf("expected CONFLICT/406, got %v", err)
	}
}

func TestUpdatePreservesPublicationTime(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var captured store.UpdateInput
	st := &fakeStore{
		updateContent: func(ctx context.Context, input store.UpdateInput) (store.Document, error) {
			captured = input
			return store.Document{Title: input.Title, Revision: 2, Body: input.Body}, nil
		},
	}
	service := newTestService(st, &fakeIndexer{})

	current := store.Document{Title: "Post", Revision: 1, PublishedAt: &first}
	if _, err := service.Update(context.Background(), current, ".published\n\nedited", 1, "", nil); err != nil {
		t.Fatal(err)
	}
	if captured.PublishedAt == nil || !captured.PublishedAt.Equal(first) {
		t.Fatalf("re-saving a published page must keep the original publication time, got %v", captured.PublishedAt)
	}

	if _, err := service.Update(context.Background(), current, "unpublished now", 1, "", nil); err != nil {
		t.Fatal(err)
	}
	if captured.PublishedAt != nil {
		t.Fatalf("dropping the published line must unpublish, got %v", captured.PublishedAt)
	}
}

func TestUpdateConfigPageInvalidatesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	caches := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	configBody := `[service]` + "\n" + `title = "Team Wiki"` + "\n"
	st := &fakeStore{
		getByTitle: func(ctx context.Context, title string) (store.Document, error) {
			return store.Document{Title: title, Revision: 1, Body: configBody}, nil
		},
		updateContent: func(ctx context.Context, input store.UpdateInput) (store.Document, error) {
			return store.Document{Title: input.Title, Revision: 2, Body: input.Body}, nil
		},
	}
	service := NewService(testConfig(), st, &fakeScorer{}, &fakeIndexer{}, caches, nil)

	if got := service.ServiceConfig(context.Background()).Service.Title; got != "Team Wiki" {
		t.Fatalf("expected configured title, got %q", got)
	}

	configBody = `[service]` + "\n" + `title = "Renamed Wiki"` + "\n"
	current := store.Document{Title: ".config", Revision: 1}
	if _, err := service.Update(context.Background(), current, configBody, 1, "", &acl.User{Email: "root@example.com", Admin: true}); err != nil {
		t.Fatal(err)
	}

	if got := service.ServiceConfig(context.Background()).Service.Title; got != "Renamed Wiki" {
		t.Fatalf("config cache must be invalidated by a config page write, got %q", got)
	}
}

func TestGroupTitles(t *testing.T) {
	groups := GroupTitles([]string{"Apple", "Blog/First", "Blog/Second", "42 Facts", "banana"})

	want := []string{"A", "Blog", "0-9", "B"}
	var keys []string
	for _, g := range groups {
		keys = append(keys, g.Key)
	}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("group keys: got %v want %v", keys, want)
	}
	for _, g := range groups {
		if g.Key == "Blog" && len(g.Titles) != 2 {
			t.Fatalf("Blog group should hold both children: %v", g.Titles)
		}
	}
}
