package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestCaches(t *testing.T) (*Caches, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return NewWithClient(client), s
}

func TestConfigBodyReadThrough(t *testing.T) {
	caches, _ := setupTestCaches(t)
	ctx := context.Background()

	loads := 0
	load := func(context.Context) (string, error) {
		loads++
		return "[service]\ntitle = \"My Wiki\"\n", nil
	}

	body, err := caches.ConfigBody(ctx, load)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := caches.ConfigBody(ctx, load); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected one load, got %d", loads)
	}
	if cfg := ParseServiceConfig(body); cfg.Service.Title != "My Wiki" {
		t.Fatalf("unexpected parsed title %q", cfg.Service.Title)
	}
}

func TestConfigBodyInvalidate(t *testing.T) {
	caches, _ := setupTestCaches(t)
	ctx := context.Background()

	loads := 0
	load := func(context.Context) (string, error) {
		loads++
		return "", nil
	}
	if _, err := caches.ConfigBody(ctx, load); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := caches.InvalidateConfig(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := caches.ConfigBody(ctx, load); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", loads)
	}
}

func TestConfigBodyLoaderError(t *testing.T) {
	caches, _ := setupTestCaches(t)
	wantErr := errors.New("store down")
	_, err := caches.ConfigBody(context.Background(), func(context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestRecentUsersOrderAndTrim(t *testing.T) {
	caches, _ := setupTestCaches(t)
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		if err := caches.MarkRecentUser(ctx, email); err != nil {
			t.Fatalf("mark %s: %v", email, err)
		}
	}
	recent, err := caches.RecentUsers(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0] != "c@x.com" {
		t.Fatalf("expected most recent first, got %v", recent)
	}
}

func TestParseServiceConfigFallback(t *testing.T) {
	cfg := ParseServiceConfig("not toml at all {{{")
	if cfg.Service.Title != "Leafwiki" {
		t.Fatalf("expected default title, got %q", cfg.Service.Title)
	}
}
