package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConflictError is returned by UpdateContent when the submitted revision no
// longer matches the page's current revision.
type ConflictError struct {
	Expected int
	Current  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision mismatch: submitted %d, current %d", e.Expected, e.Current)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const pageColumns = `title, revision, body, acl_read, acl_write, modifier, updated_at, published_at`

func scanPage(row interface{ Scan(...any) error }) (Document, error) {
	var (
		doc       Document
		aclRead   string
		aclWrite  string
		modifier  sql.NullString
		published sql.NullTime
	)
	err := row.Scan(&doc.Title, &doc.Revision, &doc.Body, &aclRead, &aclWrite, &modifier, &doc.UpdatedAt, &published)
	if err != nil {
		return Document{}, err
	}
	doc.ACLRead = splitList(aclRead)
	doc.ACLWrite = splitList(aclWrite)
	doc.Modifier = modifier.String
	if published.Valid {
		t := published.Time
		doc.PublishedAt = &t
	}
	return doc, nil
}

// GetByTitle returns the live page, or a revision-0 placeholder when no page
// with that title has ever been written. It never reports not-found.
func (s *PostgresStore) GetByTitle(ctx context.Context, title string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE title=$1`, title)
	doc, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{Title: title, Revision: 0}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("get page %q: %w", title, err)
	}
	return doc, nil
}

// GetRevision returns one immutable snapshot; sql.ErrNoRows propagates when
// the revision does not exist.
func (s *PostgresStore) GetRevision(ctx context.Context, title string, revision int) (Revision, error) {
	var rev Revision
	err := s.db.QueryRowContext(ctx, `
		SELECT title, revision, body, comment, created_at
		FROM revisions WHERE title=$1 AND revision=$2
	`, title, revision).Scan(&rev.Title, &rev.Revision, &rev.Body, &rev.Comment, &rev.CreatedAt)
	if err != nil {
		return Revision{}, err
	}
	return rev, nil
}

// ListRevisions returns a page's full history, newest first.
func (s *PostgresStore) ListRevisions(ctx context.Context, title string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, revision, body, comment, created_at
		FROM revisions WHERE title=$1
		ORDER BY created_at DESC, revision DESC
	`, title)
	if err != nil {
		return nil, fmt.Errorf("list revisions for %q: %w", title, err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.Title, &rev.Revision, &rev.Body, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}

// UpdateContent applies one optimistic-concurrency write. The submitted
// revision must equal the current one (0 for a page that does not exist yet);
// on success the page advances by exactly one revision and a matching
// snapshot row is appended, all inside a single transaction.
func (s *PostgresStore) UpdateContent(ctx context.Context, input UpdateInput) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	current := 0
	err = tx.QueryRowContext(ctx, `SELECT revision FROM pages WHERE title=$1 FOR UPDATE`, input.Title).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("lock page %q: %w", input.Title, err)
	}
	exists := err == nil

	if input.ExpectedRevision != current {
		return Document{}, &ConflictError{Expected: input.ExpectedRevision, Current: current}
	}

	next := current + 1
	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE pages
			SET revision=$2, body=$3, acl_read=$4, acl_write=$5, modifier=$6, updated_at=$7, published_at=$8
			WHERE title=$1
		`, input.Title, next, input.Body, joinList(input.ACLRead), joinList(input.ACLWrite),
			nullable(input.Modifier), now, nullableTime(input.PublishedAt))
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pages (title, revision, body, acl_read, acl_write, modifier, updated_at, published_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, input.Title, next, input.Body, joinList(input.ACLRead), joinList(input.ACLWrite),
			nullable(input.Modifier), now, nullableTime(input.PublishedAt))
	}
	if err != nil {
		return Document{}, fmt.Errorf("write page %q: %w", input.Title, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (title, revision, body, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, input.Title, next, input.Body, input.Comment, now); err != nil {
		return Document{}, fmt.Errorf("append revision %d of %q: %w", next, input.Title, err)
	}

	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit update of %q: %w", input.Title, err)
	}

	return Document{
		Title:       input.Title,
		Revision:    next,
		Body:        input.Body,
		ACLRead:     input.ACLRead,
		ACLWrite:    input.ACLWrite,
		Modifier:    input.Modifier,
		UpdatedAt:   now,
		PublishedAt: input.PublishedAt,
	}, nil
}

// GetPublishedPosts lists published pages, newest first. A non-empty parent
// scopes the listing to sub-pages of that title.
func (s *PostgresStore) GetPublishedPosts(ctx context.Context, parent string, limit int) ([]Document, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE published_at IS NOT NULL`
	args := []any{}
	if parent != "" {
		query += ` AND title LIKE $1`
		args = append(args, parent+"/%")
	}
	query += fmt.Sprintf(` ORDER BY published_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)
	return s.queryPages(ctx, query, args...)
}

// GetIndex lists every page ordered by title.
func (s *PostgresStore) GetIndex(ctx context.Context) ([]Document, error) {
	return s.queryPages(ctx, `SELECT `+pageColumns+` FROM pages ORDER BY title ASC`)
}

// GetChanges lists recently updated pages, newest first.
func (s *PostgresStore) GetChanges(ctx context.Context, limit int) ([]Document, error) {
	return s.queryPages(ctx, `SELECT `+pageColumns+` FROM pages ORDER BY updated_at DESC LIMIT $1`, limit)
}

// GetTitles lists every page title.
func (s *PostgresStore) GetTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM pages ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

func (s *PostgresStore) queryPages(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetUserByEmail looks up a principal for sign-in; sql.ErrNoRows propagates.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_admin, created_at
		FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// InsertUser registers a new principal.
func (s *PostgresStore) InsertUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.IsAdmin).Scan(&user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user %q: %w", user.Email, err)
	}
	return user, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func joinList(values []string) string {
	return strings.Join(values, ",")
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}
