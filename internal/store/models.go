package store

import "time"

// Document is the live, mutable wiki entry. Revision 0 means the page has
// never been written; GetByTitle returns such a placeholder instead of an
// error so callers can still render a soft 404.
type Document struct {
	Title       string
	Revision    int
	Body        string
	ACLRead     []string
	ACLWrite    []string
	Modifier    string
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// Revision is an immutable snapshot of a document at one version number.
type Revision struct {
	Title     string
	Revision  int
	Body      string
	Comment   string
	CreatedAt time.Time
}

// UpdateInput carries one optimistic-concurrency write. ACL and publish
// fields are derived from the body's metadata header by the caller; the
// store only persists them.
type UpdateInput struct {
	Title            string
	Body             string
	ExpectedRevision int
	Comment          string
	Modifier         string
	ACLRead          []string
	ACLWrite         []string
	PublishedAt      *time.Time
}

// User is a signed-in principal.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}
