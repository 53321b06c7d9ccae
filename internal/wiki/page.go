package wiki

import (
	"context"
	"time"

	"leafwiki/api/internal/store"
	"leafwiki/api/internal/title"
)

// revisionLister fetches a page's history for the live view.
type revisionLister interface {
	ListRevisions(ctx context.Context, title string) ([]store.Revision, error)
}

// PageView is the polymorphic read handle over a page: either the live
// document or one frozen historical revision. Both expose the same read
// surface; only the live view supports history listing (and, by extension,
// writes). ACLs always come from the live document — a snapshot does not
// freeze permissions.
type PageView interface {
	Title() string
	Body() string
	Revision() int
	Metadata() Metadata
	Modifier() string
	UpdatedAt() time.Time
	AbsoluteURL() string
	ACLRead() []string
	ACLWrite() []string
	IsCurrent() bool
	History(ctx context.Context) ([]store.Revision, error)
}

// CurrentPage is the live-document view.
type CurrentPage struct {
	doc  store.Document
	meta Metadata
	hist revisionLister
}

func NewCurrentPage(doc store.Document, hist revisionLister) *CurrentPage {
	return &CurrentPage{doc: doc, meta: ParseMetadata(doc.Body), hist: hist}
}

func (p *CurrentPage) Title() string        { return p.doc.Title }
func (p *CurrentPage) Body() string         { return p.doc.Body }
func (p *CurrentPage) Revision() int        { return p.doc.Revision }
func (p *CurrentPage) Metadata() Metadata   { return p.meta }
func (p *CurrentPage) Modifier() string     { return p.doc.Modifier }
func (p *CurrentPage) UpdatedAt() time.Time { return p.doc.UpdatedAt }
func (p *CurrentPage) AbsoluteURL() string  { return "/" + title.ToPath(p.doc.Title) }
func (p *CurrentPage) ACLRead() []string    { return p.doc.ACLRead }
func (p *CurrentPage) ACLWrite() []string   { return p.doc.ACLWrite }
func (p *CurrentPage) IsCurrent() bool      { return true }

func (p *CurrentPage) History(ctx context.Context) ([]store.Revision, error) {
	return p.hist.ListRevisions(ctx, p.doc.Title)
}

// Document returns the underlying store document (used by the write path).
func (p *CurrentPage) Document() store.Document { return p.doc }

// RevisionPage is a frozen historical view. It carries the live document
// alongside the snapshot so permission checks see the current ACL.
type RevisionPage struct {
	rev  store.Revision
	doc  store.Document
	meta Metadata
}

func NewRevisionPage(rev store.Revision, doc store.Document) *RevisionPage {
	return &RevisionPage{rev: rev, doc: doc, meta: ParseMetadata(rev.Body)}
}

func (p *RevisionPage) Title() string        { return p.rev.Title }
func (p *RevisionPage) Body() string         { return p.rev.Body }
func (p *RevisionPage) Revision() int        { return p.rev.Revision }
func (p *RevisionPage) Metadata() Metadata   { return p.meta }
func (p *RevisionPage) Modifier() string     { return "" }
func (p *RevisionPage) UpdatedAt() time.Time { return p.rev.CreatedAt }
func (p *RevisionPage) AbsoluteURL() string  { return "/" + title.ToPath(p.rev.Title) }
func (p *RevisionPage) ACLRead() []string    { return p.doc.ACLRead }
func (p *RevisionPage) ACLWrite() []string   { return p.doc.ACLWrite }
func (p *RevisionPage) IsCurrent() bool      { return false }

// History on a frozen view is a contract violation, not an empty list.
func (p *RevisionPage) History(context.Context) ([]store.Revision, error) {
	return nil, invalidState("history is only available on the current page view")
}
