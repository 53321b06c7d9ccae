// Package gitmirror keeps a best-effort git archive of page bodies. Every
// successful write lands as one commit; failures here never fail the
// request, they only cost the archive a commit.
package gitmirror

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"leafwiki/api/internal/title"
)

type Mirror struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Mirror {
	return &Mirror{dir: dir}
}

// RecordWrite commits one page body to the archive. An unchanged body is a
// no-op, not an error.
func (m *Mirror) RecordWrite(pageTitle, body, comment, author string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.ensureRepo()
	if err != nil {
		return err
	}

	rel := title.ToPath(pageTitle) + ".md"
	abs := filepath.Join(m.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write mirror file: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return fmt.Errorf("git add %s: %w", rel, err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	message := strings.TrimSpace(comment)
	if message == "" {
		message = "Update " + pageTitle
	}
	if author == "" {
		author = "anonymous"
	}
	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: authorEmail(author),
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("git commit %s: %w", rel, err)
	}
	return nil
}

func (m *Mirror) ensureRepo() (*git.Repository, error) {
	repo, err := git.PlainOpen(m.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open mirror repo: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror repo dir: %w", err)
	}
	repo, err = git.PlainInit(m.dir, false)
	if err != nil {
		return nil, fmt.Errorf("init mirror repo: %w", err)
	}
	return repo, nil
}

func authorEmail(author string) string {
	if strings.Contains(author, "@") {
		return author
	}
	cleaned := strings.ToLower(strings.ReplaceAll(author, " ", "."))
	return cleaned + "@local.leafwiki.dev"
}
