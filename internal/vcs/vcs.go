// Package vcs defines the version-control capability used to resolve
// references that are not yet known to the store.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/buildyard/internal/models"
)

var (
	// ErrUnknownRef is returned by backends when a reference does not name a commit.
	ErrUnknownRef = errors.New("vcs: unknown reference")
	// ErrNoBackend is returned for a repository whose kind has no registered factory.
	ErrNoBackend = errors.New("vcs: no backend")
)

// Commit is a commit as reported by a backend.
type Commit struct {
	SHA         string
	Author      string // "Name <email>"
	Subject     string
	Message     string
	CommittedAt time.Time
}

// Revision converts the commit into an unsaved Revision row for repositoryID.
func (c *Commit) Revision(repositoryID string) models.Revision {
	return models.Revision{
		RepositoryID: repositoryID,
		SHA:          c.SHA,
		Author:       truncate(c.Author, 255),
		Subject:      truncate(c.Subject, 255),
		Message:      c.Message,
		CommittedAt:  c.CommittedAt,
	}
}

// Backend looks up commits in one repository.
type Backend interface {
	// LatestCommit returns the most recent commit reachable from ref, where
	// ref is a branch, tag or commit id.
	LatestCommit(ctx context.Context, ref string) (*Commit, error)
}

// Provider hands out the backend bound to a repository.
type Provider interface {
	ForRepository(repo *models.Repository) (Backend, error)
}

// Factory builds a backend for a repository.
type Factory func(repo *models.Repository) (Backend, error)

// Registry is a Provider that picks a Factory by the repository's Backend
// kind. Backends are built once per repository and reused, so state they
// keep (open handles, clone locks) is shared by concurrent lookups.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	backends  map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		backends:  make(map[string]Backend),
	}
}

// Register binds a backend kind (models.BackendGit, models.BackendGitHub) to a factory.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// ForRepository implements Provider. Factory failures are returned as is; an
// unregistered kind is ErrNoBackend. Failed builds are not cached.
func (r *Registry) ForRepository(repo *models.Repository) (Backend, error) {
	key := repo.ID + "|" + repo.Backend + "|" + repo.URL

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.backends[key]; ok {
		return b, nil
	}
	f, ok := r.factories[repo.Backend]
	if !ok {
		return nil, fmt.Errorf("%w for kind %q", ErrNoBackend, repo.Backend)
	}
	b, err := f(repo)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w for kind %q", ErrNoBackend, repo.Backend)
	}
	r.backends[key] = b
	return b, nil
}

// SplitMessage returns the first line of a commit message.
func SplitMessage(message string) string {
	subject, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return strings.TrimSpace(subject)
}

// FormatAuthor renders a name and email the way git does.
func FormatAuthor(name, email string) string {
	if email == "" {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
