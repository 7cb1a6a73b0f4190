// Package gitrepo resolves references with go-git, either in a local
// repository or in a bare mirror cloned into a cache directory.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/vcs"
)

// mirrorRefSpecs keeps a bare mirror's branches and tags in step with origin.
var mirrorRefSpecs = []gitconfig.RefSpec{
	"+refs/heads/*:refs/heads/*",
	"+refs/tags/*:refs/tags/*",
}

// Options configures the git backend factory.
type Options struct {
	CacheDir string // where remote repositories are mirrored
	Fetch    bool   // fetch from origin before every lookup
}

// Backend resolves references in one git repository.
type Backend struct {
	url   string
	dir   string
	fetch bool

	mu   sync.Mutex
	repo *git.Repository
}

// New returns a backend for url. A url that is an existing local directory is
// opened in place; anything else is mirrored into cacheDir on first use.
func New(url, cacheDir string, fetch bool) *Backend {
	dir := url
	if info, err := os.Stat(url); err != nil || !info.IsDir() {
		dir = filepath.Join(cacheDir, mirrorName(url))
	}
	return &Backend{url: url, dir: dir, fetch: fetch}
}

// Factory returns a vcs.Factory producing git backends.
func Factory(opts Options) vcs.Factory {
	return func(repo *models.Repository) (vcs.Backend, error) {
		if repo.URL == "" {
			return nil, fmt.Errorf("gitrepo: repository %s has no url", repo.ID)
		}
		return New(repo.URL, opts.CacheDir, opts.Fetch), nil
	}
}

// LatestCommit implements vcs.Backend.
func (b *Backend) LatestCommit(ctx context.Context, ref string) (*vcs.Commit, error) {
	if ref == "" {
		return nil, fmt.Errorf("gitrepo: %w: empty reference", vcs.ErrUnknownRef)
	}
	repo, err := b.open(ctx)
	if err != nil {
		return nil, err
	}
	if b.fetch && b.mirrored() {
		if err := b.update(ctx, repo); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gitrepo: resolve %s: %w", ref, err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("gitrepo: %w: %s: %v", vcs.ErrUnknownRef, ref, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: read commit %s: %w", hash, err)
	}

	return &vcs.Commit{
		SHA:         commit.Hash.String(),
		Author:      vcs.FormatAuthor(commit.Author.Name, commit.Author.Email),
		Subject:     vcs.SplitMessage(commit.Message),
		Message:     strings.TrimRight(commit.Message, "\n"),
		CommittedAt: commit.Committer.When,
	}, nil
}

// dirLocks serializes clones and fetches of a mirror directory across every
// backend in the process.
var dirLocks sync.Map // dir -> *sync.Mutex

func lockDir(dir string) func() {
	v, _ := dirLocks.LoadOrStore(dir, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (b *Backend) mirrored() bool { return b.dir != b.url }

// open returns the cached repository handle, cloning a bare mirror if the
// directory does not hold one yet.
func (b *Backend) open(ctx context.Context) (*git.Repository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.repo != nil {
		return b.repo, nil
	}
	if !b.mirrored() {
		repo, err := git.PlainOpenWithOptions(b.dir, &git.PlainOpenOptions{DetectDotGit: true})
		if err != nil {
			return nil, fmt.Errorf("gitrepo: open %s: %w", b.url, err)
		}
		b.repo = repo
		return repo, nil
	}

	unlock := lockDir(b.dir)
	defer unlock()

	repo, err := git.PlainOpen(b.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err = b.clone(ctx); err == nil {
			repo, err = git.PlainOpen(b.dir)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("gitrepo: open %s: %w", b.url, err)
	}
	b.repo = repo
	return repo, nil
}

// clone mirrors the remote into a scratch directory beside b.dir and renames
// it into place, so a cancelled or failed clone leaves nothing behind.
// Callers hold the directory lock.
func (b *Backend) clone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	parent := filepath.Dir(b.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("gitrepo: create cache dir: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, ".clone-*")
	if err != nil {
		return fmt.Errorf("gitrepo: create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	scratch := filepath.Join(tmp, filepath.Base(b.dir))
	_, err = git.PlainCloneContext(ctx, scratch, true, &git.CloneOptions{URL: b.url, Mirror: true})
	if err != nil && !errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return fmt.Errorf("clone: %w", err)
	}
	if err := os.Rename(scratch, b.dir); err != nil {
		// Another process finished its clone first; use that one.
		if _, statErr := os.Stat(b.dir); statErr == nil {
			return nil
		}
		return fmt.Errorf("install mirror: %w", err)
	}
	return nil
}

func (b *Backend) update(ctx context.Context, repo *git.Repository) error {
	unlock := lockDir(b.dir)
	defer unlock()

	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   mirrorRefSpecs,
		Tags:       git.AllTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("gitrepo: fetch %s: %w", b.url, err)
	}
	return nil
}

// mirrorName turns a remote url into a filesystem-safe directory name.
func mirrorName(url string) string {
	name := strings.TrimSuffix(url, ".git")
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	replacer := strings.NewReplacer("/", "_", ":", "_", "@", "_", "\\", "_")
	return replacer.Replace(name) + ".git"
}
