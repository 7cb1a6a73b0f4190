package revision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/buildyard/internal/db/dbtest"
	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/vcs"
)

var (
	shaA = strings.Repeat("a", 40)
	shaB = strings.Repeat("b", 40)
)

// fakeBackend answers every lookup with a fixed commit or error and counts calls.
type fakeBackend struct {
	calls  atomic.Int32
	commit *vcs.Commit
	err    error
	block  bool
}

func (f *fakeBackend) LatestCommit(ctx context.Context, ref string) (*vcs.Commit, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	c := *f.commit
	return &c, nil
}

type fakeProvider struct {
	backend vcs.Backend
	err     error
}

func (p fakeProvider) ForRepository(*models.Repository) (vcs.Backend, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.backend == nil {
		return nil, vcs.ErrNoBackend
	}
	return p.backend, nil
}

func newResolver(t *testing.T, backend *fakeBackend) (*Resolver, *models.Repository) {
	t.Helper()
	gdb := dbtest.Open(t)
	repo := dbtest.Repository(t, gdb, "https://example.com/app.git")
	r := &Resolver{DB: gdb, Log: logging.Discard()}
	if backend != nil {
		r.Backends = fakeProvider{backend: backend}
	}
	return r, repo
}

func TestResolve_KnownSHASkipsBackend(t *testing.T) {
	backend := &fakeBackend{err: errors.New("must not be called")}
	r, repo := newResolver(t, backend)
	seed := models.Revision{RepositoryID: repo.ID, SHA: shaA, Subject: "seeded"}
	if err := r.DB.Create(&seed).Error; err != nil {
		t.Fatalf("seed revision: %v", err)
	}

	rev, err := r.Resolve(context.Background(), repo, shaA)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rev.Subject != "seeded" {
		t.Errorf("Subject = %q, want %q", rev.Subject, "seeded")
	}
	if n := backend.calls.Load(); n != 0 {
		t.Errorf("backend called %d times, want 0", n)
	}
}

func TestResolve_BranchUsesBackendAndPersists(t *testing.T) {
	backend := &fakeBackend{commit: &vcs.Commit{SHA: shaB, Author: "Ada <ada@example.com>", Subject: "Add b", Message: "Add b\n\nbody"}}
	r, repo := newResolver(t, backend)

	rev, err := r.Resolve(context.Background(), repo, "main")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rev.SHA != shaB {
		t.Errorf("SHA = %q, want %q", rev.SHA, shaB)
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}

	var stored models.Revision
	if err := r.DB.Where("repository_id = ? AND sha = ?", repo.ID, shaB).Take(&stored).Error; err != nil {
		t.Fatalf("revision not persisted: %v", err)
	}
	if stored.Author != "Ada <ada@example.com>" {
		t.Errorf("stored Author = %q", stored.Author)
	}

	// The sha is now known, so resolving it directly stays local.
	if _, err := r.Resolve(context.Background(), repo, shaB); err != nil {
		t.Fatalf("Resolve(sha): %v", err)
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("backend called %d times after sha lookup, want 1", n)
	}
}

func TestResolve_UnknownSHAFallsBackToBackend(t *testing.T) {
	backend := &fakeBackend{commit: &vcs.Commit{SHA: shaA}}
	r, repo := newResolver(t, backend)

	if _, err := r.Resolve(context.Background(), repo, shaA); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}
}

func TestResolve_FortyCharBranchSkipsStore(t *testing.T) {
	branch := "release/2024-q3-hotfix-for-payments-flow"
	if len(branch) != 40 {
		t.Fatalf("test branch is %d chars, want 40", len(branch))
	}
	backend := &fakeBackend{commit: &vcs.Commit{SHA: shaB}}
	r, repo := newResolver(t, backend)
	// A row keyed by the branch name must not be mistaken for a commit.
	seed := models.Revision{RepositoryID: repo.ID, SHA: branch, Subject: "stale"}
	if err := r.DB.Create(&seed).Error; err != nil {
		t.Fatalf("seed revision: %v", err)
	}

	rev, err := r.Resolve(context.Background(), repo, branch)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rev.SHA != shaB {
		t.Errorf("SHA = %q, want %q", rev.SHA, shaB)
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}
}

func TestIsFullSHA(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{shaA, true},
		{strings.Repeat("F", 40), true},
		{"0123456789abcdef0123456789abcdef01234567", true},
		{strings.Repeat("a", 39), false},
		{strings.Repeat("a", 41), false},
		{strings.Repeat("g", 40), false},
		{"release/2024-q3-hotfix-for-payments-flow", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsFullSHA(tt.ref); got != tt.want {
			t.Errorf("IsFullSHA(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestResolve_BackendErrorIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unknown ref", vcs.ErrUnknownRef},
		{"io failure", errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, repo := newResolver(t, &fakeBackend{err: tt.err})
			_, err := r.Resolve(context.Background(), repo, "feature/x")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("error = %v, want ErrNotFound", err)
			}
			if !strings.Contains(err.Error(), "feature/x") {
				t.Errorf("error = %q, want to carry the reference", err.Error())
			}
		})
	}
}

func TestResolve_NoBackend(t *testing.T) {
	r, repo := newResolver(t, nil)
	if _, err := r.Resolve(context.Background(), repo, "main"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	r.Backends = fakeProvider{}
	if _, err := r.Resolve(context.Background(), repo, "main"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestResolve_FactoryErrorIsReported(t *testing.T) {
	r, repo := newResolver(t, nil)
	r.Backends = fakeProvider{err: errors.New("github: url is not owner/name")}

	_, err := r.Resolve(context.Background(), repo, "main")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "not owner/name") {
		t.Errorf("error = %q, want to carry the factory failure", err.Error())
	}
}

func TestResolve_TimeoutBoundsLookup(t *testing.T) {
	backend := &fakeBackend{block: true}
	r, repo := newResolver(t, backend)
	r.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := r.Resolve(context.Background(), repo, "main")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Resolve took %v, want bounded by timeout", elapsed)
	}
}

func TestResolve_ConcurrentSameSHA(t *testing.T) {
	backend := &fakeBackend{commit: &vcs.Commit{SHA: shaB, Subject: "race"}}
	r, repo := newResolver(t, backend)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rev, err := r.Resolve(context.Background(), repo, "main")
			if err == nil && rev.SHA != shaB {
				err = errors.New("wrong sha " + rev.SHA)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Resolve: %v", err)
		}
	}

	var count int64
	r.DB.Model(&models.Revision{}).Where("repository_id = ? AND sha = ?", repo.ID, shaB).Count(&count)
	if count != 1 {
		t.Errorf("revision rows = %d, want 1", count)
	}
}

func TestSave_Idempotent(t *testing.T) {
	r, repo := newResolver(t, nil)
	commit := &vcs.Commit{SHA: shaA, Subject: "first"}

	first, err := Save(r.DB, repo, commit)
	if err != nil {
		t.Fatalf("first Save: %v", err)
	}
	commit.Subject = "second"
	second, err := Save(r.DB, repo, commit)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if second.Subject != first.Subject {
		t.Errorf("Subject changed on re-save: %q -> %q", first.Subject, second.Subject)
	}
}
