// Package revision turns commit-like references into stored Revision rows.
package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/vcs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SHALength is the length of a full hex commit id.
const SHALength = 40

// ErrNotFound is returned when a reference cannot be mapped to a commit.
var ErrNotFound = errors.New("revision: not found")

// Resolver maps references to revisions, consulting the store before the
// repository's version-control backend.
type Resolver struct {
	DB       *gorm.DB
	Backends vcs.Provider
	Timeout  time.Duration // bound on a single backend lookup; zero means none
	Log      *slog.Logger
}

// Resolve returns the revision ref names in repo. Every failure to map ref,
// whatever the backend's reason, is reported as ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, repo *models.Repository, ref string) (*models.Revision, error) {
	log := logging.OrDefault(r.Log)

	if IsFullSHA(ref) {
		var rev models.Revision
		err := r.DB.WithContext(ctx).
			Where("repository_id = ? AND sha = ?", repo.ID, ref).
			Take(&rev).Error
		if err == nil {
			return &rev, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("revision: lookup %s: %w", ref, err)
		}
	}

	if r.Backends == nil {
		return nil, notFound(repo, ref)
	}
	backend, err := r.Backends.ForRepository(repo)
	if err != nil {
		log.Warn("no version-control backend", "repository", repo.URL, "backend", repo.Backend, "error", err)
		return nil, fmt.Errorf("%w: %v", notFound(repo, ref), err)
	}

	lookupCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	commit, err := backend.LatestCommit(lookupCtx, ref)
	if err != nil {
		log.Warn("revision lookup failed", "repository", repo.URL, "ref", ref, "error", err)
		return nil, notFound(repo, ref)
	}

	rev, err := Save(r.DB.WithContext(ctx), repo, commit)
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// Save stores commit as a revision of repo. Concurrent saves of the same sha
// converge on one row: the insert ignores the key conflict and the stored row
// is read back.
func Save(db *gorm.DB, repo *models.Repository, commit *vcs.Commit) (*models.Revision, error) {
	rev := commit.Revision(repo.ID)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rev).Error; err != nil {
		return nil, fmt.Errorf("revision: save %s: %w", commit.SHA, err)
	}

	var stored models.Revision
	if err := db.Where("repository_id = ? AND sha = ?", repo.ID, commit.SHA).Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("revision: reload %s: %w", commit.SHA, err)
	}
	return &stored, nil
}

// IsFullSHA reports whether ref is a complete hex commit id.
func IsFullSHA(ref string) bool {
	if len(ref) != SHALength {
		return false
	}
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

func notFound(repo *models.Repository, ref string) error {
	return fmt.Errorf("%w: unable to find commit %s in %s", ErrNotFound, ref, repo.URL)
}
