// Package build creates sources, builds and their jobs, and picks green
// ancestors for patch builds.
package build

import (
	"fmt"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SourceOpts describes the source a build runs against.
type SourceOpts struct {
	Repository *models.Repository
	SHA        string        // may be empty
	Patch      *models.Patch // nil for an unpatched source
	Data       map[string]interface{}
}

// ShareKey is the unique key unpatched sources of a repository and sha share.
func ShareKey(repositoryID, sha string) string {
	return repositoryID + ":" + sha
}

// EnsurePatch stores patch unless a row with its ID already exists. Callers
// assign patch.ID up front so sibling builds of one submission reuse it.
func EnsurePatch(tx *gorm.DB, patch *models.Patch) error {
	if patch.ID == "" {
		patch.ID = models.NewID()
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(patch).Error; err != nil {
		return fmt.Errorf("build: save patch %s: %w", patch.ID, err)
	}
	return nil
}

// MakeSource returns the source for opts, creating it if needed.
//
// A patched source is keyed by its patch and is never shared with another
// patch or with unpatched builds. An unpatched source is keyed by
// (repository, sha) and shared by every build of that revision. Racing
// creators converge on one row through the unique key.
func MakeSource(tx *gorm.DB, opts SourceOpts) (*models.Source, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("build: source repository is required")
	}

	src := models.Source{
		RepositoryID: opts.Repository.ID,
		Data:         opts.Data,
	}
	if src.Data == nil {
		src.Data = map[string]interface{}{}
	}
	if opts.SHA != "" {
		sha := opts.SHA
		src.RevisionSHA = &sha
	}

	var where *gorm.DB
	if opts.Patch != nil {
		if opts.Patch.ID == "" {
			return nil, fmt.Errorf("build: patch must be saved before its source")
		}
		patchID := opts.Patch.ID
		src.PatchID = &patchID
		where = tx.Where("patch_id = ?", patchID)
	} else {
		key := ShareKey(opts.Repository.ID, opts.SHA)
		src.ShareKey = &key
		where = tx.Where("share_key = ?", key)
	}

	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit(clause.Associations).Create(&src).Error; err != nil {
		return nil, fmt.Errorf("build: create source: %w", err)
	}

	// A locking read sees a row another transaction committed after this one
	// started; sqlite ignores the clause and serialises writers instead.
	var stored models.Source
	if err := where.Clauses(clause.Locking{Strength: "SHARE"}).Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("build: reload source: %w", err)
	}
	return &stored, nil
}
