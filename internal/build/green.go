package build

import (
	"errors"
	"log/slog"

	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// FindBetterSHA looks for a known-green revision to apply a patch against
// instead of sha. It never fails; on any doubt it returns sha.
//
//   - If the latest build of sha passed, sha is kept.
//   - Only builds newer than that build are considered.
//   - The newest finished, passed, unpatched build of the project wins.
func FindBetterSHA(db *gorm.DB, project *models.Project, sha string, log *slog.Logger) string {
	log = logging.OrDefault(log)

	var prior models.Build
	err := db.Joins("JOIN sources ON sources.id = builds.source_id").
		Where("sources.repository_id = ? AND sources.revision_sha = ?", project.RepositoryID, sha).
		Order("builds.created_at DESC").
		Take(&prior).Error
	hasPrior := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("green ancestor lookup failed", "project", project.Slug, "sha", sha, "error", err)
		return sha
	}
	if hasPrior && prior.Status == models.StatusFinished && prior.Result == models.ResultPassed {
		return sha
	}

	q := db.Model(&models.Build{}).
		Joins("JOIN sources ON sources.id = builds.source_id").
		Where("builds.status = ? AND builds.result = ?", models.StatusFinished, models.ResultPassed).
		Where("builds.project_id = ?", project.ID).
		Where("sources.patch_id IS NULL AND sources.revision_sha IS NOT NULL").
		Where("sources.repository_id = ?", project.RepositoryID)
	if hasPrior {
		q = q.Where("builds.created_at > ?", prior.CreatedAt)
	}

	var better []string
	if err := q.Order("builds.created_at DESC").Limit(1).Pluck("sources.revision_sha", &better).Error; err != nil {
		log.Warn("green ancestor lookup failed", "project", project.Slug, "sha", sha, "error", err)
		return sha
	}
	if len(better) == 0 || better[0] == "" {
		return sha
	}
	return better[0]
}
