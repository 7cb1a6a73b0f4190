package server

import (
	"time"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// BuildView is the JSON shape of a build.
type BuildView struct {
	ID           string     `json:"id"`
	CollectionID string     `json:"collection_id"`
	Project      string     `json:"project"`
	Status       string     `json:"status"`
	Result       string     `json:"result"`
	Label        string     `json:"label"`
	Target       string     `json:"target"`
	Message      string     `json:"message"`
	Author       string     `json:"author"`
	Cause        string     `json:"cause,omitempty"`
	Tags         []string   `json:"tags"`
	Source       SourceView `json:"source"`
	Jobs         int        `json:"jobs"`
	DispatchedAt *time.Time `json:"dispatched_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SourceView is the JSON shape of a build's source.
type SourceView struct {
	ID          string  `json:"id"`
	RevisionSHA *string `json:"revision_sha"`
	PatchID     *string `json:"patch_id"`
}

// RecentBuilds returns up to limit builds, newest first.
func RecentBuilds(db *gorm.DB, limit int) ([]models.Build, error) {
	var builds []models.Build
	err := withAssociations(db).
		Order("created_at DESC, id ASC").
		Limit(limit).
		Find(&builds).Error
	return builds, err
}

// CollectionBuilds returns every build created by one submission.
func CollectionBuilds(db *gorm.DB, collectionID string) ([]models.Build, error) {
	var builds []models.Build
	err := withAssociations(db).
		Where("collection_id = ?", collectionID).
		Order("created_at ASC, id ASC").
		Find(&builds).Error
	return builds, err
}

func withAssociations(db *gorm.DB) *gorm.DB {
	return db.Preload("Project").Preload("Source").Preload("Jobs")
}

func buildViews(builds []models.Build) []BuildView {
	views := make([]BuildView, len(builds))
	for i, b := range builds {
		tags := []string(b.Tags)
		if tags == nil {
			tags = []string{}
		}
		views[i] = BuildView{
			ID:           b.ID,
			CollectionID: b.CollectionID,
			Project:      b.Project.Slug,
			Status:       b.Status,
			Result:       b.Result,
			Label:        b.Label,
			Target:       b.Target,
			Message:      b.Message,
			Author:       b.Author,
			Cause:        b.Cause,
			Tags:         tags,
			Source: SourceView{
				ID:          b.SourceID,
				RevisionSHA: b.Source.RevisionSHA,
				PatchID:     b.Source.PatchID,
			},
			Jobs:         len(b.Jobs),
			DispatchedAt: b.DispatchedAt,
			CreatedAt:    b.CreatedAt,
		}
	}
	return views
}
