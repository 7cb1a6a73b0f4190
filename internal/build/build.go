package build

import (
	"fmt"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Column bounds for free-form build fields.
const (
	MaxLabelLength  = 128 // labels and targets
	MaxAuthorLength = 255
	MaxCauseLength  = 32
)

// CreateOpts holds parameters for creating a build.
type CreateOpts struct {
	Project      *models.Project
	CollectionID string
	Source       *models.Source
	Label        string
	Target       string
	Message      string
	Author       string
	Cause        string
	Tag          string
}

// Create inserts a queued build. Label, target, author and cause are cut to
// their column bounds.
func Create(tx *gorm.DB, opts CreateOpts) (*models.Build, error) {
	if opts.Project == nil {
		return nil, fmt.Errorf("build: project is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("build: source is required")
	}
	if opts.CollectionID == "" {
		return nil, fmt.Errorf("build: collection id is required")
	}

	tags := []string{}
	if opts.Tag != "" {
		tags = append(tags, opts.Tag)
	}

	b := models.Build{
		ProjectID:    opts.Project.ID,
		CollectionID: opts.CollectionID,
		SourceID:     opts.Source.ID,
		Status:       models.StatusQueued,
		Result:       models.ResultUnknown,
		Label:        Truncate(opts.Label, MaxLabelLength),
		Target:       Truncate(opts.Target, MaxLabelLength),
		Message:      opts.Message,
		Author:       Truncate(opts.Author, MaxAuthorLength),
		Cause:        Truncate(opts.Cause, MaxCauseLength),
		Tags:         tags,
	}
	if err := tx.Omit(clause.Associations).Create(&b).Error; err != nil {
		return nil, fmt.Errorf("build: create for project %s: %w", opts.Project.Slug, err)
	}
	b.Project = *opts.Project
	b.Source = *opts.Source
	return &b, nil
}

// CreateJobs inserts one job per plan for b, each with a JobPlan snapshot of
// the plan's configuration. Jobs inherit the build's status and source.
func CreateJobs(tx *gorm.DB, b *models.Build, plans []models.Plan) ([]models.Job, error) {
	jobs := make([]models.Job, 0, len(plans))
	for _, plan := range plans {
		job := models.Job{
			BuildID:   b.ID,
			ProjectID: b.ProjectID,
			SourceID:  b.SourceID,
			Status:    b.Status,
			Result:    models.ResultUnknown,
			Label:     Truncate(plan.Label, MaxLabelLength),
		}
		if err := tx.Omit(clause.Associations).Create(&job).Error; err != nil {
			return nil, fmt.Errorf("build: create job for plan %s: %w", plan.Label, err)
		}

		snapshot := models.JobPlan{
			JobID:     job.ID,
			PlanID:    plan.ID,
			BuildID:   b.ID,
			ProjectID: b.ProjectID,
			Data:      append([]byte(nil), plan.Data...),
		}
		if len(snapshot.Data) == 0 {
			snapshot.Data = []byte("{}")
		}
		if err := tx.Create(&snapshot).Error; err != nil {
			return nil, fmt.Errorf("build: snapshot plan %s: %w", plan.Label, err)
		}
		job.JobPlan = &snapshot
		jobs = append(jobs, job)
	}
	b.Jobs = jobs
	return jobs, nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
