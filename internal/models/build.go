package models

import (
	"time"

	"gorm.io/datatypes"
)

// Build and job statuses.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusFinished   = "finished"
)

// Build and job results. An unfinished build has ResultUnknown.
const (
	ResultUnknown = ""
	ResultPassed  = "passed"
	ResultFailed  = "failed"
	ResultAborted = "aborted"
)

// Source is the thing being built: a repository at a revision, optionally
// with a patch applied. Unpatched sources are shared through ShareKey;
// patched sources belong to exactly one patch.
type Source struct {
	ID           string            `gorm:"primaryKey;size:36"`
	RepositoryID string            `gorm:"size:36;not null;index"`
	RevisionSHA  *string           `gorm:"size:40;index"`
	PatchID      *string           `gorm:"size:36;uniqueIndex"`
	ShareKey     *string           `gorm:"size:96;uniqueIndex"`
	Data         datatypes.JSONMap `gorm:"type:json"`
	CreatedAt    time.Time

	Patch *Patch `gorm:"foreignKey:PatchID"`
}

// Build is one project's build for one submission.
type Build struct {
	ID           string                      `gorm:"primaryKey;size:36"`
	ProjectID    string                      `gorm:"size:36;not null;index"`
	CollectionID string                      `gorm:"size:36;not null;index"`
	SourceID     string                      `gorm:"size:36;not null;index"`
	Status       string                      `gorm:"size:16;default:queued;index"`
	Result       string                      `gorm:"size:16"`
	Label        string                      `gorm:"size:128"`
	Target       string                      `gorm:"size:128"`
	Message      string                      `gorm:"size:4294967295"`
	Author       string                      `gorm:"size:255"`
	Cause        string                      `gorm:"size:32"`
	Tags         datatypes.JSONSlice[string] `gorm:"type:json"`
	DispatchedAt *time.Time                  `gorm:"index"`
	CreatedAt    time.Time                   `gorm:"index"`
	FinishedAt   *time.Time

	Project Project `gorm:"foreignKey:ProjectID"`
	Source  Source  `gorm:"foreignKey:SourceID"`
	Jobs    []Job   `gorm:"foreignKey:BuildID"`
}

// Job is the execution of one plan for one build.
type Job struct {
	ID        string `gorm:"primaryKey;size:36"`
	BuildID   string `gorm:"size:36;not null;index"`
	ProjectID string `gorm:"size:36;not null;index"`
	SourceID  string `gorm:"size:36;not null"`
	Status    string `gorm:"size:16;default:queued;index"`
	Result    string `gorm:"size:16"`
	Label     string `gorm:"size:128"`
	CreatedAt time.Time

	JobPlan *JobPlan `gorm:"foreignKey:JobID"`
}

// JobPlan snapshots the plan configuration a job was created from so later
// plan edits do not change an in-flight job.
type JobPlan struct {
	ID        string         `gorm:"primaryKey;size:36"`
	JobID     string         `gorm:"size:36;not null;uniqueIndex"`
	PlanID    string         `gorm:"size:36;not null;index"`
	BuildID   string         `gorm:"size:36;not null;index"`
	ProjectID string         `gorm:"size:36;not null"`
	Data      datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
}
