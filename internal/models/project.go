package models

import (
	"time"

	"gorm.io/datatypes"
)

// Project and plan statuses.
const (
	ProjectActive   = "active"
	ProjectInactive = "inactive"
	PlanActive      = "active"
	PlanInactive    = "inactive"
)

// OptionFileWhitelist holds newline-separated path globs; a patch build only
// runs for the project when one of its changed files matches.
const OptionFileWhitelist = "build.file-whitelist"

// Project is a buildable unit within a repository.
type Project struct {
	ID           string `gorm:"primaryKey;size:36"`
	Slug         string `gorm:"size:128;not null;uniqueIndex"`
	RepositoryID string `gorm:"size:36;not null;index"`
	Status       string `gorm:"size:16;default:active;index"`
	CreatedAt    time.Time

	Repository Repository      `gorm:"foreignKey:RepositoryID"`
	Plans      []Plan          `gorm:"foreignKey:ProjectID"`
	Options    []ProjectOption `gorm:"foreignKey:ProjectID"`
}

// ProjectOption is a named per-project setting.
type ProjectOption struct {
	ProjectID string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
}

// Plan is a named build configuration belonging to a project.
type Plan struct {
	ID        string         `gorm:"primaryKey;size:36"`
	ProjectID string         `gorm:"size:36;not null;uniqueIndex:idx_plan_project_label"`
	Label     string         `gorm:"size:128;not null;uniqueIndex:idx_plan_project_label"`
	Status    string         `gorm:"size:16;default:active;index"`
	Data      datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
