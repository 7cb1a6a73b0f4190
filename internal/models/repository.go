package models

import "time"

// Repository statuses.
const (
	RepositoryActive   = "active"
	RepositoryInactive = "inactive"
)

// Version-control backends a repository can be resolved through.
const (
	BackendGit    = "git"
	BackendGitHub = "github"
)

// Repository is a version-controlled code base that projects build from.
type Repository struct {
	ID        string `gorm:"primaryKey;size:36"`
	URL       string `gorm:"size:255;not null;uniqueIndex"`
	Backend   string `gorm:"size:16;default:git"`
	Status    string `gorm:"size:16;default:active;index"`
	CreatedAt time.Time

	Callsigns []RepositoryCallsign `gorm:"foreignKey:RepositoryID"`
}

// RepositoryCallsign is an external short name for a repository. The same
// callsign may be registered against more than one repository.
type RepositoryCallsign struct {
	RepositoryID string `gorm:"primaryKey;size:36"`
	Callsign     string `gorm:"primaryKey;size:64;index"`
}

// Revision is a commit in a repository, stored the first time it is resolved.
type Revision struct {
	RepositoryID string `gorm:"primaryKey;size:36"`
	SHA          string `gorm:"primaryKey;size:40"`
	Author       string `gorm:"size:255"`
	Subject      string `gorm:"size:255"`
	Message      string `gorm:"size:4294967295"`
	CommittedAt  time.Time
	CreatedAt    time.Time
}

// Patch is a diff submitted against a parent revision.
type Patch struct {
	ID                string `gorm:"primaryKey;size:36"`
	RepositoryID      string `gorm:"size:36;not null;index"`
	ParentRevisionSHA string `gorm:"size:40"`
	Diff              string `gorm:"size:4294967295"`
	CreatedAt         time.Time
}
