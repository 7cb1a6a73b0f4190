package dispatch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// TargetKind says how a Target names the projects to build.
type TargetKind int

const (
	// ByProject builds a single project, named by slug.
	ByProject TargetKind = iota + 1
	// ByRepositoryURL builds every active project of the repository at a URL.
	ByRepositoryURL
	// ByCallsign builds every active project of the repository with a callsign.
	ByCallsign
)

func (k TargetKind) String() string {
	switch k {
	case ByProject:
		return "project"
	case ByRepositoryURL:
		return "repository"
	case ByCallsign:
		return "callsign"
	default:
		return "none"
	}
}

// Target identifies what a submission builds.
type Target struct {
	Kind  TargetKind
	Value string
}

// ProjectTarget targets the project with slug.
func ProjectTarget(slug string) Target { return Target{Kind: ByProject, Value: slug} }

// RepositoryTarget targets the repository at url.
func RepositoryTarget(url string) Target { return Target{Kind: ByRepositoryURL, Value: url} }

// CallsignTarget targets the repository registered under callsign.
func CallsignTarget(callsign string) Target { return Target{Kind: ByCallsign, Value: callsign} }

// IsZero reports whether t names nothing.
func (t Target) IsZero() bool {
	return t.Kind == 0 || t.Value == ""
}

func (t Target) String() string {
	return t.Kind.String() + " " + t.Value
}

// ResolveTarget maps t to its repository and the active projects to consider.
// An unknown or inactive target yields ErrNoProjects.
func ResolveTarget(db *gorm.DB, t Target, log *slog.Logger) (*models.Repository, []models.Project, error) {
	if t.IsZero() {
		return nil, nil, ErrNoTarget
	}

	var (
		repo *models.Repository
		err  error
	)
	switch t.Kind {
	case ByProject:
		var p models.Project
		err = db.Where("slug = ? AND status = ?", t.Value, models.ProjectActive).Take(&p).Error
		if err == nil {
			repo = &models.Repository{}
			err = db.Where("id = ?", p.RepositoryID).Take(repo).Error
		}
		if err == nil {
			return repo, []models.Project{p}, nil
		}
	case ByRepositoryURL:
		repo = &models.Repository{}
		err = db.Where("url = ? AND status = ?", t.Value, models.RepositoryActive).Take(repo).Error
	case ByCallsign:
		repo, err = repositoryByCallsign(db, t.Value, log)
	default:
		return nil, nil, ErrNoTarget
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("%w: no active %s", ErrNoProjects, t)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch: resolve %s: %w", t, err)
	}

	var projects []models.Project
	if err := db.Where("repository_id = ? AND status = ?", repo.ID, models.ProjectActive).
		Order("slug ASC").Find(&projects).Error; err != nil {
		return nil, nil, fmt.Errorf("dispatch: projects of %s: %w", repo.URL, err)
	}
	return repo, projects, nil
}

// repositoryByCallsign returns the active repository registered under
// callsign. Callsigns are not unique; when several match, the oldest wins and
// a warning is logged.
func repositoryByCallsign(db *gorm.DB, callsign string, log *slog.Logger) (*models.Repository, error) {
	var repos []models.Repository
	err := db.Joins("JOIN repository_callsigns ON repository_callsigns.repository_id = repositories.id").
		Where("repository_callsigns.callsign = ? AND repositories.status = ?", callsign, models.RepositoryActive).
		Order("repositories.created_at ASC").
		Find(&repos).Error
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	if len(repos) > 1 {
		logging.OrDefault(log).Warn("multiple repositories share callsign", "callsign", callsign, "count", len(repos), "using", repos[0].URL)
	}
	return &repos[0], nil
}
