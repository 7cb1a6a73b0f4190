// Package dbtest provides migrated sqlite databases and catalog fixtures for tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/db"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Open returns a freshly migrated sqlite database in a per-test temp dir.
// A single connection keeps concurrent test goroutines from tripping over
// sqlite's writer lock.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "buildyard.db"),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

// Repository inserts an active git repository.
func Repository(t testing.TB, gdb *gorm.DB, url string) *models.Repository {
	t.Helper()
	repo := &models.Repository{URL: url, Backend: models.BackendGit, Status: models.RepositoryActive}
	if err := gdb.Create(repo).Error; err != nil {
		t.Fatalf("create repository %s: %v", url, err)
	}
	return repo
}

// Project inserts an active project in repo.
func Project(t testing.TB, gdb *gorm.DB, repo *models.Repository, slug string) *models.Project {
	t.Helper()
	p := &models.Project{Slug: slug, RepositoryID: repo.ID, Status: models.ProjectActive}
	if err := gdb.Create(p).Error; err != nil {
		t.Fatalf("create project %s: %v", slug, err)
	}
	return p
}

// Plan inserts a plan for project with the given status and JSON config.
func Plan(t testing.TB, gdb *gorm.DB, project *models.Project, label, status, data string) *models.Plan {
	t.Helper()
	if data == "" {
		data = "{}"
	}
	p := &models.Plan{ProjectID: project.ID, Label: label, Status: status, Data: datatypes.JSON(data)}
	if err := gdb.Create(p).Error; err != nil {
		t.Fatalf("create plan %s: %v", label, err)
	}
	return p
}

// Whitelist sets the project's file whitelist option.
func Whitelist(t testing.TB, gdb *gorm.DB, project *models.Project, value string) {
	t.Helper()
	opt := &models.ProjectOption{ProjectID: project.ID, Name: models.OptionFileWhitelist, Value: value}
	if err := gdb.Save(opt).Error; err != nil {
		t.Fatalf("set whitelist for %s: %v", project.Slug, err)
	}
}

// FinishedBuild inserts a build of project at sha with the given result and
// creation time, backed by an unpatched source unless patched is true.
func FinishedBuild(t testing.TB, gdb *gorm.DB, project *models.Project, sha, result string, patched bool, createdAt time.Time) *models.Build {
	t.Helper()
	src := &models.Source{RepositoryID: project.RepositoryID, RevisionSHA: &sha}
	if patched {
		patch := &models.Patch{RepositoryID: project.RepositoryID, ParentRevisionSHA: sha, Diff: "x"}
		if err := gdb.Create(patch).Error; err != nil {
			t.Fatalf("create patch: %v", err)
		}
		src.PatchID = &patch.ID
	}
	if err := gdb.Create(src).Error; err != nil {
		t.Fatalf("create source: %v", err)
	}
	b := &models.Build{
		ProjectID:    project.ID,
		CollectionID: models.NewID(),
		SourceID:     src.ID,
		Status:       models.StatusFinished,
		Result:       result,
		CreatedAt:    createdAt,
	}
	if err := gdb.Omit("Project", "Source", "Jobs").Create(b).Error; err != nil {
		t.Fatalf("create build: %v", err)
	}
	return b
}
