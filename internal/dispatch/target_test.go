package dispatch

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/buildyard/internal/db/dbtest"
	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
)

func TestResolveTarget_ByProject(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := dbtest.Repository(t, gdb, repoURL)
	dbtest.Project(t, gdb, repo, "api")
	dbtest.Project(t, gdb, repo, "web")

	got, projects, err := ResolveTarget(gdb, ProjectTarget("api"), logging.Discard())
	if err != nil {
		t.Fatalf("ResolveTarget: %v", err)
	}
	if got.ID != repo.ID {
		t.Errorf("repository = %s, want %s", got.ID, repo.ID)
	}
	if len(projects) != 1 || projects[0].Slug != "api" {
		t.Errorf("projects = %+v, want only api", projects)
	}
}

func TestResolveTarget_ByRepositorySkipsInactive(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := dbtest.Repository(t, gdb, repoURL)
	dbtest.Project(t, gdb, repo, "web")
	dbtest.Project(t, gdb, repo, "api")
	old := dbtest.Project(t, gdb, repo, "old")
	gdb.Model(old).Update("status", models.ProjectInactive)

	_, projects, err := ResolveTarget(gdb, RepositoryTarget(repoURL), logging.Discard())
	if err != nil {
		t.Fatalf("ResolveTarget: %v", err)
	}
	if len(projects) != 2 || projects[0].Slug != "api" || projects[1].Slug != "web" {
		t.Errorf("projects = %+v, want api, web", projects)
	}

	_, _, err = ResolveTarget(gdb, ProjectTarget("old"), logging.Discard())
	if !errors.Is(err, ErrNoProjects) {
		t.Errorf("inactive project err = %v, want ErrNoProjects", err)
	}
}

func TestResolveTarget_InactiveRepository(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := dbtest.Repository(t, gdb, repoURL)
	gdb.Model(repo).Update("status", models.RepositoryInactive)

	_, _, err := ResolveTarget(gdb, RepositoryTarget(repoURL), logging.Discard())
	if !errors.Is(err, ErrNoProjects) {
		t.Errorf("err = %v, want ErrNoProjects", err)
	}
}

func TestResolveTarget_ByCallsign(t *testing.T) {
	gdb := dbtest.Open(t)
	first := dbtest.Repository(t, gdb, "https://example.com/first.git")
	second := dbtest.Repository(t, gdb, "https://example.com/second.git")
	gdb.Model(second).Update("created_at", first.CreatedAt.Add(time.Hour))
	dbtest.Project(t, gdb, first, "first-app")
	for _, r := range []*models.Repository{first, second} {
		if err := gdb.Create(&models.RepositoryCallsign{RepositoryID: r.ID, Callsign: "MONO"}).Error; err != nil {
			t.Fatalf("create callsign: %v", err)
		}
	}

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	got, projects, err := ResolveTarget(gdb, CallsignTarget("MONO"), log)
	if err != nil {
		t.Fatalf("ResolveTarget: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("repository = %s, want oldest %s", got.URL, first.URL)
	}
	if len(projects) != 1 || projects[0].Slug != "first-app" {
		t.Errorf("projects = %+v", projects)
	}
	if !strings.Contains(buf.String(), "multiple repositories share callsign") {
		t.Errorf("log = %q, want duplicate callsign warning", buf.String())
	}

	_, _, err = ResolveTarget(gdb, CallsignTarget("NONE"), logging.Discard())
	if !errors.Is(err, ErrNoProjects) {
		t.Errorf("unknown callsign err = %v, want ErrNoProjects", err)
	}
}

func TestResolveTarget_Zero(t *testing.T) {
	gdb := dbtest.Open(t)
	if _, _, err := ResolveTarget(gdb, Target{}, logging.Discard()); !errors.Is(err, ErrNoTarget) {
		t.Errorf("err = %v, want ErrNoTarget", err)
	}
}

func TestTargetKind_String(t *testing.T) {
	tests := []struct {
		kind TargetKind
		want string
	}{
		{ByProject, "project"},
		{ByRepositoryURL, "repository"},
		{ByCallsign, "callsign"},
		{0, "none"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
