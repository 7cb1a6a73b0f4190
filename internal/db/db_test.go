package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "t.db")})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return gdb
}

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want []string
	}{
		{
			name: "user and password",
			cfg:  config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, User: "ci", Password: "secret", Name: "buildyard"},
			want: []string{"ci:secret@tcp(10.0.0.5:3307)/buildyard", "parseTime=true"},
		},
		{
			name: "no password",
			cfg:  config.DatabaseConfig{Host: "db.internal", Port: 3306, User: "root", Name: "by"},
			want: []string{"root@tcp(db.internal:3306)/by", "parseTime=true"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MySQLDSN(tt.cfg)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("MySQLDSN() = %q, want to contain %q", got, w)
				}
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	got := SQLiteDSN("/tmp/by.db")
	if !strings.HasPrefix(got, "/tmp/by.db?") {
		t.Errorf("SQLiteDSN() = %q, want path prefix", got)
	}
	if !strings.Contains(got, "_busy_timeout=") {
		t.Errorf("SQLiteDSN() = %q, want busy timeout", got)
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "unsupported driver")
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 11 {
		t.Errorf("AllModels() returned %d models, want 11", got)
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	gdb := openTestDB(t)
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

func TestSeedCatalog(t *testing.T) {
	gdb := openTestDB(t)
	repos := []config.RepositoryConfig{{
		URL:       "https://github.com/acme/mono",
		Backend:   "github",
		Callsigns: []string{"MONO", "M"},
		Projects: []config.ProjectConfig{{
			Slug:          "server",
			FileWhitelist: []string{"server/**", "go.mod"},
			Plans: []config.PlanConfig{
				{Label: "unit", Config: map[string]interface{}{"command": "make test"}},
				{Label: "lint", Inactive: true},
			},
		}},
	}}

	if err := SeedCatalog(gdb, repos); err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}

	var repo models.Repository
	if err := gdb.Preload("Callsigns").Where("url = ?", "https://github.com/acme/mono").First(&repo).Error; err != nil {
		t.Fatalf("load repository: %v", err)
	}
	if repo.Backend != "github" {
		t.Errorf("Backend = %q, want github", repo.Backend)
	}
	if len(repo.Callsigns) != 2 {
		t.Errorf("len(Callsigns) = %d, want 2", len(repo.Callsigns))
	}

	var project models.Project
	if err := gdb.Preload("Plans").Preload("Options").Where("slug = ?", "server").First(&project).Error; err != nil {
		t.Fatalf("load project: %v", err)
	}
	if project.RepositoryID != repo.ID {
		t.Errorf("RepositoryID = %q, want %q", project.RepositoryID, repo.ID)
	}
	if len(project.Plans) != 2 {
		t.Fatalf("len(Plans) = %d, want 2", len(project.Plans))
	}
	statuses := map[string]string{}
	for _, p := range project.Plans {
		statuses[p.Label] = p.Status
	}
	if statuses["unit"] != models.PlanActive || statuses["lint"] != models.PlanInactive {
		t.Errorf("plan statuses = %v", statuses)
	}
	if len(project.Options) != 1 || project.Options[0].Value != "server/**\ngo.mod" {
		t.Errorf("Options = %+v, want whitelist option", project.Options)
	}
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	gdb := openTestDB(t)
	repos := []config.RepositoryConfig{{
		URL:     "/srv/git/app.git",
		Backend: "git",
		Projects: []config.ProjectConfig{{
			Slug:  "app",
			Plans: []config.PlanConfig{{Label: "build"}},
		}},
	}}

	if err := SeedCatalog(gdb, repos); err != nil {
		t.Fatalf("first SeedCatalog: %v", err)
	}
	var first models.Project
	gdb.Where("slug = ?", "app").First(&first)

	repos[0].Projects[0].Plans[0].Inactive = true
	if err := SeedCatalog(gdb, repos); err != nil {
		t.Fatalf("second SeedCatalog: %v", err)
	}

	var count int64
	gdb.Model(&models.Project{}).Count(&count)
	if count != 1 {
		t.Errorf("project count = %d, want 1", count)
	}
	var second models.Project
	gdb.Where("slug = ?", "app").First(&second)
	if second.ID != first.ID {
		t.Errorf("project ID changed across seeds: %q -> %q", first.ID, second.ID)
	}
	var plan models.Plan
	gdb.Where("project_id = ?", second.ID).First(&plan)
	if plan.Status != models.PlanInactive {
		t.Errorf("plan Status = %q, want %q", plan.Status, models.PlanInactive)
	}
}

func TestMarshalJSON(t *testing.T) {
	got, err := marshalJSON(nil)
	if err != nil || got != "{}" {
		t.Errorf("marshalJSON(nil) = %q, %v; want {}", got, err)
	}
	got, err = marshalJSON(map[string]interface{}{"command": "make"})
	if err != nil || got != `{"command":"make"}` {
		t.Errorf("marshalJSON(map) = %q, %v", got, err)
	}
	if _, err := marshalJSON(map[string]interface{}{"bad": make(chan int)}); err == nil {
		t.Error("expected error marshaling channel")
	}
}
