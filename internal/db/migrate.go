package db

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Repository{},
		&models.RepositoryCallsign{},
		&models.Project{},
		&models.ProjectOption{},
		&models.Plan{},
		&models.Revision{},
		&models.Patch{},
		&models.Source{},
		&models.Build{},
		&models.Job{},
		&models.JobPlan{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedCatalog upserts repositories, callsigns, projects, whitelists and plans
// from configuration. Existing rows keep their IDs so builds that reference
// them stay valid.
func SeedCatalog(db *gorm.DB, repos []config.RepositoryConfig) error {
	for _, rc := range repos {
		repo := models.Repository{
			URL:     rc.URL,
			Backend: rc.Backend,
			Status:  models.RepositoryActive,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{"backend", "status"}),
		}).Create(&repo).Error; err != nil {
			return fmt.Errorf("db: seed repository %q: %w", rc.URL, err)
		}
		// On conflict the generated ID was discarded; read the stored one.
		if err := db.Where("url = ?", rc.URL).First(&repo).Error; err != nil {
			return fmt.Errorf("db: reload repository %q: %w", rc.URL, err)
		}

		for _, cs := range rc.Callsigns {
			row := models.RepositoryCallsign{RepositoryID: repo.ID, Callsign: cs}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("db: seed callsign %q: %w", cs, err)
			}
		}

		for _, pc := range rc.Projects {
			if err := seedProject(db, repo.ID, pc); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedProject(db *gorm.DB, repositoryID string, pc config.ProjectConfig) error {
	project := models.Project{
		Slug:         pc.Slug,
		RepositoryID: repositoryID,
		Status:       models.ProjectActive,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"repository_id", "status"}),
	}).Create(&project).Error; err != nil {
		return fmt.Errorf("db: seed project %q: %w", pc.Slug, err)
	}
	if err := db.Where("slug = ?", pc.Slug).First(&project).Error; err != nil {
		return fmt.Errorf("db: reload project %q: %w", pc.Slug, err)
	}

	whitelist := models.ProjectOption{
		ProjectID: project.ID,
		Name:      models.OptionFileWhitelist,
		Value:     strings.Join(pc.FileWhitelist, "\n"),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&whitelist).Error; err != nil {
		return fmt.Errorf("db: seed whitelist for %q: %w", pc.Slug, err)
	}

	for _, plc := range pc.Plans {
		data, err := marshalJSON(plc.Config)
		if err != nil {
			return fmt.Errorf("db: marshal config for plan %q/%q: %w", pc.Slug, plc.Label, err)
		}
		status := models.PlanActive
		if plc.Inactive {
			status = models.PlanInactive
		}
		plan := models.Plan{
			ProjectID: project.ID,
			Label:     plc.Label,
			Status:    status,
			Data:      datatypes.JSON(data),
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "label"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "data", "updated_at"}),
		}).Create(&plan).Error; err != nil {
			return fmt.Errorf("db: seed plan %q/%q: %w", pc.Slug, plc.Label, err)
		}
	}
	return nil
}

// marshalJSON marshals a value to JSON, returning an empty object for nil maps.
func marshalJSON(v map[string]interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
