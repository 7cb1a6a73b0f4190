package build

import (
	"errors"
	"fmt"

	"github.com/zulandar/buildyard/internal/diff"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// ActivePlans returns the project's active plans ordered by label.
func ActivePlans(db *gorm.DB, projectID string) ([]models.Plan, error) {
	var plans []models.Plan
	if err := db.Where("project_id = ? AND status = ?", projectID, models.PlanActive).
		Order("label ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("build: active plans for %s: %w", projectID, err)
	}
	return plans, nil
}

// ProjectWhitelist returns the project's file whitelist patterns, or nil when
// none is configured.
func ProjectWhitelist(db *gorm.DB, projectID string) ([]string, error) {
	var opt models.ProjectOption
	err := db.Where("project_id = ? AND name = ?", projectID, models.OptionFileWhitelist).Take(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("build: whitelist for %s: %w", projectID, err)
	}
	return diff.ParseWhitelist(opt.Value), nil
}
