package repository

import (
	"context"
	"fmt"

	"github.com/jperram92/dograh/internal/domain"
	"gorm.io/gorm"
)

// GormWorkflowRepository implements WorkflowRepository using GORM.
type GormWorkflowRepository struct {
	db *gorm.DB
}

// NewGormWorkflowRepository creates a new GORM workflow repository.
func NewGormWorkflowRepository(db *gorm.DB) *GormWorkflowRepository {
	return &GormWorkflowRepository{db: db}
}

// GetByID retrieves a workflow by ID.
func (r *GormWorkflowRepository) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	var workflow domain.Workflow
	if err := r.db.WithContext(ctx).First(&workflow, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return &workflow, nil
}

// GormUserConfigurationRepository implements UserConfigurationRepository using GORM.
type GormUserConfigurationRepository struct {
	db *gorm.DB
}

// NewGormUserConfigurationRepository creates a new GORM user configuration repository.
func NewGormUserConfigurationRepository(db *gorm.DB) *GormUserConfigurationRepository {
	return &GormUserConfigurationRepository{db: db}
}

// GetByUserID retrieves the configuration for a user.
func (r *GormUserConfigurationRepository) GetByUserID(ctx context.Context, userID string) (*domain.UserConfiguration, error) {
	var conf domain.UserConfiguration
	if err := r.db.WithContext(ctx).First(&conf, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user configuration for %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user configuration: %w", err)
	}

	return &conf, nil
}

// GormOrganizationConfigurationRepository implements
// OrganizationConfigurationRepository using GORM.
type GormOrganizationConfigurationRepository struct {
	db *gorm.DB
}

// NewGormOrganizationConfigurationRepository creates a new GORM organization
// configuration repository.
func NewGormOrganizationConfigurationRepository(db *gorm.DB) *GormOrganizationConfigurationRepository {
	return &GormOrganizationConfigurationRepository{db: db}
}

// GetByKey retrieves an organization configuration entry by its well-known key.
func (r *GormOrganizationConfigurationRepository) GetByKey(ctx context.Context, organizationID string, key string) (*domain.OrganizationConfiguration, error) {
	var conf domain.OrganizationConfiguration
	if err := r.db.WithContext(ctx).First(&conf, "organization_id = ? AND key = ?", organizationID, key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("configuration %s for organization %s: %w", key, organizationID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get organization configuration: %w", err)
	}

	return &conf, nil
}
