package repository

import (
	"context"
	"errors"

	"github.com/jperram92/dograh/internal/domain"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist. Callers
// should match it with errors.Is.
var ErrNotFound = errors.New("record not found")

// WorkflowRepository defines read access to workflow definitions.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)
}

// WorkflowRunRepository defines the workflow run store operations the
// telephony layer consumes. The workflow engine owns everything else.
type WorkflowRunRepository interface {
	Create(ctx context.Context, run *domain.WorkflowRun) (*domain.WorkflowRun, error)
	GetByID(ctx context.Context, id string) (*domain.WorkflowRun, error)
	GetByIDForUser(ctx context.Context, id string, userID string) (*domain.WorkflowRun, error)
	Update(ctx context.Context, id string, upd *domain.WorkflowRunUpdate) error
}

// UserConfigurationRepository defines read access to per-user settings.
type UserConfigurationRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.UserConfiguration, error)
}

// OrganizationConfigurationRepository defines keyed configuration lookup for
// an organization.
type OrganizationConfigurationRepository interface {
	GetByKey(ctx context.Context, organizationID string, key string) (*domain.OrganizationConfiguration, error)
}

// RepositoryManager combines all repositories.
type RepositoryManager interface {
	Workflow() WorkflowRepository
	WorkflowRun() WorkflowRunRepository
	UserConfiguration() UserConfigurationRepository
	OrganizationConfiguration() OrganizationConfigurationRepository

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM.
type GormRepositoryManager struct {
	db            *gorm.DB
	workflowRepo  *GormWorkflowRepository
	runRepo       *GormWorkflowRunRepository
	userConfRepo  *GormUserConfigurationRepository
	orgConfigRepo *GormOrganizationConfigurationRepository
}

// NewGormRepositoryManager creates a new GORM repository manager.
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:            db,
		workflowRepo:  NewGormWorkflowRepository(db),
		runRepo:       NewGormWorkflowRunRepository(db),
		userConfRepo:  NewGormUserConfigurationRepository(db),
		orgConfigRepo: NewGormOrganizationConfigurationRepository(db),
	}
}

// Workflow returns the workflow repository.
func (m *GormRepositoryManager) Workflow() WorkflowRepository {
	return m.workflowRepo
}

// WorkflowRun returns the workflow run repository.
func (m *GormRepositoryManager) WorkflowRun() WorkflowRunRepository {
	return m.runRepo
}

// UserConfiguration returns the user configuration repository.
func (m *GormRepositoryManager) UserConfiguration() UserConfigurationRepository {
	return m.userConfRepo
}

// OrganizationConfiguration returns the organization configuration repository.
func (m *GormRepositoryManager) OrganizationConfiguration() OrganizationConfigurationRepository {
	return m.orgConfigRepo
}

// Ping checks the database connection.
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
