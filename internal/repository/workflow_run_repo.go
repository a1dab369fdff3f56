package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jperram92/dograh/internal/domain"
	"gorm.io/gorm"
)

// GormWorkflowRunRepository implements WorkflowRunRepository using GORM.
type GormWorkflowRunRepository struct {
	db *gorm.DB
}

// NewGormWorkflowRunRepository creates a new GORM workflow run repository.
func NewGormWorkflowRunRepository(db *gorm.DB) *GormWorkflowRunRepository {
	return &GormWorkflowRunRepository{db: db}
}

// Create creates a new workflow run. A run ID is assigned here and never
// changes afterwards.
func (r *GormWorkflowRunRepository) Create(ctx context.Context, run *domain.WorkflowRun) (*domain.WorkflowRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Logs == nil {
		run.Logs = domain.JSONB{}
	}
	if run.GatheredContext == nil {
		run.GatheredContext = domain.JSONB{}
	}

	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create workflow run: %w", err)
	}

	return run, nil
}

// GetByID retrieves a workflow run by ID.
func (r *GormWorkflowRunRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("workflow run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow run: %w", err)
	}

	return &run, nil
}

// GetByIDForUser retrieves a workflow run by ID scoped to its owning user.
func (r *GormWorkflowRunRepository) GetByIDForUser(ctx context.Context, id string, userID string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	if err := r.db.WithContext(ctx).First(&run, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("workflow run %s for user %s: %w", id, userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow run for user: %w", err)
	}

	return &run, nil
}

// Update applies a partial update to a workflow run. Nil fields in upd are
// left untouched.
func (r *GormWorkflowRunRepository) Update(ctx context.Context, id string, upd *domain.WorkflowRunUpdate) error {
	changes := map[string]interface{}{}
	if upd.Logs != nil {
		changes["logs"] = upd.Logs
	}
	if upd.GatheredContext != nil {
		changes["gathered_context"] = upd.GatheredContext
	}
	if upd.IsCompleted != nil {
		changes["is_completed"] = *upd.IsCompleted
	}
	if len(changes) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&domain.WorkflowRun{}).Where("id = ?", id).Updates(changes)
	if result.Error != nil {
		return fmt.Errorf("failed to update workflow run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("workflow run %s: %w", id, ErrNotFound)
	}

	return nil
}
