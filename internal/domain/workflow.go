package domain

import (
	"time"
)

// WorkflowRunMode tags the telephony backend a run was placed through.
type WorkflowRunMode string

const (
	WorkflowRunModeTwilio WorkflowRunMode = "twilio"
)

// StatusCallbackLogKey is the workflow run log stream that accumulates
// carrier status callbacks. The stream is append-only.
const StatusCallbackLogKey = "status_callbacks"

// Workflow represents a conversational workflow definition. Only the fields
// the telephony layer needs are modeled here; the workflow engine owns the
// rest of the schema.
type Workflow struct {
	ID             string    `json:"id" gorm:"type:uuid;primary_key"`
	OrganizationID string    `json:"organization_id" gorm:"type:varchar(255);index"`
	Name           string    `json:"name" gorm:"type:varchar(255)"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for Workflow.
func (Workflow) TableName() string {
	return "workflows"
}

// WorkflowRun is one phone-call-driving execution of a workflow.
//
// ID is immutable once assigned. IsCompleted transitions false to true exactly
// once; the status callback reconciler guards that transition so redelivered
// terminal callbacks cannot re-run completion side effects.
type WorkflowRun struct {
	ID              string          `json:"id" gorm:"type:uuid;primary_key"`
	WorkflowID      string          `json:"workflow_id" gorm:"type:uuid;index"`
	UserID          string          `json:"user_id" gorm:"type:varchar(255);index"`
	Name            string          `json:"name" gorm:"type:varchar(255)"`
	Mode            WorkflowRunMode `json:"mode" gorm:"type:varchar(32)"`
	InitialContext  JSONB           `json:"initial_context" gorm:"type:jsonb"`
	GatheredContext JSONB           `json:"gathered_context" gorm:"type:jsonb"`
	Logs            JSONB           `json:"logs" gorm:"type:jsonb"`
	IsCompleted     bool            `json:"is_completed" gorm:"default:false"`
	CampaignID      *string         `json:"campaign_id" gorm:"type:uuid;index"`
	QueuedRunID     *string         `json:"queued_run_id" gorm:"type:uuid"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for WorkflowRun.
func (WorkflowRun) TableName() string {
	return "workflow_runs"
}

// WorkflowRunUpdate carries a partial update for a workflow run. Nil fields
// are left untouched.
type WorkflowRunUpdate struct {
	Logs            JSONB
	GatheredContext JSONB
	IsCompleted     *bool
}

// UserConfiguration holds per-user settings the telephony layer consumes.
type UserConfiguration struct {
	UserID          string    `json:"user_id" gorm:"type:varchar(255);primary_key"`
	TestPhoneNumber string    `json:"test_phone_number" gorm:"type:varchar(32)"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for UserConfiguration.
func (UserConfiguration) TableName() string {
	return "user_configurations"
}

// Well-known organization configuration keys.
const (
	ConfigKeyTelephony = "telephony_configuration"
)

// OrganizationConfiguration is a keyed configuration blob owned by an
// organization, e.g. its telephony provider credentials.
type OrganizationConfiguration struct {
	ID             string    `json:"id" gorm:"type:uuid;primary_key"`
	OrganizationID string    `json:"organization_id" gorm:"type:varchar(255);index;uniqueIndex:idx_org_config_key"`
	Key            string    `json:"key" gorm:"type:varchar(255);uniqueIndex:idx_org_config_key"`
	Value          JSONB     `json:"value" gorm:"type:jsonb"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for OrganizationConfiguration.
func (OrganizationConfiguration) TableName() string {
	return "organization_configurations"
}
