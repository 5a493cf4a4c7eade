package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowResourceModel represents a resource attachment (credential or
// connection) assigned to a workflow under an alias.
type WorkflowResourceModel struct {
	bun.BaseModel `bun:"table:workflow_resources,alias:wr"`

	WorkflowID uuid.UUID  `bun:"workflow_id,pk,type:uuid" json:"workflow_id" validate:"required"`
	ResourceID uuid.UUID  `bun:"resource_id,pk,type:uuid" json:"resource_id" validate:"required"`
	Alias      string     `bun:"alias,notnull" json:"alias" validate:"required,max=100"`
	AccessType string     `bun:"access_type,notnull,default:'read'" json:"access_type"`
	AssignedBy *uuid.UUID `bun:"assigned_by,type:uuid" json:"assigned_by,omitempty"`
	AssignedAt time.Time  `bun:"assigned_at,notnull,default:current_timestamp" json:"assigned_at"`

	Workflow *WorkflowModel `bun:"rel:belongs-to,join:workflow_id=id" json:"workflow,omitempty"`
}

// TableName returns the table name for WorkflowResourceModel.
func (WorkflowResourceModel) TableName() string {
	return "workflow_resources"
}

// BeforeInsert hook to set the assignment timestamp.
func (wr *WorkflowResourceModel) BeforeInsert(ctx any) error {
	if wr.AssignedAt.IsZero() {
		wr.AssignedAt = time.Now()
	}
	if wr.AccessType == "" {
		wr.AccessType = "read"
	}
	return nil
}
