package types

import (
	"context"
	"time"
)

// Status is the soft lifecycle state shared by all persisted entities.
// Records are never physically deleted; they move to StatusDeleted.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

// Metadata is a free-form string map persisted as jsonb.
type Metadata map[string]string

// BaseModel carries the audit columns shared by every entity.
type BaseModel struct {
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
}

// GetDefaultBaseModel builds a BaseModel for a new entity, attributing it to
// the actor in the context.
func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	actor := GetActorID(ctx)
	return BaseModel{
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor,
		UpdatedBy: actor,
	}
}
