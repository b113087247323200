package models

import (
	"encoding/json"
	"time"
)

type EntityType string

const (
	TaskEntity           EntityType = "task"
	TaskDependencyEntity EntityType = "task_dependency"
)

type ActivityAction string

const (
	CreatedAction ActivityAction = "created"
	UpdatedAction ActivityAction = "updated"
	DeletedAction ActivityAction = "deleted"
)

// ActivityEntry records one mutation for auditing. It is appended in the
// same transaction as the mutation it describes, so an entry's existence
// implies its mutation committed.
type ActivityEntry struct {
	ID         int64           `json:"id" db:"id"`
	ProjectID  int64           `json:"project_id" db:"project_id"`
	UserID     int64           `json:"user_id" db:"user_id"`
	EntityType EntityType      `json:"entity_type" db:"entity_type"`
	EntityID   int64           `json:"entity_id" db:"entity_id"`
	Action     ActivityAction  `json:"action" db:"action"`
	Payload    json.RawMessage `json:"payload,omitempty" db:"payload"` // changed fields
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
