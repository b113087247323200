package models

import "time"

// DependencyType names which endpoint of the predecessor constrains which
// endpoint of the successor.
type DependencyType string

const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

func (d DependencyType) IsValid() bool {
	switch d {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	default:
		return false
	}
}

// Dependency is a directed edge: TaskID's schedule is constrained by
// DependsOnTaskID's schedule. At most one edge exists per ordered pair;
// edges are never mutated in place (type/lag changes are delete+recreate).
// The edge set is not checked for cycles.
type Dependency struct {
	ID              int64          `json:"id" db:"id"`
	TaskID          int64          `json:"task_id" db:"task_id"`
	DependsOnTaskID int64          `json:"depends_on_task_id" db:"depends_on_task_id"`
	Type            DependencyType `json:"dependency_type" db:"dependency_type"`
	LagTime         int            `json:"lag_time" db:"lag_time"` // signed days
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`

	// Predecessor display fields joined at read time.
	DependsOnTitle    string     `json:"depends_on_title,omitempty" db:"depends_on_title"`
	DependsOnStatus   TaskStatus `json:"depends_on_status,omitempty" db:"depends_on_status"`
	DependsOnProgress int        `json:"depends_on_progress" db:"depends_on_progress"`
}
