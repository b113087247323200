package models

import "time"

type TaskStatus string

const (
	NotStartedTaskStatus TaskStatus = "not_started"
	InProgressTaskStatus TaskStatus = "in_progress"
	CompletedTaskStatus  TaskStatus = "completed"
	BlockedTaskStatus    TaskStatus = "blocked"
	CancelledTaskStatus  TaskStatus = "cancelled"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case NotStartedTaskStatus, InProgressTaskStatus, CompletedTaskStatus,
		BlockedTaskStatus, CancelledTaskStatus:
		return true
	default:
		return false
	}
}

type TaskPriority string

const (
	LowTaskPriority      TaskPriority = "low"
	MediumTaskPriority   TaskPriority = "medium"
	HighTaskPriority     TaskPriority = "high"
	CriticalTaskPriority TaskPriority = "critical"
)

func (p TaskPriority) IsValid() bool {
	switch p {
	case LowTaskPriority, MediumTaskPriority, HighTaskPriority, CriticalTaskPriority:
		return true
	default:
		return false
	}
}

// Task is a schedulable work item within a project. Tasks form a hierarchy
// via ParentTaskID; a task with live children renders as a summary bar.
// Deletion is a tombstone (DeletedAt); reads filter tombstoned rows out.
type Task struct {
	ID              int64        `json:"id" db:"id"`
	ProjectID       int64        `json:"project_id" db:"project_id"`
	Title           string       `json:"title" db:"title"`
	Description     string       `json:"description" db:"description"`
	Status          TaskStatus   `json:"status" db:"status"`
	Priority        TaskPriority `json:"priority" db:"priority"`
	StartDate       *time.Time   `json:"start_date,omitempty" db:"start_date"`
	EndDate         *time.Time   `json:"end_date,omitempty" db:"end_date"`
	Duration        *int         `json:"duration,omitempty" db:"duration"` // days
	Progress        int          `json:"progress" db:"progress"`           // 0-100
	ParentTaskID    *int64       `json:"parent_task_id,omitempty" db:"parent_task_id"`
	CreatedBy       int64        `json:"created_by" db:"created_by"`
	AssignedTo      *int64       `json:"assigned_to,omitempty" db:"assigned_to"`
	AssignedGroupID *int64       `json:"assigned_group_id,omitempty" db:"assigned_group_id"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time   `json:"-" db:"deleted_at"`

	// Display fields computed at read time, never written.
	AssigneeName    string `json:"assignee_name,omitempty" db:"assignee_name"`
	GroupName       string `json:"group_name,omitempty" db:"group_name"`
	SubtaskCount    int    `json:"subtask_count" db:"subtask_count"`
	DependencyCount int    `json:"dependency_count" db:"dependency_count"`

	// Outgoing dependency edges, populated by single-task reads only.
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// DisplayAssignee prefers the assigned group's name over the individual
// assignee's name when both are present.
func (t Task) DisplayAssignee() string {
	if t.GroupName != "" {
		return t.GroupName
	}
	return t.AssigneeName
}

// TaskFilter narrows ListTasks. Nil/zero fields are ignored; RootOnly
// selects tasks with no parent (explicit "no parent" filter).
type TaskFilter struct {
	Status       TaskStatus
	Priority     TaskPriority
	AssignedTo   *int64
	ParentTaskID *int64
	RootOnly     bool
	Search       string // free text over title and description
}

// TaskPatch is a partial update: nil fields are left untouched.
// A ParentTaskID of 0 clears the parent.
type TaskPatch struct {
	Title           *string       `json:"title,omitempty"`
	Description     *string       `json:"description,omitempty"`
	Status          *TaskStatus   `json:"status,omitempty"`
	Priority        *TaskPriority `json:"priority,omitempty"`
	StartDate       *time.Time    `json:"start_date,omitempty"`
	EndDate         *time.Time    `json:"end_date,omitempty"`
	Duration        *int          `json:"duration,omitempty"`
	Progress        *int          `json:"progress,omitempty"`
	ParentTaskID    *int64        `json:"parent_task_id,omitempty"`
	AssignedTo      *int64        `json:"assigned_to,omitempty"`
	AssignedGroupID *int64        `json:"assigned_group_id,omitempty"`
}

// BulkTaskPatch is one entry of a bulk scheduling update. Only the
// scheduling attributes may change in bulk.
type BulkTaskPatch struct {
	ID        int64      `json:"id"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Duration  *int       `json:"duration,omitempty"`
	Progress  *int       `json:"progress,omitempty"`
}
