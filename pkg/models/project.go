package models

import "time"

// Project is the tenancy boundary: tasks, edges, members, and activity all
// hang off one project.
type Project struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	// AutoScheduling is a persisted toggle only; no component propagates
	// date changes through dependency edges when it is on.
	AutoScheduling bool      `json:"auto_scheduling" db:"auto_scheduling"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type Role string

const (
	OwnerRole   Role = "owner"
	ManagerRole Role = "manager"
	MemberRole  Role = "member"
	ViewerRole  Role = "viewer"
)

func (r Role) IsValid() bool {
	switch r {
	case OwnerRole, ManagerRole, MemberRole, ViewerRole:
		return true
	default:
		return false
	}
}

// CanMutate reports whether the role may perform task/dependency
// mutations. Viewer is the only blocked role at this layer.
func (r Role) CanMutate() bool {
	return r.IsValid() && r != ViewerRole
}

type ProjectMember struct {
	ProjectID int64     `json:"project_id" db:"project_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User and Group carry only the display names this core joins into task
// reads; account management lives outside this system.
type User struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Group struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
