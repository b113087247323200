package storage

import (
	"github.com/pkg/errors"

	"github.com/kedhead/project-manager-sub000/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist or is
// tombstoned. Services translate it into their own not-found error kind.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations for the scheduling core.
// Begin returns a transactional view of the same interface; a mutation and
// its activity entry always share one transaction.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Projects and membership
	SaveProject(p models.Project) (int64, error)
	GetProject(id int64) (models.Project, error)
	ListProjects(userID int64) ([]models.Project, error)
	SaveMember(m models.ProjectMember) error
	// GetMemberRole returns ErrNotFound when the user is not a member.
	GetMemberRole(projectID, userID int64) (models.Role, error)

	// Users and groups (display names only)
	SaveUser(u models.User) (int64, error)
	SaveGroup(g models.Group) (int64, error)

	// Tasks. All reads exclude tombstoned rows.
	SaveTask(t models.Task) (int64, error)
	GetTask(id int64) (models.Task, error)
	GetTaskInProject(id, projectID int64) (models.Task, error)
	ListTasks(projectID int64, f models.TaskFilter) ([]models.Task, error)
	UpdateTask(t models.Task) error
	SoftDeleteTask(id int64) error
	CountTasksByStatus() (map[models.TaskStatus]int64, error)

	// Dependency edges
	SaveDependency(d models.Dependency) (int64, error)
	GetDependency(id int64) (models.Dependency, error)
	DeleteDependency(id int64) error
	DependencyExists(taskID, dependsOnTaskID int64) (bool, error)
	ListOutgoing(taskID int64) ([]models.Dependency, error)

	// Activity log
	AppendActivity(e models.ActivityEntry) error
}
