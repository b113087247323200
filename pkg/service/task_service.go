package service

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/kedhead/project-manager-sub000/pkg/models"
	"github.com/kedhead/project-manager-sub000/pkg/storage"
)

// Logger defines the logging interface the services write to.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// TaskService owns task persistence and the mutation protocol around it:
// every mutation runs as one transaction that authorizes the actor,
// validates the prospective state, persists, and appends an activity entry.
type TaskService struct {
	store  storage.Store
	logger Logger
}

func NewTaskService(store storage.Store, logger Logger) *TaskService {
	return &TaskService{store: store, logger: logger}
}

// inTx runs fn inside one transaction, rolling back on error and
// committing otherwise.
func (s *TaskService) inTx(fn func(tx storage.Store) error) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()
	err = fn(txStore)
	return err
}

// requireEditor resolves the actor's role once per transaction and rejects
// non-members and viewers. All core operations are single-project, so the
// role is not re-derived per entity.
func requireEditor(tx storage.Store, projectID, actorID int64) (models.Role, error) {
	role, err := tx.GetMemberRole(projectID, actorID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", permissionf("user %d is not a member of project %d", actorID, projectID)
	}
	if err != nil {
		return "", err
	}
	if !role.CanMutate() {
		return "", permissionf("role %q may not modify tasks", role)
	}
	return role, nil
}

func appendActivity(tx storage.Store, projectID, actorID int64, entity models.EntityType,
	entityID int64, action models.ActivityAction, changes map[string]interface{}) error {
	var payload json.RawMessage
	if len(changes) > 0 {
		b, err := json.Marshal(changes)
		if err != nil {
			return errors.Wrap(err, "marshal activity payload")
		}
		payload = b
	}
	return tx.AppendActivity(models.ActivityEntry{
		ProjectID:  projectID,
		UserID:     actorID,
		EntityType: entity,
		EntityID:   entityID,
		Action:     action,
		Payload:    payload,
	})
}

func validateDateOrder(start, end *time.Time) error {
	if start != nil && end != nil && start.After(*end) {
		return validationf("start_date must not be after end_date")
	}
	return nil
}

func validateProgress(p int) error {
	if p < 0 || p > 100 {
		return validationf("progress must be between 0 and 100, got %d", p)
	}
	return nil
}

// validateAssignee ensures the assignee is a member of the project.
func validateAssignee(tx storage.Store, projectID, userID int64) error {
	if _, err := tx.GetMemberRole(projectID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFoundf("assignee %d is not a member of project %d", userID, projectID)
		}
		return err
	}
	return nil
}

// CreateTaskInput carries the writable fields of a new task. Status and
// Priority default to not_started/medium when empty.
type CreateTaskInput struct {
	Title           string
	Description     string
	Status          models.TaskStatus
	Priority        models.TaskPriority
	StartDate       *time.Time
	EndDate         *time.Time
	Duration        *int
	Progress        int
	ParentTaskID    *int64
	AssignedTo      *int64
	AssignedGroupID *int64
}

// CreateTask validates and persists a new task, returning it with zero
// subtask/dependency counts.
func (s *TaskService) CreateTask(projectID, actorID int64, in CreateTaskInput) (models.Task, error) {
	if in.Title == "" {
		return models.Task{}, validationf("title is required")
	}
	if in.Status == "" {
		in.Status = models.NotStartedTaskStatus
	}
	if !in.Status.IsValid() {
		return models.Task{}, validationf("invalid status %q", in.Status)
	}
	if in.Priority == "" {
		in.Priority = models.MediumTaskPriority
	}
	if !in.Priority.IsValid() {
		return models.Task{}, validationf("invalid priority %q", in.Priority)
	}
	if err := validateDateOrder(in.StartDate, in.EndDate); err != nil {
		return models.Task{}, err
	}
	if err := validateProgress(in.Progress); err != nil {
		return models.Task{}, err
	}

	var created models.Task
	err := s.inTx(func(tx storage.Store) error {
		if _, err := tx.GetProject(projectID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFoundf("project %d not found", projectID)
			}
			return err
		}
		if _, err := requireEditor(tx, projectID, actorID); err != nil {
			return err
		}
		if in.ParentTaskID != nil {
			parent, err := tx.GetTask(*in.ParentTaskID)
			if errors.Is(err, storage.ErrNotFound) {
				return notFoundf("parent task %d not found", *in.ParentTaskID)
			}
			if err != nil {
				return err
			}
			if parent.ProjectID != projectID {
				return validationf("parent task %d belongs to a different project", *in.ParentTaskID)
			}
		}
		if in.AssignedTo != nil {
			if err := validateAssignee(tx, projectID, *in.AssignedTo); err != nil {
				return err
			}
		}

		id, err := tx.SaveTask(models.Task{
			ProjectID:       projectID,
			Title:           in.Title,
			Description:     in.Description,
			Status:          in.Status,
			Priority:        in.Priority,
			StartDate:       in.StartDate,
			EndDate:         in.EndDate,
			Duration:        in.Duration,
			Progress:        in.Progress,
			ParentTaskID:    in.ParentTaskID,
			CreatedBy:       actorID,
			AssignedTo:      in.AssignedTo,
			AssignedGroupID: in.AssignedGroupID,
		})
		if err != nil {
			return errors.Wrap(err, "save task")
		}
		if err := appendActivity(tx, projectID, actorID, models.TaskEntity, id,
			models.CreatedAction, map[string]interface{}{"title": in.Title}); err != nil {
			return err
		}
		created, err = tx.GetTask(id)
		return err
	})
	if err != nil {
		return models.Task{}, err
	}
	s.logger.Infof("Created task %d in project %d", created.ID, projectID)
	return created, nil
}

// ListTasks returns the project's live tasks, filtered, ordered by start
// date ascending (tasks without one last), creation time descending.
func (s *TaskService) ListTasks(projectID int64, f models.TaskFilter) ([]models.Task, error) {
	if _, err := s.store.GetProject(projectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFoundf("project %d not found", projectID)
		}
		return nil, err
	}
	return s.store.ListTasks(projectID, f)
}

// GetTask returns the task with its outgoing dependency edges joined in.
func (s *TaskService) GetTask(taskID int64) (models.Task, error) {
	task, err := s.store.GetTask(taskID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Task{}, notFoundf("task %d not found", taskID)
	}
	if err != nil {
		return models.Task{}, err
	}
	deps, err := s.store.ListOutgoing(taskID)
	if err != nil {
		return models.Task{}, err
	}
	task.Dependencies = deps
	return task, nil
}

// UpdateTask applies a partial update. Date ordering is validated against
// the prospective state: an unchanged bound is read from the stored row.
func (s *TaskService) UpdateTask(taskID, actorID int64, patch models.TaskPatch) (models.Task, error) {
	var updated models.Task
	err := s.inTx(func(tx storage.Store) error {
		task, err := tx.GetTask(taskID)
		if errors.Is(err, storage.ErrNotFound) {
			return notFoundf("task %d not found", taskID)
		}
		if err != nil {
			return err
		}
		if _, err := requireEditor(tx, task.ProjectID, actorID); err != nil {
			return err
		}

		changes := make(map[string]interface{})
		if patch.Title != nil {
			if *patch.Title == "" {
				return validationf("title cannot be empty")
			}
			task.Title = *patch.Title
			changes["title"] = task.Title
		}
		if patch.Description != nil {
			task.Description = *patch.Description
			changes["description"] = task.Description
		}
		if patch.Status != nil {
			if !patch.Status.IsValid() {
				return validationf("invalid status %q", *patch.Status)
			}
			task.Status = *patch.Status
			changes["status"] = task.Status
		}
		if patch.Priority != nil {
			if !patch.Priority.IsValid() {
				return validationf("invalid priority %q", *patch.Priority)
			}
			task.Priority = *patch.Priority
			changes["priority"] = task.Priority
		}
		if patch.StartDate != nil {
			task.StartDate = patch.StartDate
			changes["start_date"] = patch.StartDate
		}
		if patch.EndDate != nil {
			task.EndDate = patch.EndDate
			changes["end_date"] = patch.EndDate
		}
		if patch.Duration != nil {
			task.Duration = patch.Duration
			changes["duration"] = *patch.Duration
		}
		if patch.Progress != nil {
			if err := validateProgress(*patch.Progress); err != nil {
				return err
			}
			task.Progress = *patch.Progress
			changes["progress"] = task.Progress
		}
		if patch.ParentTaskID != nil {
			if *patch.ParentTaskID == 0 {
				task.ParentTaskID = nil
				changes["parent_task_id"] = nil
			} else {
				if *patch.ParentTaskID == taskID {
					return validationf("task cannot be its own parent")
				}
				parent, err := tx.GetTask(*patch.ParentTaskID)
				if errors.Is(err, storage.ErrNotFound) {
					return notFoundf("parent task %d not found", *patch.ParentTaskID)
				}
				if err != nil {
					return err
				}
				if parent.ProjectID != task.ProjectID {
					return validationf("parent task %d belongs to a different project", parent.ID)
				}
				task.ParentTaskID = patch.ParentTaskID
				changes["parent_task_id"] = *patch.ParentTaskID
			}
		}
		if patch.AssignedTo != nil {
			if *patch.AssignedTo == 0 {
				task.AssignedTo = nil
				changes["assigned_to"] = nil
			} else {
				if err := validateAssignee(tx, task.ProjectID, *patch.AssignedTo); err != nil {
					return err
				}
				task.AssignedTo = patch.AssignedTo
				changes["assigned_to"] = *patch.AssignedTo
			}
		}
		if patch.AssignedGroupID != nil {
			if *patch.AssignedGroupID == 0 {
				task.AssignedGroupID = nil
				changes["assigned_group_id"] = nil
			} else {
				task.AssignedGroupID = patch.AssignedGroupID
				changes["assigned_group_id"] = *patch.AssignedGroupID
			}
		}

		if err := validateDateOrder(task.StartDate, task.EndDate); err != nil {
			return err
		}
		if err := tx.UpdateTask(task); err != nil {
			return errors.Wrap(err, "update task")
		}
		if err := appendActivity(tx, task.ProjectID, actorID, models.TaskEntity, taskID,
			models.UpdatedAction, changes); err != nil {
			return err
		}
		updated, err = tx.GetTask(taskID)
		return err
	})
	if err != nil {
		return models.Task{}, err
	}
	return updated, nil
}

// DeleteTask tombstones the task. Dependency edges and children are not
// cascaded; reads exclude dead rows at join time instead.
func (s *TaskService) DeleteTask(taskID, actorID int64) error {
	return s.inTx(func(tx storage.Store) error {
		task, err := tx.GetTask(taskID)
		if errors.Is(err, storage.ErrNotFound) {
			return notFoundf("task %d not found", taskID)
		}
		if err != nil {
			return err
		}
		if _, err := requireEditor(tx, task.ProjectID, actorID); err != nil {
			return err
		}
		if err := tx.SoftDeleteTask(taskID); err != nil {
			return errors.Wrap(err, "delete task")
		}
		return appendActivity(tx, task.ProjectID, actorID, models.TaskEntity, taskID,
			models.DeletedAction, map[string]interface{}{"title": task.Title})
	})
}

// BulkUpdateTasks applies scheduling patches in one transaction. Patches
// whose id does not resolve inside the project are silent no-ops; the
// caller computes correct shifted values, nothing is cross-validated
// between tasks here.
func (s *TaskService) BulkUpdateTasks(projectID, actorID int64, patches []models.BulkTaskPatch) error {
	return s.inTx(func(tx storage.Store) error {
		if _, err := tx.GetProject(projectID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFoundf("project %d not found", projectID)
			}
			return err
		}
		if _, err := requireEditor(tx, projectID, actorID); err != nil {
			return err
		}
		for _, p := range patches {
			task, err := tx.GetTaskInProject(p.ID, projectID)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			changes := make(map[string]interface{})
			if p.StartDate != nil {
				task.StartDate = p.StartDate
				changes["start_date"] = p.StartDate
			}
			if p.EndDate != nil {
				task.EndDate = p.EndDate
				changes["end_date"] = p.EndDate
			}
			if p.Duration != nil {
				task.Duration = p.Duration
				changes["duration"] = *p.Duration
			}
			if p.Progress != nil {
				if err := validateProgress(*p.Progress); err != nil {
					return err
				}
				task.Progress = *p.Progress
				changes["progress"] = task.Progress
			}
			if len(changes) == 0 {
				continue
			}
			if err := validateDateOrder(task.StartDate, task.EndDate); err != nil {
				return err
			}
			if err := tx.UpdateTask(task); err != nil {
				return errors.Wrapf(err, "bulk update task %d", p.ID)
			}
			if err := appendActivity(tx, projectID, actorID, models.TaskEntity, p.ID,
				models.UpdatedAction, changes); err != nil {
				return err
			}
		}
		return nil
	})
}
