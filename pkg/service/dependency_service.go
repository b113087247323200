package service

import (
	"github.com/pkg/errors"

	"github.com/kedhead/project-manager-sub000/pkg/models"
	"github.com/kedhead/project-manager-sub000/pkg/storage"
)

// DependencyService owns the directed dependency edges between tasks.
// Structural invariants enforced on insert: no self-loop, at most one edge
// per ordered pair, both endpoints live and in the same project.
//
// The edge set is not checked for directed cycles; the dependency
// semantics assume acyclicity but nothing enforces it.
type DependencyService struct {
	store  storage.Store
	logger Logger
}

func NewDependencyService(store storage.Store, logger Logger) *DependencyService {
	return &DependencyService{store: store, logger: logger}
}

func (s *DependencyService) inTx(fn func(tx storage.Store) error) (err error) {
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

// AddDependency creates the edge taskID -> dependsOnTaskID. The type
// defaults to finish_to_start and lag to 0 when unset.
func (s *DependencyService) AddDependency(actorID, taskID, dependsOnTaskID int64,
	depType models.DependencyType, lagTime int) (models.Dependency, error) {
	if taskID == dependsOnTaskID {
		return models.Dependency{}, validationf("task cannot depend on itself")
	}
	if depType == "" {
		depType = models.FinishToStart
	}
	if !depType.IsValid() {
		return models.Dependency{}, validationf("invalid dependency type %q", depType)
	}

	var created models.Dependency
	err := s.inTx(func(tx storage.Store) error {
		task, err := tx.GetTask(taskID)
		if errors.Is(err, storage.ErrNotFound) {
			return notFoundf("task %d not found", taskID)
		}
		if err != nil {
			return err
		}
		predecessor, err := tx.GetTask(dependsOnTaskID)
		if errors.Is(err, storage.ErrNotFound) {
			return notFoundf("task %d not found", dependsOnTaskID)
		}
		if err != nil {
			return err
		}
		if task.ProjectID != predecessor.ProjectID {
			return validationf("tasks %d and %d belong to different projects", taskID, dependsOnTaskID)
		}
		if _, err := requireEditor(tx, task.ProjectID, actorID); err != nil {
			return err
		}
		exists, err := tx.DependencyExists(taskID, dependsOnTaskID)
		if err != nil {
			return err
		}
		if exists {
			return conflictf("task %d already depends on task %d", taskID, dependsOnTaskID)
		}

		id, err := tx.SaveDependency(models.Dependency{
			TaskID:          taskID,
			DependsOnTaskID: dependsOnTaskID,
			Type:            depType,
			LagTime:         lagTime,
		})
		if err != nil {
			return errors.Wrap(err, "save dependency")
		}
		if err := appendActivity(tx, task.ProjectID, actorID, models.TaskDependencyEntity, id,
			models.CreatedAction, map[string]interface{}{
				"task_id":            taskID,
				"depends_on_task_id": dependsOnTaskID,
				"dependency_type":    depType,
				"lag_time":           lagTime,
			}); err != nil {
			return err
		}
		created, err = tx.GetDependency(id)
		return err
	})
	if err != nil {
		return models.Dependency{}, err
	}
	s.logger.Infof("Created dependency %d: task %d depends on task %d (%s)",
		created.ID, taskID, dependsOnTaskID, depType)
	return created, nil
}

// RemoveDependency deletes the edge unconditionally once the actor's role
// allows it. Type/lag edits are modeled by callers as remove + add; there
// is no in-place update.
func (s *DependencyService) RemoveDependency(actorID, dependencyID int64) error {
	return s.inTx(func(tx storage.Store) error {
		dep, err := tx.GetDependency(dependencyID)
		if errors.Is(err, storage.ErrNotFound) {
			return notFoundf("dependency %d not found", dependencyID)
		}
		if err != nil {
			return err
		}
		// The successor may already be tombstoned; the edge row still
		// carries enough context to authorize against its project.
		task, err := tx.GetTask(dep.TaskID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		projectID := task.ProjectID
		if projectID == 0 {
			predecessor, err := tx.GetTask(dep.DependsOnTaskID)
			if errors.Is(err, storage.ErrNotFound) {
				return notFoundf("dependency %d endpoints not found", dependencyID)
			}
			if err != nil {
				return err
			}
			projectID = predecessor.ProjectID
		}
		if _, err := requireEditor(tx, projectID, actorID); err != nil {
			return err
		}
		if err := tx.DeleteDependency(dependencyID); err != nil {
			return errors.Wrap(err, "delete dependency")
		}
		return appendActivity(tx, projectID, actorID, models.TaskDependencyEntity, dependencyID,
			models.DeletedAction, map[string]interface{}{
				"task_id":            dep.TaskID,
				"depends_on_task_id": dep.DependsOnTaskID,
			})
	})
}

// ListOutgoing returns the edges where taskID is the successor, with
// predecessor display fields joined. Edges whose predecessor has been
// tombstoned are excluded at read time.
func (s *DependencyService) ListOutgoing(taskID int64) ([]models.Dependency, error) {
	if _, err := s.store.GetTask(taskID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFoundf("task %d not found", taskID)
		}
		return nil, err
	}
	return s.store.ListOutgoing(taskID)
}
