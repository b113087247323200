package service

import (
	"github.com/pkg/errors"

	"github.com/kedhead/project-manager-sub000/pkg/models"
	"github.com/kedhead/project-manager-sub000/pkg/storage"
)

// ProjectService covers the project/member collaborator surface the
// scheduling core consumes: project bootstrap and membership rows.
type ProjectService struct {
	store  storage.Store
	logger Logger
}

func NewProjectService(store storage.Store, logger Logger) *ProjectService {
	return &ProjectService{store: store, logger: logger}
}

func (s *ProjectService) inTx(fn func(tx storage.Store) error) (err error) {
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

// CreateProject persists the project and its owner membership row in one
// transaction.
func (s *ProjectService) CreateProject(ownerID int64, name, description string, autoScheduling bool) (models.Project, error) {
	if name == "" {
		return models.Project{}, validationf("project name is required")
	}
	if len(name) > 100 {
		return models.Project{}, validationf("project name too long (max 100 characters)")
	}
	var created models.Project
	err := s.inTx(func(tx storage.Store) error {
		id, err := tx.SaveProject(models.Project{
			Name:           name,
			Description:    description,
			OwnerID:        ownerID,
			AutoScheduling: autoScheduling,
		})
		if err != nil {
			return errors.Wrap(err, "save project")
		}
		if err := tx.SaveMember(models.ProjectMember{
			ProjectID: id,
			UserID:    ownerID,
			Role:      models.OwnerRole,
		}); err != nil {
			return errors.Wrap(err, "save owner membership")
		}
		created, err = tx.GetProject(id)
		return err
	})
	if err != nil {
		return models.Project{}, err
	}
	s.logger.Infof("Created project '%s' with ID %d", name, created.ID)
	return created, nil
}

func (s *ProjectService) GetProject(id int64) (models.Project, error) {
	p, err := s.store.GetProject(id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Project{}, notFoundf("project %d not found", id)
	}
	return p, err
}

// ListProjects returns the projects the user is a member of.
func (s *ProjectService) ListProjects(userID int64) ([]models.Project, error) {
	return s.store.ListProjects(userID)
}

// AddMember records a membership row. Only owners and managers may manage
// membership.
func (s *ProjectService) AddMember(actorID, projectID, userID int64, role models.Role) error {
	if !role.IsValid() {
		return validationf("invalid role %q", role)
	}
	return s.inTx(func(tx storage.Store) error {
		if _, err := tx.GetProject(projectID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFoundf("project %d not found", projectID)
			}
			return err
		}
		actorRole, err := tx.GetMemberRole(projectID, actorID)
		if errors.Is(err, storage.ErrNotFound) {
			return permissionf("user %d is not a member of project %d", actorID, projectID)
		}
		if err != nil {
			return err
		}
		if actorRole != models.OwnerRole && actorRole != models.ManagerRole {
			return permissionf("role %q may not manage members", actorRole)
		}
		if _, err := tx.GetMemberRole(projectID, userID); err == nil {
			return conflictf("user %d is already a member of project %d", userID, projectID)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.SaveMember(models.ProjectMember{
			ProjectID: projectID,
			UserID:    userID,
			Role:      role,
		})
	})
}
