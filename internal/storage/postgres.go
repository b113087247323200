package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kedhead/project-manager-sub000/pkg/models"
	"github.com/kedhead/project-manager-sub000/pkg/storage"
)

// DBInterface is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx so one
// store type serves both the pooled connection and an open transaction.
type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

func (s *PostgresStore) SaveProject(p models.Project) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO projects (name, description, owner_id, auto_scheduling)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Name, p.Description, p.OwnerID, p.AutoScheduling).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save project: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetProject(id int64) (models.Project, error) {
	var p models.Project
	err := s.db.Get(&p, "SELECT * FROM projects WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Project{}, storage.ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) ListProjects(userID int64) ([]models.Project, error) {
	projects := []models.Project{}
	err := s.db.Select(&projects, `
		SELECT p.* FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE m.user_id = $1
		ORDER BY p.created_at DESC`, userID)
	return projects, err
}

func (s *PostgresStore) SaveMember(m models.ProjectMember) error {
	_, err := s.db.Exec(`
		INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)`,
		m.ProjectID, m.UserID, m.Role)
	return err
}

func (s *PostgresStore) GetMemberRole(projectID, userID int64) (models.Role, error) {
	var role models.Role
	err := s.db.Get(&role,
		"SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2",
		projectID, userID)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	return role, err
}

// SaveUser upserts a user row. User ids are issued by the external account
// system; this table only carries display names.
func (s *PostgresStore) SaveUser(u models.User) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO users (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, u.ID, u.Name).Scan(&id)
	return id, err
}

func (s *PostgresStore) SaveGroup(g models.Group) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO user_groups (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, g.ID, g.Name).Scan(&id)
	return id, err
}

// taskSelect joins the display fields every task read carries: assignee
// and group names plus live-subtask and outgoing-edge counts.
const taskSelect = `
	SELECT t.*,
		COALESCE(u.name, '') AS assignee_name,
		COALESCE(g.name, '') AS group_name,
		(SELECT COUNT(*) FROM tasks c
			WHERE c.parent_task_id = t.id AND c.deleted_at IS NULL) AS subtask_count,
		(SELECT COUNT(*) FROM dependencies d
			WHERE d.task_id = t.id) AS dependency_count
	FROM tasks t
	LEFT JOIN users u ON u.id = t.assigned_to
	LEFT JOIN user_groups g ON g.id = t.assigned_group_id`

func (s *PostgresStore) SaveTask(t models.Task) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO tasks (project_id, title, description, status, priority,
			start_date, end_date, duration, progress, parent_task_id,
			created_by, assigned_to, assigned_group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		t.ProjectID, t.Title, t.Description, t.Status, t.Priority,
		t.StartDate, t.EndDate, t.Duration, t.Progress, t.ParentTaskID,
		t.CreatedBy, t.AssignedTo, t.AssignedGroupID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save task: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTask(id int64) (models.Task, error) {
	var t models.Task
	err := s.db.Get(&t, taskSelect+" WHERE t.id = $1 AND t.deleted_at IS NULL", id)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) GetTaskInProject(id, projectID int64) (models.Task, error) {
	var t models.Task
	err := s.db.Get(&t,
		taskSelect+" WHERE t.id = $1 AND t.project_id = $2 AND t.deleted_at IS NULL",
		id, projectID)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) ListTasks(projectID int64, f models.TaskFilter) ([]models.Task, error) {
	conds := []string{"t.project_id = $1", "t.deleted_at IS NULL"}
	args := []interface{}{projectID}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("t.status = $%d", f.Status)
	}
	if f.Priority != "" {
		add("t.priority = $%d", f.Priority)
	}
	if f.AssignedTo != nil {
		add("t.assigned_to = $%d", *f.AssignedTo)
	}
	if f.RootOnly {
		conds = append(conds, "t.parent_task_id IS NULL")
	} else if f.ParentTaskID != nil {
		add("t.parent_task_id = $%d", *f.ParentTaskID)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf(
			"(t.title ILIKE $%d OR t.description ILIKE $%d)", len(args), len(args)))
	}

	query := taskSelect + " WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY t.start_date ASC NULLS LAST, t.created_at DESC"
	tasks := []models.Task{}
	err := s.db.Select(&tasks, query, args...)
	return tasks, err
}

func (s *PostgresStore) UpdateTask(t models.Task) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET title = $1, description = $2, status = $3, priority = $4,
			start_date = $5, end_date = $6, duration = $7, progress = $8,
			parent_task_id = $9, assigned_to = $10, assigned_group_id = $11,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $12 AND deleted_at IS NULL`,
		t.Title, t.Description, t.Status, t.Priority,
		t.StartDate, t.EndDate, t.Duration, t.Progress,
		t.ParentTaskID, t.AssignedTo, t.AssignedGroupID, t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SoftDeleteTask(id int64) error {
	res, err := s.db.Exec(
		"UPDATE tasks SET deleted_at = CURRENT_TIMESTAMP WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountTasksByStatus() (map[models.TaskStatus]int64, error) {
	var rows []struct {
		Status models.TaskStatus `db:"status"`
		Count  int64             `db:"count"`
	}
	err := s.db.Select(&rows,
		"SELECT status, COUNT(*) AS count FROM tasks WHERE deleted_at IS NULL GROUP BY status")
	if err != nil {
		return nil, err
	}
	counts := make(map[models.TaskStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *PostgresStore) SaveDependency(d models.Dependency) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO dependencies (task_id, depends_on_task_id, dependency_type, lag_time)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		d.TaskID, d.DependsOnTaskID, d.Type, d.LagTime).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save dependency: %w", err)
	}
	return id, nil
}

// GetDependency left-joins the predecessor so the edge remains addressable
// (for removal) even after its predecessor is tombstoned.
func (s *PostgresStore) GetDependency(id int64) (models.Dependency, error) {
	var d models.Dependency
	err := s.db.Get(&d, `
		SELECT d.*,
			COALESCE(p.title, '') AS depends_on_title,
			COALESCE(p.status, '') AS depends_on_status,
			COALESCE(p.progress, 0) AS depends_on_progress
		FROM dependencies d
		LEFT JOIN tasks p ON p.id = d.depends_on_task_id AND p.deleted_at IS NULL
		WHERE d.id = $1`, id)
	if err == sql.ErrNoRows {
		return models.Dependency{}, storage.ErrNotFound
	}
	return d, err
}

func (s *PostgresStore) DeleteDependency(id int64) error {
	res, err := s.db.Exec("DELETE FROM dependencies WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete dependency %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DependencyExists(taskID, dependsOnTaskID int64) (bool, error) {
	var exists bool
	err := s.db.Get(&exists,
		"SELECT EXISTS (SELECT 1 FROM dependencies WHERE task_id = $1 AND depends_on_task_id = $2)",
		taskID, dependsOnTaskID)
	return exists, err
}

func (s *PostgresStore) ListOutgoing(taskID int64) ([]models.Dependency, error) {
	deps := []models.Dependency{}
	err := s.db.Select(&deps, `
		SELECT d.*,
			p.title AS depends_on_title,
			p.status AS depends_on_status,
			p.progress AS depends_on_progress
		FROM dependencies d
		JOIN tasks p ON p.id = d.depends_on_task_id AND p.deleted_at IS NULL
		WHERE d.task_id = $1
		ORDER BY d.id`, taskID)
	return deps, err
}

func (s *PostgresStore) AppendActivity(e models.ActivityEntry) error {
	// The driver sends string params untyped, so the server parses them
	// straight into the jsonb column; []byte would arrive as bytea.
	var payload interface{}
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	_, err := s.db.Exec(`
		INSERT INTO activity_log (project_id, user_id, entity_type, entity_id, action, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ProjectID, e.UserID, e.EntityType, e.EntityID, e.Action, payload)
	return err
}
