package storage

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kedhead/project-manager-sub000/pkg/models"
)

// mockStore implements Store with in-memory slices for tests.
type mockStore struct {
	projects     []models.Project
	members      []models.ProjectMember
	users        []models.User
	groups       []models.Group
	tasks        []models.Task
	dependencies []models.Dependency
	activity     []models.ActivityEntry
	nextID       int64
}

// NewMockStore returns an empty in-memory Store.
func NewMockStore() Store {
	return &mockStore{}
}

func (m *mockStore) Begin() (Store, error) { return m, nil }
func (m *mockStore) Commit() error         { return nil }
func (m *mockStore) Rollback() error       { return nil }
func (m *mockStore) Close() error          { return nil }

func (m *mockStore) nextSeq() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockStore) SaveProject(p models.Project) (int64, error) {
	p.ID = m.nextSeq()
	m.projects = append(m.projects, p)
	return p.ID, nil
}

func (m *mockStore) GetProject(id int64) (models.Project, error) {
	for _, p := range m.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Project{}, ErrNotFound
}

func (m *mockStore) ListProjects(userID int64) ([]models.Project, error) {
	var out []models.Project
	for _, p := range m.projects {
		for _, mem := range m.members {
			if mem.ProjectID == p.ID && mem.UserID == userID {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (m *mockStore) SaveMember(mem models.ProjectMember) error {
	for _, existing := range m.members {
		if existing.ProjectID == mem.ProjectID && existing.UserID == mem.UserID {
			return errors.New("member already exists")
		}
	}
	m.members = append(m.members, mem)
	return nil
}

func (m *mockStore) GetMemberRole(projectID, userID int64) (models.Role, error) {
	for _, mem := range m.members {
		if mem.ProjectID == projectID && mem.UserID == userID {
			return mem.Role, nil
		}
	}
	return "", ErrNotFound
}

func (m *mockStore) SaveUser(u models.User) (int64, error) {
	if u.ID == 0 {
		u.ID = m.nextSeq()
	}
	m.users = append(m.users, u)
	return u.ID, nil
}

func (m *mockStore) SaveGroup(g models.Group) (int64, error) {
	if g.ID == 0 {
		g.ID = m.nextSeq()
	}
	m.groups = append(m.groups, g)
	return g.ID, nil
}

func (m *mockStore) SaveTask(t models.Task) (int64, error) {
	t.ID = m.nextSeq()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	m.tasks = append(m.tasks, t)
	return t.ID, nil
}

// enrich fills the computed display fields the Postgres store joins in.
func (m *mockStore) enrich(t models.Task) models.Task {
	t.SubtaskCount = 0
	t.DependencyCount = 0
	for _, c := range m.tasks {
		if c.ParentTaskID != nil && *c.ParentTaskID == t.ID && c.DeletedAt == nil {
			t.SubtaskCount++
		}
	}
	for _, d := range m.dependencies {
		if d.TaskID == t.ID {
			t.DependencyCount++
		}
	}
	t.AssigneeName = ""
	t.GroupName = ""
	if t.AssignedTo != nil {
		for _, u := range m.users {
			if u.ID == *t.AssignedTo {
				t.AssigneeName = u.Name
			}
		}
	}
	if t.AssignedGroupID != nil {
		for _, g := range m.groups {
			if g.ID == *t.AssignedGroupID {
				t.GroupName = g.Name
			}
		}
	}
	return t
}

func (m *mockStore) GetTask(id int64) (models.Task, error) {
	for _, t := range m.tasks {
		if t.ID == id && t.DeletedAt == nil {
			return m.enrich(t), nil
		}
	}
	return models.Task{}, ErrNotFound
}

func (m *mockStore) GetTaskInProject(id, projectID int64) (models.Task, error) {
	t, err := m.GetTask(id)
	if err != nil || t.ProjectID != projectID {
		return models.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *mockStore) ListTasks(projectID int64, f models.TaskFilter) ([]models.Task, error) {
	out := []models.Task{}
	for _, t := range m.tasks {
		if t.ProjectID != projectID || t.DeletedAt != nil {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo) {
			continue
		}
		if f.RootOnly && t.ParentTaskID != nil {
			continue
		}
		if f.ParentTaskID != nil && (t.ParentTaskID == nil || *t.ParentTaskID != *f.ParentTaskID) {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(t.Title), needle) &&
				!strings.Contains(strings.ToLower(t.Description), needle) {
				continue
			}
		}
		out = append(out, m.enrich(t))
	}
	// Start date ascending, tasks without one last, then newest first.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.StartDate == nil && b.StartDate == nil:
			return a.CreatedAt.After(b.CreatedAt)
		case a.StartDate == nil:
			return false
		case b.StartDate == nil:
			return true
		case !a.StartDate.Equal(*b.StartDate):
			return a.StartDate.Before(*b.StartDate)
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out, nil
}

func (m *mockStore) UpdateTask(t models.Task) error {
	for i := range m.tasks {
		if m.tasks[i].ID == t.ID && m.tasks[i].DeletedAt == nil {
			t.CreatedAt = m.tasks[i].CreatedAt
			t.UpdatedAt = time.Now()
			t.DeletedAt = nil
			m.tasks[i] = t
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SoftDeleteTask(id int64) error {
	for i := range m.tasks {
		if m.tasks[i].ID == id && m.tasks[i].DeletedAt == nil {
			now := time.Now()
			m.tasks[i].DeletedAt = &now
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) CountTasksByStatus() (map[models.TaskStatus]int64, error) {
	counts := make(map[models.TaskStatus]int64)
	for _, t := range m.tasks {
		if t.DeletedAt == nil {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func (m *mockStore) SaveDependency(d models.Dependency) (int64, error) {
	d.ID = m.nextSeq()
	d.CreatedAt = time.Now()
	m.dependencies = append(m.dependencies, d)
	return d.ID, nil
}

func (m *mockStore) GetDependency(id int64) (models.Dependency, error) {
	for _, d := range m.dependencies {
		if d.ID == id {
			for _, p := range m.tasks {
				if p.ID == d.DependsOnTaskID && p.DeletedAt == nil {
					d.DependsOnTitle = p.Title
					d.DependsOnStatus = p.Status
					d.DependsOnProgress = p.Progress
				}
			}
			return d, nil
		}
	}
	return models.Dependency{}, ErrNotFound
}

func (m *mockStore) DeleteDependency(id int64) error {
	for i, d := range m.dependencies {
		if d.ID == id {
			m.dependencies = append(m.dependencies[:i], m.dependencies[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) DependencyExists(taskID, dependsOnTaskID int64) (bool, error) {
	for _, d := range m.dependencies {
		if d.TaskID == taskID && d.DependsOnTaskID == dependsOnTaskID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) ListOutgoing(taskID int64) ([]models.Dependency, error) {
	out := []models.Dependency{}
	for _, d := range m.dependencies {
		if d.TaskID != taskID {
			continue
		}
		// Join predecessor display fields, excluding tombstoned rows the
		// same way the SQL join does.
		for _, p := range m.tasks {
			if p.ID == d.DependsOnTaskID && p.DeletedAt == nil {
				d.DependsOnTitle = p.Title
				d.DependsOnStatus = p.Status
				d.DependsOnProgress = p.Progress
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

func (m *mockStore) AppendActivity(e models.ActivityEntry) error {
	e.ID = m.nextSeq()
	e.CreatedAt = time.Now()
	m.activity = append(m.activity, e)
	return nil
}
