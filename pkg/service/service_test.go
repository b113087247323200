package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kedhead/project-manager-sub000/pkg/models"
	"github.com/kedhead/project-manager-sub000/pkg/service"
	"github.com/kedhead/project-manager-sub000/pkg/storage"
)

type logger struct{}

func (l logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (l logger) Errorf(format string, args ...interface{}) {
	// no-op
}

const (
	ownerID  = int64(101)
	memberID = int64(102)
	viewerID = int64(103)
)

type fixture struct {
	store     storage.Store
	projects  *service.ProjectService
	tasks     *service.TaskService
	deps      *service.DependencyService
	projectID int64
}

func newFixture(t *testing.T) *fixture {
	store := storage.NewMockStore()
	f := &fixture{
		store:    store,
		projects: service.NewProjectService(store, logger{}),
		tasks:    service.NewTaskService(store, logger{}),
		deps:     service.NewDependencyService(store, logger{}),
	}
	project, err := f.projects.CreateProject(ownerID, "test project", "", false)
	assert.NoError(t, err)
	f.projectID = project.ID
	assert.NoError(t, f.projects.AddMember(ownerID, f.projectID, memberID, models.MemberRole))
	assert.NoError(t, f.projects.AddMember(ownerID, f.projectID, viewerID, models.ViewerRole))
	return f
}

func (f *fixture) mustCreateTask(t *testing.T, in service.CreateTaskInput) models.Task {
	task, err := f.tasks.CreateTask(f.projectID, ownerID, in)
	assert.NoError(t, err)
	return task
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestAddDependencyInvariants(t *testing.T) {
	t.Run("SelfDependency", func(t *testing.T) {
		f := newFixture(t)
		task := f.mustCreateTask(t, service.CreateTaskInput{Title: "solo"})
		_, err := f.deps.AddDependency(ownerID, task.ID, task.ID, models.FinishToStart, 0)
		assert.Error(t, err)
		assert.True(t, service.IsValidation(err))
	})

	t.Run("DuplicateEdgeRejectedReverseAllowed", func(t *testing.T) {
		f := newFixture(t)
		a := f.mustCreateTask(t, service.CreateTaskInput{Title: "a"})
		b := f.mustCreateTask(t, service.CreateTaskInput{Title: "b"})

		_, err := f.deps.AddDependency(ownerID, a.ID, b.ID, models.FinishToStart, 0)
		assert.NoError(t, err)

		// Same ordered pair, different type and lag: still a conflict.
		_, err = f.deps.AddDependency(ownerID, a.ID, b.ID, models.StartToStart, 3)
		assert.Error(t, err)
		assert.True(t, service.IsConflict(err))

		// Directionality matters: the reverse pair is a distinct edge.
		_, err = f.deps.AddDependency(ownerID, b.ID, a.ID, models.FinishToStart, 0)
		assert.NoError(t, err)
	})

	t.Run("CrossProjectRejected", func(t *testing.T) {
		f := newFixture(t)
		other, err := f.projects.CreateProject(ownerID, "other project", "", false)
		assert.NoError(t, err)
		a := f.mustCreateTask(t, service.CreateTaskInput{Title: "a"})
		foreign, err := f.tasks.CreateTask(other.ID, ownerID, service.CreateTaskInput{Title: "foreign"})
		assert.NoError(t, err)

		_, err = f.deps.AddDependency(ownerID, a.ID, foreign.ID, models.FinishToStart, 0)
		assert.Error(t, err)
		assert.True(t, service.IsValidation(err))
	})

	t.Run("InvalidType", func(t *testing.T) {
		f := newFixture(t)
		a := f.mustCreateTask(t, service.CreateTaskInput{Title: "a"})
		b := f.mustCreateTask(t, service.CreateTaskInput{Title: "b"})
		_, err := f.deps.AddDependency(ownerID, a.ID, b.ID, "sideways", 0)
		assert.Error(t, err)
		assert.True(t, service.IsValidation(err))
	})

	t.Run("TypeDefaultsToFinishToStart", func(t *testing.T) {
		f := newFixture(t)
		a := f.mustCreateTask(t, service.CreateTaskInput{Title: "a"})
		b := f.mustCreateTask(t, service.CreateTaskInput{Title: "b"})
		dep, err := f.deps.AddDependency(ownerID, a.ID, b.ID, "", 0)
		assert.NoError(t, err)
		assert.Equal(t, models.FinishToStart, dep.Type)
	})
}

func TestDateOrderInvariant(t *testing.T) {
	t.Run("CreateRejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.tasks.CreateTask(f.projectID, ownerID, service.CreateTaskInput{
			Title:     "backwards",
			StartDate: date(2025, time.January, 10),
			EndDate:   date(2025, time.January, 5),
		})
		assert.Error(t, err)
		assert.True(t, service.IsValidation(err))
	})

	t.Run("UpdateRejectedAgainstProspectiveState", func(t *testing.T) {
		f := newFixture(t)
		task := f.mustCreateTask(t, service.CreateTaskInput{
			Title:     "scheduled",
			StartDate: date(2025, time.January, 1),
			EndDate:   date(2025, time.January, 5),
		})

		// Only the start moves; it must be checked against the stored end.
		_, err := f.tasks.UpdateTask(task.ID, ownerID, models.TaskPatch{
			StartDate: date(2025, time.January, 20),
		})
		assert.Error(t, err)
		assert.True(t, service.IsValidation(err))

		// No partial write: the task still reads as before.
		unchanged, err := f.tasks.GetTask(task.ID)
		assert.NoError(t, err)
		assert.True(t, unchanged.StartDate.Equal(*date(2025, time.January, 1)))
		assert.True(t, unchanged.EndDate.Equal(*date(2025, time.January, 5)))
	})

	t.Run("EqualDatesAllowed", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.tasks.CreateTask(f.projectID, ownerID, service.CreateTaskInput{
			Title:     "milestone",
			StartDate: date(2025, time.March, 1),
			EndDate:   date(2025, time.March, 1),
		})
		assert.NoError(t, err)
	})
}

func TestProgressBounds(t *testing.T) {
	f := newFixture(t)
	task := f.mustCreateTask(t, service.CreateTaskInput{Title: "progressing"})

	for _, p := range []int{-1, 101, 250} {
		bad := p
		_, err := f.tasks.UpdateTask(task.ID, ownerID, models.TaskPatch{Progress: &bad})
		assert.Error(t, err, "progress %d", p)
		assert.True(t, service.IsValidation(err))
	}
	for _, p := range []int{0, 50, 100} {
		ok := p
		updated, err := f.tasks.UpdateTask(task.ID, ownerID, models.TaskPatch{Progress: &ok})
		assert.NoError(t, err, "progress %d", p)
		assert.Equal(t, p, updated.Progress)
	}
}

func TestSelfParentingRejected(t *testing.T) {
	f := newFixture(t)
	task := f.mustCreateTask(t, service.CreateTaskInput{Title: "loner"})
	_, err := f.tasks.UpdateTask(task.ID, ownerID, models.TaskPatch{ParentTaskID: &task.ID})
	assert.Error(t, err)
	assert.True(t, service.IsValidation(err))
}

func TestHierarchy(t *testing.T) {
	f := newFixture(t)
	parent := f.mustCreateTask(t, service.CreateTaskInput{Title: "phase"})
	child := f.mustCreateTask(t, service.CreateTaskInput{Title: "step", ParentTaskID: &parent.ID})

	got, err := f.tasks.GetTask(parent.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, got.SubtaskCount)

	// Clearing the parent with an explicit zero.
	var root int64
	updated, err := f.tasks.UpdateTask(child.ID, ownerID, models.TaskPatch{ParentTaskID: &root})
	assert.NoError(t, err)
	assert.Nil(t, updated.ParentTaskID)
}

func TestSoftDeleteVisibility(t *testing.T) {
	f := newFixture(t)
	a := f.mustCreateTask(t, service.CreateTaskInput{Title: "a"})
	b := f.mustCreateTask(t, service.CreateTaskInput{Title: "b"})

	_, err := f.deps.AddDependency(ownerID, a.ID, b.ID, models.FinishToStart, 0)
	assert.NoError(t, err)

	assert.NoError(t, f.tasks.DeleteTask(b.ID, ownerID))

	_, err = f.tasks.GetTask(b.ID)
	assert.Error(t, err)
	assert.True(t, service.IsNotFound(err))

	list, err := f.tasks.ListTasks(f.projectID, models.TaskFilter{})
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	// Dead tasks cannot be either endpoint of a new edge.
	c := f.mustCreateTask(t, service.CreateTaskInput{Title: "c"})
	_, err = f.deps.AddDependency(ownerID, c.ID, b.ID, models.FinishToStart, 0)
	assert.True(t, service.IsNotFound(err))
	_, err = f.deps.AddDependency(ownerID, b.ID, c.ID, models.FinishToStart, 0)
	assert.True(t, service.IsNotFound(err))

	// The surviving edge row is not cascaded; it vanishes from reads via
	// the join-time liveness filter.
	out, err := f.deps.ListOutgoing(a.ID)
	assert.NoError(t, err)
	assert.Len(t, out, 0)

	got, err := f.tasks.GetTask(a.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, got.DependencyCount)
}

func TestDependencyRoundTrip(t *testing.T) {
	f := newFixture(t)
	a := f.mustCreateTask(t, service.CreateTaskInput{
		Title:     "A",
		StartDate: date(2025, time.January, 1),
		EndDate:   date(2025, time.January, 5),
	})
	b := f.mustCreateTask(t, service.CreateTaskInput{
		Title:     "B",
		StartDate: date(2025, time.January, 6),
		EndDate:   date(2025, time.January, 10),
	})

	dep, err := f.deps.AddDependency(ownerID, b.ID, a.ID, models.FinishToStart, 0)
	assert.NoError(t, err)

	out, err := f.deps.ListOutgoing(b.ID)
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, a.ID, out[0].DependsOnTaskID)
	assert.Equal(t, models.FinishToStart, out[0].Type)
	assert.Equal(t, 0, out[0].LagTime)
	assert.Equal(t, "A", out[0].DependsOnTitle)

	assert.NoError(t, f.deps.RemoveDependency(ownerID, dep.ID))

	out, err = f.deps.ListOutgoing(b.ID)
	assert.NoError(t, err)
	assert.Len(t, out, 0)
}

func TestBulkUpdateProjectScope(t *testing.T) {
	f := newFixture(t)
	other, err := f.projects.CreateProject(ownerID, "other", "", false)
	assert.NoError(t, err)

	x := f.mustCreateTask(t, service.CreateTaskInput{Title: "x"})
	y, err := f.tasks.CreateTask(other.ID, ownerID, service.CreateTaskInput{Title: "y"})
	assert.NoError(t, err)

	fifty, seventyFive := 50, 75
	err = f.tasks.BulkUpdateTasks(f.projectID, ownerID, []models.BulkTaskPatch{
		{ID: x.ID, Progress: &fifty},
		{ID: y.ID, Progress: &seventyFive}, // outside the project: silent no-op
	})
	assert.NoError(t, err)

	gotX, err := f.tasks.GetTask(x.ID)
	assert.NoError(t, err)
	assert.Equal(t, 50, gotX.Progress)

	gotY, err := f.tasks.GetTask(y.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, gotY.Progress)
}

func TestBulkUpdateValidation(t *testing.T) {
	f := newFixture(t)
	x := f.mustCreateTask(t, service.CreateTaskInput{Title: "x"})
	bad := 150
	err := f.tasks.BulkUpdateTasks(f.projectID, ownerID, []models.BulkTaskPatch{
		{ID: x.ID, Progress: &bad},
	})
	assert.Error(t, err)
	assert.True(t, service.IsValidation(err))
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	task := f.mustCreateTask(t, service.CreateTaskInput{Title: "guarded"})

	t.Run("ViewerBlockedFromEveryMutation", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.projectID, viewerID, service.CreateTaskInput{Title: "nope"})
		assert.True(t, service.IsPermission(err))

		title := "renamed"
		_, err = f.tasks.UpdateTask(task.ID, viewerID, models.TaskPatch{Title: &title})
		assert.True(t, service.IsPermission(err))

		err = f.tasks.DeleteTask(task.ID, viewerID)
		assert.True(t, service.IsPermission(err))

		other := f.mustCreateTask(t, service.CreateTaskInput{Title: "other"})
		_, err = f.deps.AddDependency(viewerID, task.ID, other.ID, models.FinishToStart, 0)
		assert.True(t, service.IsPermission(err))

		dep, err := f.deps.AddDependency(ownerID, task.ID, other.ID, models.FinishToStart, 0)
		assert.NoError(t, err)
		err = f.deps.RemoveDependency(viewerID, dep.ID)
		assert.True(t, service.IsPermission(err))
	})

	t.Run("NonMemberBlocked", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.projectID, int64(999), service.CreateTaskInput{Title: "nope"})
		assert.True(t, service.IsPermission(err))
	})

	t.Run("MemberAllowed", func(t *testing.T) {
		created, err := f.tasks.CreateTask(f.projectID, memberID, service.CreateTaskInput{Title: "fine"})
		assert.NoError(t, err)
		assert.Equal(t, memberID, created.CreatedBy)
	})
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t)

	t.Run("TitleRequired", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.projectID, ownerID, service.CreateTaskInput{})
		assert.True(t, service.IsValidation(err))
	})

	t.Run("UnknownProject", func(t *testing.T) {
		_, err := f.tasks.CreateTask(9999, ownerID, service.CreateTaskInput{Title: "lost"})
		assert.True(t, service.IsNotFound(err))
	})

	t.Run("UnknownParent", func(t *testing.T) {
		missing := int64(9999)
		_, err := f.tasks.CreateTask(f.projectID, ownerID, service.CreateTaskInput{
			Title:        "orphan",
			ParentTaskID: &missing,
		})
		assert.True(t, service.IsNotFound(err))
	})

	t.Run("AssigneeMustBeMember", func(t *testing.T) {
		outsider := int64(998)
		_, err := f.tasks.CreateTask(f.projectID, ownerID, service.CreateTaskInput{
			Title:      "assigned",
			AssignedTo: &outsider,
		})
		assert.True(t, service.IsNotFound(err))
	})

	t.Run("DefaultsApplied", func(t *testing.T) {
		task := f.mustCreateTask(t, service.CreateTaskInput{Title: "plain"})
		assert.Equal(t, models.NotStartedTaskStatus, task.Status)
		assert.Equal(t, models.MediumTaskPriority, task.Priority)
		assert.Equal(t, 0, task.Progress)
		assert.Equal(t, 0, task.SubtaskCount)
		assert.Equal(t, 0, task.DependencyCount)
	})
}

func TestListTaskFiltersAndOrdering(t *testing.T) {
	f := newFixture(t)
	first := f.mustCreateTask(t, service.CreateTaskInput{
		Title:     "first",
		StartDate: date(2025, time.February, 1),
		Status:    models.InProgressTaskStatus,
	})
	second := f.mustCreateTask(t, service.CreateTaskInput{
		Title:     "second",
		StartDate: date(2025, time.February, 10),
	})
	unscheduled := f.mustCreateTask(t, service.CreateTaskInput{
		Title:       "backlog item",
		Description: "needs triage",
	})

	t.Run("OrderingStartAscNullsLast", func(t *testing.T) {
		list, err := f.tasks.ListTasks(f.projectID, models.TaskFilter{})
		assert.NoError(t, err)
		assert.Len(t, list, 3)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, second.ID, list[1].ID)
		assert.Equal(t, unscheduled.ID, list[2].ID)
	})

	t.Run("StatusFilter", func(t *testing.T) {
		list, err := f.tasks.ListTasks(f.projectID, models.TaskFilter{Status: models.InProgressTaskStatus})
		assert.NoError(t, err)
		assert.Len(t, list, 1)
		assert.Equal(t, first.ID, list[0].ID)
	})

	t.Run("SearchOverTitleAndDescription", func(t *testing.T) {
		list, err := f.tasks.ListTasks(f.projectID, models.TaskFilter{Search: "triage"})
		assert.NoError(t, err)
		assert.Len(t, list, 1)
		assert.Equal(t, unscheduled.ID, list[0].ID)
	})

	t.Run("RootOnly", func(t *testing.T) {
		_ = f.mustCreateTask(t, service.CreateTaskInput{Title: "nested", ParentTaskID: &first.ID})
		list, err := f.tasks.ListTasks(f.projectID, models.TaskFilter{RootOnly: true})
		assert.NoError(t, err)
		assert.Len(t, list, 3)
	})
}

func TestPartialUpdate(t *testing.T) {
	f := newFixture(t)
	task := f.mustCreateTask(t, service.CreateTaskInput{
		Title:       "original",
		Description: "keep me",
		StartDate:   date(2025, time.April, 1),
		EndDate:     date(2025, time.April, 10),
	})

	title := "renamed"
	updated, err := f.tasks.UpdateTask(task.ID, ownerID, models.TaskPatch{Title: &title})
	assert.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "keep me", updated.Description)
	assert.True(t, updated.StartDate.Equal(*date(2025, time.April, 1)))
	assert.True(t, updated.EndDate.Equal(*date(2025, time.April, 10)))
}

func TestGetTaskIncludesOutgoingEdges(t *testing.T) {
	f := newFixture(t)
	a := f.mustCreateTask(t, service.CreateTaskInput{Title: "a", Progress: 40})
	b := f.mustCreateTask(t, service.CreateTaskInput{Title: "b"})
	_, err := f.deps.AddDependency(ownerID, b.ID, a.ID, models.StartToStart, 2)
	assert.NoError(t, err)

	got, err := f.tasks.GetTask(b.ID)
	assert.NoError(t, err)
	assert.Len(t, got.Dependencies, 1)
	assert.Equal(t, a.ID, got.Dependencies[0].DependsOnTaskID)
	assert.Equal(t, models.StartToStart, got.Dependencies[0].Type)
	assert.Equal(t, 2, got.Dependencies[0].LagTime)
	assert.Equal(t, 40, got.Dependencies[0].DependsOnProgress)
	assert.Equal(t, 1, got.DependencyCount)
}

func TestProjectMembership(t *testing.T) {
	f := newFixture(t)

	t.Run("OwnerMembershipCreatedWithProject", func(t *testing.T) {
		list, err := f.projects.ListProjects(ownerID)
		assert.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("DuplicateMemberConflict", func(t *testing.T) {
		err := f.projects.AddMember(ownerID, f.projectID, memberID, models.MemberRole)
		assert.True(t, service.IsConflict(err))
	})

	t.Run("MemberMayNotManageMembers", func(t *testing.T) {
		err := f.projects.AddMember(memberID, f.projectID, int64(200), models.MemberRole)
		assert.True(t, service.IsPermission(err))
	})

	t.Run("EmptyNameRejected", func(t *testing.T) {
		_, err := f.projects.CreateProject(ownerID, "", "", false)
		assert.True(t, service.IsValidation(err))
	})
}
