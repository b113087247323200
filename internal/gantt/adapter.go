// Package gantt translates between the persisted task/dependency model and
// the visual bar/link model of an interactive chart widget, and turns the
// widget's gestures into service calls.
//
// The adapter's bars and links are an optimistic local cache; the services
// remain the source of truth. Reconciliation is always a wholesale reload
// of both arrays, never a field-level merge.
package gantt

import (
	"sync"

	"github.com/kedhead/project-manager-sub000/pkg/models"
	"github.com/kedhead/project-manager-sub000/pkg/service"
)

// Adapter binds one project's chart to the task and dependency services on
// behalf of one actor. Gesture handlers are safe for the widget's
// one-at-a-time event dispatch; concurrent calls serialize on a mutex.
type Adapter struct {
	tasks     *service.TaskService
	deps      *service.DependencyService
	projectID int64
	actorID   int64
	logger    service.Logger

	mu       sync.Mutex
	bars     []Bar
	links    []Link
	selected int64
}

func NewAdapter(tasks *service.TaskService, deps *service.DependencyService,
	projectID, actorID int64, logger service.Logger) *Adapter {
	return &Adapter{
		tasks:     tasks,
		deps:      deps,
		projectID: projectID,
		actorID:   actorID,
		logger:    logger,
	}
}

// Reload replaces the local bar/link arrays from authoritative state.
func (a *Adapter) Reload() error {
	tasks, err := a.tasks.ListTasks(a.projectID, models.TaskFilter{})
	if err != nil {
		return err
	}
	bars := make([]Bar, 0, len(tasks))
	links := []Link{}
	for _, t := range tasks {
		bars = append(bars, barFromTask(t))
		deps, err := a.deps.ListOutgoing(t.ID)
		if err != nil {
			return err
		}
		for _, d := range deps {
			link, err := linkFromDependency(d)
			if err != nil {
				return err
			}
			links = append(links, link)
		}
	}
	a.mu.Lock()
	a.bars = bars
	a.links = links
	a.mu.Unlock()
	return nil
}

// reloadAfterFailure discards optimistic state after a rejected gesture.
// The reload's own error is logged, not returned; the caller surfaces the
// original rejection.
func (a *Adapter) reloadAfterFailure() {
	if err := a.Reload(); err != nil {
		a.logger.Errorf("Failed to reload chart after rejected gesture: %v", err)
	}
}

// Snapshot returns copies of the current bar and link arrays.
func (a *Adapter) Snapshot() ([]Bar, []Link) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bars := make([]Bar, len(a.bars))
	copy(bars, a.bars)
	links := make([]Link, len(a.links))
	copy(links, a.links)
	return bars, links
}

// OnTaskSelected records the selected task id for the host's detail panel.
// Purely local, nothing is persisted.
func (a *Adapter) OnTaskSelected(taskID int64) {
	a.mu.Lock()
	a.selected = taskID
	a.mu.Unlock()
}

// Selected returns the currently selected task id (0 when none).
func (a *Adapter) Selected() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selected
}

// NewBar carries a drag-to-create gesture. Progress may be a 0-1 fraction.
type NewBar struct {
	Text      string
	StartDate string
	EndDate   string
	Duration  int
	Progress  float64
	ParentID  int64 // 0 means root
}

// OnTaskAdded persists a new bar and returns the server-issued id, which
// the widget must swap in for its temporary id. Temporary ids are never
// persisted. On failure the local bar is discarded by a full reload.
func (a *Adapter) OnTaskAdded(in NewBar) (int64, error) {
	start, err := parseDate(in.StartDate)
	if err != nil {
		return 0, err
	}
	end, err := parseDate(in.EndDate)
	if err != nil {
		return 0, err
	}
	input := service.CreateTaskInput{
		Title:     in.Text,
		StartDate: start,
		EndDate:   end,
		Progress:  normalizeProgress(in.Progress),
	}
	if in.Duration > 0 {
		input.Duration = &in.Duration
	}
	if in.ParentID != 0 {
		input.ParentTaskID = &in.ParentID
	}
	created, err := a.tasks.CreateTask(a.projectID, a.actorID, input)
	if err != nil {
		a.reloadAfterFailure()
		return 0, err
	}
	if err := a.Reload(); err != nil {
		return created.ID, err
	}
	return created.ID, nil
}

// AddNewTask is the host-invocable "add task" action, optionally nesting
// under the current selection.
func (a *Adapter) AddNewTask(text string, asChildOfSelected bool) (int64, error) {
	in := NewBar{Text: text}
	if asChildOfSelected {
		in.ParentID = a.Selected()
	}
	return a.OnTaskAdded(in)
}

// OnTaskDragged persists a move/resize: new start/end/duration/progress
// only. Dependent tasks are not re-scheduled; edges constrain nothing
// automatically here.
func (a *Adapter) OnTaskDragged(taskID int64, startDate, endDate string, duration int, progress float64) error {
	start, err := parseDate(startDate)
	if err != nil {
		return err
	}
	end, err := parseDate(endDate)
	if err != nil {
		return err
	}
	p := normalizeProgress(progress)
	patch := models.TaskPatch{
		StartDate: start,
		EndDate:   end,
		Progress:  &p,
	}
	if duration > 0 {
		patch.Duration = &duration
	}
	if _, err := a.tasks.UpdateTask(taskID, a.actorID, patch); err != nil {
		a.reloadAfterFailure()
		return err
	}
	return a.Reload()
}

// OnLinkAdded persists a drawn link. Source is the predecessor bar, target
// the successor. Self-links and duplicate pairs are rejected by the
// dependency service; the rejected visual link is dropped by reload.
func (a *Adapter) OnLinkAdded(source, target int64, code string, lag int) (int64, error) {
	depType, err := TypeForCode(code)
	if err != nil {
		return 0, err
	}
	created, err := a.deps.AddDependency(a.actorID, target, source, depType, lag)
	if err != nil {
		a.reloadAfterFailure()
		return 0, err
	}
	if err := a.Reload(); err != nil {
		return created.ID, err
	}
	return created.ID, nil
}

// OnLinkDeleted removes the edge behind a deleted link.
func (a *Adapter) OnLinkDeleted(linkID int64) error {
	if err := a.deps.RemoveDependency(a.actorID, linkID); err != nil {
		a.reloadAfterFailure()
		return err
	}
	return a.Reload()
}

// OnTaskDeleted tombstones the task behind a deleted bar.
func (a *Adapter) OnTaskDeleted(taskID int64) error {
	if err := a.tasks.DeleteTask(taskID, a.actorID); err != nil {
		a.reloadAfterFailure()
		return err
	}
	return a.Reload()
}

// Recalculate is the host's "recalculate" action: a re-fetch of persisted
// state. No date propagation happens, with or without the project's
// auto-scheduling toggle.
func (a *Adapter) Recalculate() error {
	return a.Reload()
}
