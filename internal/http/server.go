package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kedhead/project-manager-sub000/internal/gantt"
	"github.com/kedhead/project-manager-sub000/internal/log"
	"github.com/kedhead/project-manager-sub000/pkg/models"
	"github.com/kedhead/project-manager-sub000/pkg/service"
	"github.com/kedhead/project-manager-sub000/pkg/storage"
)

// StartServer wires the services over the store and serves the REST API.
func StartServer(port string, store storage.Store) error {
	handler := NewRouter(store)
	log.GetLogger().Infof("Starting project-manager server on :%s", port)
	return http.ListenAndServe(":"+port, handler)
}

// NewRouter registers all routes against the given store.
func NewRouter(store storage.Store) http.Handler {
	logger := log.GetLogger()
	projects := service.NewProjectService(store, logger)
	tasks := service.NewTaskService(store, logger)
	deps := service.NewDependencyService(store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.Handle("/metrics", MetricsHandler(store))
	mux.HandleFunc("/projects", ProjectsHandler(projects))
	mux.HandleFunc("/projects/", ProjectSubHandler(projects, tasks, deps))
	mux.HandleFunc("/tasks/", TasksHandler(tasks, deps))
	mux.HandleFunc("/dependencies/", DependenciesHandler(deps))
	return requestLogMiddleware(mux)
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		log.GetLogger().Debugf("[%s] %s %s", requestID, r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "project-manager server is running")
}

// MetricsHandler refreshes live-task gauges from the store on each scrape.
func MetricsHandler(store storage.Store) http.Handler {
	registry := prometheus.NewRegistry()
	taskGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "projman_tasks_total",
		Help: "Live tasks by status.",
	}, []string{"status"})
	registry.MustRegister(taskGauge)
	promHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.CountTasksByStatus()
		if err != nil {
			log.GetLogger().Errorf("Failed to count tasks for metrics: %v", err)
		} else {
			taskGauge.Reset()
			for status, count := range counts {
				taskGauge.WithLabelValues(string(status)).Set(float64(count))
			}
		}
		promHandler.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := service.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.GetLogger().Errorf("Internal error: %v", err)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// actorID reads the authenticated user id from the X-User-ID header; the
// authentication layer in front of this API is responsible for setting it.
func actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid X-User-ID header"})
		return 0, false
	}
	return id, true
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

const dateLayout = "2006-01-02"

func parseDateField(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q, expected YYYY-MM-DD", name, value)
	}
	return &t, nil
}

type taskRequest struct {
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Status          models.TaskStatus   `json:"status"`
	Priority        models.TaskPriority `json:"priority"`
	StartDate       *string             `json:"start_date"`
	EndDate         *string             `json:"end_date"`
	Duration        *int                `json:"duration"`
	Progress        *int                `json:"progress"`
	ParentTaskID    *int64              `json:"parent_task_id"`
	AssignedTo      *int64              `json:"assigned_to"`
	AssignedGroupID *int64              `json:"assigned_group_id"`
}

// ProjectsHandler serves GET (list for actor) and POST (create) /projects.
func ProjectsHandler(projects *service.ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorID(w, r)
		if !ok {
			return
		}
		switch r.Method {
		case http.MethodGet:
			list, err := projects.ListProjects(actor)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)
		case http.MethodPost:
			var req struct {
				Name           string `json:"name"`
				Description    string `json:"description"`
				AutoScheduling bool   `json:"auto_scheduling"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
				return
			}
			project, err := projects.CreateProject(actor, req.Name, req.Description, req.AutoScheduling)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, project)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// ProjectSubHandler routes /projects/{id}, /projects/{id}/tasks,
// /projects/{id}/tasks/bulk, /projects/{id}/members and
// /projects/{id}/gantt.
func ProjectSubHandler(projects *service.ProjectService, tasks *service.TaskService,
	deps *service.DependencyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorID(w, r)
		if !ok {
			return
		}
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/projects/"), "/"), "/")
		projectID, err := parseID(parts[0])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			project, err := projects.GetProject(projectID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, project)

		case len(parts) == 2 && parts[1] == "tasks" && r.Method == http.MethodGet:
			listTasksHTTP(w, r, tasks, projectID)

		case len(parts) == 2 && parts[1] == "tasks" && r.Method == http.MethodPost:
			createTaskHTTP(w, r, tasks, projectID, actor)

		case len(parts) == 3 && parts[1] == "tasks" && parts[2] == "bulk" && r.Method == http.MethodPost:
			bulkUpdateHTTP(w, r, tasks, projectID, actor)

		case len(parts) == 2 && parts[1] == "members" && r.Method == http.MethodPost:
			var req struct {
				UserID int64       `json:"user_id"`
				Role   models.Role `json:"role"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
				return
			}
			if err := projects.AddMember(actor, projectID, req.UserID, req.Role); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]interface{}{"project_id": projectID, "user_id": req.UserID, "role": req.Role})

		case len(parts) == 2 && parts[1] == "gantt" && r.Method == http.MethodGet:
			adapter := gantt.NewAdapter(tasks, deps, projectID, actor, log.GetLogger())
			if err := adapter.Reload(); err != nil {
				writeError(w, err)
				return
			}
			bars, links := adapter.Snapshot()
			writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": bars, "links": links})

		default:
			http.NotFound(w, r)
		}
	}
}

func listTasksHTTP(w http.ResponseWriter, r *http.Request, tasks *service.TaskService, projectID int64) {
	q := r.URL.Query()
	filter := models.TaskFilter{
		Status:   models.TaskStatus(q.Get("status")),
		Priority: models.TaskPriority(q.Get("priority")),
		Search:   q.Get("search"),
	}
	if v := q.Get("assigned_to"); v != "" {
		id, err := parseID(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		filter.AssignedTo = &id
	}
	switch v := q.Get("parent_task_id"); v {
	case "":
	case "none":
		filter.RootOnly = true
	default:
		id, err := parseID(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		filter.ParentTaskID = &id
	}
	list, err := tasks.ListTasks(projectID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func createTaskHTTP(w http.ResponseWriter, r *http.Request, tasks *service.TaskService, projectID, actor int64) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	in := service.CreateTaskInput{
		Title:           req.Title,
		Description:     req.Description,
		Status:          req.Status,
		Priority:        req.Priority,
		Duration:        req.Duration,
		ParentTaskID:    req.ParentTaskID,
		AssignedTo:      req.AssignedTo,
		AssignedGroupID: req.AssignedGroupID,
	}
	if req.Progress != nil {
		in.Progress = *req.Progress
	}
	var err error
	if req.StartDate != nil {
		if in.StartDate, err = parseDateField("start_date", *req.StartDate); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	if req.EndDate != nil {
		if in.EndDate, err = parseDateField("end_date", *req.EndDate); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	task, err := tasks.CreateTask(projectID, actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func bulkUpdateHTTP(w http.ResponseWriter, r *http.Request, tasks *service.TaskService, projectID, actor int64) {
	var req struct {
		Updates []struct {
			ID        int64   `json:"id"`
			StartDate *string `json:"start_date"`
			EndDate   *string `json:"end_date"`
			Duration  *int    `json:"duration"`
			Progress  *int    `json:"progress"`
		} `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	patches := make([]models.BulkTaskPatch, 0, len(req.Updates))
	for _, u := range req.Updates {
		patch := models.BulkTaskPatch{ID: u.ID, Duration: u.Duration, Progress: u.Progress}
		var err error
		if u.StartDate != nil {
			if patch.StartDate, err = parseDateField("start_date", *u.StartDate); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
		}
		if u.EndDate != nil {
			if patch.EndDate, err = parseDateField("end_date", *u.EndDate); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
		}
		patches = append(patches, patch)
	}
	if err := tasks.BulkUpdateTasks(projectID, actor, patches); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(patches)})
}

// TasksHandler routes /tasks/{id} and /tasks/{id}/dependencies.
func TasksHandler(tasks *service.TaskService, deps *service.DependencyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorID(w, r)
		if !ok {
			return
		}
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/"), "/")
		taskID, err := parseID(parts[0])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			task, err := tasks.GetTask(taskID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)

		case len(parts) == 1 && r.Method == http.MethodPatch:
			updateTaskHTTP(w, r, tasks, taskID, actor)

		case len(parts) == 1 && r.Method == http.MethodDelete:
			if err := tasks.DeleteTask(taskID, actor); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		case len(parts) == 2 && parts[1] == "dependencies" && r.Method == http.MethodGet:
			list, err := deps.ListOutgoing(taskID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)

		case len(parts) == 2 && parts[1] == "dependencies" && r.Method == http.MethodPost:
			var req struct {
				DependsOnTaskID int64                 `json:"depends_on_task_id"`
				DependencyType  models.DependencyType `json:"dependency_type"`
				LagTime         int                   `json:"lag_time"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
				return
			}
			dep, err := deps.AddDependency(actor, taskID, req.DependsOnTaskID, req.DependencyType, req.LagTime)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, dep)

		default:
			http.NotFound(w, r)
		}
	}
}

func updateTaskHTTP(w http.ResponseWriter, r *http.Request, tasks *service.TaskService, taskID, actor int64) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	patch := models.TaskPatch{
		Duration:        req.Duration,
		Progress:        req.Progress,
		ParentTaskID:    req.ParentTaskID,
		AssignedTo:      req.AssignedTo,
		AssignedGroupID: req.AssignedGroupID,
	}
	if req.Title != "" {
		patch.Title = &req.Title
	}
	if req.Description != "" {
		patch.Description = &req.Description
	}
	if req.Status != "" {
		status := req.Status
		patch.Status = &status
	}
	if req.Priority != "" {
		priority := req.Priority
		patch.Priority = &priority
	}
	var err error
	if req.StartDate != nil {
		if patch.StartDate, err = parseDateField("start_date", *req.StartDate); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	if req.EndDate != nil {
		if patch.EndDate, err = parseDateField("end_date", *req.EndDate); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	task, err := tasks.UpdateTask(taskID, actor, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DependenciesHandler routes DELETE /dependencies/{id}.
func DependenciesHandler(deps *service.DependencyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorID(w, r)
		if !ok {
			return
		}
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		depID, err := parseID(strings.Trim(strings.TrimPrefix(r.URL.Path, "/dependencies/"), "/"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := deps.RemoveDependency(actor, depID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
