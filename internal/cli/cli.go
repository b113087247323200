package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kedhead/project-manager-sub000/internal/log"
	internal_storage "github.com/kedhead/project-manager-sub000/internal/storage"
	"github.com/kedhead/project-manager-sub000/pkg/models"
	"github.com/kedhead/project-manager-sub000/pkg/service"
)

func SetupCLI(rootCmd *cobra.Command) {
	createProjectCmd := &cobra.Command{
		Use:   "create-project [name]",
		Short: "Create a new project (CLI)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			actor := actorFlag(cmd)
			svc := service.NewProjectService(store, log.GetLogger())
			project, err := svc.CreateProject(actor, args[0], "", false)
			if err != nil {
				log.GetLogger().Errorf("Failed to create project: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to create project: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Created project '%s' with ID %d\n", project.Name, project.ID)
		},
	}

	listTasksCmd := &cobra.Command{
		Use:   "list-tasks [project-id]",
		Short: "List a project's tasks (CLI)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			projectID := parseIDArg(args[0])
			svc := service.NewTaskService(store, log.GetLogger())
			tasks, err := svc.ListTasks(projectID, models.TaskFilter{})
			if err != nil {
				log.GetLogger().Errorf("Failed to list tasks: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list tasks: %v\n", err)
				os.Exit(1)
			}
			if len(tasks) == 0 {
				fmt.Fprintf(os.Stdout, "No tasks found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Tasks:\n")
			for _, t := range tasks {
				dates := "unscheduled"
				if t.StartDate != nil && t.EndDate != nil {
					dates = fmt.Sprintf("%s .. %s",
						t.StartDate.Format("2006-01-02"), t.EndDate.Format("2006-01-02"))
				}
				assignee := t.DisplayAssignee()
				if assignee == "" {
					assignee = "unassigned"
				}
				fmt.Fprintf(os.Stdout, "- ID: %d, Title: %s, Status: %s, Progress: %d%%, %s, Assignee: %s, Created: %s\n",
					t.ID, t.Title, t.Status, t.Progress, dates, assignee, t.CreatedAt.Format(time.RFC3339))
			}
		},
	}

	createTaskCmd := &cobra.Command{
		Use:   "create-task [project-id] [title]",
		Short: "Create a task within a project (CLI)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			projectID := parseIDArg(args[0])
			actor := actorFlag(cmd)
			svc := service.NewTaskService(store, log.GetLogger())
			task, err := svc.CreateTask(projectID, actor, service.CreateTaskInput{Title: args[1]})
			if err != nil {
				log.GetLogger().Errorf("Failed to create task: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to create task: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Created task '%s' with ID %d\n", task.Title, task.ID)
		},
	}

	linkCmd := &cobra.Command{
		Use:   "link [task-id] [depends-on-task-id]",
		Short: "Make one task depend on another (CLI)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			taskID := parseIDArg(args[0])
			dependsOn := parseIDArg(args[1])
			actor := actorFlag(cmd)
			depType, _ := cmd.Flags().GetString("type")
			lag, _ := cmd.Flags().GetInt("lag")
			svc := service.NewDependencyService(store, log.GetLogger())
			dep, err := svc.AddDependency(actor, taskID, dependsOn, models.DependencyType(depType), lag)
			if err != nil {
				log.GetLogger().Errorf("Failed to create dependency: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to create dependency: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Created dependency %d: task %d depends on task %d (%s, lag %d)\n",
				dep.ID, dep.TaskID, dep.DependsOnTaskID, dep.Type, dep.LagTime)
		},
	}
	linkCmd.Flags().String("type", string(models.FinishToStart), "Dependency type")
	linkCmd.Flags().Int("lag", 0, "Lag time in days")

	rootCmd.AddCommand(createProjectCmd, listTasksCmd, createTaskCmd, linkCmd)
}

func actorFlag(cmd *cobra.Command) int64 {
	actor, err := cmd.Flags().GetInt64("actor")
	if err != nil || actor <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --actor (acting user id) is required")
		os.Exit(1)
	}
	return actor
}

func parseIDArg(arg string) int64 {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Error parsing id %q as number\n", arg)
		os.Exit(1)
	}
	return id
}

func initStore(cmd *cobra.Command) *internal_storage.PostgresStore {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil || dbConnStr == "" {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		fmt.Fprintln(os.Stderr, "Error: --db connection string is required")
		os.Exit(1)
	}
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
