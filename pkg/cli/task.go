package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/harrisonrobin/taskcal/pkg/service"
	"github.com/harrisonrobin/taskcal/pkg/util"
	"github.com/spf13/cobra"
)

func newTaskCmd(app *App) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Create, list and move tasks through their lifecycle",
	}

	createCmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := service.NewTask{Title: strings.Join(args, " ")}
			if date, _ := cmd.Flags().GetString("date"); date != "" {
				t, err := util.ParseDeadline(date)
				if err != nil {
					return err
				}
				in.CreatedAt = t
			}
			task, err := app.Tasks.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
	createCmd.Flags().String("date", "", "Day to list the task under (RFC3339, default now)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks of a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			if date == "" {
				date = time.Now().UTC().Format(time.RFC3339)
			}
			open, _ := cmd.Flags().GetBool("open")
			var (
				tasks []model.Task
				err   error
			)
			if open {
				tasks, err = app.Tasks.ListByDateNotCompleted(cmd.Context(), date)
			} else {
				tasks, err = app.Tasks.ListByDate(cmd.Context(), date)
			}
			if err != nil {
				return err
			}
			if tasks == nil {
				tasks = []model.Task{}
			}
			return printJSON(cmd.OutOrStdout(), tasks)
		},
	}
	listCmd.Flags().String("date", "", "Any instant within the day (RFC3339, default now)")
	listCmd.Flags().Bool("open", false, "Exclude completed tasks")

	showCmd := &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := app.Tasks.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [task-id]",
		Short: "Delete a task and its calendar event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Tasks.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update [task-id]",
		Short: "Update task fields from a JSON patch",
		Long: `Update task fields from a JSON object. Omitted keys are left unchanged and
null clears a nullable field, for example:

  taskcal task update <id> --patch '{"deadline": "2025-03-01T17:00:00Z", "hasCalendarIntegration": true}'
  echo '{"notes": null}' | taskcal task update <id> --patch -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("patch")
			patch, err := readPatch(raw, cmd.InOrStdin())
			if err != nil {
				return err
			}
			task, err := app.Tasks.Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
	updateCmd.Flags().String("patch", "", "JSON patch, or - to read it from stdin")
	_ = updateCmd.MarkFlagRequired("patch")

	overdueCmd := &cobra.Command{
		Use:   "overdue",
		Short: "List unfinished tasks whose deadline has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.Tasks.ListOverdue(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No overdue tasks.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(w, "%s  %-12s  %s  (%s late)\n", e.TaskID, e.Status, e.Title, e.Late)
			}
			return nil
		},
	}

	taskCmd.AddCommand(createCmd, listCmd, showCmd, deleteCmd, updateCmd, overdueCmd)
	taskCmd.AddCommand(transitionCmd("start", "Start a task", app.Tasks.Start))
	taskCmd.AddCommand(transitionCmd("pause", "Pause an ongoing task and silence its reminders", app.Tasks.Pause))
	taskCmd.AddCommand(transitionCmd("resume", "Resume a paused task and restore its reminders", app.Tasks.Resume))
	taskCmd.AddCommand(transitionCmd("complete", "Complete a task and remove its calendar event", app.Tasks.Complete))
	return taskCmd
}

func transitionCmd(use, short string, fn func(ctx context.Context, id string) (model.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [task-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := fn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

// readPatch decodes a task patch from raw, or from stdin when raw is "-".
func readPatch(raw string, stdin io.Reader) (model.TaskPatch, error) {
	var patch model.TaskPatch
	data := []byte(raw)
	if raw == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return patch, fmt.Errorf("failed to read patch from stdin: %w", err)
		}
		data = b
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return patch, fmt.Errorf("%w: malformed patch: %v", model.ErrInvalidInput, err)
	}
	if patch.Empty() {
		return patch, fmt.Errorf("%w: patch has no fields", model.ErrInvalidInput)
	}
	return patch, nil
}
