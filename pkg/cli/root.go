package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/harrisonrobin/taskcal/pkg/service"
	"github.com/spf13/cobra"
)

// App is everything the commands act on.
type App struct {
	Tasks     *service.TaskService
	Calendar  *service.CalendarService
	Settings  *service.SettingsService
	ConfigDir string
}

// NewRootCmd builds the taskcal command tree.
func NewRootCmd(app *App, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskcal",
		Short: "Personal task manager with Google Calendar mirroring",
		Long: `taskcal tracks tasks through not started, ongoing, paused and completed.

Tasks with a deadline and calendar integration enabled are mirrored as events on
the connected Google Calendar, with popup reminders that pause with the task.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newTaskCmd(app))
	root.AddCommand(newCalendarCmd(app))
	root.AddCommand(newSettingsCmd(app))
	root.AddCommand(newConfigCmd(app))
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
