package cli

import (
	"fmt"

	"github.com/harrisonrobin/taskcal/pkg/config"
	"github.com/spf13/cobra"
)

type calendarStatus struct {
	Connected   bool   `json:"connected"`
	Email       string `json:"email,omitempty"`
	TokenExpiry string `json:"tokenExpiry,omitempty"`
}

func newCalendarCmd(app *App) *cobra.Command {
	calendarCmd := &cobra.Command{
		Use:   "calendar",
		Short: "Manage the connected Google Calendar account",
	}

	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Authorize access to your Google Calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := app.Calendar.Connect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connected calendar account %s\n", cred.Email)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the connected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := app.Calendar.Status(cmd.Context())
			if err != nil {
				return err
			}
			st := calendarStatus{}
			if cred != nil {
				st.Connected = true
				st.Email = cred.Email
				st.TokenExpiry = cred.TokenExpiry.UTC().Format("2006-01-02T15:04:05Z07:00")
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}

	disconnectCmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the stored calendar credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Calendar.Disconnect(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Calendar disconnected.")
			return nil
		},
	}

	useCmd := &cobra.Command{
		Use:   "use [calendar-name]",
		Short: "Write task events to the named calendar instead of the primary one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.Calendar.FindCalendar(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := config.Set(app.ConfigDir, "calendar_id", id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default calendar set to: %s (%s)\n", args[0], id)
			return nil
		},
	}

	calendarCmd.AddCommand(connectCmd, statusCmd, disconnectCmd, useCmd)
	return calendarCmd
}
