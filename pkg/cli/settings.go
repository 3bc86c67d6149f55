package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/harrisonrobin/taskcal/pkg/config"
	"github.com/harrisonrobin/taskcal/pkg/model"
	"github.com/spf13/cobra"
)

func newSettingsCmd(app *App) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change application settings",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.Settings.Get(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}

	setCmd := &cobra.Command{
		Use:     "set",
		Short:   "Change settings from a JSON patch",
		Example: `  taskcal settings set --patch '{"defaultReminderFrequency": "hourly"}'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("patch")
			var patch model.SettingsPatch
			dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&patch); err != nil {
				return fmt.Errorf("%w: malformed patch: %v", model.ErrInvalidInput, err)
			}
			st, err := app.Settings.Update(cmd.Context(), patch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	setCmd.Flags().String("patch", "", "JSON patch of the settings to change")
	_ = setCmd.MarkFlagRequired("patch")

	settingsCmd.AddCommand(getCmd, setCmd)
	return settingsCmd
}

func newConfigCmd(app *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage taskcal configuration",
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show the configuration directory",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.ConfigDir)
		},
	}

	setCmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a configuration value (takes effect on the next run)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any = args[1]
			if n, err := strconv.Atoi(args[1]); err == nil {
				value = n
			}
			if err := config.Set(app.ConfigDir, args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set to %v\n", args[0], value)
			return nil
		},
	}

	configCmd.AddCommand(pathCmd, setCmd)
	return configCmd
}
