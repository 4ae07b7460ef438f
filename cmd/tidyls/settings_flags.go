package main

import (
	"github.com/spf13/cobra"

	"tidyls/internal/settings"
)

func addSettingsFlags(cmd *cobra.Command) {
	cmd.Flags().String("executable", "", "perltidy executable (default \"perltidy\" from PATH)")
	cmd.Flags().String("profile", "", "perltidy profile passed as --profile")
	cmd.Flags().Bool("auto-disable", false, "skip formatting when the workspace has no .perltidyrc")
}

// settingsFlags returns the overrides for every settings flag the user set.
func settingsFlags(cmd *cobra.Command) (settings.Overrides, error) {
	var o settings.Overrides
	flags := cmd.Flags()
	if flags.Changed("executable") {
		v, err := flags.GetString("executable")
		if err != nil {
			return o, err
		}
		o.Executable = settings.String(v)
	}
	if flags.Changed("profile") {
		v, err := flags.GetString("profile")
		if err != nil {
			return o, err
		}
		o.Profile = settings.String(v)
	}
	if flags.Changed("auto-disable") {
		v, err := flags.GetBool("auto-disable")
		if err != nil {
			return o, err
		}
		o.AutoDisable = settings.Bool(v)
	}
	return o, nil
}
