package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lightbot/internal/app/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Print the stored settings with API keys masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := newSettingsSource(cfg.SettingsStore)
		if err != nil {
			return err
		}
		// nil factory: no model clients are built
		mgr, err := settings.NewManager(source, nil)
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(mgr.Current().Redacted())
	},
}
