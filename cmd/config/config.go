package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/pneumodetect/internal/conf"
)

// Command creates the command that prints the effective configuration.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Long:  "Print the configuration after defaults, config file, environment variables and flags are merged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			redacted := settings.Redacted()
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("error marshaling settings: %w", err)
			}
			if settings.ConfigFile != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", settings.ConfigFile)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
