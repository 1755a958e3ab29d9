// Package config implements the command that prints the effective configuration.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/biosync/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, config file, environment and flags are merged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.DumpYAML(settings)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
