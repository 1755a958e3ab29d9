package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/biosync/cmd/config"
	"github.com/tphakala/biosync/cmd/run"
	"github.com/tphakala/biosync/internal/buildinfo"
	"github.com/tphakala/biosync/internal/conf"
	"github.com/tphakala/biosync/internal/logger"
)

// RootCommand creates and returns the root command. Settings are loaded into
// settings before any subcommand runs.
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:          "biosync",
		Short:        "Multi-device sensor acquisition and synchronization",
		Version:      info.String(),
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		run.Command(settings, info),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		central, err = initialize(settings)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if central == nil {
			return nil
		}
		return central.Close()
	}

	return rootCmd
}

// initialize replaces the bootstrap logger with one built from the loaded settings.
func initialize(settings *conf.Settings) (*logger.CentralLogger, error) {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
