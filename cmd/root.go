package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/pneumodetect/cmd/classify"
	"github.com/tphakala/pneumodetect/cmd/config"
	"github.com/tphakala/pneumodetect/cmd/createdb"
	"github.com/tphakala/pneumodetect/cmd/serve"
	"github.com/tphakala/pneumodetect/cmd/useradd"
	"github.com/tphakala/pneumodetect/cmd/version"
	"github.com/tphakala/pneumodetect/internal/buildinfo"
	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	// env problems are reported once a command actually needs the config
	v, envErr := conf.New()

	rootCmd := &cobra.Command{
		Use:          "pneumodetect",
		Short:        "PneumoDetect chest X-ray pneumonia classifier",
		SilenceUsage: true,
	}

	setupFlags(rootCmd, &configFile)

	versionCmd := version.Command(info)
	subcommands := []*cobra.Command{
		serve.Command(settings),
		classify.Command(settings),
		createdb.Command(settings),
		useradd.Command(settings),
		config.Command(settings),
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if envErr != nil {
			return envErr
		}
		if err := conf.BindFlags(v, cmd.Flags()); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}

		loaded, err := conf.Load(v, configFile)
		if err != nil {
			return err
		}
		loaded.Version = info.GetVersion()
		*settings = *loaded

		return initialize(settings)
	}

	return rootCmd
}

// initialize sets up logging and error telemetry once the settings are
// known. It runs before every subcommand except version.
func initialize(settings *conf.Settings) error {
	level := settings.Logging.Level
	if settings.Debug {
		level = "debug"
	}

	central, err := logger.NewCentralLogger(&logger.LoggingConfig{
		Level:   level,
		Console: settings.Logging.Console,
		File: &logger.FileOutput{
			Enabled:    settings.Logging.File.Enabled,
			Path:       settings.Logging.File.Path,
			MaxSize:    settings.Logging.File.MaxSize,
			MaxBackups: settings.Logging.File.MaxBackups,
			MaxAge:     settings.Logging.File.MaxAge,
			Compress:   settings.Logging.File.Compress,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, settings.Version, settings.Debug); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	central.Module("main").Debug("configuration loaded",
		logger.String("config_file", settings.ConfigFile),
		logger.String("version", settings.Version))
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: ./config.yaml, ~/.config/pneumodetect/config.yaml, /etc/pneumodetect/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	conf.MarkFlag(rootCmd.PersistentFlags(), "debug", "debug")
}
