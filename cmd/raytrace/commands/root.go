package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	viper   *viper.Viper
	cfgFile string

	config Config
	logger *slog.Logger
}

// NewRootCommand builds the raytrace command tree around its own viper instance
func NewRootCommand() *cobra.Command {
	a := &app{viper: newViper()}

	root := &cobra.Command{
		Use:   "raytrace",
		Short: "Build and inspect acceleration structures",
		Long: `raytrace drives the acceleration structure HAL end to end.

The software backend runs everywhere and can pretend to be any device described
by a JSON profile. vulkan-info reports what the Vulkan devices on this machine
could offer.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./raytrace.{yaml,json,toml} if present)")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("profile", "", "JSON device profile for the software device (default is the built-in profile)")
	flags.Duration("timeout", 0, "how long to wait for each submission (default 10s)")
	flags.Bool("externally-synchronized", false, "drop the software device's internal locks")
	flags.Int("queue-depth", 0, "submissions that may queue before Submit blocks (default 64)")

	for _, name := range []string{"log-level", "profile", "timeout", "externally-synchronized", "queue-depth"} {
		_ = a.viper.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newCubeCommand(a),
		newDevicesCommand(a),
		newVulkanInfoCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := readConfigFile(a.viper, a.cfgFile); err != nil {
		return err
	}

	config, err := loadConfig(a.viper)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), config.LogLevel)
	if err != nil {
		return err
	}

	a.config = config
	a.logger = logger
	if used := a.viper.ConfigFileUsed(); used != "" {
		logger.Debug("app::init", slog.String("config", used))
	}
	return nil
}

// Execute runs the command line
func Execute() error {
	return NewRootCommand().Execute()
}
