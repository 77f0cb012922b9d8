// Package cmd assembles the usagipass-migrate command tree
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/usagipass/migration-tools/cmd/copyimg"
	"github.com/usagipass/migration-tools/cmd/mergeuc"
	"github.com/usagipass/migration-tools/cmd/mergeup"
	"github.com/usagipass/migration-tools/cmd/version"
	"github.com/usagipass/migration-tools/internal/buildinfo"
	"github.com/usagipass/migration-tools/internal/conf"
	"github.com/usagipass/migration-tools/internal/logger"
	"github.com/usagipass/migration-tools/internal/runner"
)

// RootCommand creates and returns the root command. settings is filled from
// flags, environment and config file before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	env := &runner.Env{Settings: settings}
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:          conf.AppName,
		Short:        "Migrate legacy UC and UP data into Leporid and Usagipass",
		SilenceUsage: true,
	}

	setupFlags(rootCmd, &configFile)

	versionCmd := version.Command(build)
	rootCmd.AddCommand(
		mergeuc.Command(env),
		mergeup.Command(env),
		copyimg.Command(env),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs neither settings nor logging
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(cmd, v, configFile, env)
	}

	return rootCmd
}

// initialize loads settings for the command about to run and sets up logging
func initialize(cmd *cobra.Command, v *viper.Viper, configFile string, env *runner.Env) error {
	if err := conf.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	loaded, err := conf.Load(v, configFile)
	if err != nil {
		return err
	}
	*env.Settings = *loaded
	env.Out = cmd.OutOrStdout()

	central, err := logger.NewCentralLogger(&env.Settings.Logging)
	if err != nil {
		return err
	}
	logger.SetGlobal(central)
	env.Log = central

	if env.Settings.ConfigFile != "" {
		central.Module("cmd").Debug("config file loaded", logger.String("path", env.Settings.ConfigFile))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(configFile, "config", "", "Config file (default ./"+conf.AppName+".yaml or ~/.config/"+conf.AppName+"/"+conf.AppName+".yaml)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.Int("batch-size", conf.DefaultBatchSize, "Source rows read per page")
	flags.Bool("dry-run", false, "Roll back every unit of work and only report")
	flags.Bool("auto-migrate", false, "Create missing target tables before migrating")
	flags.String("report", "", "Write the run report to a .yaml or .json file")
	flags.String("metrics-file", "", "Write Prometheus metrics of the run to a textfile")
}
