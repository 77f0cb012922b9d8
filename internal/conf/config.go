// Package conf loads the settings of the migration commands from flags,
// MIGRATE_* environment variables, an optional YAML file and defaults.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

// AppName names the config file and its directory
const AppName = "usagipass-migrate"

// Batch size bounds
const (
	DefaultBatchSize = 500
	MinBatchSize     = 1
	MaxBatchSize     = 10000
)

// Settings holds every option of the migration commands
type Settings struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`

	// Connection descriptors
	Source    string `mapstructure:"source"`
	Target    string `mapstructure:"target"`
	Leporid   string `mapstructure:"leporid"`
	Usagipass string `mapstructure:"usagipass"`

	// merge-uc
	AdminUserID string `mapstructure:"admin_user_id"`
	SkipUsers   bool   `mapstructure:"skip_users"`

	// copy-img
	SourceDir string `mapstructure:"source_dir"`
	TargetDir string `mapstructure:"target_dir"`
	Overwrite bool   `mapstructure:"overwrite"`

	BatchSize   int    `mapstructure:"batch_size"`
	DryRun      bool   `mapstructure:"dry_run"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	Report      string `mapstructure:"report"`
	MetricsFile string `mapstructure:"metrics_file"`

	Logging logger.LoggingConfig `mapstructure:"logging"`

	// ConfigFile is the file the settings were read from, if any
	ConfigFile string `mapstructure:"-"`
}

// FlagKey maps a command-line flag name to its config key
func FlagKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// BindFlags binds every flag in flags to the config key of the same name.
// Call it for the command that is about to run, since subcommands share
// flag names such as --source.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" || f.Name == "help" {
			return
		}
		err = v.BindPFlag(FlagKey(f.Name), f)
	})
	return err
}

// Load reads settings into v. configFile overrides the config file search;
// a missing file in the search paths is not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}
	settings.Logging.ModuleLevels = moduleLevels(v.Get("logging.module_levels"))
	settings.ConfigFile = v.ConfigFileUsed()
	settings.applyDebug()

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", configFile).
			Build()
	}
	return nil
}

// moduleLevels rebuilds dotted module names from the nested maps viper makes
// of keys like "migration.images".
func moduleLevels(raw any) map[string]string {
	levels := make(map[string]string)
	var walk func(prefix string, node any)
	walk = func(prefix string, node any) {
		switch n := node.(type) {
		case map[string]any:
			for key, child := range n {
				walk(joinModule(prefix, key), child)
			}
		case map[any]any:
			for key, child := range n {
				walk(joinModule(prefix, fmt.Sprint(key)), child)
			}
		case nil:
		default:
			if prefix != "" {
				levels[prefix] = fmt.Sprint(n)
			}
		}
	}
	walk("", raw)
	return levels
}

func joinModule(prefix, name string) string {
	name = strings.ToLower(name)
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// DefaultConfigPaths lists the directories searched for usagipass-migrate.yaml
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", AppName))
	}
	return paths
}

// applyDebug lets --debug and --log-level override the configured log levels
func (s *Settings) applyDebug() {
	level := s.LogLevel
	if s.Debug {
		level = string(logger.LogLevelDebug)
	}
	if level == "" {
		return
	}
	s.Logging.DefaultLevel = level
	if s.Logging.Console != nil {
		s.Logging.Console.Level = level
	}
}
