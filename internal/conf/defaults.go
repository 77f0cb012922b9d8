package conf

import (
	"github.com/spf13/viper"

	"github.com/usagipass/migration-tools/internal/logger"
)

// setDefaultConfig sets default values for the configuration
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "")

	v.SetDefault("admin_user_id", "")
	v.SetDefault("skip_users", false)
	v.SetDefault("overwrite", false)

	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("dry_run", false)
	v.SetDefault("auto_migrate", false)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
}
