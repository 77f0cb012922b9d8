package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/logger"
)

// EnvPrefix prefixes every environment variable read by the commands
const EnvPrefix = "MIGRATE_"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		// Connection descriptors
		{"source", "MIGRATE_SOURCE", validateEnvDescriptor},
		{"target", "MIGRATE_TARGET", validateEnvDescriptor},
		{"leporid", "MIGRATE_LEPORID", validateEnvDescriptor},
		{"usagipass", "MIGRATE_USAGIPASS", validateEnvDescriptor},

		// merge-uc
		{"admin_user_id", "MIGRATE_ADMIN_USER_ID", nil},
		{"skip_users", "MIGRATE_SKIP_USERS", validateEnvBool},

		// copy-img
		{"source_dir", "MIGRATE_SOURCE_DIR", nil},
		{"target_dir", "MIGRATE_TARGET_DIR", nil},
		{"overwrite", "MIGRATE_OVERWRITE", validateEnvBool},

		// Run control
		{"batch_size", "MIGRATE_BATCH_SIZE", validateEnvBatchSize},
		{"dry_run", "MIGRATE_DRY_RUN", validateEnvBool},
		{"auto_migrate", "MIGRATE_AUTO_MIGRATE", validateEnvBool},
		{"report", "MIGRATE_REPORT", nil},
		{"metrics_file", "MIGRATE_METRICS_FILE", nil},

		// Logging
		{"debug", "MIGRATE_DEBUG", validateEnvBool},
		{"log_level", "MIGRATE_LOG_LEVEL", validateEnvLogLevel},
		{"logging.file_output.enabled", "MIGRATE_LOG_FILE_ENABLED", validateEnvBool},
		{"logging.file_output.path", "MIGRATE_LOG_FILE", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvBatchSize(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid batch size: %w", err)
	}
	return validateBatchSize(n)
}

// validateEnvDescriptor parses the descriptor; the error never echoes credentials
func validateEnvDescriptor(value string) error {
	_, err := database.ParseDescriptor(value)
	return err
}

func validateEnvLogLevel(value string) error {
	if !logger.IsValidLevel(value) {
		return fmt.Errorf("unknown log level '%s': expected trace, debug, info, warn or error", value)
	}
	return nil
}
