package conf

import (
	"fmt"
	"strings"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

// Validate checks the options shared by every command
func (s *Settings) Validate() error {
	if err := validateBatchSize(s.BatchSize); err != nil {
		return configError(err, "batch_size")
	}
	if s.LogLevel != "" && !logger.IsValidLevel(s.LogLevel) {
		return configError(fmt.Errorf("unknown log level %q", s.LogLevel), "log_level")
	}
	if s.Report != "" && !hasReportExtension(s.Report) {
		return configError(fmt.Errorf("report file %q must end in .yaml, .yml or .json", s.Report), "report")
	}
	return nil
}

// MergeUCStores are the parsed descriptors of a merge-uc run
type MergeUCStores struct {
	Source database.Descriptor
	Target database.Descriptor
}

// ValidateMergeUC checks the merge-uc options and parses its descriptors
func (s *Settings) ValidateMergeUC() (MergeUCStores, error) {
	var stores MergeUCStores
	var err error

	if stores.Source, err = requireDescriptor("source", s.Source); err != nil {
		return stores, err
	}
	if stores.Target, err = requireDescriptor("target", s.Target); err != nil {
		return stores, err
	}
	if strings.TrimSpace(s.AdminUserID) == "" {
		return stores, configError(errors.NewStd("--admin-user-id is required"), "admin_user_id")
	}
	return stores, nil
}

// MergeUpStores are the parsed descriptors of a merge-up run
type MergeUpStores struct {
	Source    database.Descriptor
	Leporid   database.Descriptor
	Usagipass database.Descriptor
}

// ValidateMergeUp checks the merge-up options and parses its descriptors
func (s *Settings) ValidateMergeUp() (MergeUpStores, error) {
	var stores MergeUpStores
	var err error

	if stores.Source, err = requireDescriptor("source", s.Source); err != nil {
		return stores, err
	}
	if stores.Leporid, err = requireDescriptor("leporid", s.Leporid); err != nil {
		return stores, err
	}
	if stores.Usagipass, err = requireDescriptor("usagipass", s.Usagipass); err != nil {
		return stores, err
	}
	return stores, nil
}

// ValidateCopyImage checks the copy-img options and parses the Leporid descriptor
func (s *Settings) ValidateCopyImage() (database.Descriptor, error) {
	desc, err := requireDescriptor("leporid", s.Leporid)
	if err != nil {
		return desc, err
	}
	if strings.TrimSpace(s.SourceDir) == "" {
		return desc, configError(errors.NewStd("--source-dir is required"), "source_dir")
	}
	if strings.TrimSpace(s.TargetDir) == "" {
		return desc, configError(errors.NewStd("--target-dir is required"), "target_dir")
	}
	return desc, nil
}

func requireDescriptor(key, raw string) (database.Descriptor, error) {
	if strings.TrimSpace(raw) == "" {
		return database.Descriptor{}, configError(fmt.Errorf("--%s is required", strings.ReplaceAll(key, "_", "-")), key)
	}
	desc, err := database.ParseDescriptor(raw)
	if err != nil {
		return database.Descriptor{}, errors.New(err).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("setting", key).
			Build()
	}
	return desc, nil
}

func validateBatchSize(n int) error {
	if n < MinBatchSize || n > MaxBatchSize {
		return fmt.Errorf("batch size must be between %d and %d, got %d", MinBatchSize, MaxBatchSize, n)
	}
	return nil
}

func hasReportExtension(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".json")
}

func configError(err error, key string) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("setting", key).
		Build()
}
