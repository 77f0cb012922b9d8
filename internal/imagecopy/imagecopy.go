// Package imagecopy copies the stored binaries of Leporid images between
// directories, one <id>.webp file per tbl_image row.
package imagecopy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

// FileExtension is the extension of stored image binaries
const FileExtension = ".webp"

const (
	defaultBatchSize = 500
	dirPermissions   = 0o755
	filePermissions  = 0o644
)

// Config controls a copy run
type Config struct {
	SourceDir string
	TargetDir string
	// Overwrite replaces files already present in TargetDir
	Overwrite bool
	BatchSize int
	// DryRun counts what would be copied without writing
	DryRun bool
}

// Stats are the counters of a copy run
type Stats struct {
	Processed       int `yaml:"processed" json:"processed"`
	Copied          int `yaml:"copied" json:"copied"`
	SkippedMissing  int `yaml:"skipped_missing" json:"skipped_missing"`
	SkippedExisting int `yaml:"skipped_existing" json:"skipped_existing"`
}

// Map returns the counters keyed by name
func (s Stats) Map() map[string]int {
	return map[string]int{
		"processed":        s.Processed,
		"copied":           s.Copied,
		"skipped_missing":  s.SkippedMissing,
		"skipped_existing": s.SkippedExisting,
	}
}

// Copier copies image files on a filesystem
type Copier struct {
	db  *gorm.DB
	fs  afero.Fs
	log logger.Logger
}

// New creates a Copier reading image ids from the Leporid store db
func New(db *gorm.DB, fs afero.Fs, log logger.Logger) *Copier {
	if log == nil {
		log = logger.Global().Module("imagecopy")
	}
	return &Copier{db: db, fs: fs, log: log}
}

// Run copies <id>.webp from cfg.SourceDir to cfg.TargetDir for every image
// id in id order. Missing source files and existing targets are counted and
// skipped; a missing source directory is a validation error.
func (c *Copier) Run(ctx context.Context, cfg Config) (Stats, error) {
	var stats Stats

	info, err := c.fs.Stat(cfg.SourceDir)
	if err != nil || !info.IsDir() {
		return stats, errors.ValidationError(fmt.Sprintf("source directory %s does not exist or is not a directory", cfg.SourceDir))
	}
	if !cfg.DryRun {
		if err := c.fs.MkdirAll(cfg.TargetDir, dirPermissions); err != nil {
			return stats, errors.FileError(err, cfg.TargetDir, 0)
		}
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	log := c.log.WithContext(ctx)
	log.Info("copying images",
		logger.String("source_dir", cfg.SourceDir),
		logger.String("target_dir", cfg.TargetDir),
		logger.Bool("overwrite", cfg.Overwrite),
		logger.Bool("dry_run", cfg.DryRun))

	var batch []leporid.Image
	result := c.db.WithContext(ctx).Select("id").FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
		for _, img := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.Processed++
			if err := c.copyOne(img.ID, cfg, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	if result.Error != nil {
		return stats, database.Classify(result.Error, "leporid", "tbl_image")
	}

	log.Info("copy finished",
		logger.Int("processed", stats.Processed),
		logger.Int("copied", stats.Copied),
		logger.Int("missing", stats.SkippedMissing),
		logger.Int("existing", stats.SkippedExisting))
	return stats, nil
}

func (c *Copier) copyOne(id string, cfg Config, stats *Stats) error {
	name := filepath.Base(id) + FileExtension
	if name != id+FileExtension {
		// ids are uuids; anything with a path separator would escape TargetDir
		stats.SkippedMissing++
		c.log.Warn("image id is not a plain file name", logger.String("image_id", id))
		return nil
	}

	src := filepath.Join(cfg.SourceDir, name)
	info, err := c.fs.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		stats.SkippedMissing++
		c.log.Debug("source file missing", logger.String("file", name))
		return nil
	}

	dst := filepath.Join(cfg.TargetDir, name)
	if exists, _ := afero.Exists(c.fs, dst); exists && !cfg.Overwrite {
		stats.SkippedExisting++
		c.log.Debug("target file exists", logger.String("file", name))
		return nil
	}

	if cfg.DryRun {
		stats.Copied++
		return nil
	}

	if err := copyFile(c.fs, src, dst, info); err != nil {
		return err
	}
	stats.Copied++
	return nil
}

// copyFile copies src to dst, replacing dst, and keeps the modification time
func copyFile(fs afero.Fs, src, dst string, info os.FileInfo) error {
	in, err := fs.Open(src)
	if err != nil {
		return errors.FileError(err, src, info.Size())
	}
	defer func() { _ = in.Close() }()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return errors.FileError(err, dst, info.Size())
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.FileError(err, dst, info.Size())
	}
	if err := out.Close(); err != nil {
		return errors.FileError(err, dst, info.Size())
	}

	if err := fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return errors.FileError(err, dst, info.Size())
	}
	return nil
}
