// Package runner wraps a command run: run id, summary output, report file
// and metrics textfile.
package runner

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/conf"
	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
	"github.com/usagipass/migration-tools/internal/migration"
	"github.com/usagipass/migration-tools/internal/observability/metrics"
)

// Env is what every command needs besides its own options
type Env struct {
	Settings *conf.Settings
	// Log provides the cmd, migration and database module loggers
	Log *logger.CentralLogger
	// Fs receives the report file
	Fs  afero.Fs
	Out io.Writer
	Now func() time.Time
	// NewRunID defaults to a random UUID
	NewRunID func() string
}

// RunFunc performs the work of one command
type RunFunc func(ctx context.Context, opts migration.RunOptions) (*migration.Report, error)

func (e *Env) withDefaults() *Env {
	env := *e
	if env.Log == nil {
		env.Log = logger.Global()
	}
	if env.Fs == nil {
		env.Fs = afero.NewOsFs()
	}
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.NewRunID == nil {
		env.NewRunID = uuid.NewString
	}
	return &env
}

// Run executes fn under a fresh run id, prints the summary and writes the
// report and metrics files when configured. It returns the fatal error of the
// run, else migration.ErrUnitsFailed when any unit failed.
func (e *Env) Run(ctx context.Context, command string, fn RunFunc) error {
	env := e.withDefaults()
	settings := env.Settings

	runID := env.NewRunID()
	ctx = logger.WithTraceID(ctx, runID)
	log := env.Log.Module("cmd").WithContext(ctx)

	log.Info("run started",
		logger.String("command", command),
		logger.Bool("dry_run", settings.DryRun),
		logger.Int("batch_size", settings.BatchSize))

	opts := migration.RunOptions{
		BatchSize: settings.BatchSize,
		DryRun:    settings.DryRun,
		Logger:    env.Log.Module("migration"),
		Now:       env.Now,
	}

	report, fatal := fn(ctx, opts)
	if report == nil {
		report = migration.NewReport(command, settings.DryRun, env.Now())
		report.Finish(env.Now(), fatal)
	}
	report.RunID = runID

	report.Print(env.Out)

	var outputErrs []error
	if settings.Report != "" {
		if err := report.WriteFile(env.Fs, settings.Report); err != nil {
			log.Error("report not written", logger.String("path", settings.Report), logger.Error(err))
			outputErrs = append(outputErrs, err)
		}
	}
	if settings.MetricsFile != "" {
		if err := writeMetrics(settings.MetricsFile, report, fatal); err != nil {
			log.Error("metrics not written", logger.String("path", settings.MetricsFile), logger.Error(err))
			outputErrs = append(outputErrs, err)
		}
	}

	if fatal != nil {
		log.Error("run aborted", logger.Error(fatal), logger.String("category", string(errors.CategoryOf(fatal))))
		return fatal
	}
	if err := report.Err(); err != nil {
		log.Warn("run finished with failures", logger.Int("failed", report.Failed()))
		return err
	}
	if len(outputErrs) > 0 {
		return errors.Join(outputErrs...)
	}

	log.Info("run finished", logger.String("duration", report.Duration))
	return nil
}

func writeMetrics(path string, report *migration.Report, fatal error) error {
	m, err := metrics.NewMigrationMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	for _, section := range report.Sections {
		for outcome, n := range section.Counts() {
			m.RecordUnits(report.Command, section.Name, outcome, n)
		}
	}
	for result, n := range report.Extra {
		m.RecordFiles(result, n)
	}

	status := metrics.StatusSuccess
	switch {
	case fatal != nil:
		status = metrics.StatusAborted
	case report.Failed() > 0:
		status = metrics.StatusFailed
	}
	m.RecordRun(report.Command, status, report.FinishedAt.Sub(report.StartedAt), report.FinishedAt)

	if err := m.WriteTextfile(path); err != nil {
		return errors.FileError(err, path, 0)
	}
	return nil
}

// Logger returns the logger of module
func (e *Env) Logger(module string) logger.Logger {
	return e.withDefaults().Log.Module(module)
}

// OpenStores opens the named stores concurrently with module "database" logging
func (e *Env) OpenStores(ctx context.Context, targets ...database.Target) ([]*gorm.DB, error) {
	env := e.withDefaults()
	return database.OpenAll(ctx, env.Log.Module("database"), targets...)
}

// AutoMigrate runs migrate against db when --auto-migrate is set
func (e *Env) AutoMigrate(name string, db *gorm.DB, migrate func(*gorm.DB) error) error {
	env := e.withDefaults()
	if !env.Settings.AutoMigrate {
		return nil
	}
	if err := migrate(db); err != nil {
		return errors.New(err).
			Component("runner").
			Category(errors.CategoryDatabase).
			Context("store", name).
			Context("operation", "auto-migrate").
			Build()
	}
	env.Log.Module("cmd").Info("schema migrated", logger.String("store", name))
	return nil
}
