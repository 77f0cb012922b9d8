package migration

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

// Outcome is what happened to one unit of work
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeExisting
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeExisting:
		return "existing"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// errDryRun rolls back a unit that otherwise succeeded
var errDryRun = errors.NewStd("dry run: rolling back unit")

// runUnit executes fn in a transaction on db. In dry-run mode the
// transaction is always rolled back and a nil error is reported.
// fn must use tx for every statement; SQLite stores have a single connection.
func runUnit(ctx context.Context, db *gorm.DB, dryRun bool, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		if dryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		return nil
	}
	return err
}

// RunOptions are shared by the migration commands
type RunOptions struct {
	BatchSize int
	DryRun    bool
	Logger    logger.Logger
	// Now stamps rows whose legacy timestamps are NULL; defaults to time.Now
	Now func() time.Time
}

const (
	DefaultBatchSize = 500
	MaxBatchSize     = 10000
)

func (o RunOptions) withDefaults() RunOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchSize > MaxBatchSize {
		o.BatchSize = MaxBatchSize
	}
	if o.Logger == nil {
		o.Logger = logger.Global().Module("migration")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// settle records the result of one unit in section. Connectivity failures
// are returned so the caller aborts; a uniqueness violation means another
// writer got there first and counts as existing; anything else fails the unit.
func settle(log logger.Logger, section *SectionResult, unit string, outcome Outcome, err error) error {
	if err == nil {
		section.Record(outcome)
		return nil
	}

	switch {
	case database.IsConnectivity(err):
		section.Fail(unit, err)
		log.Error("store unreachable, aborting",
			logger.String("section", section.Name),
			logger.String("unit", unit),
			logger.Error(err))
		return err
	case database.IsDuplicateKey(err):
		section.Record(OutcomeExisting)
		log.Debug("unit already present",
			logger.String("section", section.Name),
			logger.String("unit", unit))
		return nil
	default:
		section.Fail(unit, err)
		log.Warn("unit failed",
			logger.String("section", section.Name),
			logger.String("unit", unit),
			logger.String("category", string(errors.CategoryOf(err))),
			logger.Error(err))
		return nil
	}
}
