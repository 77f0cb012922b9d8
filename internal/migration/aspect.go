package migration

import (
	"context"

	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/errors"
)

// EnsureAspect makes sure aspect exists in the image aspect table and returns
// its id. An existing row is left untouched. A uniqueness violation here means
// a concurrent writer raced us, which callers treat as fatal.
func EnsureAspect(ctx context.Context, db *gorm.DB, aspect leporid.ImageAspect) (string, error) {
	var existing leporid.ImageAspect
	err := db.WithContext(ctx).Where("id = ?", aspect.ID).Take(&existing).Error
	switch {
	case err == nil:
		return existing.ID, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return "", database.Classify(err, "leporid", existing.TableName())
	}

	if err := db.WithContext(ctx).Create(&aspect).Error; err != nil {
		return "", database.Classify(err, "leporid", aspect.TableName())
	}
	return aspect.ID, nil
}

// EnsureRequiredAspects runs EnsureAspect for every aspect an image kind maps to.
// Each aspect is its own unit of work, rolled back in dry-run mode.
func EnsureRequiredAspects(ctx context.Context, db *gorm.DB, dryRun bool) ([]string, error) {
	aspects := RequiredAspects()
	ids := make([]string, 0, len(aspects))
	for _, aspect := range aspects {
		var id string
		err := runUnit(ctx, db, dryRun, func(tx *gorm.DB) error {
			var err error
			id, err = EnsureAspect(ctx, tx, aspect)
			return err
		})
		if err != nil {
			return nil, errors.New(err).
				Component("migration").
				Context("aspect_id", aspect.ID).
				Build()
		}
		ids = append(ids, id)
	}
	return ids, nil
}
