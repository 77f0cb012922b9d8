package migration

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/legacy"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

// Section names reported by merge-up in addition to users and images
const (
	SectionBindings       = "third_parties"
	SectionServerAccounts = "accounts"
	SectionRatings        = "ratings"
	SectionPreferences    = "preferences"
)

// UPStores are the three stores merge-up works across
type UPStores struct {
	Source    *gorm.DB
	Leporid   *gorm.DB
	Usagipass *gorm.DB
}

// RunMergeUp migrates UP users into Leporid accounts and Usagipass user data,
// then the images those users uploaded. The returned report is never nil; a
// non-nil error is fatal.
func RunMergeUp(ctx context.Context, stores UPStores, opts RunOptions) (*Report, error) {
	opts = opts.withDefaults()
	log := opts.Logger.WithContext(ctx)
	report := NewReport("merge-up", opts.DryRun, opts.Now())

	err := runMergeUp(ctx, stores, opts, log, report)
	report.Finish(opts.Now(), err)
	return report, err
}

func runMergeUp(ctx context.Context, stores UPStores, opts RunOptions, log logger.Logger, report *Report) error {
	aspects, err := EnsureRequiredAspects(ctx, stores.Leporid, opts.DryRun)
	if err != nil {
		return err
	}
	log.Info("image aspects ensured", logger.Any("aspects", aspects))

	prefs, err := NewPreferenceMigrator(ctx, stores.Usagipass, stores.Leporid, PreferenceOptions{
		DryRun: opts.DryRun,
		Logger: opts.Logger,
	})
	if err != nil {
		return err
	}
	accounts := NewAccountMigrator(stores.Leporid, AccountOptions{
		DryRun: opts.DryRun,
		Logger: opts.Logger,
		Now:    opts.Now,
	})

	migrated, err := migrateUPUsers(ctx, stores.Source, accounts, prefs, opts, log, report)
	if err != nil {
		return err
	}

	return migrateUPImages(ctx, stores, migrated, opts, log, report.Section(SectionImages))
}

// migrateUPUsers returns the Leporid account id of every user migrated in this run
func migrateUPUsers(ctx context.Context, source *gorm.DB, accounts *AccountMigrator, prefs *PreferenceMigrator,
	opts RunOptions, log logger.Logger, report *Report,
) (map[string]string, error) {
	users := report.Section(SectionUsers)
	bindings := report.Section(SectionBindings)
	serverAccounts := report.Section(SectionServerAccounts)
	ratings := report.Section(SectionRatings)
	preferences := report.Section(SectionPreferences)

	migrated := make(map[string]string)

	var batch []legacy.User
	result := source.WithContext(ctx).FindInBatches(&batch, opts.BatchSize, func(_ *gorm.DB, n int) error {
		for _, u := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, pref, err := loadUPUser(ctx, source, u)
			if err != nil {
				if err := settle(log, users, u.Username, OutcomeFailed, err); err != nil {
					return err
				}
				continue
			}

			account, err := accounts.MigrateOrGet(ctx, rec)
			if err != nil {
				if err := settle(log, users, u.Username, OutcomeFailed, err); err != nil {
					return err
				}
				continue
			}
			users.Record(account.Outcome())
			for range account.BindingsAdded {
				bindings.Record(OutcomeInserted)
			}
			for range account.BindingsExisting {
				bindings.Record(OutcomeExisting)
			}
			migrated[u.Username] = account.AccountID

			data, err := prefs.MigrateUser(ctx, account, rec.Accounts, pref)
			if err != nil {
				// the Leporid account stays; its user data is retried on the next run
				if err := settle(log, serverAccounts, u.Username, OutcomeFailed, err); err != nil {
					return err
				}
				continue
			}
			for _, outcome := range data.Accounts {
				serverAccounts.Record(outcome)
			}
			ratings.Record(data.Rating)
			preferences.Record(data.Preference)
		}
		log.Debug("user batch done", logger.Int("batch", n), logger.Int("processed", users.Processed))
		return nil
	})
	if result.Error != nil {
		return nil, database.Classify(result.Error, "source", "users")
	}

	log.Info("users migrated",
		logger.Int("processed", users.Processed),
		logger.Int("created", users.Inserted),
		logger.Int("reused", users.Existing),
		logger.Int("failed", users.Failed),
		logger.Int("bindings_added", bindings.Inserted))
	return migrated, nil
}

// loadUPUser reads the accounts and the optional preference of u
func loadUPUser(ctx context.Context, source *gorm.DB, u legacy.User) (UserRecord, *legacy.Preference, error) {
	rec := UserRecord{User: u}
	err := source.WithContext(ctx).
		Where("username = ?", u.Username).
		Order("account_server").
		Find(&rec.Accounts).Error
	if err != nil {
		return rec, nil, database.Classify(err, "source", "user_accounts")
	}

	var pref legacy.Preference
	err = source.WithContext(ctx).Where("username = ?", u.Username).Take(&pref).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return rec, nil, nil
	case err != nil:
		return rec, nil, database.Classify(err, "source", "user_preferences")
	}
	return rec, &pref, nil
}

func migrateUPImages(ctx context.Context, stores UPStores, migrated map[string]string,
	opts RunOptions, log logger.Logger, section *SectionResult,
) error {
	resolver := OwnerResolverFunc(func(_ context.Context, uploader string) (string, error) {
		if id, ok := migrated[uploader]; ok {
			return id, nil
		}
		return "", errors.ReferenceError(fmt.Sprintf("uploader %s was not migrated in this run", uploader))
	})

	images := NewImageMigrator(stores.Leporid, resolver, ImageOptions{
		DryRun: opts.DryRun,
		Logger: opts.Logger,
		Now:    opts.Now,
	})

	var batch []legacy.Image
	result := stores.Source.WithContext(ctx).
		Where("uploaded_by IS NOT NULL").
		FindInBatches(&batch, opts.BatchSize, func(_ *gorm.DB, _ int) error {
			for _, img := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				outcome, err := images.Migrate(ctx, FromUPImage(img))
				if err := settle(log, section, img.ID, outcome, err); err != nil {
					return err
				}
			}
			return nil
		})
	if result.Error != nil {
		return database.Classify(result.Error, "source", "images")
	}

	log.Info("images migrated",
		logger.Int("processed", section.Processed),
		logger.Int("inserted", section.Inserted),
		logger.Int("existing", section.Existing),
		logger.Int("failed", section.Failed))
	return nil
}
