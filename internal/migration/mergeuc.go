package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/legacy"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

// Section names reported by merge-uc
const (
	SectionUsers  = "users"
	SectionImages = "images"
)

// MergeUCConfig holds the merge-uc specific settings
type MergeUCConfig struct {
	// AdminUserID is the target account that owns system images
	AdminUserID string
	SkipUsers   bool
}

// VerifyAdmin checks that the admin account exists in the target store.
// A missing account is a fatal ReferenceError.
func VerifyAdmin(ctx context.Context, target *gorm.DB, adminID string) error {
	if adminID == "" {
		return nil
	}

	var count int64
	if err := target.WithContext(ctx).Model(&leporid.User{}).Where("id = ?", adminID).Count(&count).Error; err != nil {
		return database.Classify(err, "target", "tbl_user")
	}
	if count == 0 {
		return errors.ReferenceError(fmt.Sprintf("admin user %s does not exist in target tbl_user", adminID))
	}
	return nil
}

// RunMergeUC migrates the UC workshop users and images into the target store.
// The returned report is never nil; a non-nil error is fatal.
func RunMergeUC(ctx context.Context, source, target *gorm.DB, cfg MergeUCConfig, opts RunOptions) (*Report, error) {
	opts = opts.withDefaults()
	log := opts.Logger.WithContext(ctx)
	report := NewReport("merge-uc", opts.DryRun, opts.Now())

	err := runMergeUC(ctx, source, target, cfg, opts, log, report)
	report.Finish(opts.Now(), err)
	return report, err
}

func runMergeUC(ctx context.Context, source, target *gorm.DB, cfg MergeUCConfig, opts RunOptions, log logger.Logger, report *Report) error {
	if err := VerifyAdmin(ctx, target, cfg.AdminUserID); err != nil {
		return err
	}

	aspects, err := EnsureRequiredAspects(ctx, target, opts.DryRun)
	if err != nil {
		return err
	}
	log.Info("image aspects ensured", logger.Any("aspects", aspects))

	owners := newUCOwnerResolver(source, target)

	if cfg.SkipUsers {
		log.Info("user sync skipped")
	} else {
		if err := syncUCUsers(ctx, source, target, opts, log, report.Section(SectionUsers), owners); err != nil {
			return err
		}
	}

	images := NewImageMigrator(target, owners, ImageOptions{
		AdminUserID: cfg.AdminUserID,
		DryRun:      opts.DryRun,
		Logger:      opts.Logger,
		Now:         opts.Now,
	})

	section := report.Section(SectionImages)
	var batch []legacy.UCImage
	result := source.WithContext(ctx).FindInBatches(&batch, opts.BatchSize, func(_ *gorm.DB, n int) error {
		for _, img := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome, err := images.Migrate(ctx, FromUCImage(img))
			if err := settle(log, section, img.UUID, outcome, err); err != nil {
				return err
			}
		}
		log.Debug("image batch done", logger.Int("batch", n), logger.Int("processed", section.Processed))
		return nil
	})
	if result.Error != nil {
		return database.Classify(result.Error, "source", "images")
	}

	log.Info("images migrated",
		logger.Int("processed", section.Processed),
		logger.Int("inserted", section.Inserted),
		logger.Int("existing", section.Existing),
		logger.Int("skipped", section.Skipped),
		logger.Int("failed", section.Failed))
	return nil
}

// syncUCUsers creates a target account for every source user whose username
// is not taken yet.
func syncUCUsers(ctx context.Context, source, target *gorm.DB, opts RunOptions, log logger.Logger, section *SectionResult, owners *ucOwnerResolver) error {
	var batch []legacy.UCUser
	result := source.WithContext(ctx).FindInBatches(&batch, opts.BatchSize, func(_ *gorm.DB, _ int) error {
		for _, u := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			unit := strconv.FormatInt(u.ID, 10)
			owners.rememberSource(u)

			outcome, id, err := syncUCUser(ctx, target, u, opts)
			if err == nil {
				owners.rememberTarget(u.Username, id)
			}
			if err := settle(log, section, unit, outcome, err); err != nil {
				return err
			}
		}
		return nil
	})
	if result.Error != nil {
		return database.Classify(result.Error, "source", "users")
	}

	log.Info("users synced",
		logger.Int("processed", section.Processed),
		logger.Int("inserted", section.Inserted),
		logger.Int("existing", section.Existing),
		logger.Int("failed", section.Failed))
	return nil
}

func syncUCUser(ctx context.Context, target *gorm.DB, u legacy.UCUser, opts RunOptions) (Outcome, string, error) {
	username := strings.TrimSpace(u.Username)
	if username == "" {
		return OutcomeFailed, "", errors.ValidationError(fmt.Sprintf("source user %d has an empty username", u.ID))
	}

	var existing leporid.User
	err := target.WithContext(ctx).Where("username = ?", username).Take(&existing).Error
	if err == nil {
		return OutcomeExisting, existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeFailed, "", database.Classify(err, "target", "tbl_user")
	}

	password := legacy.Value(u.HashedPassword)
	if password == "" {
		if password, err = GeneratePasswordHash(); err != nil {
			return OutcomeFailed, "", err
		}
	}

	now := opts.Now()
	created := normalizeTime(u.CreatedAt, now)
	user := leporid.User{
		ID:          uuid.NewString(),
		Username:    username,
		Password:    password,
		Email:       legacy.Value(u.Email),
		Permissions: emptyPermissions,
		CreatedAt:   created,
		UpdatedAt:   now.UTC(),
	}
	err = runUnit(ctx, target, opts.DryRun, func(tx *gorm.DB) error {
		return tx.Create(&user).Error
	})
	if err != nil {
		return OutcomeFailed, "", database.Classify(err, "target", user.TableName())
	}
	return OutcomeInserted, user.ID, nil
}

// ucOwnerResolver maps a UC source user id to the target account with the
// same username. Accounts synced in this run are remembered, so dry runs
// resolve uploaders whose accounts were rolled back.
type ucOwnerResolver struct {
	source    *gorm.DB
	target    *gorm.DB
	usernames *cache.Cache // source id -> username
	accounts  *cache.Cache // username -> target id
}

func newUCOwnerResolver(source, target *gorm.DB) *ucOwnerResolver {
	return &ucOwnerResolver{
		source:    source,
		target:    target,
		// no expiry and no janitor goroutine; entries live for one run
		usernames: cache.New(cache.NoExpiration, 0),
		accounts:  cache.New(cache.NoExpiration, 0),
	}
}

func (r *ucOwnerResolver) rememberSource(u legacy.UCUser) {
	r.usernames.SetDefault(strconv.FormatInt(u.ID, 10), strings.TrimSpace(u.Username))
}

func (r *ucOwnerResolver) rememberTarget(username, id string) {
	if username = strings.TrimSpace(username); username != "" && id != "" {
		r.accounts.SetDefault(username, id)
	}
}

// ResolveOwner implements OwnerResolver
func (r *ucOwnerResolver) ResolveOwner(ctx context.Context, uploader string) (string, error) {
	username, ok := lookup(r.usernames, uploader)
	if !ok {
		id, err := strconv.ParseInt(uploader, 10, 64)
		if err != nil {
			return "", errors.ValidationError(fmt.Sprintf("uploader id %q is not numeric", uploader))
		}
		var u legacy.UCUser
		err = r.source.WithContext(ctx).Where("id = ?", id).Take(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.ReferenceError(fmt.Sprintf("source user %s does not exist", uploader))
		}
		if err != nil {
			return "", database.Classify(err, "source", "users")
		}
		r.rememberSource(u)
		username = strings.TrimSpace(u.Username)
	}

	if id, ok := lookup(r.accounts, username); ok {
		return id, nil
	}

	var user leporid.User
	err := r.target.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errors.ReferenceError(fmt.Sprintf("username %s has no target account", username))
	}
	if err != nil {
		return "", database.Classify(err, "target", "tbl_user")
	}
	r.rememberTarget(username, user.ID)
	return user.ID, nil
}

func lookup(c *cache.Cache, key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}
