package migration

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/legacy"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

// SourceImage is a legacy image normalized for the image migrator
type SourceImage struct {
	ID   string
	Kind string
	// Uploader identifies the uploading user in the source store; empty for
	// system images
	Uploader     string
	Category     string
	Name         string
	Description  string
	OriginalName *string
	OriginalID   *string
	UploadedAt   *time.Time
}

// FromUCImage normalizes an image of the UC workshop
func FromUCImage(img legacy.UCImage) SourceImage {
	src := SourceImage{
		ID:           img.UUID,
		Kind:         img.Kind,
		Category:     legacy.Value(img.Category),
		Name:         BuildImageName(legacy.Value(img.Label), legacy.Value(img.TraceID)),
		OriginalName: img.FileName,
		OriginalID:   img.TraceID,
		UploadedAt:   img.UploadedAt,
	}
	if img.UploadedBy != nil {
		src.Uploader = strconv.FormatInt(*img.UploadedBy, 10)
	}
	return src
}

// FromUPImage normalizes an image of the UP card service
func FromUPImage(img legacy.Image) SourceImage {
	return SourceImage{
		ID:          img.ID,
		Kind:        img.Kind,
		Uploader:    legacy.Value(img.UploadedBy),
		Name:        BuildImageName(legacy.Value(img.Name)),
		Description: BuildImageName(legacy.Value(img.SegaName)),
		UploadedAt:  img.UploadedAt,
	}
}

// OwnerResolver maps a source uploader to the id of its target account
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, uploader string) (string, error)
}

// OwnerResolverFunc adapts a function to OwnerResolver
type OwnerResolverFunc func(ctx context.Context, uploader string) (string, error)

// ResolveOwner calls f
func (f OwnerResolverFunc) ResolveOwner(ctx context.Context, uploader string) (string, error) {
	return f(ctx, uploader)
}

// ImageOptions configure an ImageMigrator
type ImageOptions struct {
	// AdminUserID owns images without an uploader; empty skips them
	AdminUserID string
	DryRun      bool
	Logger      logger.Logger
	Now         func() time.Time
}

// ImageMigrator copies legacy images into the Leporid image table
type ImageMigrator struct {
	db       *gorm.DB
	resolver OwnerResolver
	admin    string
	dryRun   bool
	log      logger.Logger
	now      func() time.Time
}

// NewImageMigrator creates a migrator writing to the Leporid store db
func NewImageMigrator(db *gorm.DB, resolver OwnerResolver, opts ImageOptions) *ImageMigrator {
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("migration")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ImageMigrator{
		db:       db,
		resolver: resolver,
		admin:    opts.AdminUserID,
		dryRun:   opts.DryRun,
		log:      log.Module("images"),
		now:      now,
	}
}

// Migrate copies one image. It returns OutcomeExisting when the image id is
// already present, OutcomeSkipped for a system image with no admin account,
// and OutcomeInserted otherwise.
func (m *ImageMigrator) Migrate(ctx context.Context, img SourceImage) (Outcome, error) {
	if img.ID == "" {
		return OutcomeFailed, errors.ValidationError("image has no id")
	}

	var count int64
	if err := m.db.WithContext(ctx).Model(&leporid.Image{}).Where("id = ?", img.ID).Count(&count).Error; err != nil {
		return OutcomeFailed, database.Classify(err, "leporid", "tbl_image")
	}
	if count > 0 {
		return OutcomeExisting, nil
	}

	owner, visibility, err := m.owner(ctx, img)
	if err != nil {
		return OutcomeFailed, err
	}
	if owner == "" {
		m.log.Info("system image skipped, no admin account given", logger.String("image_id", img.ID))
		return OutcomeSkipped, nil
	}

	aspectID, err := DeriveAspectID(img.Kind)
	if err != nil {
		return OutcomeFailed, err
	}

	now := m.now().UTC()
	row := leporid.Image{
		ID:           img.ID,
		UserID:       owner,
		AspectID:     aspectID,
		Name:         img.Name,
		Description:  img.Description,
		Visibility:   visibility,
		Labels:       BuildImageLabels(img.Kind, img.Category, img.Uploader != ""),
		OriginalName: img.OriginalName,
		OriginalID:   img.OriginalID,
		CreatedAt:    normalizeTime(img.UploadedAt, now),
		UpdatedAt:    now,
	}

	err = runUnit(ctx, m.db, m.dryRun, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		if database.IsDuplicateKey(err) {
			return OutcomeExisting, nil
		}
		return OutcomeFailed, database.Classify(err, "leporid", row.TableName())
	}

	m.log.Debug("image migrated",
		logger.String("image_id", img.ID),
		logger.String("owner", owner),
		logger.Int("visibility", visibility))
	return OutcomeInserted, nil
}

// owner applies the ownership rules. An empty owner with a nil error means skip.
func (m *ImageMigrator) owner(ctx context.Context, img SourceImage) (string, int, error) {
	if img.Uploader == "" {
		if m.admin == "" {
			return "", 0, nil
		}
		return m.admin, leporid.VisibilityPublic, nil
	}

	owner, err := m.resolver.ResolveOwner(ctx, img.Uploader)
	if err != nil {
		if database.IsConnectivity(err) {
			return "", 0, err
		}
		return "", 0, errors.ReferenceError(
			fmt.Sprintf("uploader %s of image %s cannot be resolved: %v", img.Uploader, img.ID, err))
	}
	if owner == "" {
		return "", 0, errors.ReferenceError(
			fmt.Sprintf("uploader %s of image %s has no target account", img.Uploader, img.ID))
	}
	return owner, leporid.VisibilityPrivate, nil
}
