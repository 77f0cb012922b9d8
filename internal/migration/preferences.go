package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/legacy"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/datastore/usagipass"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

// Preference defaults for fields the legacy record leaves unset
const (
	DefaultQRSize          = 15
	DefaultMaskType        = 0
	DefaultPlayerInfoColor = "#ffffff"
	DefaultCharaInfoColor  = "#fee37c"
)

// LegacyRating is the rating carried over from a user's primary account
type LegacyRating struct {
	Rating    int64
	UpdatedAt *time.Time
}

// RatingFromAccount returns the rating of acc, or nil when it was never synced
func RatingFromAccount(acc legacy.Account) *LegacyRating {
	if acc.PlayerRating == nil {
		return nil
	}
	updated := acc.UpdatedAt
	if updated == nil || updated.IsZero() {
		updated = acc.CreatedAt
	}
	return &LegacyRating{Rating: *acc.PlayerRating, UpdatedAt: updated}
}

// DefaultPreference is the preference row of a user with no legacy overrides
func DefaultPreference(userID string) usagipass.Preference {
	return usagipass.Preference{
		UserID:          userID,
		QRSize:          DefaultQRSize,
		MaskType:        DefaultMaskType,
		PlayerInfoColor: DefaultPlayerInfoColor,
		CharaInfoColor:  DefaultCharaInfoColor,
		ShowDxRating:    true,
		ShowDisplayName: true,
		ShowFriendCode:  true,
		ShowDate:        true,
	}
}

// BuildPreference overlays the set fields of pref on the defaults. Image
// references pass through remap; a nil remap keeps them unchanged.
func BuildPreference(userID string, pref legacy.Preference, remap func(string) string) usagipass.Preference {
	if remap == nil {
		remap = func(s string) string { return s }
	}

	p := DefaultPreference(userID)
	p.MaimaiVersion = legacy.Value(pref.MaimaiVersion)
	p.SimplifiedCode = legacy.Value(pref.SimplifiedCode)
	p.CharacterName = legacy.Value(pref.CharacterName)
	p.FriendCode = legacy.Value(pref.FriendCode)
	p.DisplayName = legacy.Value(pref.DisplayName)
	p.DxRating = legacy.Value(pref.DxRating)

	// 0 is not a usable QR size
	if size := legacy.Value(pref.QRSize); size != 0 {
		p.QRSize = size
	}
	if pref.MaskType != nil {
		p.MaskType = *pref.MaskType
	}
	if color := strings.TrimSpace(legacy.Value(pref.CharaInfoColor)); color != "" {
		p.CharaInfoColor = color
	}
	if pref.ShowDate != nil {
		p.ShowDate = *pref.ShowDate
	}

	p.CharacterID = remap(legacy.Value(pref.CharacterID))
	p.BackgroundID = remap(legacy.Value(pref.BackgroundID))
	p.FrameID = remap(legacy.Value(pref.FrameID))
	p.PassnameID = remap(legacy.Value(pref.PassnameID))
	return p
}

// LoadServerIDs maps tbl_server identifiers (upper case) to ids. Every
// required server must be present.
func LoadServerIDs(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var servers []usagipass.Server
	if err := db.WithContext(ctx).Order("id").Find(&servers).Error; err != nil {
		return nil, database.Classify(err, "usagipass", "tbl_server")
	}

	ids := make(map[string]int64, len(servers))
	for _, s := range servers {
		ids[strings.ToUpper(strings.TrimSpace(s.Identifier))] = s.ID
	}

	var missing []string
	for _, required := range RequiredServers() {
		if _, ok := ids[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, errors.ReferenceError(
			fmt.Sprintf("usagipass tbl_server lacks identifiers: %s", strings.Join(missing, ", ")))
	}
	return ids, nil
}

// BuildImageLookup maps Usagipass legacy image ids to Leporid image ids by
// following images.sega_name to tbl_image.file_name.
func BuildImageLookup(ctx context.Context, usagipassDB, leporidDB *gorm.DB) (map[string]string, error) {
	var legacyImages []usagipass.LegacyImage
	err := usagipassDB.WithContext(ctx).
		Where("sega_name IS NOT NULL AND sega_name <> ''").
		Find(&legacyImages).Error
	if err != nil {
		return nil, database.Classify(err, "usagipass", "images")
	}
	if len(legacyImages) == 0 {
		return map[string]string{}, nil
	}

	var images []leporid.Image
	err = leporidDB.WithContext(ctx).
		Select("id", "file_name").
		Where("file_name IS NOT NULL AND file_name <> ''").
		Order("id").
		Find(&images).Error
	if err != nil {
		return nil, database.Classify(err, "leporid", "tbl_image")
	}

	byFileName := make(map[string]string, len(images))
	for _, img := range images {
		name := legacy.Value(img.FileName)
		if _, seen := byFileName[name]; !seen {
			byFileName[name] = img.ID
		}
	}

	lookup := make(map[string]string, len(legacyImages))
	for _, img := range legacyImages {
		if target, ok := byFileName[legacy.Value(img.SegaName)]; ok {
			lookup[img.ID] = target
		}
	}
	return lookup, nil
}

// UserDataOutcome reports what happened to each Usagipass record of a user.
// OutcomeSkipped means the legacy record was absent and nothing was written.
type UserDataOutcome struct {
	Accounts   []Outcome
	Rating     Outcome
	Preference Outcome
}

// PreferenceOptions configure a PreferenceMigrator
type PreferenceOptions struct {
	DryRun bool
	Logger logger.Logger
}

// PreferenceMigrator writes server accounts, ratings and preferences to Usagipass
type PreferenceMigrator struct {
	db      *gorm.DB
	servers map[string]int64
	images  map[string]string
	dryRun  bool
	log     logger.Logger
}

// NewPreferenceMigrator loads the server ids and the image-reference lookup.
// A Usagipass store without the required servers is a setup error.
func NewPreferenceMigrator(ctx context.Context, usagipassDB, leporidDB *gorm.DB, opts PreferenceOptions) (*PreferenceMigrator, error) {
	servers, err := LoadServerIDs(ctx, usagipassDB)
	if err != nil {
		return nil, err
	}
	images, err := BuildImageLookup(ctx, usagipassDB, leporidDB)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("migration")
	}

	m := &PreferenceMigrator{
		db:      usagipassDB,
		servers: servers,
		images:  images,
		dryRun:  opts.DryRun,
		log:     log.Module("preferences"),
	}
	m.log.Debug("preference migrator ready",
		logger.Int("servers", len(servers)),
		logger.Int("image_refs", len(images)))
	return m, nil
}

// RemapImage translates a legacy image reference; unknown values pass through
func (m *PreferenceMigrator) RemapImage(id string) string {
	if id == "" {
		return id
	}
	if target, ok := m.images[id]; ok {
		return target
	}
	return id
}

// Migrate upserts the rating and preference of accountID. Absent records
// write nothing.
func (m *PreferenceMigrator) Migrate(ctx context.Context, accountID string, rating *LegacyRating, pref *legacy.Preference) (UserDataOutcome, error) {
	var out UserDataOutcome
	err := runUnit(ctx, m.db, m.dryRun, func(tx *gorm.DB) error {
		var err error
		out, err = m.writeProfile(tx, accountID, rating, pref)
		return err
	})
	if err != nil {
		return UserDataOutcome{}, database.Classify(err, "usagipass", "tbl_preference")
	}
	return out, nil
}

// MigrateUser upserts the server accounts, rating and preference of one
// migrated user in a single unit of work.
func (m *PreferenceMigrator) MigrateUser(ctx context.Context, account AccountOutcome, accounts []legacy.Account, pref *legacy.Preference) (UserDataOutcome, error) {
	if account.AccountID == "" {
		return UserDataOutcome{}, errors.ReferenceError("user data has no target account")
	}

	var out UserDataOutcome
	err := runUnit(ctx, m.db, m.dryRun, func(tx *gorm.DB) error {
		out = UserDataOutcome{}
		for _, acc := range accounts {
			outcome, err := m.upsertServerAccount(tx, account.AccountID, acc)
			if err != nil {
				return err
			}
			if outcome != OutcomeSkipped {
				out.Accounts = append(out.Accounts, outcome)
			}
		}

		profile, err := m.writeProfile(tx, account.AccountID, RatingFromAccount(account.Primary), pref)
		if err != nil {
			return err
		}
		out.Rating, out.Preference = profile.Rating, profile.Preference
		return nil
	})
	if err != nil {
		return UserDataOutcome{}, database.Classify(err, "usagipass", "tbl_account")
	}

	m.log.Debug("user data migrated",
		logger.String("account_id", account.AccountID),
		logger.Int("server_accounts", len(out.Accounts)),
		logger.String("rating", out.Rating.String()),
		logger.String("preference", out.Preference.String()))
	return out, nil
}

func (m *PreferenceMigrator) writeProfile(tx *gorm.DB, userID string, rating *LegacyRating, pref *legacy.Preference) (UserDataOutcome, error) {
	out := UserDataOutcome{Rating: OutcomeSkipped, Preference: OutcomeSkipped}

	if rating != nil {
		row := usagipass.Rating{
			UserID:    userID,
			Rating:    rating.Rating,
			UpdatedAt: firstTime(rating.UpdatedAt),
		}
		outcome, err := upsert(tx, &row, "user_id = ?", userID, "user_id")
		if err != nil {
			return out, err
		}
		out.Rating = outcome
	}

	if pref != nil {
		row := BuildPreference(userID, *pref, m.RemapImage)
		outcome, err := upsert(tx, &row, "user_id = ?", userID, "user_id")
		if err != nil {
			return out, err
		}
		out.Preference = outcome
	}
	return out, nil
}

// upsertServerAccount writes the tbl_account row of acc, reusing the id of
// an existing (user_id, server_id) row. Unrecognized servers are skipped.
func (m *PreferenceMigrator) upsertServerAccount(tx *gorm.DB, userID string, acc legacy.Account) (Outcome, error) {
	rule, ok := LookupServerRule(acc.AccountServer)
	if !ok {
		return OutcomeSkipped, nil
	}
	serverID, ok := m.servers[rule.Identifier]
	if !ok {
		m.log.Warn("server missing in usagipass, account skipped",
			logger.String("server", rule.Identifier),
			logger.String("account_name", acc.AccountName))
		return OutcomeSkipped, nil
	}

	credentials, err := encodeCredentials(acc)
	if err != nil {
		return OutcomeFailed, err
	}

	row := usagipass.Account{
		ID:          uuid.NewString(),
		UserID:      userID,
		ServerID:    serverID,
		Credentials: credentials,
		Enabled:     true,
		CreatedAt:   firstTime(acc.CreatedAt, acc.UpdatedAt),
		UpdatedAt:   firstTime(acc.UpdatedAt, acc.CreatedAt),
	}

	var existing usagipass.Account
	err = tx.Where("user_id = ? AND server_id = ?", userID, serverID).Take(&existing).Error
	switch {
	case err == nil:
		row.ID = existing.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return OutcomeFailed, err
	}

	return upsert(tx, &row, "id = ?", row.ID, "id")
}

// upsert inserts row or overwrites the row matching where, reporting which happened
func upsert(tx *gorm.DB, row any, where string, key any, conflict string) (Outcome, error) {
	var count int64
	if err := tx.Model(row).Where(where, key).Count(&count).Error; err != nil {
		return OutcomeFailed, err
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: conflict}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return OutcomeFailed, err
	}

	if count > 0 {
		return OutcomeUpdated, nil
	}
	return OutcomeInserted, nil
}

// encodeCredentials renders the tbl_account credentials document. Non-ASCII
// and HTML characters are kept literally.
func encodeCredentials(acc legacy.Account) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(usagipass.Credentials{
		AccountName:     acc.AccountName,
		AccountPassword: legacy.Value(acc.AccountPassword),
	})
	if err != nil {
		return "", errors.New(err).Component("migration").Category(errors.CategoryValidation).Build()
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
