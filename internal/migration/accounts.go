package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/legacy"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

const emptyPermissions = "{}"

// UserRecord is a UP user together with its game-server accounts
type UserRecord struct {
	User     legacy.User
	Accounts []legacy.Account
}

// AccountOutcome describes the Leporid account a legacy user maps to
type AccountOutcome struct {
	AccountID string
	Username  string
	// Created is false when an existing account was reused
	Created          bool
	Rule             ServerRule
	Primary          legacy.Account
	BindingsAdded    int
	BindingsExisting int
}

// Outcome maps the account result onto the section counters
func (o AccountOutcome) Outcome() Outcome {
	if o.Created {
		return OutcomeInserted
	}
	return OutcomeExisting
}

// AccountOptions configure an AccountMigrator
type AccountOptions struct {
	DryRun bool
	Logger logger.Logger
	Now    func() time.Time
	// HashPassword generates the password stored for new accounts;
	// defaults to GeneratePasswordHash
	HashPassword func() (string, error)
}

// AccountMigrator creates or reuses the Leporid account of each legacy user
type AccountMigrator struct {
	db     *gorm.DB
	dryRun bool
	log    logger.Logger
	now    func() time.Time
	hash   func() (string, error)
}

// NewAccountMigrator creates a migrator writing to the Leporid store db
func NewAccountMigrator(db *gorm.DB, opts AccountOptions) *AccountMigrator {
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("migration")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	hash := opts.HashPassword
	if hash == nil {
		hash = GeneratePasswordHash
	}
	return &AccountMigrator{db: db, dryRun: opts.DryRun, log: log.Module("accounts"), now: now, hash: hash}
}

// PrimaryAccount validates the preferred server of rec and returns its rule
// and the legacy account held on that server.
func PrimaryAccount(rec UserRecord) (ServerRule, legacy.Account, error) {
	preferred := strings.TrimSpace(legacy.Value(rec.User.PreferServer))
	if preferred == "" {
		return ServerRule{}, legacy.Account{}, errors.ValidationError(
			fmt.Sprintf("user %s has no preferred server", rec.User.Username))
	}
	rule, ok := LookupServerRule(preferred)
	if !ok {
		return ServerRule{}, legacy.Account{}, errors.ValidationError(
			fmt.Sprintf("user %s prefers unrecognized server %q", rec.User.Username, preferred))
	}

	for _, acc := range rec.Accounts {
		if strings.EqualFold(strings.TrimSpace(acc.AccountServer), rule.Identifier) {
			if strings.TrimSpace(acc.AccountName) == "" {
				break
			}
			return rule, acc, nil
		}
	}
	return ServerRule{}, legacy.Account{}, errors.ValidationError(
		fmt.Sprintf("user %s has no account on preferred server %s", rec.User.Username, rule.Identifier))
}

// MigrateOrGet returns the Leporid account of rec, creating it when no
// binding or derived username matches, and records the third-party binding of
// every recognized legacy account. Account and bindings commit together.
func (m *AccountMigrator) MigrateOrGet(ctx context.Context, rec UserRecord) (AccountOutcome, error) {
	rule, primary, err := PrimaryAccount(rec)
	if err != nil {
		return AccountOutcome{}, err
	}

	var out AccountOutcome
	attempt := func(tx *gorm.DB) error {
		out = AccountOutcome{Rule: rule, Primary: primary}

		user, err := m.find(tx, rec, rule, primary)
		if err != nil {
			return err
		}
		if user == nil {
			if user, err = m.create(tx, rec, rule, primary); err != nil {
				return err
			}
			out.Created = true
		}
		out.AccountID = user.ID
		out.Username = user.Username

		return m.syncBindings(tx, user, rec, &out)
	}

	err = runUnit(ctx, m.db, m.dryRun, attempt)
	if database.IsDuplicateKey(err) {
		// another writer created the account or a binding first; the retry finds it
		err = runUnit(ctx, m.db, m.dryRun, attempt)
	}
	if err != nil {
		return AccountOutcome{}, database.Classify(err, "leporid", "tbl_user")
	}

	m.log.Debug("account resolved",
		logger.String("legacy_user", rec.User.Username),
		logger.String("account_id", out.AccountID),
		logger.String("username", out.Username),
		logger.Bool("created", out.Created),
		logger.Int("bindings_added", out.BindingsAdded))
	return out, nil
}

// find looks the account up by an existing binding of any legacy account, the
// primary one first, then by derived username. Returns nil when absent.
func (m *AccountMigrator) find(tx *gorm.DB, rec UserRecord, rule ServerRule, primary legacy.Account) (*leporid.User, error) {
	for _, acc := range primaryFirst(rec.Accounts, primary) {
		accRule, ok := LookupServerRule(acc.AccountServer)
		if !ok || strings.TrimSpace(acc.AccountName) == "" {
			continue
		}

		var binding leporid.UserThirdParty
		err := tx.Where("username = ? AND strategy = ?", acc.AccountName, accRule.Strategy).Take(&binding).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var user leporid.User
		err = tx.Where("id = ?", binding.UserID).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m.log.Warn("binding points at a missing account",
				logger.String("binding_id", binding.ID),
				logger.String("user_id", binding.UserID))
			continue
		}
		if err != nil {
			return nil, err
		}
		return &user, nil
	}

	var user leporid.User
	err := tx.Where("username = ?", rule.DerivedUsername(primary.AccountName)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *AccountMigrator) create(tx *gorm.DB, rec UserRecord, rule ServerRule, primary legacy.Account) (*leporid.User, error) {
	password, err := m.hash()
	if err != nil {
		return nil, errors.New(err).Component("migration").Category(errors.CategoryGeneric).Build()
	}

	now := m.now()
	user := &leporid.User{
		ID:          uuid.NewString(),
		Username:    rule.DerivedUsername(primary.AccountName),
		Password:    password,
		Email:       "",
		Permissions: emptyPermissions,
		CreatedAt:   normalizeTime(rec.User.CreatedAt, now),
		UpdatedAt:   normalizeTime(rec.User.UpdatedAt, now),
	}
	if err := tx.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (m *AccountMigrator) syncBindings(tx *gorm.DB, user *leporid.User, rec UserRecord, out *AccountOutcome) error {
	now := m.now()
	for _, acc := range rec.Accounts {
		rule, ok := LookupServerRule(acc.AccountServer)
		if !ok || strings.TrimSpace(acc.AccountName) == "" {
			continue
		}

		var existing leporid.UserThirdParty
		err := tx.Where("username = ? AND strategy = ?", acc.AccountName, rule.Strategy).Take(&existing).Error
		if err == nil {
			out.BindingsExisting++
			if existing.UserID != user.ID {
				m.log.Warn("binding already belongs to another account",
					logger.String("account_name", acc.AccountName),
					logger.Int("strategy", rule.Strategy),
					logger.String("bound_to", existing.UserID),
					logger.String("account_id", user.ID))
			}
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		binding := leporid.UserThirdParty{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Username:  acc.AccountName,
			Strategy:  rule.Strategy,
			CreatedAt: normalizeTime(acc.CreatedAt, now),
			UpdatedAt: normalizeTime(acc.UpdatedAt, now),
		}
		if err := tx.Create(&binding).Error; err != nil {
			return err
		}
		out.BindingsAdded++
	}
	return nil
}

// primaryFirst orders accounts so the primary account is looked at first
func primaryFirst(accounts []legacy.Account, primary legacy.Account) []legacy.Account {
	ordered := make([]legacy.Account, 0, len(accounts))
	ordered = append(ordered, primary)
	for _, acc := range accounts {
		if acc.AccountServer == primary.AccountServer && acc.AccountName == primary.AccountName {
			continue
		}
		ordered = append(ordered, acc)
	}
	return ordered
}
