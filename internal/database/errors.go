package database

import (
	"context"
	"database/sql/driver"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/errors"
)

const (
	mysqlDuplicateEntry   = 1062
	postgresUniqueViolate = "23505"
)

// IsDuplicateKey reports whether err is a uniqueness violation from any supported driver
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.IsCategory(err, errors.CategoryConstraint) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolate
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrConstraint &&
			(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}

	return false
}

// IsConnectivity reports whether err means a store can no longer be reached.
// Cancellation counts, since the run cannot continue either way.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsCategory(err, errors.CategoryConnectivity) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Classify wraps err into the migration taxonomy: connectivity, constraint,
// or database. Errors that already carry a category are returned unchanged.
func Classify(err error, store, table string) error {
	if err == nil {
		return nil
	}

	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		return err
	}

	switch {
	case IsConnectivity(err):
		return errors.ConnectivityError(err, store)
	case IsDuplicateKey(err):
		return errors.ConstraintError(err, table)
	default:
		return errors.New(err).
			Component("database").
			Category(errors.CategoryDatabase).
			Context("store", store).
			Context("table", table).
			Build()
	}
}
