package database

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

const (
	defaultSlowThreshold   = 500 * time.Millisecond
	defaultPingTimeout     = 10 * time.Second
	defaultMaxOpenConns    = 4
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
)

// Options control how a store is opened
type Options struct {
	// Name labels the store in logs and errors ("source", "leporid", ...)
	Name   string
	Logger logger.Logger
	// SlowThreshold marks slow statements; zero uses the default
	SlowThreshold time.Duration
	PingTimeout   time.Duration
}

// Open connects to the store behind desc and verifies it with a ping.
// Any failure is a ConnectivityError.
func Open(ctx context.Context, desc Descriptor, opts Options) (*gorm.DB, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("database")
	}
	log = log.With(logger.String("store", opts.Name))

	slow := opts.SlowThreshold
	if slow == 0 {
		slow = defaultSlowThreshold
	}
	pingTimeout := opts.PingTimeout
	if pingTimeout == 0 {
		pingTimeout = defaultPingTimeout
	}

	var dialector gorm.Dialector
	switch desc.Dialect {
	case DialectPostgres:
		dialector = postgres.Open(desc.DSN)
	case DialectMySQL:
		dialector = mysql.Open(desc.DSN)
	case DialectSQLite:
		dialector = sqlite.Open(desc.DSN)
	default:
		return nil, errors.Newf("unsupported dialect %q", desc.Dialect).
			Component("database").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLoggerAdapter(log, slow, logger.WithExpectedErrors(IsDuplicateKey)),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.ConnectivityError(fmt.Errorf("open %s store %s: %w", opts.Name, desc, err), opts.Name)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.ConnectivityError(fmt.Errorf("get %s connection pool: %w", opts.Name, err), opts.Name)
	}

	// SQLite allows a single writer
	if desc.Dialect == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
		sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.ConnectivityError(fmt.Errorf("ping %s store %s: %w", opts.Name, desc, err), opts.Name)
	}

	log.Debug("store connected",
		logger.String("dialect", string(desc.Dialect)),
		logger.String("descriptor", desc.String()))

	return db, nil
}

// Target names a store to open alongside others
type Target struct {
	Name       string
	Descriptor Descriptor
}

// OpenAll opens every target concurrently. On failure the stores that did
// open are closed again and the first error is returned.
func OpenAll(ctx context.Context, log logger.Logger, targets ...Target) ([]*gorm.DB, error) {
	dbs := make([]*gorm.DB, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			db, err := Open(gctx, target.Descriptor, Options{Name: target.Name, Logger: log})
			if err != nil {
				return err
			}
			dbs[i] = db
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		CloseAll(dbs...)
		return nil, err
	}
	return dbs, nil
}

// Close releases the connection pool behind db
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CloseAll closes every non-nil handle, ignoring errors
func CloseAll(dbs ...*gorm.DB) {
	for _, db := range dbs {
		_ = Close(db)
	}
}
