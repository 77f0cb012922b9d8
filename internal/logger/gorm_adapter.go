package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// GormLoggerAdapter adapts Logger to GORM's logger.Interface.
// SQL statements are logged at TRACE, so they only show up when the
// database module runs at "trace" level.
//
//	gormLogger := logger.NewGormLoggerAdapter(central.Module("database"), 200*time.Millisecond)
//	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
type GormLoggerAdapter struct {
	logger        Logger
	slowThreshold time.Duration
	expected      func(error) bool
}

// GormOption customizes a GormLoggerAdapter.
type GormOption func(*GormLoggerAdapter)

// WithExpectedErrors marks query errors that callers handle themselves,
// such as duplicate keys on idempotent inserts. They are logged at DEBUG instead of WARN.
func WithExpectedErrors(match func(error) bool) GormOption {
	return func(a *GormLoggerAdapter) {
		a.expected = match
	}
}

// NewGormLoggerAdapter creates a new GORM logger adapter.
// Queries slower than slowThreshold are logged at WARN; 0 disables the check.
func NewGormLoggerAdapter(logger Logger, slowThreshold time.Duration, opts ...GormOption) *GormLoggerAdapter {
	if logger == nil {
		logger = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	a := &GormLoggerAdapter{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LogMode returns the adapter itself; levels come from the central logger config.
func (a *GormLoggerAdapter) LogMode(_ gorm_logger.LogLevel) gorm_logger.Interface {
	return a
}

// Info logs GORM info messages at DEBUG level.
func (a *GormLoggerAdapter) Info(_ context.Context, msg string, data ...any) {
	a.logger.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.logger.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, data ...any) {
	a.logger.Error(fmt.Sprintf(msg, data...))
}

// Trace logs SQL statements and their execution details.
func (a *GormLoggerAdapter) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	sql = RedactSensitiveData(sql)
	log := a.logger.WithContext(ctx)

	switch {
	case err != nil && errors.Is(err, gorm.ErrRecordNotFound):
		log.Trace("sql query",
			String("sql", sql),
			Int64("duration_ms", elapsed.Milliseconds()),
			Bool("not_found", true))

	case err != nil && a.expected != nil && a.expected(err):
		log.Debug("expected query error",
			String("sql", sql),
			Error(err))

	case err != nil:
		log.Warn("query error",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()),
			Error(err))

	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		log.Warn("slow query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()),
			Duration("threshold", a.slowThreshold))

	default:
		log.Trace("sql query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()))
	}
}
