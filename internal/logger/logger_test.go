package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagipass/migration-tools/internal/logger"
)

func TestNewSlogLoggerWritesText(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	log.Module("migration").Info("user migrated",
		logger.String("username", "alice"),
		logger.Int("bindings", 2),
		logger.Bool("created", true))

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, `msg="user migrated"`)
	assert.Contains(t, out, "module=migration")
	assert.Contains(t, out, "username=alice")
	assert.Contains(t, out, "bindings=2")
	assert.Contains(t, out, "created=true")
	assert.NotContains(t, out, "time=", "console output carries no timestamps")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelWarn, time.UTC)

	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("visible warn")
	log.Error("visible error", logger.Error(errors.New("boom")))
	log.Log(logger.LogLevelInfo, "hidden explicit")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
	assert.Contains(t, out, "error=boom")
}

func TestFieldsAccumulateAcrossSubModules(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	accounts := log.Module("migration").With(logger.String("run_id", "r-1")).Module("accounts")
	accounts.Info("bound", logger.Any("ratio", 0.123456), logger.Any("took", 1500*time.Microsecond))
	accounts.Log(logger.LogLevelError, "explicit error")

	out := buf.String()
	assert.Contains(t, out, "module=migration.accounts")
	assert.Contains(t, out, "run_id=r-1")
	assert.Contains(t, out, "ratio=0.123456")
	assert.Contains(t, out, "took=2ms")
	assert.Contains(t, out, `msg="explicit error"`)
}

func TestTraceLevelRenderedByName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC)
	log.Trace("sql query", logger.String("sql", "SELECT 1"))

	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestWithAndWithContext(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC).Module("migration")

	ctx := logger.WithTraceID(context.Background(), "run-42")
	scoped := base.With(logger.String("section", "images")).WithContext(ctx)
	scoped.Info("image skipped")
	base.Info("unscoped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "section=images")
	assert.Contains(t, lines[0], "trace_id=run-42")
	assert.NotContains(t, lines[1], "section=images")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestSubModuleNaming(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)
	log.Module("migration").Module("images").Info("done")

	assert.Contains(t, buf.String(), "module=migration.images")
}

func TestCentralLoggerModuleLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	cfg := &logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{
			"database":         "error",
			"migration.images": "debug",
		},
	}

	central, err := logger.NewCentralLogger(cfg, logger.WithConsoleWriter(buf))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, central.Close()) })

	central.Module("database").Warn("suppressed warning")
	central.Module("migration").Debug("suppressed debug")
	central.Module("migration").Module("images").Debug("image debug")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "image debug")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "migration.log")
	cfg := &logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "info"},
	}

	central, err := logger.NewCentralLogger(cfg)
	require.NoError(t, err)

	central.Module("cmd").Info("run finished", logger.Int("failed", 0))
	require.NoError(t, central.Flush())
	require.NoError(t, central.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "run finished", record["msg"])
	assert.Equal(t, "cmd", record["module"])
	assert.InDelta(t, 0, record["failed"], 0)
	assert.Contains(t, record, "time")
}

func TestCentralLoggerInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGormAdapterLevels(t *testing.T) {
	t.Parallel()

	errDup := errors.New("UNIQUE constraint failed: tbl_image.id")
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)
	adapter := logger.NewGormLoggerAdapter(log, 50*time.Millisecond,
		logger.WithExpectedErrors(func(err error) bool { return errors.Is(err, errDup) }))

	sqlFn := func() (string, int64) {
		return `INSERT INTO tbl_account VALUES ('{"accountPassword":"s3cret"}')`, 1
	}

	adapter.Trace(context.Background(), time.Now(), sqlFn, errDup)
	adapter.Trace(context.Background(), time.Now(), sqlFn, errors.New("disk I/O error"))
	adapter.Trace(context.Background(), time.Now().Add(-time.Second), sqlFn, nil)

	out := buf.String()
	assert.Contains(t, out, `level=DEBUG msg="expected query error"`)
	assert.Contains(t, out, `level=WARN msg="query error"`)
	assert.Contains(t, out, `level=WARN msg="slow query"`)
	assert.NotContains(t, out, "s3cret")
}

func TestGormAdapterNilLogger(t *testing.T) {
	t.Parallel()

	adapter := logger.NewGormLoggerAdapter(nil, 0)
	require.NotNil(t, adapter)
	assert.Same(t, adapter, adapter.LogMode(0))
	adapter.Info(context.Background(), "ignored %d", 1)
	adapter.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, nil)
}

func BenchmarkModuleLoggerInfo(b *testing.B) {
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, time.UTC).Module("bench")
	b.ReportAllocs()
	for b.Loop() {
		log.Info("row migrated", logger.String("id", "b7f3c1d2"), logger.Int("visibility", 0))
	}
}
