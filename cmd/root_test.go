package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/buildinfo"
	"github.com/usagipass/migration-tools/internal/conf"
	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/legacy"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/logger"
	"github.com/usagipass/migration-tools/internal/migration"
)

func init() {
	color.NoColor = true
}

// execute runs the command tree from an empty working directory
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Cleanup(func() { _ = logger.Global().Close() })

	out := &bytes.Buffer{}
	root := RootCommand(&conf.Settings{}, buildinfo.NewContext("v9.9.9", "2025-03-01", "abc1234"))
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append(args, "--log-level", "error"))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteStore(t *testing.T, path string, prepare func(db *gorm.DB)) string {
	t.Helper()

	raw := "sqlite:///" + path
	desc, err := database.ParseDescriptor(raw)
	require.NoError(t, err)
	db, err := database.Open(context.Background(), desc, database.Options{
		Name:   filepath.Base(path),
		Logger: logger.NewSlogLogger(nil, logger.LogLevelError, time.UTC),
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, database.Close(db)) }()

	prepare(db)
	return raw
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "usagipass-migrate v9.9.9")
	assert.Contains(t, out, "commit abc1234")
}

func TestMergeUpRequiresDescriptors(t *testing.T) {
	_, err := execute(t, "merge-up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--source is required")
}

func TestInvalidBatchSize(t *testing.T) {
	_, err := execute(t, "copy-img", "--batch-size", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")
}

func TestMergeUCEndToEnd(t *testing.T) {
	stores := t.TempDir()

	source := sqliteStore(t, filepath.Join(stores, "uc.db"), func(db *gorm.DB) {
		require.NoError(t, db.AutoMigrate(legacy.UCModels()...))
		uploader := int64(7)
		require.NoError(t, db.Create(&legacy.UCUser{ID: uploader, Username: "bob"}).Error)
		require.NoError(t, db.Create([]legacy.UCImage{
			{UUID: "img-1", Kind: "FRAME"},
			{UUID: "img-2", Kind: "mask", UploadedBy: &uploader},
		}).Error)
	})
	target := sqliteStore(t, filepath.Join(stores, "leporid.db"), func(db *gorm.DB) {
		require.NoError(t, leporid.AutoMigrate(db))
		require.NoError(t, db.Create(&leporid.User{ID: "admin-1", Username: "root", Password: "x", Permissions: "{}"}).Error)
	})

	reportPath := filepath.Join(stores, "run.json")
	args := []string{"merge-uc", "--source", source, "--target", target, "--admin-user-id", "admin-1", "--report", reportPath}

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "merge-uc")

	report := readReport(t, reportPath)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Section(migration.SectionUsers).Inserted)
	assert.Equal(t, 2, report.Section(migration.SectionImages).Inserted)

	_, err = execute(t, args...)
	require.NoError(t, err)
	report = readReport(t, reportPath)
	assert.Equal(t, 0, report.Section(migration.SectionImages).Inserted)
	assert.Equal(t, 2, report.Section(migration.SectionImages).Existing)
}

func TestMergeUCFromEnvironment(t *testing.T) {
	stores := t.TempDir()

	source := sqliteStore(t, filepath.Join(stores, "uc.db"), func(db *gorm.DB) {
		require.NoError(t, db.AutoMigrate(legacy.UCModels()...))
	})
	target := sqliteStore(t, filepath.Join(stores, "leporid.db"), func(db *gorm.DB) {
		require.NoError(t, leporid.AutoMigrate(db))
	})

	t.Setenv("MIGRATE_SOURCE", source)
	t.Setenv("MIGRATE_TARGET", target)
	t.Setenv("MIGRATE_ADMIN_USER_ID", "missing")

	out, err := execute(t, "merge-uc")
	require.Error(t, err)
	assert.Contains(t, out, "ABORTED")
}

func TestCopyImgMissingSourceDir(t *testing.T) {
	stores := t.TempDir()
	target := sqliteStore(t, filepath.Join(stores, "leporid.db"), func(db *gorm.DB) {
		require.NoError(t, leporid.AutoMigrate(db))
	})

	out, err := execute(t, "copy-img",
		"--leporid", target,
		"--source-dir", filepath.Join(stores, "absent"),
		"--target-dir", filepath.Join(stores, "dst"))
	require.Error(t, err)
	assert.Contains(t, out, "ABORTED")
}

func readReport(t *testing.T, path string) *migration.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report migration.Report
	require.NoError(t, json.Unmarshal(data, &report))
	return &report
}
