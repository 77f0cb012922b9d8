package imagecopy

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/errors"
	"github.com/usagipass/migration-tools/internal/logger"
)

var modTime = time.Date(2024, 11, 5, 8, 30, 0, 0, time.UTC)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func openLeporid(t *testing.T, ids ...string) *gorm.DB {
	t.Helper()

	desc, err := database.ParseDescriptor("sqlite:///" + filepath.Join(t.TempDir(), "leporid.db"))
	require.NoError(t, err)
	db, err := database.Open(context.Background(), desc, database.Options{Name: "leporid", Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, leporid.AutoMigrate(db))

	for _, id := range ids {
		require.NoError(t, db.Create(&leporid.Image{
			ID:        id,
			UserID:    "owner",
			AspectID:  "id-1-ff",
			Name:      id,
			CreatedAt: modTime,
			UpdatedAt: modTime,
		}).Error)
	}
	return db
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	require.NoError(t, fs.Chtimes(path, modTime, modTime))
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func TestRunCopiesPresentFiles(t *testing.T) {
	t.Parallel()

	db := openLeporid(t, "a", "b", "c")
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/src", 0o755))
	writeFile(t, fs, "/src/a.webp", "image a")
	writeFile(t, fs, "/src/c.webp", "image c")

	stats, err := New(db, fs, testLogger()).Run(context.Background(), Config{
		SourceDir: "/src",
		TargetDir: "/dst/nested",
		BatchSize: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Processed: 3, Copied: 2, SkippedMissing: 1}, stats)
	assert.Equal(t, "image a", readFile(t, fs, "/dst/nested/a.webp"))
	assert.Equal(t, "image c", readFile(t, fs, "/dst/nested/c.webp"))

	exists, err := afero.Exists(fs, "/dst/nested/b.webp")
	require.NoError(t, err)
	assert.False(t, exists)

	info, err := fs.Stat("/dst/nested/a.webp")
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(modTime), "modification time is preserved")
}

func TestRunSkipsExistingUnlessOverwrite(t *testing.T) {
	t.Parallel()

	db := openLeporid(t, "a")
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/src", 0o755))
	require.NoError(t, fs.MkdirAll("/dst", 0o755))
	writeFile(t, fs, "/src/a.webp", "new")
	writeFile(t, fs, "/dst/a.webp", "old")

	copier := New(db, fs, testLogger())

	stats, err := copier.Run(context.Background(), Config{SourceDir: "/src", TargetDir: "/dst"})
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1, SkippedExisting: 1}, stats)
	assert.Equal(t, "old", readFile(t, fs, "/dst/a.webp"))

	stats, err = copier.Run(context.Background(), Config{SourceDir: "/src", TargetDir: "/dst", Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1, Copied: 1}, stats)
	assert.Equal(t, "new", readFile(t, fs, "/dst/a.webp"))
}

func TestRunOverwriteTruncatesLongerTarget(t *testing.T) {
	t.Parallel()

	db := openLeporid(t, "a")
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/dst", 0o755))
	writeFile(t, fs, "/src/a.webp", "s")
	writeFile(t, fs, "/dst/a.webp", "much longer stale content")

	_, err := New(db, fs, testLogger()).Run(context.Background(), Config{SourceDir: "/src", TargetDir: "/dst", Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "s", readFile(t, fs, "/dst/a.webp"))
}

func TestRunDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	db := openLeporid(t, "a", "b")
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.webp", "image a")

	stats, err := New(db, fs, testLogger()).Run(context.Background(), Config{
		SourceDir: "/src",
		TargetDir: "/dst",
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 2, Copied: 1, SkippedMissing: 1}, stats)

	exists, err := afero.DirExists(fs, "/dst")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunMissingSourceDir(t *testing.T) {
	t.Parallel()

	db := openLeporid(t, "a")
	fs := afero.NewMemMapFs()

	_, err := New(db, fs, testLogger()).Run(context.Background(), Config{SourceDir: "/nowhere", TargetDir: "/dst"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	writeFile(t, fs, "/file", "not a dir")
	_, err = New(db, fs, testLogger()).Run(context.Background(), Config{SourceDir: "/file", TargetDir: "/dst"})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestRunRejectsPathLikeIDs(t *testing.T) {
	t.Parallel()

	db := openLeporid(t, "../escape")
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/escape.webp", "x")
	writeFile(t, fs, "/escape.webp", "x")

	stats, err := New(db, fs, testLogger()).Run(context.Background(), Config{SourceDir: "/src", TargetDir: "/dst"})
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1, SkippedMissing: 1}, stats)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	db := openLeporid(t, "a")
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.webp", "image a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(db, fs, testLogger()).Run(ctx, Config{SourceDir: "/src", TargetDir: "/dst"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConnectivity))
}

func TestStatsMap(t *testing.T) {
	t.Parallel()

	m := Stats{Processed: 4, Copied: 1, SkippedMissing: 2, SkippedExisting: 1}.Map()
	assert.Equal(t, map[string]int{
		"processed":        4,
		"copied":           1,
		"skipped_missing":  2,
		"skipped_existing": 1,
	}, m)
}
