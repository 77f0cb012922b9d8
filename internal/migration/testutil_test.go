package migration

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/legacy"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/datastore/usagipass"
	"github.com/usagipass/migration-tools/internal/logger"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func ptr[T any](v T) *T { return &v }

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func testOptions() RunOptions {
	return RunOptions{BatchSize: 2, Logger: testLogger(), Now: clock}
}

// openStore opens a fresh SQLite store in a temp dir and creates the tables of models
func openStore(t *testing.T, name string, models ...any) *gorm.DB {
	t.Helper()

	desc, err := database.ParseDescriptor("sqlite:///" + filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)

	db, err := database.Open(context.Background(), desc, database.Options{Name: name, Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...))
	}
	return db
}

func openLeporid(t *testing.T) *gorm.DB {
	t.Helper()
	db := openStore(t, "leporid")
	require.NoError(t, leporid.AutoMigrate(db))
	return db
}

func openUsagipass(t *testing.T) *gorm.DB {
	t.Helper()
	db := openStore(t, "usagipass")
	require.NoError(t, usagipass.AutoMigrate(db))
	require.NoError(t, db.Create([]usagipass.Server{
		{ID: 1, Identifier: usagipass.ServerDivingFish},
		{ID: 2, Identifier: usagipass.ServerLXNS},
	}).Error)
	return db
}

func openUCSource(t *testing.T) *gorm.DB {
	t.Helper()
	return openStore(t, "uc", legacy.UCModels()...)
}

func openUPSource(t *testing.T) *gorm.DB {
	t.Helper()
	return openStore(t, "up", legacy.UPModels()...)
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func upUser(username, prefer string) legacy.User {
	created := fixedNow.Add(-48 * time.Hour)
	return legacy.User{Username: username, PreferServer: ptr(prefer), CreatedAt: &created, UpdatedAt: &created}
}

func upAccount(username, server, name string, rating *int64) legacy.Account {
	updated := fixedNow.Add(-24 * time.Hour)
	return legacy.Account{
		Username:        username,
		AccountServer:   server,
		AccountName:     name,
		AccountPassword: ptr("pw-" + name),
		PlayerRating:    rating,
		CreatedAt:       &updated,
		UpdatedAt:       &updated,
	}
}

func seedLeporidUser(t *testing.T, db *gorm.DB, id, username string) {
	t.Helper()
	require.NoError(t, db.Create(&leporid.User{
		ID:          id,
		Username:    username,
		Password:    "x",
		Permissions: "{}",
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}).Error)
}
