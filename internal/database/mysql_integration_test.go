//go:build integration

package database_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/usagipass/migration-tools/internal/database"
	"github.com/usagipass/migration-tools/internal/datastore/legacy"
	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/logger"
	"github.com/usagipass/migration-tools/internal/migration"
)

// TestMergeUCAgainstMySQL runs merge-uc twice against a real MySQL target
// and checks duplicate-key classification on the go-sql-driver error.
func TestMergeUCAgainstMySQL(t *testing.T) {
	ctx := context.Background()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("leporid"),
		tcmysql.WithUsername("root"),
		tcmysql.WithPassword("password"),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate mysql container: %v", err)
		}
	})
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "parseTime=true", "charset=utf8mb4")
	require.NoError(t, err)

	targetDesc, err := database.ParseDescriptor(dsn)
	require.NoError(t, err)
	require.Equal(t, database.DialectMySQL, targetDesc.Dialect)

	sourceDesc, err := database.ParseDescriptor("sqlite:///" + filepath.Join(t.TempDir(), "uc.db"))
	require.NoError(t, err)

	dbs, err := database.OpenAll(ctx, log,
		database.Target{Name: "source", Descriptor: sourceDesc},
		database.Target{Name: "target", Descriptor: targetDesc},
	)
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseAll(dbs...) })
	source, target := dbs[0], dbs[1]

	require.NoError(t, source.AutoMigrate(legacy.UCModels()...))
	require.NoError(t, leporid.AutoMigrate(target))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, target.Create(&leporid.User{ID: "1", Username: "root", Password: "x", Permissions: "{}", CreatedAt: now, UpdatedAt: now}).Error)

	uploader := int64(2)
	require.NoError(t, source.Create([]legacy.UCUser{{ID: 2, Username: "bob"}}).Error)
	require.NoError(t, source.Create([]legacy.UCImage{
		{UUID: "img-a", Kind: "BACKGROUND"},
		{UUID: "img-b", Kind: "FRAME", UploadedBy: &uploader},
	}).Error)

	opts := migration.RunOptions{BatchSize: 1, Logger: log}
	cfg := migration.MergeUCConfig{AdminUserID: "1"}

	first, err := migration.RunMergeUC(ctx, source, target, cfg, opts)
	require.NoError(t, err)
	require.NoError(t, first.Err())
	assert.Equal(t, 2, first.Section(migration.SectionImages).Inserted)

	second, err := migration.RunMergeUC(ctx, source, target, cfg, opts)
	require.NoError(t, err)
	assert.Zero(t, second.Section(migration.SectionImages).Inserted)
	assert.Equal(t, 2, second.Section(migration.SectionImages).Existing)

	var aspects int64
	require.NoError(t, target.Model(&leporid.ImageAspect{}).Count(&aspects).Error)
	assert.Equal(t, int64(1), aspects)

	err = target.Create(&leporid.User{ID: "dup", Username: "root", Password: "x", Permissions: "{}", CreatedAt: now, UpdatedAt: now}).Error
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKey(err))
}
