package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tripplanner/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFileDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(config.DatabaseConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "source.db")}, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBackupService(t *testing.T) {
	db := setupFileDB(t)
	storagePath := filepath.Join(t.TempDir(), "backups")

	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	logger := zerolog.Nop()
	s := NewBackupService(db, cfg, &logger)

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(context.Background())
		require.NoError(t, err)
		assert.FileExists(t, path)

		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, "backup_old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

		assert.Equal(t, 1, s.CleanupOldBackups())

		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		assert.Len(t, files, 1)
		assert.NotEqual(t, "backup_old.db", files[0].Name())
	})

	t.Run("Fallback", func(t *testing.T) {
		backupPath := filepath.Join(storagePath, "fallback_test.db")
		require.NoError(t, s.copyFile(backupPath))
		assert.FileExists(t, backupPath)
	})

	t.Run("Loop", func(t *testing.T) {
		cfgLoop := cfg
		cfgLoop.Interval = 10 * time.Millisecond
		cfgLoop.StoragePath = filepath.Join(t.TempDir(), "backups_loop")
		sLoop := NewBackupService(db, cfgLoop, &logger)

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		sLoop.Start(ctx)

		files, _ := os.ReadDir(cfgLoop.StoragePath)
		assert.NotEmpty(t, files)
	})
}

func TestBackupService_Disabled(t *testing.T) {
	logger := zerolog.Nop()
	storagePath := filepath.Join(t.TempDir(), "never")
	s := NewBackupService(setupTestDB(t), config.BackupConfig{Enabled: false, StoragePath: storagePath}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)

	assert.NoDirExists(t, storagePath)
}

func TestBackupService_InMemorySkipped(t *testing.T) {
	logger := zerolog.Nop()
	storagePath := filepath.Join(t.TempDir(), "never")
	s := NewBackupService(setupTestDB(t), config.BackupConfig{Enabled: true, StoragePath: storagePath}, &logger)

	s.Start(context.Background())
	assert.NoDirExists(t, storagePath)
}

func TestBackupService_StorageError(t *testing.T) {
	tmpFile, err := os.CreateTemp(t.TempDir(), "notadir")
	require.NoError(t, err)
	tmpFile.Close()

	logger := zerolog.Nop()
	cfg := config.BackupConfig{Enabled: true, StoragePath: filepath.Join(tmpFile.Name(), "subdir")}
	bs := NewBackupService(setupFileDB(t), cfg, &logger)

	_, err = bs.PerformBackup(context.Background())
	assert.Error(t, err)
}
