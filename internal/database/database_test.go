package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/lifesim/internal/config"
	"github.com/wfunc/lifesim/internal/models"
	"github.com/wfunc/lifesim/internal/repository"
	"go.uber.org/zap"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}

func TestAutoMigrate_SqliteFile(t *testing.T) {
	repository.SkipWithoutSQLite(t)
	dbPath := filepath.Join(t.TempDir(), "lifesim.db")
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dbPath, LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(db))
	assert.True(t, db.Migrator().HasTable(&models.StoreDocument{}))
	assert.True(t, db.Migrator().HasTable(&models.SaveArchive{}))

	// 迁移结束后锁文件已释放
	_, statErr := os.Stat(lockPathFor(dbPath))
	assert.True(t, os.IsNotExist(statErr))

	// 重复迁移是幂等的
	require.NoError(t, AutoMigrate(db))
}

func TestMigrationLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lock.db")
	lock, err := acquireMigrationLock(dbPath)
	require.NoError(t, err)
	_, statErr := os.Stat(lockPathFor(dbPath))
	assert.NoError(t, statErr)

	releaseMigrationLock(lock)
	_, statErr = os.Stat(lockPathFor(dbPath))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAutoMigrate_NilDB(t *testing.T) {
	assert.Error(t, AutoMigrate(nil))
}

func TestOpen_CreatesSQLiteDir(t *testing.T) {
	repository.SkipWithoutSQLite(t)
	dbPath := filepath.Join(t.TempDir(), "nested", "data", "lifesim.db")
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dbPath, LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	_, statErr := os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, statErr)
}

func TestEnsureSQLiteDir_Memory(t *testing.T) {
	assert.NoError(t, ensureSQLiteDir(":memory:"))
	assert.NoError(t, ensureSQLiteDir("file::memory:?cache=shared"))
}
