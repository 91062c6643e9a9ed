package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/lifesim/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 创建内存sqlite测试库并迁移所有模型
func SetupTestDB(t testing.TB) *gorm.DB {
	SkipWithoutSQLite(t)

	// 单连接保证所有查询落在同一个内存库
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	t.Cleanup(func() { CleanupTestDB(db) })
	return db
}

// SkipWithoutSQLite 无cgo构建时sqlite驱动不可用，跳过依赖它的测试
func SkipWithoutSQLite(t testing.TB) {
	t.Helper()
	if !sqliteAvailable {
		t.Skip("sqlite driver requires cgo")
	}
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}
