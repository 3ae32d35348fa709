// Package testhelper 为测试提供内存 SQLite 数据库
package testhelper

import (
	"testing"

	"github.com/user/cinelist/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 打开一个独立的内存数据库并完成迁移，测试结束时关闭
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testhelper: open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testhelper: get sql.DB: %v", err)
	}
	// :memory: 每个连接都是独立的库，只保留一个连接
	sqlDB.SetMaxOpenConns(1)

	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("testhelper: migrate: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}
