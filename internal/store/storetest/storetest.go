// Package storetest 为测试提供基于 SQLite 文件的数据库。
package storetest

import (
	"path/filepath"
	"testing"

	"trackmyteam/internal/store"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// NewDB 在临时目录中创建已迁移的数据库，测试结束时关闭。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := store.Open(sqlite.Open(filepath.Join(t.TempDir(), "trackmyteam.db")))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(db)
	})
	return db
}
