package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CreateDatabase 在dir下创建名为name的sqlite文件，并依次执行statements
func CreateDatabase(t testing.TB, dir, name string, statements ...string) string {
	path := filepath.Join(dir, name)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error, stmt)
	}
	// 保证文件头已经写入
	require.NoError(t, db.Exec("PRAGMA user_version = 1").Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return path
}

// WriteFile 写入一个普通文件
func WriteFile(t testing.TB, dir, name string, content []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// ProcessesFixture 包含三种表：通用列、打包指标以及没有已知列的表
var ProcessesFixture = []string{
	`CREATE TABLE processes1 (PackageName TEXT, Pids TEXT, Metrics BLOB, ByteSize INTEGER, Timestamp INTEGER)`,
	`INSERT INTO processes1 VALUES ('com.example.mail', '[101, 102]', X'7B22637075223A317D', 2048, 10)`,
	`INSERT INTO processes1 VALUES ('com.example.maps', '[201]', NULL, NULL, 20)`,
	`CREATE TABLE processes2 (PackageName TEXT, Pids TEXT, Metrics TEXT)`,
	`INSERT INTO processes2 VALUES ('com.example.chat', '[301]', '30:5:2:10:500:300')`,
	`INSERT INTO processes2 VALUES ('com.example.game', '[401, 402]', '40:5')`,
	`CREATE TABLE processes3 (Unrelated TEXT)`,
	`INSERT INTO processes3 VALUES ('ignored')`,
	`CREATE TABLE settings (Key TEXT, Value TEXT)`,
	`INSERT INTO settings VALUES ('theme', 'dark')`,
}
