package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/yuqie6/TagPilot/internal/schema"
	"gorm.io/gorm"
)

func openTempDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDatabaseMigrates(t *testing.T) {
	db := openTempDatabase(t)

	if db.SafeMode {
		t.Fatalf("fresh database in safe mode: %s", db.MigrationError)
	}
	if db.SchemaVersion != latestSchemaVersion {
		t.Fatalf("schema version = %d, want %d", db.SchemaVersion, latestSchemaVersion)
	}

	for _, table := range []string{"posts", "hashtag_recommendations", "performance_records", "hashtag_stats", "schema_meta"} {
		if !db.DB.Migrator().HasTable(table) {
			t.Fatalf("table %s missing", table)
		}
	}
}

func TestNewDatabaseReopenKeepsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	if second.SafeMode || second.SchemaVersion != latestSchemaVersion {
		t.Fatalf("reopen: safeMode=%v version=%d", second.SafeMode, second.SchemaVersion)
	}
}

func TestBackupAndRestoreFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "live.db")

	db, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// 写一条数据再备份
	stats := NewStatRepository(db.DB)
	err = db.DB.Transaction(func(tx *gorm.DB) error {
		return stats.RecordOutcome(tx, "golang", "Twitter", 0.02, 0.015, time.Now())
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	backupPath, err := db.Backup(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	// 备份后再写一条，恢复应回到备份时刻
	err = db.DB.Transaction(func(tx *gorm.DB) error {
		return stats.RecordOutcome(tx, "golang", "Twitter", 0.05, 0.015, time.Now())
	})
	if err != nil {
		t.Fatalf("post-backup write: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := RestoreFile(dbPath, backupPath); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer restored.Close()

	var stat schema.HashtagStat
	if err := restored.DB.Where("hashtag = ? AND platform = ?", "golang", "Twitter").First(&stat).Error; err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if stat.TotalUses != 1 {
		t.Fatalf("TotalUses = %d, want 1 (state at backup time)", stat.TotalUses)
	}
}
