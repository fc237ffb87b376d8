package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkstreamlabs/inkstream/backend/internal/threads"
)

func TestApplyMigrationsClearsOpenThreadResolution(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&threads.Thread{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	stale := threads.Thread{
		ThreadID:     "thread-1",
		DocumentID:   "doc-1",
		Status:       "open",
		CreatedBy:    "user-1",
		ResolvedBy:   "user-2",
		ResolvedAtMs: 1_700_000_000_000,
		CreatedAtMs:  1,
		UpdatedAtMs:  1,
	}
	resolved := threads.Thread{
		ThreadID:     "thread-2",
		DocumentID:   "doc-1",
		Status:       "resolved",
		CreatedBy:    "user-1",
		ResolvedBy:   "user-2",
		ResolvedAtMs: 1_700_000_000_000,
		CreatedAtMs:  1,
		UpdatedAtMs:  1,
	}
	if err := database.Create(&stale).Error; err != nil {
		testContext.Fatalf("failed to insert open thread: %v", err)
	}
	if err := database.Create(&resolved).Error; err != nil {
		testContext.Fatalf("failed to insert resolved thread: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var reloaded threads.Thread
	if err := database.Where("thread_id = ?", stale.ThreadID).Take(&reloaded).Error; err != nil {
		testContext.Fatalf("failed to reload open thread: %v", err)
	}
	if reloaded.ResolvedBy != "" || reloaded.ResolvedAtMs != 0 {
		testContext.Fatalf("expected open thread resolution to be cleared, got %s/%d", reloaded.ResolvedBy, reloaded.ResolvedAtMs)
	}

	var reloadedResolved threads.Thread
	if err := database.Where("thread_id = ?", resolved.ThreadID).Take(&reloadedResolved).Error; err != nil {
		testContext.Fatalf("failed to reload resolved thread: %v", err)
	}
	if reloadedResolved.ResolvedBy != "user-2" {
		testContext.Fatalf("resolved thread should keep its resolver, got %q", reloadedResolved.ResolvedBy)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationClearOpenThreadResolution).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("second migration pass should be a no-op: %v", err)
	}
}
