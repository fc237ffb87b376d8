package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkstreamlabs/inkstream/backend/internal/threads"
)

const migrationClearOpenThreadResolution = "2026-07-18_clear_open_thread_resolution"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClearOpenThreadResolution, apply: clearOpenThreadResolution},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Earlier builds could leave resolver metadata behind when a thread was
// reopened. Open threads must carry no resolution fields.
func clearOpenThreadResolution(db *gorm.DB) error {
	return db.Model(&threads.Thread{}).
		Where("status = ? AND (resolved_by <> '' OR resolved_at_ms <> 0)", "open").
		Updates(map[string]any{"resolved_by": "", "resolved_at_ms": 0}).Error
}
