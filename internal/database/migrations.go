package database

import (
	"errors"
	"time"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRenameLegacyCartCache = "2026-08-12_rename_legacy_cart_cache"

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
		{name: migrationRenameLegacyCartCache, apply: renameLegacyCartCache},
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

// Profiles written before the document keys were aligned with the browser
// build stored the guest cart under CART_ITEMS_V0.
func renameLegacyCartCache(db *gorm.DB) error {
	var legacy storage.DocumentRecord
	err := db.Where("doc_key = ?", "CART_ITEMS_V0").Take(&legacy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var current storage.DocumentRecord
	err = db.Where("doc_key = ?", storage.DocGuestCart).Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		migrated := storage.DocumentRecord{
			Key:              storage.DocGuestCart,
			Value:            legacy.Value,
			UpdatedAtSeconds: legacy.UpdatedAtSeconds,
		}
		if err := db.Create(&migrated).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return db.Where("doc_key = ?", "CART_ITEMS_V0").Delete(&storage.DocumentRecord{}).Error
}
