package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const defaultPollInterval = 500 * time.Millisecond

// DocumentRecord is the persisted form of one logical document.
type DocumentRecord struct {
	Key              string `gorm:"column:doc_key;primaryKey;size:190;not null"`
	Value            string `gorm:"column:doc_value;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName exposes the table backing stored documents.
func (DocumentRecord) TableName() string {
	return "documents"
}

// ChangeRecord is an append-only log entry naming a changed document key.
// The watcher polls it to emulate an external change notification.
type ChangeRecord struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Key              string `gorm:"column:doc_key;size:190;not null"`
	ChangedAtSeconds int64  `gorm:"column:changed_at_s;not null"`
}

// TableName exposes the table backing the change log.
func (ChangeRecord) TableName() string {
	return "document_changes"
}

// SQLiteStore persists documents through gorm on a SQLite database shared by
// every running client process for the profile.
type SQLiteStore struct {
	db           *gorm.DB
	clock        func() time.Time
	pollInterval time.Duration
}

type SQLiteStoreConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	PollInterval time.Duration
}

func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Database == nil {
		return nil, errors.New("storage: database handle is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &SQLiteStore{db: cfg.Database, clock: clock, pollInterval: interval}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var record DocumentRecord
	err := s.db.WithContext(ctx).Where("doc_key = ?", key).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(record.Value), nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	now := s.clock().UTC().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := DocumentRecord{Key: key, Value: string(value), UpdatedAtSeconds: now}
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		return tx.Create(&ChangeRecord{Key: key, ChangedAtSeconds: now}).Error
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	now := s.clock().UTC().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_key = ?", key).Delete(&DocumentRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(&ChangeRecord{Key: key, ChangedAtSeconds: now}).Error
	})
}

// Watch polls the change log so writes from other processes sharing the
// database surface as change notifications.
func (s *SQLiteStore) Watch(ctx context.Context) (<-chan string, func(), error) {
	var last int64
	row := s.db.WithContext(ctx).Model(&ChangeRecord{}).Select("COALESCE(MAX(id), 0)")
	if err := row.Scan(&last).Error; err != nil {
		return nil, nil, err
	}

	stream := make(chan string, 16)
	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(stream)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
			}
			var changes []ChangeRecord
			err := s.db.WithContext(watchCtx).
				Where("id > ?", last).
				Order("id ASC").
				Find(&changes).Error
			if err != nil {
				continue
			}
			for _, change := range changes {
				last = change.ID
				select {
				case stream <- change.Key:
				default:
				}
			}
		}
	}()
	return stream, cancel, nil
}
