package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// collectionRecord is one row per collection.
type collectionRecord struct {
	Name      string    `gorm:"primaryKey;size:128"`
	Payload   string    `gorm:"type:text;not null"`
	Version   int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (collectionRecord) TableName() string { return "collections" }

// GormStore persists collections through GORM. It is used with the pure-Go
// SQLite driver for local durable runs.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the collections table and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&collectionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate collections: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context, name string) ([]byte, int64, error) {
	var rec collectionRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, ErrCollectionNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return []byte(rec.Payload), rec.Version, nil
}

func (s *GormStore) Save(ctx context.Context, name string, payload []byte, expected int64) (int64, error) {
	now := time.Now().UTC()
	db := s.db.WithContext(ctx)

	if expected == 0 {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&collectionRecord{
			Name:      name,
			Payload:   string(payload),
			Version:   1,
			UpdatedAt: now,
		})
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, ErrVersionConflict
		}
		return 1, nil
	}

	res := db.Model(&collectionRecord{}).
		Where("name = ? AND version = ?", name, expected).
		Updates(map[string]interface{}{
			"payload":    string(payload),
			"version":    expected + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrVersionConflict
	}
	return expected + 1, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
