package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvEntry is the gorm model backing SQLite.
type kvEntry struct {
	Namespace string `gorm:"primaryKey;size:128"`
	Key       string `gorm:"column:entry_key;primaryKey;size:512"`
	Value     []byte
	UpdatedAt time.Time
}

func (kvEntry) TableName() string { return "agent_kv" }

type SQLite struct {
	db        *gorm.DB
	namespace string
}

// OpenSQLite opens (and migrates) a SQLite file. ":memory:" is accepted.
func OpenSQLite(dsn, namespace string) (*SQLite, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "trendgeo.db"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %s: %w", dsn, err)
	}
	if dsn == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewSQLite(db, namespace)
}

// NewSQLite wraps an existing gorm handle.
func NewSQLite(db *gorm.DB, namespace string) (*SQLite, error) {
	if db == nil {
		return nil, errors.New("storage: nil gorm db")
	}
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("storage: migrate sqlite: %w", err)
	}
	return &SQLite{db: db, namespace: namespace}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var row kvEntry
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND entry_key = ?", s.namespace, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: sqlite get %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	row := kvEntry{Namespace: s.namespace, Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("storage: sqlite set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND entry_key = ?", s.namespace, key).
		Delete(&kvEntry{}).Error
	if err != nil {
		return fmt.Errorf("storage: sqlite delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
