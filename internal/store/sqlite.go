package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type kvEntry struct {
	Key       string     `gorm:"primaryKey"`
	Value     []byte     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
}

func (kvEntry) TableName() string {
	return "kv_entries"
}

// SQLite is a single-file Store for local runs and tests. It holds one
// connection, so transactions never interleave.
type SQLite struct {
	db   *gorm.DB
	opts Options
	log  *zap.Logger
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens path (":memory:" for a throwaway database) and migrates the
// kv_entries table.
func NewSQLite(path string, opts Options, log *zap.Logger) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}

	log.Info("sqlite store opened", zap.String("path", path))
	return &SQLite{db: db, opts: opts, log: log}, nil
}

func (s *SQLite) Update(ctx context.Context, fn func(Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteTx{db: tx, opts: s.opts, now: s.opts.now()})
	})
}

func (s *SQLite) View(ctx context.Context, fn func(Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteTx{db: tx, opts: s.opts, now: s.opts.now(), readOnly: true})
	})
}

func (s *SQLite) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.opts.now()).
		Delete(&kvEntry{})
	return res.RowsAffected, res.Error
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqliteTx struct {
	db       *gorm.DB
	opts     Options
	now      time.Time
	readOnly bool
}

func (t *sqliteTx) load(key string) (*kvEntry, error) {
	var e kvEntry
	err := t.db.Where("key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !live(e.ExpiresAt, t.now) {
		return nil, nil
	}
	return &e, nil
}

func (t *sqliteTx) Get(_ context.Context, key string, dst any) (bool, error) {
	e, err := t.load(key)
	if err != nil || e == nil {
		return false, err
	}
	return true, decode(key, e.Value, dst)
}

func (t *sqliteTx) Has(_ context.Context, key string) (bool, error) {
	e, err := t.load(key)
	return e != nil, err
}

func (t *sqliteTx) Set(_ context.Context, key string, value any) error {
	if t.readOnly {
		return ErrReadOnly
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	current, err := t.load(key)
	if err != nil {
		return err
	}
	entry := kvEntry{Key: key, Value: data, ExpiresAt: t.opts.expiryFor(t.now)}
	if current != nil {
		entry.ExpiresAt = current.ExpiresAt
	}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&entry).Error
}

func (t *sqliteTx) Delete(_ context.Context, key string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.db.Where("key = ?", key).Delete(&kvEntry{}).Error
}

func (t *sqliteTx) ExtendTTL(_ context.Context, key string, ttl time.Duration) error {
	if t.readOnly {
		return ErrReadOnly
	}
	current, err := t.load(key)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return t.db.Model(&kvEntry{}).Where("key = ?", key).
		Update("expires_at", extend(current.ExpiresAt, t.now, ttl)).Error
}

func (t *sqliteTx) Persist(_ context.Context, key string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	current, err := t.load(key)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return t.db.Model(&kvEntry{}).Where("key = ?", key).Update("expires_at", nil).Error
}
