package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vigil/internal/store"
	"vigil/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SqliteStore struct {
	db *gorm.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newSqliteStore(db)
}

// NewSqliteStoreFromDB wraps an existing connection (used by tests with an
// in-memory database).
func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newSqliteStore(db)
}

func newSqliteStore(db *gorm.DB) (*SqliteStore, error) {
	models := []interface{}{
		&model.PositionModel{},
		&model.ReconRecordModel{},
		&model.ReconReportModel{},
		&model.MarginSnapshotModel{},
		&model.MarginAlertModel{},
		&model.LiquidationActionModel{},
		&model.CooldownStateModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Positions() store.PositionRepository { return &positionRepo{db: s.db} }

func (s *SqliteStore) Reconciliations() store.ReconciliationRepository {
	return &reconciliationRepo{db: s.db}
}

func (s *SqliteStore) Snapshots() store.SnapshotRepository { return &snapshotRepo{db: s.db} }

func (s *SqliteStore) Actions() store.ActionRepository { return &actionRepo{db: s.db} }

func (s *SqliteStore) Alerts() store.AlertRepository { return &alertRepo{db: s.db} }

func (s *SqliteStore) Cooldowns() store.CooldownRepository { return &cooldownRepo{db: s.db} }

func (s *SqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
