package keystore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type keystoreEntry struct {
	Name       string    `gorm:"column:name;primaryKey"`
	Type       string    `gorm:"column:type;not null"`
	PrivateKey []byte    `gorm:"column:private_key;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (keystoreEntry) TableName() string {
	return "keystore_entries"
}

type PostgresStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

var _ KeyStore = (*PostgresStore)(nil)

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, ioError("open postgres connection", err)
	}
	store, err := NewPostgresStoreFromDB(db)
	if err != nil {
		return nil, err
	}

	if cfg.MaxIdleConns > 0 {
		store.sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		store.sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		store.sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Info("Connected to PostgreSQL successfully!")
	return store, nil
}

// NewPostgresStoreFromDB migrates the keystore table on an open gorm handle.
func NewPostgresStoreFromDB(db *gorm.DB) (*PostgresStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieve sql.DB from gorm: %w", err)
	}
	if err := db.AutoMigrate(&keystoreEntry{}); err != nil {
		return nil, ioError("auto-migrate keystore_entries", err)
	}
	return &PostgresStore{db: db, sqlDB: sqlDB}, nil
}

func (s *PostgresStore) List() ([]string, error) {
	var names []string
	if err := s.db.Model(&keystoreEntry{}).Pluck("name", &names).Error; err != nil {
		return nil, ioError("list postgres keys", err)
	}
	return names, nil
}

func (s *PostgresStore) Get(name string) (KeyInfo, error) {
	var entry keystoreEntry
	err := s.db.First(&entry, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KeyInfo{}, fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	if err != nil {
		return KeyInfo{}, ioError("get postgres key", err)
	}

	typ, err := crypto.ParseSigType(entry.Type)
	if err != nil {
		return KeyInfo{}, fmt.Errorf("%w: entry %q: %v", ErrCorruptStore, name, err)
	}
	return KeyInfo{Type: typ, PrivateKey: entry.PrivateKey}, nil
}

// Put inserts with ON CONFLICT DO NOTHING; zero affected rows means the name
// was already taken.
func (s *PostgresStore) Put(name string, info KeyInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	entry := keystoreEntry{
		Name:       name,
		Type:       info.Type.String(),
		PrivateKey: append([]byte(nil), info.PrivateKey...),
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
	if res.Error != nil {
		return ioError("put postgres key", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", name, ErrKeyExists)
	}
	return nil
}

func (s *PostgresStore) Delete(name string) error {
	res := s.db.Delete(&keystoreEntry{}, "name = ?", name)
	if res.Error != nil {
		return ioError("delete postgres key", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
