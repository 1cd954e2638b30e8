package keystore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/fystack/walletd/pkg/logger"
)

const badgerKeyPrefix = "keystore/"

var (
	ErrEncryptionKeyNotProvided = errors.New("encryption key not provided")
	ErrInvalidEncryptionKey     = errors.New("badger encryption key must be 16, 24 or 32 bytes")
)

type BadgerConfig struct {
	NodeID           string
	EncryptionKey    []byte
	BackupPassphrase string
	BackupDir        string
	DBPath           string
}

// BadgerStore keeps each entry as a JSON value in an encrypted BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	backup *badgerBackup
}

var _ KeyStore = (*BadgerStore)(nil)

func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if len(cfg.EncryptionKey) == 0 {
		return nil, ErrEncryptionKeyNotProvided
	}
	switch len(cfg.EncryptionKey) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidEncryptionKey
	}

	db, err := openBadger(cfg.DBPath, cfg.EncryptionKey)
	if err != nil {
		return nil, ioError("open badger", err)
	}
	logger.Info("Connected to BadgerDB successfully!", "path", cfg.DBPath)

	store := &BadgerStore{db: db}
	if cfg.BackupDir != "" && cfg.BackupPassphrase != "" {
		store.backup = newBadgerBackup(cfg.NodeID, db, cfg.BackupPassphrase, cfg.BackupDir)
	}
	return store, nil
}

func openBadger(path string, encryptionKey []byte) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithEncryptionKey(encryptionKey).
		WithIndexCacheSize(16 << 20).
		WithBlockCacheSize(32 << 20).
		WithSyncWrites(true).
		WithVerifyValueChecksum(true).
		WithCompactL0OnClose(true).
		WithLogger(quietBadgerLogger{})
	return badger.Open(opts)
}

func (b *BadgerStore) List() ([]string, error) {
	var names []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), badgerKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, ioError("list badger keys", err)
	}
	return names, nil
}

func (b *BadgerStore) Get(name string) (KeyInfo, error) {
	var ki KeyInfo
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ki, err = decodeEntry(val)
			return err
		})
	})
	switch {
	case err == nil:
		return ki, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return KeyInfo{}, fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	case errors.Is(err, ErrCorruptStore):
		return KeyInfo{}, err
	}
	return KeyInfo{}, ioError("get badger key", err)
}

func (b *BadgerStore) Put(name string, info KeyInfo) error {
	value, err := encodeEntry(info)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(name))
		if err == nil {
			return fmt.Errorf("%s: %w", name, ErrKeyExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(badgerKey(name), value)
	})
	if err == nil || errors.Is(err, ErrKeyExists) {
		return err
	}
	return ioError("put badger key", err)
}

func (b *BadgerStore) Delete(name string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(name)); err != nil {
			return err
		}
		return txn.Delete(badgerKey(name))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	return ioError("delete badger key", err)
}

// Backup writes an encrypted snapshot of the database to the backup dir.
func (b *BadgerStore) Backup() (string, error) {
	if b.backup == nil {
		return "", errors.New("backup is not configured")
	}
	return b.backup.Execute()
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func badgerKey(name string) []byte {
	return []byte(badgerKeyPrefix + name)
}

type quietBadgerLogger struct{}

func (quietBadgerLogger) Errorf(format string, args ...any) {
	logger.Error("badger", fmt.Errorf(format, args...))
}

func (quietBadgerLogger) Warningf(format string, args ...any) {
	logger.Warn(fmt.Sprintf("badger: "+format, args...))
}

func (quietBadgerLogger) Infof(string, ...any)  {}
func (quietBadgerLogger) Debugf(string, ...any) {}
