package keystore

import (
	"fmt"
	
	"github.com/fystack/walletd/pkg/config"
	"github.com/fystack/walletd/pkg/filesystem"
	"github.com/fystack/walletd/pkg/infra"
	"github.com/fystack/walletd/pkg/logger"
)

// New opens the backend selected by cfg.Keystore.Type.
func New(cfg *config.Config) (KeyStore, error) {
	ks := cfg.Keystore
	switch ks.Type {
	case config.KeystoreTypeMemory:
		logger.Warn("Using in-memory keystore, keys are lost on exit")
		return NewMemoryStore(), nil

	case config.KeystoreTypeFile:
		if ks.Passphrase == "" {
			logger.Warn("Keystore passphrase is empty, keys are stored unencrypted", "path", ks.Path)
		}
		return NewFileStore(FileStoreConfig{
			Path:       ks.Path,
			Passphrase: ks.Passphrase,
			WorkFactor: ks.ScryptWorkFactor,
		})

	case config.KeystoreTypeBadger:
		dbPath, err := filesystem.SafePath(ks.Badger.Dir, ks.Badger.NodeID)
		if err != nil {
			return nil, fmt.Errorf("badger node id: %w", err)
		}
		store, err := NewBadgerStore(BadgerConfig{
			NodeID:           ks.Badger.NodeID,
			EncryptionKey:    []byte(ks.Badger.EncryptionKey),
			BackupPassphrase: ks.Badger.EncryptionKey,
			BackupDir:        ks.Badger.BackupDir,
			DBPath:           dbPath,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to badger keystore", "path", dbPath, "backup_dir", ks.Badger.BackupDir)
		return store, nil

	case config.KeystoreTypeConsul:
		client, err := infra.NewConsulClient(cfg.Environment, ks.Consul)
		if err != nil {
			return nil, err
		}
		prefix := ""
		if ks.Consul != nil {
			prefix = ks.Consul.Prefix
		}
		return NewConsulStore(client.KV(), prefix), nil

	case config.KeystoreTypeRedis:
		store, err := NewRedisStore(RedisConfig{
			Addr:     ks.Redis.Addr,
			Password: ks.Redis.Password,
			DB:       ks.Redis.DB,
			Prefix:   ks.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to redis keystore", "addr", ks.Redis.Addr)
		return store, nil

	case config.KeystoreTypePostgres:
		return NewPostgresStore(PostgresConfig{
			DSN:             ks.Postgres.DSN,
			MaxIdleConns:    ks.Postgres.MaxIdleConns,
			MaxOpenConns:    ks.Postgres.MaxOpenConns,
			ConnMaxLifetime: ks.Postgres.ConnMaxLifetime,
		})
	}
	return nil, fmt.Errorf("keystore type %q is not supported", ks.Type)
}
