package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fystack/walletd/pkg/logger"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// Environment constants
	Production  = "production"
	Development = "development"

	KeystoreTypeMemory   = "memory"
	KeystoreTypeFile     = "file"
	KeystoreTypeBadger   = "badger"
	KeystoreTypeConsul   = "consul"
	KeystoreTypeRedis    = "redis"
	KeystoreTypePostgres = "postgres"

	defaultNetwork             = "mainnet"
	defaultKeystoreType        = KeystoreTypeFile
	defaultKeystorePath        = "keystore/wallet.keystore"
	defaultScryptWorkFactor    = 18
	defaultBadgerDir           = "db"
	defaultBackupDir           = "backups"
	defaultBackupPeriodSeconds = 300
	defaultRPCListenAddr       = "127.0.0.1:2345"
	defaultNATSSubject         = "wallet.rpc"
	defaultTokenTTL            = 24 * time.Hour

	EnvConfigFile = "WALLET_CONFIG_FILE"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	Network     string `mapstructure:"network"`

	Keystore KeystoreConfig `mapstructure:"keystore"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	NATs     *NATsConfig    `mapstructure:"nats"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
}

type KeystoreConfig struct {
	Type             string `mapstructure:"type"`
	Path             string `mapstructure:"path"`
	Passphrase       string `mapstructure:"passphrase"`
	ScryptWorkFactor int    `mapstructure:"scrypt_work_factor"`

	Badger   BadgerConfig   `mapstructure:"badger"`
	Consul   *ConsulConfig  `mapstructure:"consul"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type BadgerConfig struct {
	NodeID              string `mapstructure:"node_id"`
	Dir                 string `mapstructure:"dir"`
	EncryptionKey       string `mapstructure:"encryption_key"`
	BackupDir           string `mapstructure:"backup_dir"`
	BackupEnabled       bool   `mapstructure:"backup_enabled"`
	BackupPeriodSeconds int    `mapstructure:"backup_period_seconds"`
}

type ConsulConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
	Prefix   string `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RPCConfig struct {
	ListenAddr  string        `mapstructure:"listen_addr"`
	AuthEnabled bool          `mapstructure:"auth_enabled"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	NATSSubject string        `mapstructure:"nats_subject"`
}

type NATsConfig struct {
	Enabled  bool       `mapstructure:"enabled"`
	URL      string     `mapstructure:"url"`
	Username string     `mapstructure:"username"`
	Password string     `mapstructure:"password"`
	TLS      *TLSConfig `mapstructure:"tls"`
}

type TLSConfig struct {
	ClientCert string `mapstructure:"client_cert"`
	ClientKey  string `mapstructure:"client_key"`
	CACert     string `mapstructure:"ca_cert"`
}

type ChainConfig struct {
	GenesisFile string `mapstructure:"genesis_file"`
}

type WalletConfig struct {
	PrefixFallback bool `mapstructure:"prefix_fallback"`
}

var (
	app *Config
	mu  sync.RWMutex
)

func initConfig() error {
	// env
	viper.SetEnvPrefix("WALLET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	// set env config file
	configFile := os.Getenv(EnvConfigFile)
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/walletd/")
		viper.AddConfigPath("$HOME/.walletd/")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logger.Warn("No config file found, using defaults and environment")
			return nil
		}
		return fmt.Errorf("viper read config: %w", err)
	}

	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", Development)
	v.SetDefault("network", defaultNetwork)
	v.SetDefault("keystore.type", defaultKeystoreType)
	v.SetDefault("keystore.path", defaultKeystorePath)
	v.SetDefault("keystore.passphrase", "")
	v.SetDefault("keystore.scrypt_work_factor", defaultScryptWorkFactor)
	v.SetDefault("keystore.badger.dir", defaultBadgerDir)
	v.SetDefault("keystore.badger.encryption_key", "")
	v.SetDefault("keystore.badger.backup_dir", defaultBackupDir)
	v.SetDefault("keystore.badger.backup_enabled", true)
	v.SetDefault("keystore.badger.backup_period_seconds", defaultBackupPeriodSeconds)
	v.SetDefault("keystore.redis.addr", "")
	v.SetDefault("keystore.redis.password", "")
	v.SetDefault("keystore.postgres.dsn", "")
	v.SetDefault("rpc.listen_addr", defaultRPCListenAddr)
	v.SetDefault("rpc.auth_enabled", false)
	v.SetDefault("rpc.jwt_secret", "")
	v.SetDefault("rpc.token_ttl", defaultTokenTTL)
	v.SetDefault("rpc.nats_subject", defaultNATSSubject)
	v.SetDefault("chain.genesis_file", "")
	v.SetDefault("wallet.prefix_fallback", true)
}

func SetEnvConfigPath(configPath string) {
	if configPath != "" {
		os.Setenv(EnvConfigFile, configPath)
	}
}

func LoadConfig() (*Config, error) {
	return decode(viper.AllSettings())
}

func decode(settings map[string]any) (*Config, error) {
	var cfg Config
	decoderConfig := &mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	setConfig(&cfg)
	return &cfg, nil
}

func Load() (*Config, error) {
	if err := initConfig(); err != nil {
		return nil, err
	}
	return LoadConfig()
}

func validate(cfg *Config) error {
	if err := validateEnvironment(cfg.Environment); err != nil {
		return err
	}
	if err := validateOneOf("network", cfg.Network, []string{"mainnet", "testnet", "calibnet", "devnet"}); err != nil {
		return err
	}
	if err := validateOneOf("keystore type", cfg.Keystore.Type, []string{
		KeystoreTypeMemory, KeystoreTypeFile, KeystoreTypeBadger,
		KeystoreTypeConsul, KeystoreTypeRedis, KeystoreTypePostgres,
	}); err != nil {
		return err
	}
	if cfg.RPC.AuthEnabled && cfg.RPC.JWTSecret == "" {
		return errors.New("rpc.jwt_secret is required when rpc.auth_enabled is set")
	}
	return nil
}

func validateEnvironment(environment string) error {
	return validateOneOf("environment", environment, []string{Production, Development})
}

func validateOneOf(field, value string, valid []string) error {
	if !slices.Contains(valid, value) {
		return fmt.Errorf("invalid %s '%s'. Must be one of: %s", field, value, strings.Join(valid, ", "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = Development
	}
	if cfg.Network == "" {
		cfg.Network = defaultNetwork
	}
	ks := &cfg.Keystore
	if ks.Type == "" {
		ks.Type = defaultKeystoreType
	}
	if ks.Path == "" {
		ks.Path = defaultKeystorePath
	}
	if ks.ScryptWorkFactor == 0 {
		ks.ScryptWorkFactor = defaultScryptWorkFactor
	}
	if ks.Badger.Dir == "" {
		ks.Badger.Dir = defaultBadgerDir
	}
	if ks.Badger.BackupDir == "" {
		ks.Badger.BackupDir = defaultBackupDir
	}
	if ks.Badger.BackupPeriodSeconds == 0 {
		ks.Badger.BackupPeriodSeconds = defaultBackupPeriodSeconds
	}
	if ks.Badger.NodeID == "" {
		ks.Badger.NodeID = "walletd"
	}
	if cfg.RPC.ListenAddr == "" {
		cfg.RPC.ListenAddr = defaultRPCListenAddr
	}
	if cfg.RPC.TokenTTL == 0 {
		cfg.RPC.TokenTTL = defaultTokenTTL
	}
	if cfg.RPC.NATSSubject == "" {
		cfg.RPC.NATSSubject = defaultNATSSubject
	}
}

func setConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	app = cfg
}

// GetConfig returns the loaded configuration and exits if there is none.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if app == nil {
		logger.Fatal("configuration not loaded", nil)
	}
	return app
}

// Update applies fn while holding the configuration write lock.
// It panics if the configuration has not been loaded yet.
func Update(fn func(cfg *Config)) {
	mu.Lock()
	defer mu.Unlock()
	if app == nil {
		panic("configuration not loaded")
	}
	fn(app)
}

func SetKeystorePassphrase(passphrase string) {
	Update(func(cfg *Config) {
		cfg.Keystore.Passphrase = passphrase
	})
}

func SetBadgerEncryptionKey(key string) {
	Update(func(cfg *Config) {
		cfg.Keystore.Badger.EncryptionKey = key
	})
}

func Environment() string {
	return GetConfig().Environment
}

func IsProduction() bool {
	return strings.EqualFold(Environment(), Production)
}
