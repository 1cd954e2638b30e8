package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 5 * time.Second

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps all entries in one hash, so HSETNX gives create-only puts.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ KeyStore = (*RedisStore)(nil)

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ioError("ping redis", err)
	}
	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, key: prefix + "keystore"}
}

func (r *RedisStore) List() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	names, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, ioError("list redis keys", err)
	}
	return names, nil
}

func (r *RedisStore) Get(name string) (KeyInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	data, err := r.client.HGet(ctx, r.key, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return KeyInfo{}, fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	if err != nil {
		return KeyInfo{}, ioError("get redis key", err)
	}
	return decodeEntry(data)
}

func (r *RedisStore) Put(name string, info KeyInfo) error {
	value, err := encodeEntry(info)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	ok, err := r.client.HSetNX(ctx, r.key, name, value).Result()
	if err != nil {
		return ioError("put redis key", err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrKeyExists)
	}
	return nil
}

func (r *RedisStore) Delete(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := r.client.HDel(ctx, r.key, name).Result()
	if err != nil {
		return ioError("delete redis key", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
