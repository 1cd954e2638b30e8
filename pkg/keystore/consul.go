package keystore

import (
	"fmt"
	"strings"

	"github.com/fystack/walletd/pkg/infra"
	"github.com/hashicorp/consul/api"
)

const defaultConsulPrefix = "wallet_keystore/"

type consulStore struct {
	kv     infra.ConsulKV
	prefix string
}

var _ KeyStore = (*consulStore)(nil)

// NewConsulStore stores entries as JSON values under prefix in Consul KV.
func NewConsulStore(kv infra.ConsulKV, prefix string) KeyStore {
	if prefix == "" {
		prefix = defaultConsulPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &consulStore{kv: kv, prefix: prefix}
}

func (s *consulStore) List() ([]string, error) {
	keys, _, err := s.kv.Keys(s.prefix, "", nil)
	if err != nil {
		return nil, ioError("list consul keys", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, s.prefix))
	}
	return names, nil
}

func (s *consulStore) Get(name string) (KeyInfo, error) {
	pair, _, err := s.kv.Get(s.composeKey(name), nil)
	if err != nil {
		return KeyInfo{}, ioError("get consul key", err)
	}
	if pair == nil {
		return KeyInfo{}, fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	return decodeEntry(pair.Value)
}

// Put is create-only: a check-and-set with index 0 fails if the key exists.
func (s *consulStore) Put(name string, info KeyInfo) error {
	value, err := encodeEntry(info)
	if err != nil {
		return err
	}
	pair := &api.KVPair{Key: s.composeKey(name), Value: value, ModifyIndex: 0}
	ok, _, err := s.kv.CAS(pair, nil)
	if err != nil {
		return ioError("put consul key", err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrKeyExists)
	}
	return nil
}

func (s *consulStore) Delete(name string) error {
	pair, _, err := s.kv.Get(s.composeKey(name), nil)
	if err != nil {
		return ioError("get consul key", err)
	}
	if pair == nil {
		return fmt.Errorf("%s: %w", name, ErrKeyInfoNotFound)
	}
	if _, err := s.kv.Delete(s.composeKey(name), nil); err != nil {
		return ioError("delete consul key", err)
	}
	return nil
}

func (s *consulStore) composeKey(name string) string {
	return s.prefix + name
}
