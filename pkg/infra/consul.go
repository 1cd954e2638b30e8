package infra

import (
	"fmt"
	"time"

	"github.com/fystack/walletd/pkg/config"
	"github.com/fystack/walletd/pkg/logger"
	"github.com/hashicorp/consul/api"
)

// ConsulKV is the subset of *api.KV the keystore needs.
type ConsulKV interface {
	Get(key string, options *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
	Keys(prefix, separator string, options *api.QueryOptions) ([]string, *api.QueryMeta, error)
	CAS(kv *api.KVPair, options *api.WriteOptions) (bool, *api.WriteMeta, error)
	Delete(key string, options *api.WriteOptions) (*api.WriteMeta, error)
}

func ConsulClientConfig(environment string, consulCfg *config.ConsulConfig) *api.Config {
	clientConfig := api.DefaultConfig()
	if consulCfg == nil {
		return clientConfig
	}
	if environment == config.Production {
		clientConfig.Token = consulCfg.Token
		if consulCfg.Username != "" || consulCfg.Password != "" {
			clientConfig.HttpAuth = &api.HttpBasicAuth{
				Username: consulCfg.Username,
				Password: consulCfg.Password,
			}
		}
	}
	if consulCfg.Address != "" {
		clientConfig.Address = consulCfg.Address
	}
	return clientConfig
}

// NewConsulClient connects and pings the leader before returning.
func NewConsulClient(environment string, consulCfg *config.ConsulConfig) (*api.Client, error) {
	cfg := ConsulClientConfig(environment, consulCfg)
	cfg.WaitTime = 10 * time.Second

	logger.Info("Consul config",
		"environment", environment,
		"address", cfg.Address,
		"wait_time", cfg.WaitTime,
		"token_length", len(cfg.Token),
	)

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("connect to consul: %w", err)
	}
	return client, nil
}
