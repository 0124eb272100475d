package config

import "fmt"

// Validate checks the indexer config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.NodeClient.URL == "" {
		return fmt.Errorf("node_url must be set")
	}
	if cfg.NodeClient.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	if cfg.NodeClient.RequestTimeoutMs <= 0 {
		return fmt.Errorf("request_timeout_ms must be positive")
	}
	if cfg.NodeClient.NetworkPrefix != 0x00 && cfg.NodeClient.NetworkPrefix != 0x10 {
		return fmt.Errorf("network_prefix must be 0x00 (mainnet) or 0x10 (testnet)")
	}
	if cfg.Store.DSN == "" {
		return fmt.Errorf("store_dsn must be set")
	}
	if cfg.WorkPool.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if cfg.WorkPool.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive")
	}
	if cfg.WorkPool.MaxReorgDepth == 0 {
		return fmt.Errorf("max_reorg_depth must be positive")
	}
	if cfg.WorkPool.MaxBlockRetries <= 0 {
		return fmt.Errorf("max_block_retries must be positive")
	}
	if cfg.Cache.Enabled && cfg.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache_ttl_s must be positive when cache_enabled is true")
	}
	return nil
}
