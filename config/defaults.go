package config

import "github.com/Klingon-tech/ergo-indexer/pkg/types"

// Default returns the indexer's default configuration, matching spec.md
// §6's recognized option defaults.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		NodeClient: NodeClientConfig{
			URL:              "http://127.0.0.1:9053",
			PollIntervalMs:   5000,
			RequestTimeoutMs: 30000,
			NetworkPrefix:    types.MainnetPrefix,
		},
		Store: StoreConfig{
			DSN: "postgres://localhost:5432/ergo_indexer?sslmode=disable",
		},
		WorkPool: WorkPoolConfig{
			BatchSize:       20,
			MaxWorkers:      5,
			InitialHeight:   0,
			MaxReorgDepth:   720,
			MaxBlockRetries: 5,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 3600,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
