// Package config handles indexer configuration: the NodeClient, Store,
// WorkPool, Cache, and logging settings recognized by spec.md §6.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config holds the indexer's runtime configuration.
type Config struct {
	DataDir string `conf:"datadir"`

	NodeClient NodeClientConfig
	Store      StoreConfig
	WorkPool   WorkPoolConfig
	Cache      CacheConfig
	Log        LogConfig
}

// NodeClientConfig configures the HTTP client talking to the trusted node.
type NodeClientConfig struct {
	URL              string `conf:"node_url"`
	APIKey           string `conf:"node_api_key"`
	PollIntervalMs   int    `conf:"poll_interval_ms"`
	RequestTimeoutMs int    `conf:"request_timeout_ms"`
	// NetworkPrefix selects the Base58Check address prefix used when
	// deriving addresses from ergoTrees (0x00 mainnet, 0x10 testnet).
	NetworkPrefix byte `conf:"network_prefix"`
}

// StoreConfig configures the Postgres-backed relational store.
type StoreConfig struct {
	DSN string `conf:"store_dsn"`
}

// WorkPoolConfig configures batch fetch/parse concurrency and the reorg
// and retry budgets the Controller enforces around it.
type WorkPoolConfig struct {
	BatchSize       int    `conf:"batch_size"`
	MaxWorkers      int    `conf:"max_workers"`
	InitialHeight   uint64 `conf:"initial_height"`
	MaxReorgDepth   uint64 `conf:"max_reorg_depth"`
	MaxBlockRetries int    `conf:"max_block_retries"`
}

// CacheConfig configures the opportunistic NodeClient response cache.
type CacheConfig struct {
	Enabled    bool `conf:"cache_enabled"`
	TTLSeconds int  `conf:"cache_ttl_s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.ergo-indexer
//	macOS:   ~/Library/Application Support/ErgoIndexer
//	Windows: %APPDATA%\ErgoIndexer
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ergo-indexer"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "ErgoIndexer")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "ErgoIndexer")
		}
		return filepath.Join(home, "AppData", "Roaming", "ErgoIndexer")
	default:
		return filepath.Join(home, ".ergo-indexer")
	}
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "indexer.conf")
}
