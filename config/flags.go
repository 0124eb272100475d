package config

import (
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	DataDir string
	Config  string

	NodeURL          string
	NodeAPIKey       string
	PollIntervalMs   int
	RequestTimeoutMs int
	NetworkPrefix    string

	StoreDSN string

	BatchSize       int
	MaxWorkers      int
	InitialHeight   uint64
	MaxReorgDepth   uint64
	MaxBlockRetries int

	CacheEnabled    bool
	SetCacheEnabled bool
	CacheTTLSeconds int

	LogLevel string
	LogFile  string
	LogJSON  bool
	SetLogJSON bool

	Args []string
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("indexerd", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	fs.StringVar(&f.NodeURL, "node-url", "", "Node HTTP API base URL")
	fs.StringVar(&f.NodeAPIKey, "node-api-key", "", "Node HTTP API key header")
	fs.IntVar(&f.PollIntervalMs, "poll-interval-ms", 0, "Tip probe cadence in milliseconds")
	fs.IntVar(&f.RequestTimeoutMs, "request-timeout-ms", 0, "Per-request timeout in milliseconds")
	fs.StringVar(&f.NetworkPrefix, "network-prefix", "", "Address network prefix (0x00 mainnet, 0x10 testnet)")

	fs.StringVar(&f.StoreDSN, "store-dsn", "", "Postgres connection string")

	fs.IntVar(&f.BatchSize, "batch-size", 0, "Blocks per WorkPool batch")
	fs.IntVar(&f.MaxWorkers, "max-workers", 0, "Maximum concurrent fetch/parse workers")
	fs.Uint64Var(&f.InitialHeight, "initial-height", 0, "Height to start ingestion from on first run")
	fs.Uint64Var(&f.MaxReorgDepth, "max-reorg-depth", 0, "Maximum reorg walkback depth")
	fs.IntVar(&f.MaxBlockRetries, "max-block-retries", 0, "Maximum retries for a failing block")

	fs.BoolVar(&f.CacheEnabled, "cache-enabled", true, "Enable the NodeClient response cache")
	fs.IntVar(&f.CacheTTLSeconds, "cache-ttl-s", 0, "Cache entry TTL in seconds")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetCacheEnabled = isFlagSet(fs, "cache-enabled")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if f.NodeURL != "" {
		cfg.NodeClient.URL = f.NodeURL
	}
	if f.NodeAPIKey != "" {
		cfg.NodeClient.APIKey = f.NodeAPIKey
	}
	if f.PollIntervalMs != 0 {
		cfg.NodeClient.PollIntervalMs = f.PollIntervalMs
	}
	if f.RequestTimeoutMs != 0 {
		cfg.NodeClient.RequestTimeoutMs = f.RequestTimeoutMs
	}
	if f.NetworkPrefix != "" {
		if b, err := parseBytePrefix(f.NetworkPrefix); err == nil {
			cfg.NodeClient.NetworkPrefix = b
		}
	}

	if f.StoreDSN != "" {
		cfg.Store.DSN = f.StoreDSN
	}

	if f.BatchSize != 0 {
		cfg.WorkPool.BatchSize = f.BatchSize
	}
	if f.MaxWorkers != 0 {
		cfg.WorkPool.MaxWorkers = f.MaxWorkers
	}
	if f.InitialHeight != 0 {
		cfg.WorkPool.InitialHeight = f.InitialHeight
	}
	if f.MaxReorgDepth != 0 {
		cfg.WorkPool.MaxReorgDepth = f.MaxReorgDepth
	}
	if f.MaxBlockRetries != 0 {
		cfg.WorkPool.MaxBlockRetries = f.MaxBlockRetries
	}

	if f.SetCacheEnabled {
		cfg.Cache.Enabled = f.CacheEnabled
	}
	if f.CacheTTLSeconds != 0 {
		cfg.Cache.TTLSeconds = f.CacheTTLSeconds
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `ergo-indexer - UTxO blockchain indexing pipeline

Usage:
  indexerd [options]
  indexerd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --datadir       Data directory (default: ~/.ergo-indexer)
  --config, -c    Config file path (default: <datadir>/indexer.conf)

NodeClient Options:
  --node-url             Node HTTP API base URL
  --node-api-key         Node HTTP API key header
  --poll-interval-ms     Tip probe cadence in milliseconds (default: 5000)
  --request-timeout-ms   Per-request timeout in milliseconds (default: 30000)
  --network-prefix       Address network prefix: 0x00 mainnet, 0x10 testnet

Store Options:
  --store-dsn     Postgres connection string

WorkPool Options:
  --batch-size          Blocks per WorkPool batch (default: 20)
  --max-workers         Maximum concurrent fetch/parse workers (default: 5)
  --initial-height      Height to start ingestion from on first run
  --max-reorg-depth     Maximum reorg walkback depth (default: 720)
  --max-block-retries   Maximum retries for a failing block (default: 5)

Cache Options:
  --cache-enabled   Enable the NodeClient response cache (default: true)
  --cache-ttl-s     Cache entry TTL in seconds (default: 3600)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: <datadir>/logs/indexer.log)
  --log-json      Output logs as JSON

Examples:
  # Start against a local node with defaults
  indexerd --node-url=http://127.0.0.1:9053

  # Start with a custom data directory and store
  indexerd --datadir=/data/indexer --store-dsn=postgres://user:pass@db/indexer
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dir + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("indexerd version 0.1.0")
		os.Exit(0)
	}

	cfg := Default()

	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory and a default config file if
// they don't already exist. Idempotent — safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
