package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads indexer configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by its spec.md §6 key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "datadir":
		cfg.DataDir = value

	// NodeClient
	case "node_url":
		cfg.NodeClient.URL = value
	case "node_api_key":
		cfg.NodeClient.APIKey = value
	case "poll_interval_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.NodeClient.PollIntervalMs = n
	case "request_timeout_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.NodeClient.RequestTimeoutMs = n
	case "network_prefix":
		b, err := parseBytePrefix(value)
		if err != nil {
			return err
		}
		cfg.NodeClient.NetworkPrefix = b

	// Store
	case "store_dsn":
		cfg.Store.DSN = value

	// WorkPool
	case "batch_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.WorkPool.BatchSize = n
	case "max_workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.WorkPool.MaxWorkers = n
	case "initial_height":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.WorkPool.InitialHeight = n
	case "max_reorg_depth":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.WorkPool.MaxReorgDepth = n
	case "max_block_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.WorkPool.MaxBlockRetries = n

	// Cache
	case "cache_enabled":
		cfg.Cache.Enabled = parseBool(value)
	case "cache_ttl_s":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Cache.TTLSeconds = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

func parseBytePrefix(value string) (byte, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("network_prefix must be a hex byte like 0x00 or 0x10: %w", err)
	}
	return byte(n), nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string) error {
	content := `# Ergo indexer configuration.
#
# See spec.md section 6 for the full list of recognized options.

# ============================================================================
# NodeClient
# ============================================================================

node_url = http://127.0.0.1:9053
# node_api_key =
poll_interval_ms = 5000
request_timeout_ms = 30000
# network_prefix: 0x00 mainnet, 0x10 testnet
network_prefix = 0x00

# ============================================================================
# Store
# ============================================================================

store_dsn = postgres://localhost:5432/ergo_indexer?sslmode=disable

# ============================================================================
# WorkPool
# ============================================================================

batch_size = 20
max_workers = 5
initial_height = 0
max_reorg_depth = 720
max_block_retries = 5

# ============================================================================
# Cache
# ============================================================================

cache_enabled = true
cache_ttl_s = 3600

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
