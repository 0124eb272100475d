// Ergo indexer daemon.
//
// Usage:
//
//	indexerd [options]     Run the indexer
//	indexerd --help        Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/ergo-indexer/config"
	klog "github.com/Klingon-tech/ergo-indexer/internal/log"
	"github.com/Klingon-tech/ergo-indexer/internal/nodeclient"
	"github.com/Klingon-tech/ergo-indexer/internal/projector"
	"github.com/Klingon-tech/ergo-indexer/internal/reorg"
	"github.com/Klingon-tech/ergo-indexer/internal/store"
	"github.com/Klingon-tech/ergo-indexer/internal/syncctl"
	"github.com/Klingon-tech/ergo-indexer/internal/workpool"
	"github.com/Klingon-tech/ergo-indexer/pkg/types"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ───────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = cfg.LogsDir() + "/indexer.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("main")

	// ── 3. Set address network prefix ───────────────────────────────────
	types.SetNetworkPrefix(cfg.NodeClient.NetworkPrefix)

	logger.Info().
		Str("node_url", cfg.NodeClient.URL).
		Uint64("max_reorg_depth", cfg.WorkPool.MaxReorgDepth).
		Int("max_workers", cfg.WorkPool.MaxWorkers).
		Msg("Starting Ergo indexer")

	// ── 4. Apply pending schema migrations ──────────────────────────────
	if err := store.Migrate(cfg.Store.DSN); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply schema migrations")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── 5. Open store ────────────────────────────────────────────────────
	st, err := store.Open(ctx, cfg.Store.DSN, klog.Store)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	// ── 6. Create NodeClient ─────────────────────────────────────────────
	nodeCfg := nodeclient.Config{
		BaseURL:        cfg.NodeClient.URL,
		APIKey:         cfg.NodeClient.APIKey,
		RequestTimeout: time.Duration(cfg.NodeClient.RequestTimeoutMs) * time.Millisecond,
		CacheEnabled:   cfg.Cache.Enabled,
		CacheTTL:       time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	}
	node := nodeclient.New(nodeCfg, klog.NodeClient)

	// ── 7. Create ReorgDetector ──────────────────────────────────────────
	rd := reorg.New(node, st, cfg.WorkPool.MaxReorgDepth, klog.Reorg)

	// ── 8. Create Projector ──────────────────────────────────────────────
	proj := projector.New(projector.WrapStore(st), klog.Projector)

	// ── 9. Create SyncController ─────────────────────────────────────────
	poolFactory := func(workers int) syncctl.WorkPool {
		return workpool.New(node, workers, cfg.WorkPool.BatchSize, klog.WorkPool)
	}
	controller := syncctl.New(
		node,
		st,
		syncctl.WrapStore(st),
		rd,
		proj,
		poolFactory,
		syncctl.Config{
			PollInterval:    time.Duration(cfg.NodeClient.PollIntervalMs) * time.Millisecond,
			InitialHeight:   cfg.WorkPool.InitialHeight,
			MaxWorkers:      cfg.WorkPool.MaxWorkers,
			MaxBlockRetries: cfg.WorkPool.MaxBlockRetries,
			RetryBackoff:    500 * time.Millisecond,
		},
		klog.Sync,
	)

	// ── 10. Run until shutdown signal ────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- controller.Run(ctx) }()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("Sync controller halted")
			cancel()
			os.Exit(1)
		}
	}

	logger.Info().Msg("Goodbye!")
}
