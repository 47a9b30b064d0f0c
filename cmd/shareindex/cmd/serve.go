package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shareindex/peer/internal/config"
	"github.com/shareindex/peer/internal/debugserver"
)

// serveCmd runs the share index as a long-lived process: it initializes
// the catalog, runs one scan if ScanPending is set once Initialize
// returns, and serves the debug/status surface. Later ScanPending changes
// (a configuration reload or a ResolveFile miss) do not start a scan.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the share index daemon with the debug/status HTTP+WebSocket surface",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg)

	svc, primary, options, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer primary.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path := cfg.ResolvedPath(); path != "" {
		cfgWatcher, err := config.WatchFile(path, func(reloaded *config.Config) {
			options.Update(reloaded.ShareIndex)
			log.Info().Str("path", path).Msg("configuration reloaded")
		})
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config watcher disabled")
		} else {
			defer cfgWatcher.Close()
		}
	}

	if err := svc.Initialize(ctx, false); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if svc.State().CurrentValue().ScanPending {
		if _, err := svc.Scan(ctx); err != nil {
			log.Warn().Err(err).Msg("initial scan failed")
		}
	}

	var debug *debugserver.Server
	if cfg.Debug.Enabled {
		debug = debugserver.New(debugserver.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			Share:          svc.State(),
			Cache:          svc.CacheState(),
			RateLimit:      cfg.Debug.RateLimit.Enabled,
			BucketCapacity: int64(cfg.Debug.RateLimit.Capacity),
			RefillInterval: durationFromMillis(cfg.Debug.RateLimit.RefillIntervalMS),
		})
		debug.Start()
	}

	startupLogger(cfg).Info("shareindex serving",
		"instance", cfg.ShareIndex.InstanceName,
		"debug_surface", cfg.Debug.Enabled,
	)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	if debug != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := debug.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("debug server shutdown error")
		}
	}

	return nil
}
