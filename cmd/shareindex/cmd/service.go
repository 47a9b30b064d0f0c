package cmd

import (
	"fmt"
	"time"

	"github.com/shareindex/peer/internal/config"
	"github.com/shareindex/peer/internal/domain/ports"
	"github.com/shareindex/peer/internal/fileinfo"
	"github.com/shareindex/peer/internal/shareindex"
	"github.com/shareindex/peer/internal/shareservice"
)

// shutdownTimeout bounds how long serveCmd waits for the debug server to
// drain in-flight requests during a graceful shutdown.
const shutdownTimeout = 5 * time.Second

// durationFromMillis converts a millisecond config value to a Duration,
// defaulting to one second for a non-positive value.
func durationFromMillis(ms int) time.Duration {
	if ms <= 0 {
		return time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

// buildService opens the primary repository and wires a shareservice.Service
// from cfg, grounded on the teacher's app.New (one function that opens every
// dependency a running daemon needs). The caller owns the returned
// Repository and must Close it.
func buildService(cfg *config.Config) (*shareservice.Service, *shareindex.Repository, *config.Options, error) {
	primaryDSN := cfg.ShareIndex.PrimaryPath
	cacheMode := ports.CacheModeDisk
	if cfg.ShareIndex.CacheMode == "memory" {
		cacheMode = ports.CacheModeMemory
		primaryDSN = ":memory:"
	}
	if primaryDSN == "" {
		return nil, nil, nil, fmt.Errorf("shareindex.primary_path must be set for disk cache mode")
	}

	primary, err := shareindex.Open(primaryDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open primary repository: %w", err)
	}

	factory := fileinfo.NewFactory(fileinfo.NewTagProbe())
	options := config.NewOptions(cfg)

	svc := shareservice.New(shareservice.Config{
		LocalHostName: cfg.ShareIndex.InstanceName,
		Primary:       primary,
		BackupPath:    cfg.ShareIndex.BackupPath,
		CacheMode:     cacheMode,
		Factory:       factory,
		Workers:       cfg.ShareIndex.ScannerWorkers,
		Options:       options,
		Clock:         ports.SystemClock{},
	})

	return svc, primary, options, nil
}
