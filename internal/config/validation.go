package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shareindex/peer/internal/share"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateShareIndex(&cfg.ShareIndex); err != nil {
		return err
	}
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateDebug(&cfg.Debug); err != nil {
		return err
	}
	return nil
}

func validateShareIndex(cfg *ShareIndexConfig) error {
	switch strings.ToLower(cfg.CacheMode) {
	case "disk", "memory":
	default:
		return fmt.Errorf("shareindex.cache_mode must be \"disk\" or \"memory\", got %q", cfg.CacheMode)
	}

	if cfg.ScannerWorkers < 0 {
		return fmt.Errorf("shareindex.scanner_workers cannot be negative")
	}

	for _, root := range cfg.ShareRoots {
		sh := share.ParseShare(root)
		path := sh.LocalPath
		if path == "" {
			return fmt.Errorf("shareindex.share_roots contains an empty path: %q", root)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("shareindex.share_roots path does not exist: %s", path)
			}
			return fmt.Errorf("error accessing shareindex.share_roots path %s: %w", path, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("shareindex.share_roots path is not a directory: %s", path)
		}
	}

	for _, pattern := range cfg.Filters {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("shareindex.filters contains an invalid regex %q: %w", pattern, err)
		}
	}

	if cfg.CacheMode == "memory" && cfg.BackupPath == "" {
		return fmt.Errorf("shareindex.cache_mode is \"memory\" but backup_path is not set; memory mode needs a durable backing file to restore from")
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	return nil
}

func validateDebug(cfg *DebugConfig) error {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if cfg.RateLimit.Capacity < 1 {
		return fmt.Errorf("debug.rate_limit.capacity must be at least 1")
	}
	if cfg.RateLimit.RefillIntervalMS < 1 {
		return fmt.Errorf("debug.rate_limit.refill_interval_ms must be at least 1")
	}
	return nil
}
