// Package config handles configuration management for the share index.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/shareindex/peer/internal/domain/ports"
)

// Config holds all configuration for the share index process.
type Config struct {
	ShareIndex ShareIndexConfig `mapstructure:"shareindex"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Debug      DebugConfig      `mapstructure:"debug"`

	resolvedPath string // the file Load actually read, if any; used by WatchFile
}

// ResolvedPath returns the config file Load read from disk, or "" if none
// was found (defaults/env only).
func (c *Config) ResolvedPath() string {
	return c.resolvedPath
}

// ShareIndexConfig holds the operator-declared share index configuration:
// what to share, how to filter it, and where the catalog lives.
type ShareIndexConfig struct {
	ShareRoots     []string `mapstructure:"share_roots"`     // local directories to share, e.g. "[alias]/path", "-/path" to exclude, or bare "/path"
	Filters        []string `mapstructure:"filters"`         // regexes; a matching filename is excluded from the catalog
	CacheMode      string   `mapstructure:"cache_mode"`      // "disk" or "memory"
	ScannerWorkers int      `mapstructure:"scanner_workers"` // concurrent filesystem walkers during a scan
	InstanceName   string   `mapstructure:"instance_name"`   // this host's name, as announced to peers
	PrimaryPath    string   `mapstructure:"primary_path"`    // on-disk path of the primary catalog (disk mode only; memory mode keeps the primary in memory and uses backup_path)
	BackupPath     string   `mapstructure:"backup_path"`     // on-disk path VACUUM INTO'd after every successful scan
}

// ServerConfig holds the debug/status HTTP+WebSocket server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"` // bind address (default: 127.0.0.1)
	Port int    `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string            `mapstructure:"level"`
	Format   string            `mapstructure:"format"`
	FilePath string            `mapstructure:"file_path"` // rotated log destination; file logging needs this set and rotation.enabled true
	Rotation LogRotationConfig `mapstructure:"rotation"`
}

// LogRotationConfig holds log rotation configuration for the core's own log
// file, reused verbatim from the teacher's shape.
type LogRotationConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// DebugConfig holds the internal observability surface configuration.
type DebugConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures the token-bucket limiter in front of the debug
// server's HTTP and WebSocket endpoints.
type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	Capacity         int  `mapstructure:"capacity"`           // max tokens the bucket can hold
	RefillIntervalMS int  `mapstructure:"refill_interval_ms"` // the bucket refills to capacity every interval
}

// Load loads configuration from files and environment, applies defaults,
// post-processes derived fields, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.shareindex")
		v.AddConfigPath("/etc/shareindex")
	}

	v.SetEnvPrefix("SHAREINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	cfg.resolvedPath = v.ConfigFileUsed()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shareindex.share_roots", []string{})
	v.SetDefault("shareindex.filters", []string{})
	v.SetDefault("shareindex.cache_mode", "disk")
	v.SetDefault("shareindex.scanner_workers", 4)
	v.SetDefault("shareindex.instance_name", "")
	v.SetDefault("shareindex.primary_path", "")
	v.SetDefault("shareindex.backup_path", "")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.rotation.enabled", true)
	v.SetDefault("logging.rotation.max_size_mb", 50)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.max_age_days", 30)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.rate_limit.enabled", true)
	v.SetDefault("debug.rate_limit.capacity", 20)
	v.SetDefault("debug.rate_limit.refill_interval_ms", 500)
}

func postProcess(cfg *Config) error {
	if cfg.ShareIndex.PrimaryPath != "" {
		abs, err := filepath.Abs(cfg.ShareIndex.PrimaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve shareindex.primary_path: %w", err)
		}
		cfg.ShareIndex.PrimaryPath = abs
	}
	if cfg.ShareIndex.BackupPath != "" {
		abs, err := filepath.Abs(cfg.ShareIndex.BackupPath)
		if err != nil {
			return fmt.Errorf("failed to resolve shareindex.backup_path: %w", err)
		}
		cfg.ShareIndex.BackupPath = abs
	}

	if cfg.ShareIndex.InstanceName == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			cfg.ShareIndex.InstanceName = host
		} else {
			cfg.ShareIndex.InstanceName = "shareindex"
		}
	}

	return nil
}

// GetConfigDir returns the user config directory for the share index.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".shareindex"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// Options adapts a Config into a live ports.OptionsSource, letting callers
// (serve's config file watcher) push an updated Config in and have
// registered listeners notified synchronously,
// the same edit-then-notify shape shareservice.Service relies on.
type Options struct {
	mu        sync.Mutex
	cfg       ShareIndexConfig
	listeners []func()
}

// NewOptions wraps cfg.ShareIndex as a live ports.OptionsSource.
func NewOptions(cfg *Config) *Options {
	return &Options{cfg: cfg.ShareIndex}
}

// ShareRoots implements ports.OptionsSource.
func (o *Options) ShareRoots() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.cfg.ShareRoots))
	copy(out, o.cfg.ShareRoots)
	return out
}

// Filters implements ports.OptionsSource.
func (o *Options) Filters() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.cfg.Filters))
	copy(out, o.cfg.Filters)
	return out
}

// CacheMode implements ports.OptionsSource.
func (o *Options) CacheMode() ports.CacheMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	if strings.EqualFold(o.cfg.CacheMode, "memory") {
		return ports.CacheModeMemory
	}
	return ports.CacheModeDisk
}

// ScannerWorkers implements ports.OptionsSource.
func (o *Options) ScannerWorkers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cfg.ScannerWorkers < 1 {
		return 1
	}
	return o.cfg.ScannerWorkers
}

// InstanceName implements ports.OptionsSource.
func (o *Options) InstanceName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.InstanceName
}

// OnChange implements ports.OptionsSource.
func (o *Options) OnChange(cb func()) (unsubscribe func()) {
	o.mu.Lock()
	idx := len(o.listeners)
	o.listeners = append(o.listeners, cb)
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if idx < len(o.listeners) {
			o.listeners[idx] = nil
		}
	}
}

// Update replaces the live share index configuration and synchronously
// notifies every registered listener, the trigger for
// shareservice.Service.onConfigChanged.
func (o *Options) Update(cfg ShareIndexConfig) {
	o.mu.Lock()
	o.cfg = cfg
	listeners := make([]func(), len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	for _, cb := range listeners {
		if cb != nil {
			cb()
		}
	}
}
