// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatkeep.
//
// Configuration file locations (in order of precedence):
//   - --config flag
//   - <user config dir>/chatkeep/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/jeranaias/chatkeep/internal/model"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatkeep configuration.
type Config struct {
	// DataDir holds chat_conversations/ and the settings documents.
	DataDir string `toml:"data_dir" json:"data_dir"`

	Server  ServerConfig  `toml:"server" json:"server"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Cache   CacheConfig   `toml:"cache" json:"cache"`
	Search  SearchConfig  `toml:"search" json:"search"`
	Log     LogConfig     `toml:"log" json:"log"`
	ErrLog  ErrLogConfig  `toml:"errlog" json:"errlog"`
}

// ServerConfig contains HTTP sidecar settings.
type ServerConfig struct {
	Host         string   `toml:"host" json:"host"`
	Port         int      `toml:"port" json:"port"`
	CORSOrigins  []string `toml:"cors_origins" json:"cors_origins"`
	RateLimit    float64  `toml:"rate_limit" json:"rate_limit"` // requests/second per client, 0 disables
	RateBurst    int      `toml:"rate_burst" json:"rate_burst"`
	MaxBodyBytes int64    `toml:"max_body_bytes" json:"max_body_bytes"`
}

// StorageConfig controls how conversation files are named.
type StorageConfig struct {
	// Naming is "timestamp" (YYYY-MM-DD_HH-mm-ss.json) or "id" (<id>.json).
	Naming string `toml:"naming" json:"naming"`

	// Timezone for timestamp names; "" or "Local" uses the system zone.
	Timezone string `toml:"timezone" json:"timezone"`
}

// CacheConfig controls the client cache.
type CacheConfig struct {
	Window           int `toml:"window" json:"window"`
	FetchConcurrency int `toml:"fetch_concurrency" json:"fetch_concurrency"`
}

// SearchConfig controls the full-text search index.
type SearchConfig struct {
	Enabled    bool `toml:"enabled" json:"enabled"`
	Watch      bool `toml:"watch" json:"watch"`
	DebounceMS int  `toml:"debounce_ms" json:"debounce_ms"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level" json:"level"`
	File  string `toml:"file" json:"file"`
}

// ErrLogConfig controls the error sink exposed at /errors.
type ErrLogConfig struct {
	Capacity int  `toml:"capacity" json:"capacity"`
	Persist  bool `toml:"persist" json:"persist"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// AppDirName is the data directory name shared with the desktop UI.
const AppDirName = "com.chat.app"

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),

		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         3000,
			CORSOrigins:  []string{"*"},
			RateLimit:    50,
			RateBurst:    100,
			MaxBodyBytes: 10 * 1024 * 1024, // 10MB
		},

		Storage: StorageConfig{
			Naming:   model.NamingTimestamp,
			Timezone: "Local",
		},

		Cache: CacheConfig{
			Window:           10,
			FetchConcurrency: 4,
		},

		Search: SearchConfig{
			Enabled:    true,
			Watch:      true,
			DebounceMS: 250,
		},

		Log: LogConfig{
			Level: "info",
		},

		ErrLog: ErrLogConfig{
			Capacity: 100,
			Persist:  true,
		},
	}
}

// DefaultDataDir returns <user config dir>/com.chat.app, or a relative
// directory when the user config dir is unknown.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return AppDirName
	}
	return filepath.Join(dir, AppDirName)
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}

	// Server
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = defaults.Server.RateBurst
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = defaults.Server.MaxBodyBytes
	}

	// Storage
	if cfg.Storage.Naming == "" {
		cfg.Storage.Naming = defaults.Storage.Naming
	}
	if cfg.Storage.Timezone == "" {
		cfg.Storage.Timezone = defaults.Storage.Timezone
	}

	// Cache
	if cfg.Cache.Window == 0 {
		cfg.Cache.Window = defaults.Cache.Window
	}
	if cfg.Cache.FetchConcurrency == 0 {
		cfg.Cache.FetchConcurrency = defaults.Cache.FetchConcurrency
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}

	// ErrLog
	if cfg.ErrLog.Capacity == 0 {
		cfg.ErrLog.Capacity = defaults.ErrLog.Capacity
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatkeep configuration directory path.
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(dir, "chatkeep"), nil
}

// ConfigPath returns the path to the default TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config file at path, or the default path when path is
// empty. A missing file yields the defaults. Overrides from v are applied
// before validation; v may be nil.
func Load(path string, v *viper.Viper) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, err
		}
	}

	if v != nil {
		cfg.ApplyOverrides(v)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg and fills in anything left empty.
// Keys the file does not mention keep their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	fillDefaults(cfg)
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path, creating the parent directory.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# chatkeep configuration file")
	fmt.Fprintln(&buf, "# Environment variables CHATKEEP_<SECTION>_<KEY> override these values.")
	fmt.Fprintln(&buf, "")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// String returns the config as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// OVERRIDES
// =============================================================================

// Override keys, in viper dot notation. The environment variable for a key
// is CHATKEEP_ followed by the key upper-cased with dots replaced by
// underscores (server.port -> CHATKEEP_SERVER_PORT).
const (
	KeyDataDir          = "data_dir"
	KeyServerHost       = "server.host"
	KeyServerPort       = "server.port"
	KeyServerCORS       = "server.cors_origins"
	KeyServerRateLimit  = "server.rate_limit"
	KeyStorageNaming    = "storage.naming"
	KeyStorageTimezone  = "storage.timezone"
	KeyCacheWindow      = "cache.window"
	KeySearchEnabled    = "search.enabled"
	KeySearchWatch      = "search.watch"
	KeyLogLevel         = "log.level"
	KeyLogFile          = "log.file"
	KeyErrLogCapacity   = "errlog.capacity"
	KeyErrLogPersistent = "errlog.persist"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHATKEEP"

// NewViper returns a viper instance reading CHATKEEP_* environment
// variables. Callers bind flags to the Key* names.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key that is set in v (by environment or a
// changed flag) into the config.
func (c *Config) ApplyOverrides(v *viper.Viper) {
	if v.IsSet(KeyDataDir) {
		c.DataDir = v.GetString(KeyDataDir)
	}
	if v.IsSet(KeyServerHost) {
		c.Server.Host = v.GetString(KeyServerHost)
	}
	if v.IsSet(KeyServerPort) {
		c.Server.Port = v.GetInt(KeyServerPort)
	}
	if v.IsSet(KeyServerCORS) {
		c.Server.CORSOrigins = splitList(v.GetStringSlice(KeyServerCORS))
	}
	if v.IsSet(KeyServerRateLimit) {
		c.Server.RateLimit = v.GetFloat64(KeyServerRateLimit)
	}
	if v.IsSet(KeyStorageNaming) {
		c.Storage.Naming = v.GetString(KeyStorageNaming)
	}
	if v.IsSet(KeyStorageTimezone) {
		c.Storage.Timezone = v.GetString(KeyStorageTimezone)
	}
	if v.IsSet(KeyCacheWindow) {
		c.Cache.Window = v.GetInt(KeyCacheWindow)
	}
	if v.IsSet(KeySearchEnabled) {
		c.Search.Enabled = v.GetBool(KeySearchEnabled)
	}
	if v.IsSet(KeySearchWatch) {
		c.Search.Watch = v.GetBool(KeySearchWatch)
	}
	if v.IsSet(KeyLogLevel) {
		c.Log.Level = v.GetString(KeyLogLevel)
	}
	if v.IsSet(KeyLogFile) {
		c.Log.File = v.GetString(KeyLogFile)
	}
	if v.IsSet(KeyErrLogCapacity) {
		c.ErrLog.Capacity = v.GetInt(KeyErrLogCapacity)
	}
	if v.IsSet(KeyErrLogPersistent) {
		c.ErrLog.Persist = v.GetBool(KeyErrLogPersistent)
	}
}

// splitList accepts both repeated values and comma separated ones.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.DataDir) == "" {
		add("data_dir", "must not be empty")
	}

	// Server
	if c.Server.Host == "" {
		add("server.host", "must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative, got %g", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1 when rate limiting, got %d", c.Server.RateBurst)
	}
	if c.Server.MaxBodyBytes < 1 {
		add("server.max_body_bytes", "must be positive, got %d", c.Server.MaxBodyBytes)
	}

	// Storage
	if _, err := c.Namer(); err != nil {
		add("storage", "%v", err)
	}

	// Cache
	if c.Cache.Window < 1 {
		add("cache.window", "must be at least 1, got %d", c.Cache.Window)
	}
	if c.Cache.FetchConcurrency < 1 {
		add("cache.fetch_concurrency", "must be at least 1, got %d", c.Cache.FetchConcurrency)
	}

	// Search
	if c.Search.DebounceMS < 0 {
		add("search.debounce_ms", "must not be negative, got %d", c.Search.DebounceMS)
	}

	// Log
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "invalid level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	// ErrLog
	if c.ErrLog.Capacity < 1 {
		add("errlog.capacity", "must be at least 1, got %d", c.ErrLog.Capacity)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// Location returns the time zone for timestamp filenames.
func (c *Config) Location() (*time.Location, error) {
	switch c.Storage.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Storage.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", c.Storage.Timezone, err)
		}
		return loc, nil
	}
}

// Namer returns the configured conversation filename strategy.
func (c *Config) Namer() (model.Namer, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return model.NamerFor(c.Storage.Naming, loc)
}

// Debounce returns the search watcher debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Search.DebounceMS) * time.Millisecond
}

// SearchDBPath returns the location of the search database.
func (c *Config) SearchDBPath() string {
	return filepath.Join(c.DataDir, "search.db")
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return &clone
}
