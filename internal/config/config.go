package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Player   PlayerConfig   `toml:"player"`
	Metadata MetadataConfig `toml:"metadata"`
	Cache    CacheConfig    `toml:"cache"`
	Remote   RemoteConfig   `toml:"remote"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Discord  DiscordConfig  `toml:"discord"`
}

// PlayerConfig controls transport cadence and lyric scrolling
type PlayerConfig struct {
	TickIntervalMs      int      `toml:"tick_interval_ms"`
	FrameIntervalMs     int      `toml:"frame_interval_ms"`
	Smoothing           float64  `toml:"smoothing"`
	LineHeight          float64  `toml:"line_height"`
	EndThresholdSeconds float64  `toml:"end_threshold_seconds"`
	Loop                bool     `toml:"loop"`
	WatchSidecars       bool     `toml:"watch_sidecars"`
	SupportedFormats    []string `toml:"supported_formats"`
}

// MetadataConfig holds the duration heuristic constants
type MetadataConfig struct {
	ShortDurationSeconds float64 `toml:"short_duration_seconds"`
	LargeFileBytes       int64   `toml:"large_file_bytes"`
	BytesPerSecond       int64   `toml:"bytes_per_second"`
}

// CacheConfig selects and configures the fallback cache backend
type CacheConfig struct {
	Backend          string      `toml:"backend"` // "file" or "redis"
	Directory        string      `toml:"directory"`
	MemoryTTLMinutes int         `toml:"memory_ttl_minutes"`
	Redis            RedisConfig `toml:"redis"`
}

// RedisConfig contains connection settings for the redis cache backend
type RedisConfig struct {
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	Prefix        string `toml:"prefix"`
	DialTimeoutMs int    `toml:"dial_timeout_ms"`
	ReadTimeoutMs int    `toml:"read_timeout_ms"`
	MaxRetries    int    `toml:"max_retries"` // 0 disables retries
}

// RemoteConfig contains remote lyric/cover provider settings
type RemoteConfig struct {
	Enabled            bool     `toml:"enabled"`
	Providers          []string `toml:"providers"` // tried in order
	NetEaseAPI         string   `toml:"netease_api"`
	NetEaseCookie      string   `toml:"netease_cookie"`
	LRCLibURL          string   `toml:"lrclib_url"`
	TimeoutSeconds     int      `toml:"timeout_seconds"`
	MaxRetries         int      `toml:"max_retries"`
	UserAgent          string   `toml:"user_agent"`
	MissBackoffMinutes int      `toml:"miss_backoff_minutes"`
}

// DatabaseConfig contains the fetch ledger database settings
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// ServerConfig contains the renderer-facing HTTP API settings
type ServerConfig struct {
	Enabled     bool   `toml:"enabled"`
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
	MaxSizeMB      int    `toml:"max_size_mb"`
	MaxBackups     int    `toml:"max_backups"`
	MaxAgeDays     int    `toml:"max_age_days"`
}

// DiscordConfig contains Discord Rich Presence configuration
type DiscordConfig struct {
	Enabled       bool   `toml:"enabled"`
	ApplicationID string `toml:"application_id"`
	LargeImageKey string `toml:"large_image_key"`
	ShowLyrics    bool   `toml:"show_lyrics"` // active lyric line as the status text
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Player: PlayerConfig{
			TickIntervalMs:      500,
			FrameIntervalMs:     16,
			Smoothing:           0.2,
			LineHeight:          32,
			EndThresholdSeconds: 1.0,
			Loop:                true,
			WatchSidecars:       true,
			SupportedFormats:    []string{".mp3", ".wav", ".flac", ".m4a"},
		},
		Metadata: MetadataConfig{
			ShortDurationSeconds: 15,
			LargeFileBytes:       1024 * 1024,
			BytesPerSecond:       16 * 1024,
		},
		Cache: CacheConfig{
			Backend:          "file",
			Directory:        "./lyrebird-cache",
			MemoryTTLMinutes: 30,
			Redis: RedisConfig{
				Addr:          "localhost:6379",
				DB:            0,
				Prefix:        "lyrebird",
				DialTimeoutMs: 500,
				ReadTimeoutMs: 300,
				MaxRetries:    1,
			},
		},
		Remote: RemoteConfig{
			Enabled:            true,
			Providers:          []string{"netease", "lrclib"},
			NetEaseAPI:         "http://localhost:3000",
			LRCLibURL:          "https://lrclib.net/api",
			TimeoutSeconds:     10,
			MaxRetries:         2,
			UserAgent:          "lyrebird/1.0",
			MissBackoffMinutes: 60,
		},
		Database: DatabaseConfig{
			Path:           "./lyrebird.db",
			MaxConnections: 5,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        "8080",
			Host:        "127.0.0.1",
			EnableCORS:  true,
			ReadTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			File:           "",
			RequestLogging: true,
			MaxSizeMB:      10,
			MaxBackups:     3,
			MaxAgeDays:     28,
		},
		Discord: DiscordConfig{
			Enabled:       false,
			ApplicationID: "",
			LargeImageKey: "lyrebird",
			ShowLyrics:    true,
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
		return cfg, nil
	}

	// Load from file
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv loads envFile (if it exists) into the process environment and
// applies LYREBIRD_* overrides. Secrets such as the NetEase cookie and the
// redis password usually live there rather than in the TOML file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if v := os.Getenv("LYREBIRD_NETEASE_API"); v != "" {
		c.Remote.NetEaseAPI = v
	}
	if v := os.Getenv("LYREBIRD_NETEASE_COOKIE"); v != "" {
		c.Remote.NetEaseCookie = v
	}
	if v := os.Getenv("LYREBIRD_CACHE_DIR"); v != "" {
		c.Cache.Directory = v
	}
	if v := os.Getenv("LYREBIRD_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("LYREBIRD_REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("LYREBIRD_DISCORD_APP_ID"); v != "" {
		c.Discord.ApplicationID = v
	}
	if v := os.Getenv("LYREBIRD_REMOTE_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LYREBIRD_REMOTE_ENABLED %q: %w", v, err)
		}
		c.Remote.Enabled = enabled
	}

	return c.Validate()
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Lyrebird Player Configuration
# Playback cadence, lyric scrolling, metadata fallback cache and remote
# lyric/cover providers. Secrets can also be set in .env (LYREBIRD_*).

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate player config
	if c.Player.TickIntervalMs <= 0 {
		return fmt.Errorf("player tick interval must be positive")
	}
	if c.Player.FrameIntervalMs <= 0 {
		return fmt.Errorf("player frame interval must be positive")
	}
	if c.Player.Smoothing <= 0 || c.Player.Smoothing > 1 {
		return fmt.Errorf("player smoothing must be in (0, 1], got %v", c.Player.Smoothing)
	}
	if c.Player.LineHeight <= 0 {
		return fmt.Errorf("player line height must be positive")
	}
	if c.Player.EndThresholdSeconds < 0 {
		return fmt.Errorf("player end threshold cannot be negative")
	}
	if len(c.Player.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	// Validate metadata heuristics
	if c.Metadata.BytesPerSecond <= 0 {
		return fmt.Errorf("metadata bytes per second must be positive")
	}

	// Validate cache config
	switch c.Cache.Backend {
	case "file":
		if c.Cache.Directory == "" {
			return fmt.Errorf("cache directory cannot be empty")
		}
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		if c.Cache.Redis.DialTimeoutMs <= 0 || c.Cache.Redis.ReadTimeoutMs <= 0 {
			return fmt.Errorf("redis timeouts must be positive")
		}
		if c.Cache.Redis.MaxRetries < 0 {
			return fmt.Errorf("redis max retries cannot be negative")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be file or redis)", c.Cache.Backend)
	}

	// Validate remote config
	validProviders := map[string]bool{"netease": true, "lrclib": true}
	for _, p := range c.Remote.Providers {
		if !validProviders[p] {
			return fmt.Errorf("unknown remote provider: %s", p)
		}
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("remote timeout must be positive")
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote max retries cannot be negative")
	}

	// Validate database config
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	// Validate server config
	if c.Server.Enabled {
		if c.Server.Port == "" {
			return fmt.Errorf("server port cannot be empty")
		}
		if c.Server.Host == "" {
			return fmt.Errorf("server host cannot be empty")
		}
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Discord.Enabled && c.Discord.ApplicationID == "" {
		return fmt.Errorf("discord application id is required when presence is enabled")
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// TickInterval is the transport polling cadence
func (p PlayerConfig) TickInterval() time.Duration {
	return time.Duration(p.TickIntervalMs) * time.Millisecond
}

// FrameInterval is the scroll animation cadence
func (p PlayerConfig) FrameInterval() time.Duration {
	return time.Duration(p.FrameIntervalMs) * time.Millisecond
}

// Timeout is the per-call remote request budget
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// MissBackoff is how long a remote miss suppresses refetching the same title
func (r RemoteConfig) MissBackoff() time.Duration {
	return time.Duration(r.MissBackoffMinutes) * time.Minute
}

// DialTimeout bounds connecting to redis
func (r RedisConfig) DialTimeout() time.Duration {
	return time.Duration(r.DialTimeoutMs) * time.Millisecond
}

// ReadTimeout bounds each redis reply
func (r RedisConfig) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutMs) * time.Millisecond
}

// MemoryTTL is how long fallback cache entries stay in the in-memory front
func (c CacheConfig) MemoryTTL() time.Duration {
	return time.Duration(c.MemoryTTLMinutes) * time.Minute
}
