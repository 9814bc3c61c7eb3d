package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	StoreYAML   = "yaml"
	StoreSQLite = "sqlite"

	CacheNone  = "none"
	CacheRedis = "redis"
	CacheFReD  = "fred"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	SettingsStore SettingsStoreConfig `yaml:"settings_store"`
	Search        SearchConfig        `yaml:"search"`
	Cache         CacheConfig         `yaml:"cache"`
	Memory        MemoryConfig        `yaml:"memory"`
	Model         ModelConfig         `yaml:"model"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	// File receives a copy of the log; empty disables file logging.
	File string `yaml:"file"`
}

type SettingsStoreConfig struct {
	Driver string `yaml:"driver"` // yaml or sqlite
	Path   string `yaml:"path"`
}

type SearchConfig struct {
	MaxResults    int           `yaml:"max_results"`
	Timeout       time.Duration `yaml:"timeout"`
	DuckDuckGoURL string        `yaml:"duckduckgo_url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type FReDConfig struct {
	Address        string `yaml:"address"`
	Keygroup       string `yaml:"keygroup"`
	CreateKeygroup bool   `yaml:"create_keygroup"`
	BootstrapNode  string `yaml:"bootstrap_node"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
	CAFile         string `yaml:"ca_file"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend"` // none, redis or fred
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
	FReD    FReDConfig    `yaml:"fred"`
}

type MemoryConfig struct {
	// MaxTurns caps stored turns per session; 0 keeps everything.
	MaxTurns int `yaml:"max_turns"`
}

type ModelConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// Dir is the per-user directory holding settings and logs.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lightbot"
	}
	return filepath.Join(home, ".lightbot")
}

// DefaultPath is where Load looks when no config file is named.
func DefaultPath() string {
	return filepath.Join(Dir(), "lightbot.yaml")
}

func Default() *Config {
	dir := Dir()
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8000",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(dir, "lightbot.log"),
		},
		SettingsStore: SettingsStoreConfig{
			Driver: StoreYAML,
			Path:   filepath.Join(dir, "config.yaml"),
		},
		Search: SearchConfig{
			MaxResults: 5,
			Timeout:    15 * time.Second,
		},
		Cache: CacheConfig{
			Backend: CacheNone,
			TTL:     10 * time.Minute,
			Redis:   RedisConfig{Addr: "localhost:6379"},
			FReD: FReDConfig{
				Address:  "localhost:10000",
				CertFile: "fred/cert/frededge1.crt",
				KeyFile:  "fred/cert/frededge1.key",
				CAFile:   "fred/cert/ca.crt",
			},
		},
		Model: ModelConfig{
			Timeout:    120 * time.Second,
			MaxRetries: 2,
		},
	}
}

// Load reads path on top of the defaults, then applies LIGHTBOT_*
// environment overrides. An empty path tries DefaultPath and tolerates its
// absence.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		log.Debugf("Loaded config from %s", path)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// running on defaults
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.setDefaultsAndValidate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = envStr("LIGHTBOT_ADDR", c.Server.Addr)
	c.Log.Level = envStr("LIGHTBOT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("LIGHTBOT_LOG_FORMAT", c.Log.Format)
	c.Log.File = envStr("LIGHTBOT_LOG_FILE", c.Log.File)
	c.SettingsStore.Driver = envStr("LIGHTBOT_SETTINGS_DRIVER", c.SettingsStore.Driver)
	c.SettingsStore.Path = envStr("LIGHTBOT_SETTINGS_PATH", c.SettingsStore.Path)
	c.Search.MaxResults = envInt("LIGHTBOT_SEARCH_MAX_RESULTS", c.Search.MaxResults)
	c.Cache.Backend = envStr("LIGHTBOT_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Redis.Addr = envStr("LIGHTBOT_REDIS_ADDR", c.Cache.Redis.Addr)
	c.Cache.Redis.Password = envStr("LIGHTBOT_REDIS_PASSWORD", c.Cache.Redis.Password)
	c.Cache.FReD.Address = envStr("LIGHTBOT_FRED_ADDR", c.Cache.FReD.Address)
	c.Memory.MaxTurns = envInt("LIGHTBOT_MAX_TURNS", c.Memory.MaxTurns)
}

// setDefaultsAndValidate fills zero values left by a sparse file and
// rejects settings the server cannot run with.
func (c *Config) setDefaultsAndValidate() error {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = d.Search.MaxResults
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = d.Search.Timeout
	}
	if c.SettingsStore.Path == "" {
		c.SettingsStore.Path = d.SettingsStore.Path
	}

	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	c.SettingsStore.Driver = strings.ToLower(c.SettingsStore.Driver)
	if c.SettingsStore.Driver == "" {
		c.SettingsStore.Driver = StoreYAML
	}
	if c.SettingsStore.Driver != StoreYAML && c.SettingsStore.Driver != StoreSQLite {
		return fmt.Errorf("settings_store.driver must be yaml or sqlite, got %q", c.SettingsStore.Driver)
	}

	c.Cache.Backend = strings.ToLower(c.Cache.Backend)
	switch c.Cache.Backend {
	case "", CacheNone:
		c.Cache.Backend = CacheNone
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr must not be empty")
		}
	case CacheFReD:
		if c.Cache.FReD.Address == "" {
			return fmt.Errorf("cache.fred.address must not be empty")
		}
		if c.Cache.FReD.CreateKeygroup && c.Cache.FReD.BootstrapNode == "" {
			return fmt.Errorf("cache.fred.bootstrap_node is required when create_keygroup is set")
		}
	default:
		return fmt.Errorf("cache.backend must be none, redis or fred, got %q", c.Cache.Backend)
	}

	if c.Memory.MaxTurns < 0 {
		return fmt.Errorf("memory.max_turns must not be negative, got %d", c.Memory.MaxTurns)
	}
	if c.Model.MaxRetries < 0 {
		return fmt.Errorf("model.max_retries must not be negative, got %d", c.Model.MaxRetries)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Warnf("Ignoring %s=%q: not an integer", key, v)
	}
	return fallback
}
