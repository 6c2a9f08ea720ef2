package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Store drivers accepted in store.driver.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverRedis  = "redis"
)

type Config struct {
	Store   Store   `yaml:"store"`
	Ingest  Ingest  `yaml:"ingest"`
	Sources Sources `yaml:"sources"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type Store struct {
	Driver    string        `yaml:"driver"`
	BadgerDir string        `yaml:"badger_dir"`
	Redis     Redis         `yaml:"redis"`
	TagTTL    time.Duration `yaml:"tag_ttl"`
}

type Redis struct {
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Ingest struct {
	Journal bool `yaml:"journal"`
}

type Sources struct {
	Feeds       []Feed `yaml:"feeds"`
	DaysBack    int    `yaml:"days_back"`
	Concurrency int    `yaml:"concurrency"`
	Inbox       Inbox  `yaml:"inbox"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Inbox struct {
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for sprintlog.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "sprintlog")
}

// DataDir returns the XDG data directory for sprintlog.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "sprintlog")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/sprintlog/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'sprintlog init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration with environment
// overrides applied. Used when no config file exists.
func Default() (*Config, error) {
	return parse(DefaultConfigYAML)
}

// parse parses YAML bytes into a Config, applying defaults and environment
// overrides.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Store: Store{
			Driver: DriverSQLite,
			Redis: Redis{
				Addr:        "localhost:6379",
				PasswordEnv: "SPRINTLOG_REDIS_PASSWORD",
				Timeout:     5 * time.Second,
			},
			TagTTL: 30 * 24 * time.Hour,
		},
		Ingest: Ingest{Journal: true},
		Sources: Sources{
			DaysBack:    7,
			Concurrency: 4,
			Inbox:       Inbox{Debounce: 500 * time.Millisecond},
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Store.Driver = getEnv("SPRINTLOG_STORE_DRIVER", c.Store.Driver)
	c.Store.Redis.Addr = getEnv("SPRINTLOG_REDIS_ADDR", c.Store.Redis.Addr)
	c.Output.DataDir = getEnv("SPRINTLOG_DATA_DIR", c.Output.DataDir)
	c.Logging.Level = getEnv("SPRINTLOG_LOG_LEVEL", c.Logging.Level)
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverBadger, DriverRedis:
	default:
		return fmt.Errorf("unknown store driver %q (want memory, sqlite, badger or redis)", c.Store.Driver)
	}
	if c.Sources.Concurrency < 1 {
		c.Sources.Concurrency = 1
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database path inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "sprintlog.db")
}

// GetBadgerDir returns the badger directory, defaulting to a subdirectory
// of the data directory.
func (c *Config) GetBadgerDir() string {
	if c.Store.BadgerDir != "" {
		return c.Store.BadgerDir
	}
	return filepath.Join(c.GetDataDir(), "badger")
}

// GetInboxDir returns the watched inbox directory.
func (c *Config) GetInboxDir() string {
	if c.Sources.Inbox.Dir != "" {
		return c.Sources.Inbox.Dir
	}
	return filepath.Join(c.GetDataDir(), "inbox")
}

// RedisPassword reads the redis password from the configured env var.
func (c *Config) RedisPassword() string {
	if c.Store.Redis.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Store.Redis.PasswordEnv)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
