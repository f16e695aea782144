// Package config loads relaychat settings.
//
// Sources, lowest precedence first:
//   - built-in defaults
//   - a TOML file (--config flag or RELAYCHAT_CONFIG)
//   - a .env file in the working directory, loaded into the environment
//   - environment variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultAddr         = ":8100"
	DefaultDBPath       = "relaychat.db"
	DefaultMaxFileSize  = 10 * 1024 * 1024
	DefaultUploadUserID = "test-user"
	DefaultCollection   = "documents"
	DefaultRateLimit    = 10.0
	DefaultRateBurst    = 20
	DefaultHistoryLimit = 50
	EnvConfigPath       = "RELAYCHAT_CONFIG"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Upload  UploadConfig  `toml:"upload"`
	Storage StorageConfig `toml:"storage"`
	Titles  TitlesConfig  `toml:"titles"`
	Log     LogConfig     `toml:"log"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// BackendConfig points at the RAG/LLM service. Both fields may be empty:
// chat then falls back to a local development backend, while the
// configuration proxies refuse to run.
type BackendConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

type UploadConfig struct {
	MaxFileSize       int64  `toml:"max_file_size"`
	UserID            string `toml:"user_id"`
	DefaultCollection string `toml:"default_collection"`
}

type StorageConfig struct {
	// Path of the SQLite history database; "off" disables history.
	Path         string `toml:"path"`
	HistoryLimit int    `toml:"history_limit"`
}

type TitlesConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      DefaultAddr,
			RateLimit: DefaultRateLimit,
			RateBurst: DefaultRateBurst,
		},
		Upload: UploadConfig{
			MaxFileSize:       DefaultMaxFileSize,
			UserID:            DefaultUploadUserID,
			DefaultCollection: DefaultCollection,
		},
		Storage: StorageConfig{
			Path:         DefaultDBPath,
			HistoryLimit: DefaultHistoryLimit,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty, in which case
// RELAYCHAT_CONFIG is consulted; a missing file at the default location is
// not an error, but an explicitly named one is.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BACKEND_API_URL": &c.Backend.URL,
		"BACKEND_API_KEY": &c.Backend.APIKey,
		"RELAYCHAT_ADDR":  &c.Server.Addr,
		"RELAYCHAT_DB":    &c.Storage.Path,
		"TITLE_API_URL":   &c.Titles.BaseURL,
		"TITLE_API_KEY":   &c.Titles.APIKey,
		"TITLE_MODEL":     &c.Titles.Model,
		"LOG_LEVEL":       &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Addr = ":" + v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("server rate limit values must not be negative")
	}
	if c.Upload.MaxFileSize <= 0 {
		return errors.New("upload.max_file_size must be positive")
	}
	if c.Storage.HistoryLimit <= 0 {
		c.Storage.HistoryLimit = DefaultHistoryLimit
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// StorageEnabled reports whether conversation history should be kept.
func (c *Config) StorageEnabled() bool {
	return c.Storage.Path != "" && c.Storage.Path != "off"
}

// NewLogger builds the process logger.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
