// Package config, CLI'ın tüm konfigürasyonunu merkezi olarak yönetir.
//
// Öncelik sırası (sonraki öncekini ezer):
//
//	varsayılanlar → YAML dosyası (--config / CHATSYNC_CONFIG) → environment variable'lar
//
// .env dosyası varsa environment'a önce o yüklenir.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config, tüm konfigürasyon değerlerini taşır.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// APIConfig, sunucu adresleri.
type APIConfig struct {
	URL            string        `yaml:"url"`             // REST base URL (ör: http://localhost:8082)
	WSURL          string        `yaml:"ws_url"`          // STOMP websocket endpoint'i
	RequestTimeout time.Duration `yaml:"request_timeout"` // REST çağrısı başına
}

// DatabaseConfig, yerel SQLite dosyası.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig, sync engine ayarları.
type SessionConfig struct {
	RefreshMargin   time.Duration `yaml:"refresh_margin"`
	HistoryPageSize int           `yaml:"history_page_size"`
	TypingWindow    time.Duration `yaml:"typing_window"`
	TypingSweep     time.Duration `yaml:"typing_sweep"`
	TypingDebounce  time.Duration `yaml:"typing_debounce"`
	MaxAttachments  int           `yaml:"max_attachments"`
}

// LogConfig, zap ayarları.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig, Prometheus endpoint'i. Addr boşsa kapalı.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default, hiçbir dosya veya env yokken kullanılan değerler.
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:            "http://localhost:8082",
			WSURL:          "ws://localhost:8082/ws/websocket",
			RequestTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/chatsync.db",
		},
		Session: SessionConfig{
			RefreshMargin:   5 * time.Minute,
			HistoryPageSize: 50,
			TypingWindow:    3 * time.Second,
			TypingSweep:     800 * time.Millisecond,
			TypingDebounce:  400 * time.Millisecond,
			MaxAttachments:  5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load, konfigürasyonu oluşturur. path boşsa CHATSYNC_CONFIG'e bakılır;
// o da boşsa YAML katmanı atlanır.
func Load(path string) (*Config, error) {
	// .env dosyası yoksa hata vermez.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CHATSYNC_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error

	c.API.URL = getEnv("CHATSYNC_API_URL", c.API.URL)
	c.API.WSURL = getEnv("CHATSYNC_WS_URL", c.API.WSURL)
	if c.API.RequestTimeout, err = envDuration("CHATSYNC_REQUEST_TIMEOUT", c.API.RequestTimeout); err != nil {
		return err
	}

	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)

	if c.Session.RefreshMargin, err = envDuration("CHATSYNC_REFRESH_MARGIN", c.Session.RefreshMargin); err != nil {
		return err
	}
	if c.Session.HistoryPageSize, err = envInt("CHATSYNC_HISTORY_PAGE_SIZE", c.Session.HistoryPageSize); err != nil {
		return err
	}
	if c.Session.TypingWindow, err = envDuration("CHATSYNC_TYPING_WINDOW", c.Session.TypingWindow); err != nil {
		return err
	}
	if c.Session.TypingSweep, err = envDuration("CHATSYNC_TYPING_SWEEP", c.Session.TypingSweep); err != nil {
		return err
	}
	if c.Session.TypingDebounce, err = envDuration("CHATSYNC_TYPING_DEBOUNCE", c.Session.TypingDebounce); err != nil {
		return err
	}
	if c.Session.MaxAttachments, err = envInt("CHATSYNC_MAX_ATTACHMENTS", c.Session.MaxAttachments); err != nil {
		return err
	}

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	if raw, ok := os.LookupEnv("LOG_DEVELOPMENT"); ok {
		dev, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid LOG_DEVELOPMENT: %w", err)
		}
		c.Log.Development = dev
	}

	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)
	return nil
}

// Validate, birlikte anlamsız olan değerleri reddeder.
func (c *Config) Validate() error {
	var errs []error
	if c.API.URL == "" {
		errs = append(errs, errors.New("api url is required"))
	}
	if c.API.WSURL == "" {
		errs = append(errs, errors.New("websocket url is required"))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Session.HistoryPageSize <= 0 {
		errs = append(errs, errors.New("history page size must be positive"))
	}
	if c.Session.TypingWindow <= 0 || c.Session.TypingSweep <= 0 {
		errs = append(errs, errors.New("typing window and sweep must be positive"))
	}
	if c.Session.MaxAttachments <= 0 {
		errs = append(errs, errors.New("max attachments must be positive"))
	}
	return errors.Join(errs...)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
