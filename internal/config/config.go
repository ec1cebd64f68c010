// Package config loads the YAML configuration shared by the web server and
// the storage API.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxPresignTTL is the longest lifetime S3 accepts for a presigned URL.
const MaxPresignTTL = 7 * 24 * time.Hour

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	StorageAPI StorageAPIConfig `yaml:"storage_api"`
	Records    RecordsConfig    `yaml:"records"`
	Session    SessionConfig    `yaml:"session"`
	Browser    BrowserConfig    `yaml:"browser"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Address             string `yaml:"address"`
	Port                int    `yaml:"port"`
	ViewsDir            string `yaml:"views_dir"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
	// PreviewOrigins are extra origins the preview pane may load signed
	// links from, e.g. the public MinIO endpoint.
	PreviewOrigins []string `yaml:"preview_origins"`
}

// StorageAPIConfig describes both sides of the storage API: URL is where the
// web server reaches it, Address and Port are where cmd/storage-api listens.
type StorageAPIConfig struct {
	URL         string `yaml:"url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type RecordsConfig struct {
	DBPath string `yaml:"db_path"`
}

type SessionConfig struct {
	// Key must be exactly 32 bytes. Empty means a random key per process
	// start, which invalidates sessions on restart.
	Key             string `yaml:"key"`
	IdleTimeoutMins int    `yaml:"idle_timeout_mins"`
	SecureCookie    bool   `yaml:"secure_cookie"`
}

type BrowserConfig struct {
	UploadConcurrency int `yaml:"upload_concurrency"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// Secure forces TLS on or off. Unset derives it from the endpoint.
	Secure         *bool  `yaml:"secure"`
	Region         string `yaml:"region"`
	PresignTTLSecs int    `yaml:"presign_ttl_secs"`
	// BucketQuotaBytes applies a hard quota to every bucket created through
	// the storage API. Zero disables quotas.
	BucketQuotaBytes uint64 `yaml:"bucket_quota_bytes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:             "0.0.0.0",
			Port:                8080,
			ViewsDir:            "views",
			ShutdownTimeoutSecs: 15,
		},
		StorageAPI: StorageAPIConfig{
			URL:         "http://localhost:8081",
			TimeoutSecs: 60,
			Address:     "0.0.0.0",
			Port:        8081,
			MaxUploadMB: 512,
		},
		Records: RecordsConfig{
			DBPath: "./iron-archivos.db",
		},
		Session: SessionConfig{
			IdleTimeoutMins: 60,
		},
		Browser: BrowserConfig{
			UploadConcurrency: 4,
		},
		MinIO: MinIOConfig{
			Endpoint:       "localhost:9000",
			PresignTTLSecs: 900,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		"IRON_STORAGE_API_URL": &c.StorageAPI.URL,
		"IRON_SESSION_KEY":     &c.Session.Key,
		"IRON_RECORDS_DB":      &c.Records.DBPath,
		"MINIO_ENDPOINT":       &c.MinIO.Endpoint,
		"MINIO_ACCESS_KEY":     &c.MinIO.AccessKey,
		"MINIO_SECRET_KEY":     &c.MinIO.SecretKey,
	}
	for name, field := range overrides {
		if v, ok := lookup(name); ok && v != "" {
			*field = v
		}
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.StorageAPI.Port <= 0 || c.StorageAPI.Port > 65535 {
		errs = append(errs, fmt.Errorf("storage_api.port out of range: %d", c.StorageAPI.Port))
	}
	if u, err := url.Parse(c.StorageAPI.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("storage_api.url must be an absolute URL: %q", c.StorageAPI.URL))
	}
	if c.StorageAPI.TimeoutSecs < 0 {
		errs = append(errs, errors.New("storage_api.timeout_secs must not be negative"))
	}
	if c.Records.DBPath == "" {
		errs = append(errs, errors.New("records.db_path is required"))
	}
	if n := len(c.Session.Key); n != 0 && n != 32 {
		errs = append(errs, fmt.Errorf("session.key must be 32 bytes, got %d", n))
	}
	if c.Browser.UploadConcurrency < 1 {
		errs = append(errs, errors.New("browser.upload_concurrency must be at least 1"))
	}
	if ttl := c.PresignTTL(); ttl <= 0 || ttl > MaxPresignTTL {
		errs = append(errs, fmt.Errorf("minio.presign_ttl_secs must be between 1s and %s", MaxPresignTTL))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

func (c *Config) StorageAPIListenAddr() string {
	return fmt.Sprintf("%s:%d", c.StorageAPI.Address, c.StorageAPI.Port)
}

func (c *Config) StorageAPITimeout() time.Duration {
	return time.Duration(c.StorageAPI.TimeoutSecs) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSecs) * time.Second
}

func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMins) * time.Minute
}

func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.MinIO.PresignTTLSecs) * time.Second
}

// SlogLevel maps logging.level onto a slog level. Unknown values fall back
// to info; Load already rejects them.
func (l LoggingConfig) SlogLevel() slog.Level {
	level, err := parseLevel(l.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging.level: unknown level %q", s)
}
