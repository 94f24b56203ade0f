// Package config loads server configuration from command-line flags,
// environment variables, and a .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Data    DataConfig
	Store   StoreConfig
	Server  ServerConfig
	Capture CaptureConfig
	Export  ExportConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the root of everything written to disk.
type DataConfig struct {
	BasePath string // default ~/Scanix/data
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string // sqlite (default) or badger
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Name          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	AdvertiseMDNS bool
	UploadRPS     float64 // per-client upload rate
	UploadBurst   int
	CORSOrigins   []string // empty allows any origin
}

// CaptureConfig controls how incoming images become pages.
type CaptureConfig struct {
	InboxPath   string        // hot folder, default {data}/inbox; "-" disables
	QuietPeriod time.Duration // files arriving within this window form one session
	JPEGQuality int           // 1-100
}

// ExportConfig controls generated artifacts.
type ExportConfig struct {
	Dir        string // default {data}/exports
	LinkExpiry time.Duration

	// Optional S3-compatible destination for share links.
	ObjectEndpoint  string
	ObjectBucket    string
	ObjectAccessKey string
	ObjectSecretKey string
	ObjectUseSSL    bool
}

// ObjectStorageEnabled reports whether exports are uploaded for sharing.
func (e ExportConfig) ObjectStorageEnabled() bool {
	return e.ObjectEndpoint != "" && e.ObjectBucket != ""
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags.
// 2. Environment variables.
// 3. .env file (ENV_FILE or ./.env).
// 4. Defaults.
func LoadConfig() (*Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load parses args into fs and resolves the configuration.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for scans, indexes and exports")
	backend := fs.String("store", "", "Persistence backend (sqlite, badger)")
	port := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 30s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 120s)")
	advertise := fs.String("advertise-mdns", "", "Advertise via Avahi (default: false)")
	inbox := fs.String("inbox-path", "", "Hot folder for incoming captures (\"-\" disables)")
	quiet := fs.String("capture-quiet-period", "", "Quiet period that closes a hot-folder session (default: 2s)")
	exportDir := fs.String("export-dir", "", "Directory for generated exports")
	envFile := fs.String("env-file", "", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Missing .env is fine; only malformed files are reported.
	path := getConfigValue(*envFile, "ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}

	cfg := &Config{
		App:    AppConfig{Environment: getConfigValue(*env, "ENV", "development")},
		Logger: LoggerConfig{Level: getConfigValue(*logLevel, "LOG_LEVEL", "info")},
		Data:   DataConfig{BasePath: getConfigValue(*dataPath, "DATA_PATH", "")},
		Store:  StoreConfig{Backend: strings.ToLower(getConfigValue(*backend, "STORE_BACKEND", BackendSQLite))},
		Server: ServerConfig{
			Name:          getConfigValue("", "SERVER_NAME", "Scanix"),
			Port:          getConfigValue(*port, "SERVER_PORT", "8080"),
			AdvertiseMDNS: getBoolConfigValue(*advertise, "ADVERTISE_MDNS", false),
			UploadRPS:     getFloatConfigValue("", "UPLOAD_RPS", 2),
			UploadBurst:   getIntConfigValue("", "UPLOAD_BURST", 10),
			CORSOrigins:   splitList(getConfigValue("", "CORS_ALLOWED_ORIGINS", "")),
		},
		Capture: CaptureConfig{
			InboxPath:   getConfigValue(*inbox, "INBOX_PATH", ""),
			JPEGQuality: getIntConfigValue("", "JPEG_QUALITY", 80),
		},
		Export: ExportConfig{
			Dir:             getConfigValue(*exportDir, "EXPORT_DIR", ""),
			ObjectEndpoint:  getConfigValue("", "EXPORT_S3_ENDPOINT", ""),
			ObjectBucket:    getConfigValue("", "EXPORT_S3_BUCKET", ""),
			ObjectAccessKey: getConfigValue("", "EXPORT_S3_ACCESS_KEY", ""),
			ObjectSecretKey: getConfigValue("", "EXPORT_S3_SECRET_KEY", ""),
			ObjectUseSSL:    getBoolConfigValue("", "EXPORT_S3_USE_SSL", true),
		},
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dst       *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "30s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "60s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "120s", &cfg.Server.IdleTimeout},
		{*quiet, "CAPTURE_QUIET_PERIOD", "2s", &cfg.Capture.QuietPeriod},
		{"", "EXPORT_LINK_EXPIRY", "24h", &cfg.Export.LinkExpiry},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "staging", "production":
	case "":
		return errors.New("ENV is required")
	default:
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Store.Backend != BackendSQLite && c.Store.Backend != BackendBadger {
		return fmt.Errorf("invalid store backend: %s (must be sqlite or badger)", c.Store.Backend)
	}

	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be 1-100)", c.Capture.JPEGQuality)
	}

	if c.Capture.QuietPeriod < 0 {
		return errors.New("capture quiet period cannot be negative")
	}

	if c.Export.ObjectEndpoint != "" && c.Export.ObjectBucket == "" {
		return errors.New("EXPORT_S3_BUCKET is required when EXPORT_S3_ENDPOINT is set")
	}

	return nil
}

// InboxEnabled reports whether the hot-folder watcher should run.
func (c *Config) InboxEnabled() bool {
	return c.Capture.InboxPath != "" && c.Capture.InboxPath != "-"
}

func (c *Config) expandPaths() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.Data.BasePath, err = expandPath(c.Data.BasePath, filepath.Join(home, "Scanix", "data")); err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	if c.Capture.InboxPath != "-" {
		if c.Capture.InboxPath, err = expandPath(c.Capture.InboxPath, filepath.Join(c.Data.BasePath, "inbox")); err != nil {
			return fmt.Errorf("invalid inbox path: %w", err)
		}
	}
	if c.Export.Dir, err = expandPath(c.Export.Dir, filepath.Join(c.Data.BasePath, "exports")); err != nil {
		return fmt.Errorf("invalid export dir: %w", err)
	}
	return nil
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// expandPath expands ~ and makes path absolute; empty path yields defaultPath.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abs
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envKey != "" {
		if v := os.Getenv(envKey); v != "" {
			return v
		}
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1", "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue
	}
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
