// Package config loads server settings from the environment. An optional
// .env file in the working directory is read first; real environment
// variables take precedence over it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvProduction = "production"

	StorageBBolt    = "bbolt"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	RateLimitMemory = "memory"
	RateLimitStore  = "store"
)

type Config struct {
	Env        string
	AuthSecret string

	Port    int
	DataDir string

	Storage     string
	PostgresDSN string

	// TrustedProxies is the raw comma separated CIDR list.
	TrustedProxies string

	DefaultLocale string

	UploadDir     string
	UploadMaxSize int64

	CORSOrigins []string

	RateLimitBackend string

	// AuditWebhookURL, when set, receives every audit event as JSON.
	// AuditWebhookAuth is an optional "Header: value" pair sent with it.
	AuditWebhookURL  string
	AuditWebhookAuth string
	AuditMaxEntries  int

	LogLevel  slog.Level
	LogFormat string
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.Env == EnvProduction
}

// Load reads the configuration. Files are .env files to read before the
// environment; with none given, ".env" is tried and its absence ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("loading env files: %w", err)
	}

	port, err := strconv.Atoi(getEnv("QUILL_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUILL_PORT: %w", err)
	}
	maxSize, err := strconv.ParseInt(getEnv("QUILL_UPLOAD_MAX_SIZE", "10485760"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid QUILL_UPLOAD_MAX_SIZE: %w", err)
	}
	auditMax, err := strconv.Atoi(getEnv("QUILL_AUDIT_MAX_ENTRIES", "10000"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUILL_AUDIT_MAX_ENTRIES: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	dataDir := getEnv("QUILL_DATA_DIR", "./data")
	cfg := &Config{
		Env:              strings.ToLower(getEnv("QUILL_ENV", "development")),
		AuthSecret:       os.Getenv("AUTH_SECRET"),
		Port:             port,
		DataDir:          dataDir,
		Storage:          strings.ToLower(getEnv("QUILL_STORAGE", StorageBBolt)),
		PostgresDSN:      os.Getenv("QUILL_POSTGRES_DSN"),
		TrustedProxies:   os.Getenv("QUILL_TRUSTED_PROXIES"),
		DefaultLocale:    getEnv("QUILL_DEFAULT_LOCALE", "zh"),
		UploadDir:        getEnv("QUILL_UPLOAD_DIR", dataDir+"/uploads"),
		UploadMaxSize:    maxSize,
		CORSOrigins:      splitList(os.Getenv("QUILL_CORS_ORIGINS")),
		RateLimitBackend: strings.ToLower(getEnv("QUILL_RATE_LIMIT_BACKEND", RateLimitMemory)),
		AuditWebhookURL:  os.Getenv("QUILL_AUDIT_WEBHOOK_URL"),
		AuditWebhookAuth: os.Getenv("QUILL_AUDIT_WEBHOOK_AUTH"),
		AuditMaxEntries:  auditMax,
		LogLevel:         level,
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings. The auth secret is checked by the
// session package when the server starts.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageBBolt, StorageSQLite, StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("QUILL_POSTGRES_DSN is required when QUILL_STORAGE=postgres")
		}
	default:
		return fmt.Errorf("unknown QUILL_STORAGE %q", c.Storage)
	}
	switch c.RateLimitBackend {
	case RateLimitMemory, RateLimitStore:
	default:
		return fmt.Errorf("unknown QUILL_RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("QUILL_PORT out of range: %d", c.Port)
	}
	if c.UploadMaxSize <= 0 {
		return fmt.Errorf("QUILL_UPLOAD_MAX_SIZE must be positive")
	}
	if c.AuditMaxEntries <= 0 {
		return fmt.Errorf("QUILL_AUDIT_MAX_ENTRIES must be positive")
	}
	if c.AuditWebhookAuth != "" {
		name, value, ok := strings.Cut(c.AuditWebhookAuth, ":")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(value) == "" {
			return fmt.Errorf(`QUILL_AUDIT_WEBHOOK_AUTH must look like "Name: value"`)
		}
	}
	return nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// WriteSecret sets AUTH_SECRET in the env file at path, keeping its other
// entries. The file is created if it does not exist.
func WriteSecret(path, secret string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		env = existing
	}
	env["AUTH_SECRET"] = secret
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
