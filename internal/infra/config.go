package infra

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	DispatchModeSync  = "sync"
	DispatchModeAsync = "async"

	ImageLocatorPublic = "public"
	ImageLocatorMinio  = "minio"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	StoreDriver    string
	DatabaseURL    string
	MigrationsAuto bool
	JWTSecret      string
	JWTIssuer      string
	PublicBaseURL  string

	EngineWebhookURL     string
	EngineAPIKey         string
	EngineCallbackSecret string
	DispatchMode         string
	EngineSyncTimeout    time.Duration
	EngineAsyncTimeout   time.Duration

	ImageLocator    string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	MinioPresignTTL time.Duration

	ImageSourceAllowlist []string

	ExtractPriorityKeys    []string
	ExtractInlineThreshold int
	ExtractDefaultMIME     string

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationsAuto: getEnvBool("MIGRATIONS_AUTO", true),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      os.Getenv("JWT_ISSUER"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),

		EngineWebhookURL:     os.Getenv("ENGINE_WEBHOOK_URL"),
		EngineAPIKey:         os.Getenv("ENGINE_API_KEY"),
		EngineCallbackSecret: os.Getenv("ENGINE_CALLBACK_SECRET"),
		DispatchMode:         strings.ToLower(getEnv("DISPATCH_MODE", DispatchModeSync)),
		EngineSyncTimeout:    getEnvSeconds("ENGINE_SYNC_TIMEOUT_SECONDS", 15),
		EngineAsyncTimeout:   getEnvSeconds("ENGINE_ASYNC_TIMEOUT_SECONDS", 120),

		ImageLocator:    strings.ToLower(getEnv("IMAGE_LOCATOR", ImageLocatorPublic)),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnv("MINIO_BUCKET", "job-inputs"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		MinioPresignTTL: getEnvSeconds("MINIO_PRESIGN_TTL_SECONDS", 3600),

		ExtractPriorityKeys:    splitList(getEnv("EXTRACT_PRIORITY_KEYS", "image,base64,output_image_url,url,data")),
		ExtractInlineThreshold: getEnvInt("EXTRACT_INLINE_THRESHOLD", 1000),
		ExtractDefaultMIME:     getEnv("EXTRACT_DEFAULT_MIME", "image/png"),

		HTTPReadTimeout:    getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout:   getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 30),
		HTTPIdleTimeout:    getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 20<<20)),
	}

	allowlist, err := buildAllowlist(cfg.PublicBaseURL, os.Getenv("IMAGE_SOURCE_HOST_ALLOWLIST"))
	if err != nil {
		return nil, err
	}
	cfg.ImageSourceAllowlist = allowlist

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.EngineWebhookURL == "" {
		return fmt.Errorf("ENGINE_WEBHOOK_URL is required")
	}

	switch c.DispatchMode {
	case DispatchModeSync, DispatchModeAsync:
	default:
		return fmt.Errorf("unsupported DISPATCH_MODE %q", c.DispatchMode)
	}
	if c.EngineSyncTimeout <= 0 {
		return fmt.Errorf("ENGINE_SYNC_TIMEOUT_SECONDS must be positive")
	}
	if c.DispatchMode == DispatchModeSync && c.HTTPWriteTimeout <= c.EngineSyncTimeout {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT_SECONDS (%s) must exceed ENGINE_SYNC_TIMEOUT_SECONDS (%s)", c.HTTPWriteTimeout, c.EngineSyncTimeout)
	}

	switch c.ImageLocator {
	case ImageLocatorPublic:
	case ImageLocatorMinio:
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for IMAGE_LOCATOR=minio")
		}
	default:
		return fmt.Errorf("unsupported IMAGE_LOCATOR %q", c.ImageLocator)
	}

	if len(c.ExtractPriorityKeys) == 0 {
		return fmt.Errorf("EXTRACT_PRIORITY_KEYS must not be empty")
	}
	if c.ExtractInlineThreshold <= 0 {
		return fmt.Errorf("EXTRACT_INLINE_THRESHOLD must be positive")
	}
	return nil
}

// buildAllowlist merges the public base URL host with an explicit
// comma-separated host list, deduplicated and sorted.
func buildAllowlist(publicBaseURL, explicit string) ([]string, error) {
	seen := map[string]struct{}{}
	if publicBaseURL != "" {
		u, err := url.Parse(publicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse PUBLIC_BASE_URL: %w", err)
		}
		if host := strings.ToLower(u.Hostname()); host != "" {
			seen[host] = struct{}{}
		}
	}
	for _, host := range splitList(explicit) {
		seen[strings.ToLower(host)] = struct{}{}
	}
	hosts := make([]string, 0, len(seen))
	for host := range seen {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
