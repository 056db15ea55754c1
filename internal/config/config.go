package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Product Helper control plane.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Retention RetentionConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	// Driver selects the store implementation: "sqlite" or "memory".
	Driver string
	// Path is the sqlite database file. Ignored for the memory driver.
	Path string
	// SnapshotPath is where the memory driver persists its JSON snapshot.
	// Empty disables snapshotting.
	SnapshotPath string
}

type AuthConfig struct {
	// AdminToken guards the admin REST surface. Empty disables the
	// admin API entirely — the MCP surface never uses it.
	AdminToken string
	// CacheEntries caps the validated-key cache. Zero disables caching.
	CacheEntries int64
	// CacheTTL bounds how long a validated key may be served from cache.
	CacheTTL time.Duration
}

type RateLimitConfig struct {
	// Requests admitted per key prefix per window.
	Requests int
	// Window length.
	Window time.Duration
}

type RetentionConfig struct {
	// AuditDays is how long audit events stay in the hot store.
	AuditDays int
	// Interval between janitor sweeps.
	Interval time.Duration
	// ArchivePath is where pruned events are written as JSONL.
	// Empty disables archiving (purge only).
	ArchivePath string
	// CompressArchives gzips archive files.
	CompressArchives bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("PH_PORT", 8080),
		Version: envStr("PH_VERSION", "0.4.0"),
		Database: DatabaseConfig{
			Driver:       envStr("PH_DB_DRIVER", "sqlite"),
			Path:         envStr("PH_DB_PATH", "producthelper.db"),
			SnapshotPath: envStr("PH_DB_SNAPSHOT_PATH", ""),
		},
		Auth: AuthConfig{
			AdminToken:   envStr("PH_ADMIN_TOKEN", ""),
			CacheEntries: int64(envInt("PH_KEY_CACHE_ENTRIES", 10000)),
			CacheTTL:     envDuration("PH_KEY_CACHE_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Requests: envInt("PH_RATE_LIMIT_REQUESTS", 100),
			Window:   envDuration("PH_RATE_LIMIT_WINDOW", 60*time.Second),
		},
		Retention: RetentionConfig{
			AuditDays:        envInt("PH_AUDIT_RETENTION_DAYS", 30),
			Interval:         envDuration("PH_RETENTION_INTERVAL", time.Hour),
			ArchivePath:      envStr("PH_ARCHIVE_PATH", ""),
			CompressArchives: envBool("PH_ARCHIVE_COMPRESS", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "producthelper"),
		},
	}
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
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
