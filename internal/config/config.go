package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the livewatch server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ContaMiner ContaMinerConfig
	Page       PageConfig
	Poll       PollConfig
	Admin      AdminConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// ContaMinerConfig locates the upstream status endpoints.
type ContaMinerConfig struct {
	APIURL string
	// JobStatusURL may contain {job_id}; empty means {APIURL}/status/{job_id}.
	JobStatusURL string
	Timeout      time.Duration
}

// PageConfig is shared by every rendered page.
type PageConfig struct {
	UglymolURL       string
	PercentThreshold float64
}

type PollConfig struct {
	ResultsInterval  time.Duration
	StatusInterval   time.Duration
	SnapshotCacheTTL time.Duration
	SessionIdleTTL   time.Duration
}

// AdminConfig holds the bcrypt hash of the admin bearer token.
// An empty hash disables the admin routes.
type AdminConfig struct {
	TokenHash string
}

type RateLimitConfig struct {
	PerMinute int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LIVEWATCH_PORT", 8080),
			Env:  envString("LIVEWATCH_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		ContaMiner: ContaMinerConfig{
			APIURL:       os.Getenv("CONTAMINER_API_URL"),
			JobStatusURL: os.Getenv("CONTAMINER_JOB_STATUS_URL"),
			Timeout:      envDuration("CONTAMINER_TIMEOUT", 30*time.Second),
		},
		Page: PageConfig{
			UglymolURL:       os.Getenv("UGLYMOL_URL"),
			PercentThreshold: envFloat("PERCENT_THRESHOLD", 95),
		},
		Poll: PollConfig{
			ResultsInterval:  envDuration("POLL_RESULTS_INTERVAL", 60*time.Second),
			StatusInterval:   envDuration("POLL_STATUS_INTERVAL", 10*time.Second),
			SnapshotCacheTTL: envDuration("SNAPSHOT_CACHE_TTL", 5*time.Second),
			SessionIdleTTL:   envDuration("SESSION_IDLE_TTL", 30*time.Minute),
		},
		Admin: AdminConfig{
			TokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.ContaMiner.APIURL == "" {
		return fmt.Errorf("CONTAMINER_API_URL is required")
	}
	if !isHTTPURL(c.ContaMiner.APIURL) {
		return fmt.Errorf("CONTAMINER_API_URL must start with http:// or https://, got %q", c.ContaMiner.APIURL)
	}
	if c.ContaMiner.JobStatusURL != "" && !isHTTPURL(c.ContaMiner.JobStatusURL) {
		return fmt.Errorf("CONTAMINER_JOB_STATUS_URL must start with http:// or https://, got %q", c.ContaMiner.JobStatusURL)
	}

	if c.Page.PercentThreshold < 0 || c.Page.PercentThreshold > 100 {
		return fmt.Errorf("PERCENT_THRESHOLD must be between 0 and 100, got %v", c.Page.PercentThreshold)
	}

	if c.Poll.ResultsInterval <= 0 || c.Poll.StatusInterval <= 0 {
		return fmt.Errorf("POLL_RESULTS_INTERVAL and POLL_STATUS_INTERVAL must be positive")
	}

	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimit.PerMinute)
	}

	return nil
}

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
