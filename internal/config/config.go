package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Auth      AuthConfig      `yaml:"auth"`
	Upstreams UpstreamConfig  `yaml:"upstreams"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Empty URL means memory-only analytics
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Empty Addr disables Redis-backed locking and rate limiting
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Bounds for the in-memory recent-events buffer
const (
	MinBufferCapacity = 50
	MaxBufferCapacity = 100
)

type AnalyticsConfig struct {
	BufferCapacity   int           `yaml:"buffer_capacity"`
	HydrateCount     int           `yaml:"hydrate_count"`
	PersistQueueSize int           `yaml:"persist_queue_size"`
	FingerprintSalt  string        `yaml:"fingerprint_salt"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	RecentLimit      int           `yaml:"recent_limit"`
	TopK             int           `yaml:"top_k"`
	PruneOnArchive   bool          `yaml:"prune_on_archive"`
	RolloverSchedule string        `yaml:"rollover_schedule"`
}

type ArchiveConfig struct {
	Backend        string `yaml:"backend"` // "file" or "s3"
	Dir            string `yaml:"dir"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	S3Prefix       string `yaml:"s3_prefix"`
}

type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	TokenExpiryHours  int    `yaml:"token_expiry_hours"`
}

type UpstreamConfig struct {
	PubChem      string `yaml:"pubchem"`
	PugView      string `yaml:"pugview"`
	Autocomplete string `yaml:"autocomplete"`
}

type RateLimitConfig struct {
	AdminPerMinute  int `yaml:"admin_per_minute"`
	StreamPerMinute int `yaml:"stream_per_minute"`
}

// Returns the configuration with every default applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "3001", Environment: "development"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Analytics: AnalyticsConfig{
			BufferCapacity:   100,
			HydrateCount:     100,
			PersistQueueSize: 1024,
			PublishInterval:  30 * time.Second,
			RecentLimit:      10,
			TopK:             10,
			RolloverSchedule: "5 0 1 * *",
		},
		Archive: ArchiveConfig{Backend: "file", Dir: "archives", S3Region: "us-east-1", S3Prefix: "analytics/"},
		Auth:    AuthConfig{TokenExpiryHours: 12},
		Upstreams: UpstreamConfig{
			PubChem:      "https://pubchem.ncbi.nlm.nih.gov/rest/pug",
			PugView:      "https://pubchem.ncbi.nlm.nih.gov/rest/pug_view",
			Autocomplete: "https://pubchem.ncbi.nlm.nih.gov/rest/autocomplete",
		},
		RateLimit: RateLimitConfig{AdminPerMinute: 30, StreamPerMinute: 20},
	}
}

// Reads an optional YAML file and overlays MOLEXA_* environment variables.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvString("PORT", c.Server.Port)
	c.Server.Environment = getEnvString("MOLEXA_ENV", c.Server.Environment)
	c.Log.Level = getEnvString("MOLEXA_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvString("MOLEXA_LOG_FORMAT", c.Log.Format)

	c.Database.URL = getEnvString("DATABASE_URL", c.Database.URL)

	c.Redis.Addr = getEnvString("MOLEXA_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvString("MOLEXA_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("MOLEXA_REDIS_DB", c.Redis.DB)

	a := &c.Analytics
	a.BufferCapacity = getEnvInt("MOLEXA_ANALYTICS_BUFFER", a.BufferCapacity)
	a.HydrateCount = getEnvInt("MOLEXA_ANALYTICS_HYDRATE", a.HydrateCount)
	a.PersistQueueSize = getEnvInt("MOLEXA_ANALYTICS_QUEUE", a.PersistQueueSize)
	a.FingerprintSalt = getEnvString("MOLEXA_FINGERPRINT_SALT", a.FingerprintSalt)
	a.PublishInterval = getEnvDuration("MOLEXA_PUBLISH_INTERVAL", a.PublishInterval)
	a.RecentLimit = getEnvInt("MOLEXA_RECENT_LIMIT", a.RecentLimit)
	a.TopK = getEnvInt("MOLEXA_TOP_K", a.TopK)
	a.PruneOnArchive = getEnvBool("MOLEXA_PRUNE_ON_ARCHIVE", a.PruneOnArchive)
	a.RolloverSchedule = getEnvString("MOLEXA_ROLLOVER_SCHEDULE", a.RolloverSchedule)

	ar := &c.Archive
	ar.Backend = getEnvString("MOLEXA_ARCHIVE_BACKEND", ar.Backend)
	ar.Dir = getEnvString("MOLEXA_ARCHIVE_DIR", ar.Dir)
	ar.S3Bucket = getEnvString("MOLEXA_S3_BUCKET", ar.S3Bucket)
	ar.S3Region = getEnvString("MOLEXA_S3_REGION", ar.S3Region)
	ar.S3Endpoint = getEnvString("MOLEXA_S3_ENDPOINT", ar.S3Endpoint)
	ar.S3AccessKey = getEnvString("MOLEXA_S3_ACCESS_KEY", ar.S3AccessKey)
	ar.S3SecretKey = getEnvString("MOLEXA_S3_SECRET_KEY", ar.S3SecretKey)
	ar.S3UsePathStyle = getEnvBool("MOLEXA_S3_PATH_STYLE", ar.S3UsePathStyle)
	ar.S3Prefix = getEnvString("MOLEXA_S3_PREFIX", ar.S3Prefix)

	c.Auth.JWTSecret = getEnvString("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AdminPasswordHash = getEnvString("MOLEXA_ADMIN_PASSWORD_HASH", c.Auth.AdminPasswordHash)
	c.Auth.TokenExpiryHours = getEnvInt("MOLEXA_TOKEN_EXPIRY_HOURS", c.Auth.TokenExpiryHours)

	c.Upstreams.PubChem = getEnvString("MOLEXA_PUBCHEM_URL", c.Upstreams.PubChem)
	c.Upstreams.PugView = getEnvString("MOLEXA_PUGVIEW_URL", c.Upstreams.PugView)
	c.Upstreams.Autocomplete = getEnvString("MOLEXA_AUTOCOMPLETE_URL", c.Upstreams.Autocomplete)

	c.RateLimit.AdminPerMinute = getEnvInt("MOLEXA_ADMIN_RATE_LIMIT", c.RateLimit.AdminPerMinute)
	c.RateLimit.StreamPerMinute = getEnvInt("MOLEXA_STREAM_RATE_LIMIT", c.RateLimit.StreamPerMinute)
}

// Normalises out-of-range values back to defaults and rejects unusable settings
func (c *Config) Validate() error {
	def := Default()
	a := &c.Analytics

	switch {
	case a.BufferCapacity <= 0:
		a.BufferCapacity = def.Analytics.BufferCapacity
	case a.BufferCapacity < MinBufferCapacity:
		a.BufferCapacity = MinBufferCapacity
	case a.BufferCapacity > MaxBufferCapacity:
		a.BufferCapacity = MaxBufferCapacity
	}
	if a.HydrateCount < 0 || a.HydrateCount > a.BufferCapacity {
		a.HydrateCount = a.BufferCapacity
	}
	if a.PersistQueueSize <= 0 {
		a.PersistQueueSize = def.Analytics.PersistQueueSize
	}
	if a.PublishInterval <= 0 {
		a.PublishInterval = def.Analytics.PublishInterval
	}
	if a.RecentLimit <= 0 || a.RecentLimit > a.BufferCapacity {
		a.RecentLimit = min(def.Analytics.RecentLimit, a.BufferCapacity)
	}
	if a.TopK <= 0 {
		a.TopK = def.Analytics.TopK
	}
	if c.Auth.TokenExpiryHours <= 0 {
		c.Auth.TokenExpiryHours = def.Auth.TokenExpiryHours
	}

	switch c.Archive.Backend {
	case "", "file":
		c.Archive.Backend = "file"
		if c.Archive.Dir == "" {
			c.Archive.Dir = def.Archive.Dir
		}
	case "s3":
		if c.Archive.S3Bucket == "" {
			return errors.New("archive backend s3 requires a bucket")
		}
	default:
		return fmt.Errorf("unknown archive backend: %s", c.Archive.Backend)
	}

	return nil
}

func (c *Config) DatabaseEnabled() bool {
	return strings.TrimSpace(c.Database.URL) != ""
}

func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

func getEnvString(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
