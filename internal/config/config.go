// Package config centralizes how OnboardOps reads environment variables and
// exposes them as strongly typed Go values. A .env file in the working
// directory is loaded first so one-off commands pick up the same settings as
// the services.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration shared by the CLI, the fill
// service and the worker.
type Config struct {
	Address      string
	MaxBodyBytes int64

	DatabaseURL string
	DBMaxConns  int

	// APIBaseURL and APIPrefix locate the onboarding REST API that smoke
	// tests talk to. Older snapshots of the API served /auth/login while newer
	// ones serve /api/auth/login, so the prefix is never hard-coded.
	APIBaseURL string
	APIPrefix  string

	JWTSecret []byte
	JWTTTL    time.Duration

	TemplateDir string
	SchemaFile  string

	SigningSecret []byte
	SignedURLTTL  time.Duration

	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Region       string
	S3UseSSL       bool
	DocumentBucket string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	WorkerCount   int

	SMTP             SMTPConfig
	EmailMaxAttempts int

	LogLevel string
	LogJSON  bool
}

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string
	SkipTLSVerify bool
}

const (
	defaultAddress        = ":8080"
	defaultMaxBodyBytes   = 10 << 20 // 10 MiB, signatures arrive inline as base64
	defaultDBMaxConns     = 4
	defaultAPIBaseURL     = "http://localhost:8000"
	defaultAPIPrefix      = "/api"
	defaultJWTTTL         = 24 * time.Hour
	defaultSignedTTL      = 5 * time.Minute
	defaultS3Endpoint     = "localhost:9000"
	defaultS3Region       = "us-east-1"
	defaultDocumentBucket = "onboarding-documents"
	defaultRedisAddr      = "localhost:6379"
	defaultWorkerCount    = 2
	defaultSMTPPort       = 587
	defaultEmailAttempts  = 3
	defaultLogLevel       = "info"
)

// Load reads configuration from environment variables falling back to
// defaults. Explicit env files must exist; the implicit ./.env is optional.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Address:      readEnv("ONBOARD_ADDRESS", defaultAddress),
		MaxBodyBytes: parseInt64("ONBOARD_MAX_BODY_BYTES", defaultMaxBodyBytes),

		DatabaseURL: readEnv("DATABASE_URL", ""),
		DBMaxConns:  parseInt("ONBOARD_DB_MAX_CONNS", defaultDBMaxConns),

		APIBaseURL: strings.TrimRight(readEnv("ONBOARD_API_BASE_URL", defaultAPIBaseURL), "/"),
		APIPrefix:  normalizePrefix(lookupEnv("ONBOARD_API_PREFIX", defaultAPIPrefix)),

		JWTSecret: parseSecret("ONBOARD_JWT_SECRET"),
		JWTTTL:    parseDuration("ONBOARD_JWT_TTL", defaultJWTTTL),

		TemplateDir: readEnv("ONBOARD_TEMPLATE_DIR", ""),
		SchemaFile:  readEnv("ONBOARD_SCHEMA_FILE", ""),

		SigningSecret: parseSecret("ONBOARD_SIGNING_SECRET"),
		SignedURLTTL:  parseDuration("ONBOARD_SIGNED_TTL", defaultSignedTTL),

		S3Endpoint:     readEnv("S3_ENDPOINT", defaultS3Endpoint),
		S3AccessKey:    readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    readEnv("S3_SECRET_KEY", ""),
		S3Region:       readEnv("S3_REGION", defaultS3Region),
		S3UseSSL:       parseBool("S3_USE_SSL", false),
		DocumentBucket: readEnv("ONBOARD_DOCUMENT_BUCKET", defaultDocumentBucket),

		RedisAddr:     readEnv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword: readEnv("REDIS_PASSWORD", ""),
		RedisDB:       parseInt("REDIS_DB", 0),
		WorkerCount:   parseInt("ONBOARD_WORKERS", defaultWorkerCount),

		SMTP: SMTPConfig{
			Host:          readEnv("SMTP_HOST", ""),
			Port:          parseInt("SMTP_PORT", defaultSMTPPort),
			User:          readEnv("SMTP_USER", ""),
			Pass:          readEnv("SMTP_PASS", ""),
			From:          readEnv("SMTP_FROM", ""),
			SkipTLSVerify: readEnv("SMTP_SKIP_TLS_VERIFY", "") == "1",
		},
		EmailMaxAttempts: parseInt("ONBOARD_EMAIL_MAX_ATTEMPTS", defaultEmailAttempts),

		LogLevel: readEnv("ONBOARD_LOG_LEVEL", defaultLogLevel),
		LogJSON:  parseBool("ONBOARD_LOG_JSON", false),
	}
	if cfg.JWTSecret == nil {
		cfg.JWTSecret = randomSecret()
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.DBMaxConns <= 0 {
		cfg.DBMaxConns = defaultDBMaxConns
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.JWTTTL <= 0 {
		cfg.JWTTTL = defaultJWTTTL
	}
	if cfg.EmailMaxAttempts <= 0 {
		cfg.EmailMaxAttempts = defaultEmailAttempts
	}
	if cfg.SMTP.Port <= 0 {
		cfg.SMTP.Port = defaultSMTPPort
	}
	return cfg, nil
}

// RequireDatabase reports a usable error when a command needs Postgres but
// DATABASE_URL was never set.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	return nil
}

// Endpoint joins the API base URL, prefix and path.
func (c *Config) Endpoint(path string) string {
	return c.APIBaseURL + c.APIPrefix + "/" + strings.TrimLeft(path, "/")
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// lookupEnv is readEnv for settings where an empty value is meaningful.
func lookupEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte("onboardops-fallback-secret")
	}
	return buf
}
