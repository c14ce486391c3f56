// Package config provides configuration management for AeroClaim.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SECRET_KEY)
// 3. Default values
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/config
package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/pkg/kms"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the root configuration structure.
type Config struct {
	Environment string `mapstructure:"environment"`

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	River    RiverConfig    `mapstructure:"river"`
	Security SecurityConfig `mapstructure:"security"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Files    FilesConfig    `mapstructure:"files"`
	WebDAV   WebDAVConfig   `mapstructure:"webdav"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// IsProduction reports whether the process runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// ADR-0002: one pgx pool shared by repositories and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// RedisConfig contains Redis settings for rate-limit counters and lockout
// state. The queue itself lives in Postgres (ADR-0002).
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River queue settings.
type RiverConfig struct {
	NotificationWorkers         int           `mapstructure:"notification_workers"`
	DocumentWorkers             int           `mapstructure:"document_workers"`
	MaintenanceWorkers          int           `mapstructure:"maintenance_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig holds key material. All three keys are independent: the
// JWT signing secret, the PII field-encryption master, and the file
// encryption master.
type SecurityConfig struct {
	SecretKey         string         `mapstructure:"secret_key"`
	DBEncryptionKey   string         `mapstructure:"db_encryption_key"`
	FileEncryptionKey string         `mapstructure:"file_encryption_key"`
	PasswordPolicy    PasswordPolicy `mapstructure:"password_policy"`
}

// PasswordPolicy defines password validation rules.
type PasswordPolicy struct {
	MinLength        int  `mapstructure:"min_length"`
	RequireUppercase bool `mapstructure:"require_uppercase"`
	RequireLowercase bool `mapstructure:"require_lowercase"`
	RequireDigit     bool `mapstructure:"require_digit"`
	RequireSpecial   bool `mapstructure:"require_special"`
}

// AuthConfig contains token lifetimes and login hardening knobs.
type AuthConfig struct {
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl"`
	MagicLinkTTL     time.Duration `mapstructure:"magic_link_ttl"`
	PasswordResetTTL time.Duration `mapstructure:"password_reset_ttl"`
	EmailVerifyTTL   time.Duration `mapstructure:"email_verify_ttl"`
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
	// LoginFloor is the minimum observable /login latency, masking the
	// cheap code paths (locked account, unknown email).
	LoginFloor   time.Duration `mapstructure:"login_floor"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

// FilesConfig tunes the document pipeline.
type FilesConfig struct {
	// MaxSize is the global upload cap; per-document-type rules may be
	// stricter, never looser.
	MaxSize            int64 `mapstructure:"max_size"`
	StreamingThreshold int64 `mapstructure:"streaming_threshold"`
	ChunkSize          int   `mapstructure:"chunk_size"`
}

// WebDAVConfig contains remote object store settings.
type WebDAVConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"pass"`
	BasePath string `mapstructure:"base_path"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`

	RetryMax       int           `mapstructure:"retry_max"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

// SMTPConfig contains outbound mail settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"pass"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	StartTLS bool   `mapstructure:"starttls"`
}

// ScannerConfig contains malware scanner settings. An empty URL means no
// scanner is configured.
type ScannerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// FailOpen permits uploads when the scanner is unreachable. Honored in
	// development only; production is always fail-closed.
	FailOpen bool `mapstructure:"fail_open"`
}

// CORSConfig contains allowed origin settings.
type CORSConfig struct {
	// Origins is a comma-separated closed list; wildcard is rejected.
	Origins string `mapstructure:"origins"`
}

// OriginList returns the parsed, trimmed origin list.
func (c CORSConfig) OriginList() []string {
	if strings.TrimSpace(c.Origins) == "" {
		return nil
	}
	parts := strings.Split(c.Origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	RemotePoolSize  int `mapstructure:"remote_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Standard environment variables carry no prefix (DATABASE_URL, REDIS_URL,
// SECRET_KEY); nested keys map dot-to-underscore (files.max_size → via
// explicit alias MAX_FILE_SIZE).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/aeroclaim")

	// Environment variable override.
	// Maps nested config: database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindAliases(v)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// ADR-0007: secrets auto-generate in development, never in production.
	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// bindAliases wires the short operational names the deployment environment
// uses to their nested config keys.
func bindAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"security.secret_key":          {"SECRET_KEY"},
		"security.db_encryption_key":   {"DB_ENCRYPTION_KEY"},
		"security.file_encryption_key": {"FILE_ENCRYPTION_KEY"},
		"files.max_size":               {"MAX_FILE_SIZE"},
		"files.streaming_threshold":    {"STREAMING_THRESHOLD"},
		"webdav.pass":                  {"WEBDAV_PASS", "WEBDAV_PASSWORD"},
	}
	for key, envs := range aliases {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}

// Validate checks for critical configuration errors. Production refuses to
// start on missing or malformed key material.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("environment must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Environment)
	}

	if len(c.Security.SecretKey) < 32 {
		return fmt.Errorf("security.secret_key (SECRET_KEY) must be at least 32 bytes")
	}
	if _, err := kms.ParseKey(c.Security.DBEncryptionKey); err != nil {
		return fmt.Errorf("security.db_encryption_key (DB_ENCRYPTION_KEY): %w", err)
	}
	if _, err := kms.ParseKey(c.Security.FileEncryptionKey); err != nil {
		return fmt.Errorf("security.file_encryption_key (FILE_ENCRYPTION_KEY): %w", err)
	}

	if err := c.validateCORS(); err != nil {
		return err
	}

	if c.Files.StreamingThreshold <= 0 || c.Files.MaxSize <= 0 {
		return fmt.Errorf("files.max_size and files.streaming_threshold must be positive")
	}
	if c.Auth.BcryptCost < 12 {
		return fmt.Errorf("auth.bcrypt_cost must be at least 12")
	}
	return nil
}

// validateCORS enforces the closed-origin policy: no wildcard ever (all
// endpoints are credentialed), https-only origins in production.
func (c *Config) validateCORS() error {
	for _, origin := range c.CORS.OriginList() {
		if origin == "*" {
			return fmt.Errorf("cors.origins: wildcard origin is not allowed with credentialed requests")
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("cors.origins: %q is not an absolute origin URL", origin)
		}
		if c.IsProduction() && u.Scheme != "https" {
			return fmt.Errorf("cors.origins: %q must be https in production", origin)
		}
	}
	return nil
}

// ensureSecrets auto-generates missing key material in development
// (ADR-0007). Production fails fast in Validate instead: silently booting
// with an ephemeral key would strand every encrypted row at restart.
func (c *Config) ensureSecrets() error {
	if c.Environment != EnvDevelopment {
		return nil
	}

	gen := func(name string, target *string) error {
		if *target != "" {
			return nil
		}
		key, err := kms.RandomKeyHex()
		if err != nil {
			return fmt.Errorf("auto-generate %s: %w", name, err)
		}
		*target = key
		logBootstrapWarn(
			"auto-generated "+name+" (development only); set the env var to persist data across restarts",
			zap.String("key", name),
		)
		return nil
	}

	if err := gen("SECRET_KEY", &c.Security.SecretKey); err != nil {
		return err
	}
	if err := gen("DB_ENCRYPTION_KEY", &c.Security.DBEncryptionKey); err != nil {
		return err
	}
	if err := gen("FILE_ENCRYPTION_KEY", &c.Security.FileEncryptionKey); err != nil {
		return err
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s") // streamed downloads
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database (ADR-0002 shared pool)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "aeroclaim")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "aeroclaim")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Redis
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.notification_workers", 10)
	v.SetDefault("river.document_workers", 5)
	v.SetDefault("river.maintenance_workers", 2)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.password_policy.min_length", 12)
	v.SetDefault("security.password_policy.require_uppercase", true)
	v.SetDefault("security.password_policy.require_lowercase", true)
	v.SetDefault("security.password_policy.require_digit", true)
	v.SetDefault("security.password_policy.require_special", true)

	// Auth
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.magic_link_ttl", "48h")
	v.SetDefault("auth.password_reset_ttl", "1h")
	v.SetDefault("auth.email_verify_ttl", "48h")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.login_floor", "250ms")
	v.SetDefault("auth.cookie_secure", true)

	// Files
	v.SetDefault("files.max_size", int64(50<<20))
	v.SetDefault("files.streaming_threshold", int64(50<<20))
	v.SetDefault("files.chunk_size", 4<<20)

	// WebDAV
	v.SetDefault("webdav.base_path", "/files")
	v.SetDefault("webdav.connect_timeout", "5s")
	v.SetDefault("webdav.read_timeout", "30s")
	v.SetDefault("webdav.retry_max", 5)
	v.SetDefault("webdav.retry_base_delay", "250ms")
	v.SetDefault("webdav.retry_max_delay", "30s")

	// SMTP
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "claims@aeroclaim.io")
	v.SetDefault("smtp.from_name", "AeroClaim")
	v.SetDefault("smtp.starttls", true)

	// Scanner
	v.SetDefault("scanner.timeout", "30s")
	v.SetDefault("scanner.fail_open", false)

	// Worker pool (ADR-0003)
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.remote_pool_size", 25)
}
