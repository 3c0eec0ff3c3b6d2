package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OTel      OTelConfig      `mapstructure:"otel"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Hold      HoldConfig      `mapstructure:"hold"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings. PprofPort 0 keeps the
// profiling listener off.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	PprofPort    int           `mapstructure:"pprof_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL, as used by the migrator
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	Topic    string   `mapstructure:"topic"`
}

// JWTConfig holds JWT settings for optional guest authentication
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// ProviderConfig holds settings for the external booking provider
type ProviderConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	HMACSecret string        `mapstructure:"hmac_secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CaptchaConfig holds reCAPTCHA verification settings for anonymous guests
type CaptchaConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	VerifyURL string  `mapstructure:"verify_url"`
	Secret    string  `mapstructure:"secret"`
	MinScore  float64 `mapstructure:"min_score"`
}

// RateLimitBudget is one dimension's attempt allowance per fixed window
type RateLimitBudget struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

// RateLimitConfig holds per-dimension booking attempt budgets
type RateLimitConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	PerUser     RateLimitBudget `mapstructure:"per_user"`
	PerIP       RateLimitBudget `mapstructure:"per_ip"`
	PerEmail    RateLimitBudget `mapstructure:"per_email"`
	PerDevice   RateLimitBudget `mapstructure:"per_device"`
	PerUnitDate RateLimitBudget `mapstructure:"per_unit_date"`
}

// HoldConfig holds hold lifecycle settings
type HoldConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	ExpiryInterval  time.Duration `mapstructure:"expiry_interval"`
	PurgeInterval   time.Duration `mapstructure:"purge_interval"`
	RetentionWindow time.Duration `mapstructure:"retention_window"`
	SweepBatchSize  int           `mapstructure:"sweep_batch_size"`
}

// ReconcileConfig holds reconciliation sweep settings
type ReconcileConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	RetryBudget int           `mapstructure:"retry_budget"`
}

// CORSConfig holds browser origin settings
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional, environment variables may carry everything
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "booking-backend")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_PPROF_PORT", 0)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "booking_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "booking-backend")
	v.SetDefault("KAFKA_TOPIC", "booking.events")

	// JWT defaults
	v.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	v.SetDefault("JWT_ISSUER", "marinapark")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_SERVICE_NAME", "booking-backend")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Provider defaults
	v.SetDefault("PROVIDER_BASE_URL", "")
	v.SetDefault("PROVIDER_HMAC_SECRET", "")
	v.SetDefault("PROVIDER_TIMEOUT", "30s")

	// Captcha defaults
	v.SetDefault("CAPTCHA_ENABLED", true)
	v.SetDefault("CAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault("CAPTCHA_SECRET", "")
	v.SetDefault("CAPTCHA_MIN_SCORE", 0.5)

	// Rate limit defaults
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_PER_USER_MAX_ATTEMPTS", 10)
	v.SetDefault("RATE_LIMIT_PER_USER_WINDOW", "1h")
	v.SetDefault("RATE_LIMIT_PER_IP_MAX_ATTEMPTS", 20)
	v.SetDefault("RATE_LIMIT_PER_IP_WINDOW", "1h")
	v.SetDefault("RATE_LIMIT_PER_EMAIL_MAX_ATTEMPTS", 10)
	v.SetDefault("RATE_LIMIT_PER_EMAIL_WINDOW", "1h")
	v.SetDefault("RATE_LIMIT_PER_DEVICE_MAX_ATTEMPTS", 15)
	v.SetDefault("RATE_LIMIT_PER_DEVICE_WINDOW", "1h")
	v.SetDefault("RATE_LIMIT_PER_UNIT_DATE_MAX_ATTEMPTS", 30)
	v.SetDefault("RATE_LIMIT_PER_UNIT_DATE_WINDOW", "10m")

	// Hold defaults
	v.SetDefault("HOLD_TTL", "2m")
	v.SetDefault("HOLD_EXPIRY_INTERVAL", "10m")
	v.SetDefault("HOLD_PURGE_INTERVAL", "1h")
	v.SetDefault("HOLD_RETENTION_WINDOW", "720h") // 30 days
	v.SetDefault("HOLD_SWEEP_BATCH_SIZE", 200)

	// Reconcile defaults
	v.SetDefault("RECONCILE_INTERVAL", "5m")
	v.SetDefault("RECONCILE_BATCH_SIZE", 50)
	v.SetDefault("RECONCILE_RETRY_BUDGET", 5)

	// CORS defaults
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.PprofPort = v.GetInt("SERVER_PPROF_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = strings.Split(v.GetString("KAFKA_BROKERS"), ",")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.Topic = v.GetString("KAFKA_TOPIC")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Provider
	cfg.Provider.BaseURL = v.GetString("PROVIDER_BASE_URL")
	cfg.Provider.HMACSecret = v.GetString("PROVIDER_HMAC_SECRET")
	cfg.Provider.Timeout = v.GetDuration("PROVIDER_TIMEOUT")

	// Captcha
	cfg.Captcha.Enabled = v.GetBool("CAPTCHA_ENABLED")
	cfg.Captcha.VerifyURL = v.GetString("CAPTCHA_VERIFY_URL")
	cfg.Captcha.Secret = v.GetString("CAPTCHA_SECRET")
	cfg.Captcha.MinScore = v.GetFloat64("CAPTCHA_MIN_SCORE")

	// Rate limit
	cfg.RateLimit.Enabled = v.GetBool("RATE_LIMIT_ENABLED")
	cfg.RateLimit.PerUser.MaxAttempts = v.GetInt("RATE_LIMIT_PER_USER_MAX_ATTEMPTS")
	cfg.RateLimit.PerUser.Window = v.GetDuration("RATE_LIMIT_PER_USER_WINDOW")
	cfg.RateLimit.PerIP.MaxAttempts = v.GetInt("RATE_LIMIT_PER_IP_MAX_ATTEMPTS")
	cfg.RateLimit.PerIP.Window = v.GetDuration("RATE_LIMIT_PER_IP_WINDOW")
	cfg.RateLimit.PerEmail.MaxAttempts = v.GetInt("RATE_LIMIT_PER_EMAIL_MAX_ATTEMPTS")
	cfg.RateLimit.PerEmail.Window = v.GetDuration("RATE_LIMIT_PER_EMAIL_WINDOW")
	cfg.RateLimit.PerDevice.MaxAttempts = v.GetInt("RATE_LIMIT_PER_DEVICE_MAX_ATTEMPTS")
	cfg.RateLimit.PerDevice.Window = v.GetDuration("RATE_LIMIT_PER_DEVICE_WINDOW")
	cfg.RateLimit.PerUnitDate.MaxAttempts = v.GetInt("RATE_LIMIT_PER_UNIT_DATE_MAX_ATTEMPTS")
	cfg.RateLimit.PerUnitDate.Window = v.GetDuration("RATE_LIMIT_PER_UNIT_DATE_WINDOW")

	// Hold
	cfg.Hold.TTL = v.GetDuration("HOLD_TTL")
	cfg.Hold.ExpiryInterval = v.GetDuration("HOLD_EXPIRY_INTERVAL")
	cfg.Hold.PurgeInterval = v.GetDuration("HOLD_PURGE_INTERVAL")
	cfg.Hold.RetentionWindow = v.GetDuration("HOLD_RETENTION_WINDOW")
	cfg.Hold.SweepBatchSize = v.GetInt("HOLD_SWEEP_BATCH_SIZE")

	// Reconcile
	cfg.Reconcile.Interval = v.GetDuration("RECONCILE_INTERVAL")
	cfg.Reconcile.BatchSize = v.GetInt("RECONCILE_BATCH_SIZE")
	cfg.Reconcile.RetryBudget = v.GetInt("RECONCILE_RETRY_BUDGET")

	// CORS
	cfg.CORS.AllowedOrigins = strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Hold.TTL <= 0 {
		return fmt.Errorf("hold TTL must be positive")
	}

	if c.Reconcile.RetryBudget <= 0 {
		return fmt.Errorf("reconcile retry budget must be positive")
	}

	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT secret must be changed in production")
		}
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("PROVIDER_BASE_URL is required in production")
		}
		if c.Provider.HMACSecret == "" {
			return fmt.Errorf("PROVIDER_HMAC_SECRET is required in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
