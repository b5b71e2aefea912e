package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required,url|uri"`
	// DatabaseReadURL points reads at a replica. Empty means the primary.
	DatabaseReadURL string `mapstructure:"DATABASE_READ_URL" validate:"omitempty,url|uri"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"required,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	AsynqConcurrency int `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`

	JWTSecret   string        `mapstructure:"JWT_SECRET" validate:"required,min=16"`
	TokenTTL    time.Duration `mapstructure:"TOKEN_TTL" validate:"required"`
	Autoconfirm bool          `mapstructure:"AUTOCONFIRM"`

	StorageDir string `mapstructure:"STORAGE_DIR" validate:"required"`

	FetchMaxAttempts int           `mapstructure:"FETCH_MAX_ATTEMPTS" validate:"gte=1,lte=20"`
	FetchBackoff     time.Duration `mapstructure:"FETCH_BACKOFF" validate:"required"`
	ProvisionTimeout time.Duration `mapstructure:"PROVISION_TIMEOUT" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var keys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"SHUTDOWN_TIMEOUT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"DATABASE_URL",
	"DATABASE_READ_URL",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"ASYNQ_CONCURRENCY",
	"GOMAXPROCS",
	"JWT_SECRET",
	"TOKEN_TTL",
	"AUTOCONFIRM",
	"STORAGE_DIR",
	"FETCH_MAX_ATTEMPTS",
	"FETCH_BACKOFF",
	"PROVISION_TIMEOUT",
}

var durationKeys = []string{"SHUTDOWN_TIMEOUT", "TOKEN_TTL", "FETCH_BACKOFF", "PROVISION_TIMEOUT"}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("GOMAXPROCS", 0)
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("AUTOCONFIRM", true)
	v.SetDefault("STORAGE_DIR", "./data/storage")
	v.SetDefault("FETCH_MAX_ATTEMPTS", 3)
	v.SetDefault("FETCH_BACKOFF", "500ms")
	v.SetDefault("PROVISION_TIMEOUT", "5s")

	// Optional config file
	_ = v.ReadInConfig()

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Durations may arrive as plain strings from env.
	for _, key := range durationKeys {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		switch key {
		case "SHUTDOWN_TIMEOUT":
			c.ShutdownTimeout = d
		case "TOKEN_TTL":
			c.TokenTTL = d
		case "FETCH_BACKOFF":
			c.FetchBackoff = d
		case "PROVISION_TIMEOUT":
			c.ProvisionTimeout = d
		}
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	return &c, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// ReadDatabaseURL returns the replica URL, falling back to the primary.
func (c *Config) ReadDatabaseURL() string {
	if c.DatabaseReadURL != "" {
		return c.DatabaseReadURL
	}
	return c.DatabaseURL
}
