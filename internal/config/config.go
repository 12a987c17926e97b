package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application settings.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Email    EmailConfig
	Auth     AuthConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds the Redis connection settings. Modes: single, sentinel.
type RedisConfig struct {
	Mode       string   `mapstructure:"mode"`
	Addrs      []string `mapstructure:"addrs"`
	Addr       string   `mapstructure:"addr"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	MasterName string   `mapstructure:"master_name"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// EmailConfig holds delivery provider settings. An empty ResendAPIKey selects
// the noop sender for local development.
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// AuthConfig holds code lifecycle infrastructure settings.
type AuthConfig struct {
	// LockTimeoutMs bounds how long a request waits for the per-user or
	// per-email exclusive section before failing as retryable.
	LockTimeoutMs int `mapstructure:"lock_timeout_ms"`
}

// LockTimeout returns the advisory lock wait bound.
func (a *AuthConfig) LockTimeout() time.Duration {
	return time.Duration(a.LockTimeoutMs) * time.Millisecond
}

// PostgresConnectionString builds the PostgreSQL DSN.
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from an optional yaml file plus environment variables.
func Load(configPath string) (*Config, error) {
	vip := viper.New()

	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.readtimeout", "SERVER_READTIMEOUT")
	vip.BindEnv("server.writetimeout", "SERVER_WRITETIMEOUT")

	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("jwt.secret", "JWT_SECRET")

	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	vip.BindEnv("auth.lock_timeout_ms", "AUTH_LOCK_TIMEOUT_MS")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Config file '%s' not found, relying on environment variables.", configPath)
			} else {
				log.Printf("Warning: could not read config file '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Auth.LockTimeoutMs <= 0 {
		cfg.Auth.LockTimeoutMs = 5000
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required (check JWT_SECRET env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}

	return &cfg, nil
}
